package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/sb2gs-service/internal/fetcher/colly"
	"github.com/JakeFAU/sb2gs-service/internal/id/uuid"
	"github.com/JakeFAU/sb2gs-service/internal/pipeline"
	"github.com/JakeFAU/sb2gs-service/internal/queue/memory"
	"github.com/JakeFAU/sb2gs-service/internal/scratch"
	"github.com/JakeFAU/sb2gs-service/internal/upstream"
	"github.com/JakeFAU/sb2gs-service/internal/workspace"
)

const scenarioManifest = `{"targets":[
 {"isStage":true,"name":"Stage","costumes":[{"assetId":"a1","md5ext":"a1.svg","dataFormat":"svg"}],"sounds":[{"assetId":"s1","dataFormat":"wav"}]},
 {"isStage":false,"name":"Sprite1","costumes":[{"md5ext":"c1.png"}],"sounds":[]}
]}`

// fakeScratch serves the token, manifest and asset endpoints.
type fakeScratch struct {
	mu       sync.Mutex
	hits     map[string]int
	failures map[string]int
}

func (f *fakeScratch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	status, failing := f.failures[r.URL.Path]
	f.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	switch r.URL.Path {
	case "/api/projects/885002848":
		_, _ = io.WriteString(w, `{"id":885002848,"project_token":"tok-1"}`)
	case "/api/projects/404":
		_, _ = io.WriteString(w, `{"code":"NotFound","message":""}`)
	case "/projects/885002848":
		if r.URL.Query().Get("token") != "tok-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, scenarioManifest)
	case "/assets/a1.svg/get/", "/assets/s1.wav/get/", "/assets/c1.png/get/":
		_, _ = io.WriteString(w, "bytes of "+r.URL.Path)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeScratch) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// writingDecompiler checks the input archive and emits one goboscript file.
type writingDecompiler struct {
	mu      sync.Mutex
	calls   int
	entries []string
}

func (d *writingDecompiler) Decompile(_ context.Context, req scratch.DecompileRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	r, err := zip.OpenReader(req.Input)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		d.entries = append(d.entries, f.Name)
	}
	if err := r.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(req.Output, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(req.Output, "stage.gs"), []byte("costumes \"a1.svg\";\n"), 0o600)
}

func newStack(t *testing.T, upstreamSrv *httptest.Server, dec scratch.Decompiler) http.Handler {
	t.Helper()

	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout:   5 * time.Second,
		Transport: upstreamSrv.Client().Transport,
	})
	client, err := upstream.New(fetcher, upstream.Config{
		TokenSources:   []string{upstreamSrv.URL + "/api"},
		ProjectsBase:   upstreamSrv.URL + "/projects",
		AssetsBase:     upstreamSrv.URL + "/assets",
		MaxConcurrency: 4,
	}, zap.NewNop())
	require.NoError(t, err)

	ids := uuid.New()
	workspaces, err := workspace.New(workspace.Config{BaseDir: t.TempDir()}, ids)
	require.NoError(t, err)

	pool := dispatcher.NewPool(memory.NewQueue(2), dec, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	orch, err := pipeline.New(client, pool, workspaces, pipeline.Config{Overwrite: true, Verify: true}, zap.NewNop())
	require.NoError(t, err)

	s, err := NewServer(orch, ids, Config{RequestTimeout: 30 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	return s.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestEndToEnd_Scenario885002848(t *testing.T) {
	t.Parallel()

	scratchAPI := &fakeScratch{hits: map[string]int{}}
	srv := httptest.NewServer(scratchAPI)
	defer srv.Close()
	dec := &writingDecompiler{}
	h := newStack(t, srv, dec)

	rec := get(t, h, "/api/sb2gs/?id=885002848")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "stage.gs", zr.File[0].Name)

	for _, path := range []string{"/assets/a1.svg/get/", "/assets/s1.wav/get/", "/assets/c1.png/get/"} {
		assert.Equal(t, 1, scratchAPI.count(path), path)
	}
	assert.Equal(t, 1, dec.calls)
	assert.ElementsMatch(t, []string{"project.json", "a1.svg", "c1.png", "s1.wav"}, dec.entries)
}

func TestEndToEnd_InvalidIDMakesNoUpstreamCalls(t *testing.T) {
	t.Parallel()

	scratchAPI := &fakeScratch{hits: map[string]int{}}
	srv := httptest.NewServer(scratchAPI)
	defer srv.Close()
	h := newStack(t, srv, &writingDecompiler{})

	for _, target := range []string{"/api/sb2gs/", "/api/sb2gs/?id=abc", "/api/sb2gs/?id=12.5"} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	scratchAPI.mu.Lock()
	defer scratchAPI.mu.Unlock()
	assert.Empty(t, scratchAPI.hits)
}

func TestEndToEnd_NoToken(t *testing.T) {
	t.Parallel()

	scratchAPI := &fakeScratch{hits: map[string]int{}}
	srv := httptest.NewServer(scratchAPI)
	defer srv.Close()
	dec := &writingDecompiler{}
	h := newStack(t, srv, dec)

	rec := get(t, h, "/api/sb2gs/?id=404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `Could not get a project token, but got json response: {"code":"NotFound","message":""}`, rec.Body.String())
	assert.Zero(t, dec.calls)
}

func TestEndToEnd_AssetFailure(t *testing.T) {
	t.Parallel()

	scratchAPI := &fakeScratch{
		hits:     map[string]int{},
		failures: map[string]int{"/assets/s1.wav/get/": http.StatusInternalServerError},
	}
	srv := httptest.NewServer(scratchAPI)
	defer srv.Close()
	dec := &writingDecompiler{}
	h := newStack(t, srv, dec)

	rec := get(t, h, "/api/sb2gs/?id=885002848")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "s1.wav")
	assert.Zero(t, dec.calls)
}
