package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sb2gs-service/internal/config"
)

type fakeApp struct {
	runErr error
	ran    bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func swapApp(t *testing.T, fn func(*config.Config) (App, error)) {
	t.Helper()
	orig := newApp
	newApp = fn
	t.Cleanup(func() { newApp = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestServeBuildsAndRunsApp(t *testing.T) {
	app := &fakeApp{}
	var got *config.Config
	swapApp(t, func(cfg *config.Config) (App, error) {
		got = cfg
		return app, nil
	})

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--config", writeConfig(t, "decompiler:\n  workers: 3\n"), "--port", "9999"})
	require.NoError(t, root.Execute())

	assert.True(t, app.ran)
	require.NotNil(t, got)
	assert.Equal(t, 9999, got.Server.Port)
	assert.Equal(t, 3, got.Decompiler.Workers)
}

func TestServePropagatesErrors(t *testing.T) {
	swapApp(t, func(*config.Config) (App, error) {
		return nil, errors.New("boom")
	})

	root := newRootCmd()
	root.SetArgs([]string{"serve"})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestServeRejectsInvalidPort(t *testing.T) {
	swapApp(t, func(*config.Config) (App, error) {
		t.Fatal("app should not be built")
		return nil, nil
	})

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--port", "-1"})
	root.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, root.Execute(), "server.port")
}

func TestConfigPrintsEffectiveConfig(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"config", "--config", writeConfig(t, "decompiler:\n  binary: /opt/sb2gs\n")})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"Binary": "/opt/sb2gs"`)
}
