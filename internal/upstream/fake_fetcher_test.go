package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRoute struct {
	status int
	body   string
	err    error
	block  bool
}

// fakeFetcher answers by exact URL and records every request it sees.
type fakeFetcher struct {
	mu       sync.Mutex
	routes   map[string]fakeRoute
	requests []scratch.FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{routes: make(map[string]fakeRoute)}
}

func (f *fakeFetcher) on(url string, status int, body string) *fakeFetcher {
	f.routes[url] = fakeRoute{status: status, body: body}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, req scratch.FetchRequest) (scratch.FetchResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	route, ok := f.routes[req.URL]
	f.mu.Unlock()

	if !ok {
		return scratch.FetchResponse{}, &scratch.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	if route.block {
		<-ctx.Done()
		return scratch.FetchResponse{}, fmt.Errorf("blocked fetch: %w", ctx.Err())
	}
	if route.err != nil {
		return scratch.FetchResponse{}, route.err
	}
	if route.status >= 300 {
		return scratch.FetchResponse{}, &scratch.StatusError{URL: req.URL, StatusCode: route.status, Body: []byte(route.body)}
	}
	return scratch.FetchResponse{URL: req.URL, StatusCode: route.status, Body: []byte(route.body)}, nil
}

func (f *fakeFetcher) calls() []scratch.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scratch.FetchRequest(nil), f.requests...)
}

func (f *fakeFetcher) callsWithPrefix(prefix string) int {
	n := 0
	for _, req := range f.calls() {
		if strings.HasPrefix(req.URL, prefix) {
			n++
		}
	}
	return n
}
