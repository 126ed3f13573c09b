package probe_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/probe"
)

const page = `<!DOCTYPE html>
<html>
<head>
  <title>  Go   Packages </title>
  <meta property="og:title" content="OG Title">
  <style>body { color: red; }</style>
</head>
<body>
  <h1>Heading</h1>
  <script>var x = "hidden";</script>
  <p>Find and use   packages.</p>
</body>
</html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/no-head", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, "<html><body>ok</body></html>")
	})
	mux.HandleFunc("/og-only", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Only OG"></head><body></body></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_Check(t *testing.T) {
	srv := newServer(t)
	p := probe.NewHTTP(time.Second, logger.Nop())

	tests := []struct {
		path      string
		status    probe.Status
		reachable bool
	}{
		{"/ok", probe.Healthy, true},
		{"/no-head", probe.Healthy, true},
		{"/missing", probe.Dead, true},
		{"/gone", probe.Dead, true},
		{"/forbidden", probe.Restricted, true},
		{"/broken", probe.Restricted, true},
		{"/unavailable", probe.Restricted, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := p.Check(context.Background(), srv.URL+tt.path, time.Second)
			assert.Equal(t, r.Status, tt.status, "status code %d", r.StatusCode)
			assert.Equal(t, r.Reachable(), tt.reachable)
			assert.Equal(t, p.Head(context.Background(), srv.URL+tt.path, time.Second), tt.reachable)
		})
	}
}

func TestHTTP_CheckTimeout(t *testing.T) {
	srv := newServer(t)
	p := probe.NewHTTP(time.Second, nil)

	start := time.Now()
	r := p.Check(context.Background(), srv.URL+"/slow", 100*time.Millisecond)
	assert.Equal(t, r.Status, probe.Unreachable)
	assert.Assert(t, !r.Reachable())
	assert.Equal(t, r.Error, "Timeout")
	assert.Assert(t, time.Since(start) < 1500*time.Millisecond)
}

func TestHTTP_CheckRejectsNonWebURLs(t *testing.T) {
	p := probe.NewHTTP(time.Second, nil)
	for _, u := range []string{"javascript:void(0)", "chrome://settings", "not a url", "file:///etc/passwd"} {
		assert.Equal(t, p.Check(context.Background(), u, time.Second).Status, probe.Unreachable, u)
	}
}

func TestHTTP_LoadTitle(t *testing.T) {
	srv := newServer(t)
	p := probe.NewHTTP(time.Second, nil)
	ctx := context.Background()

	title, ok := p.LoadTitle(ctx, srv.URL+"/ok")
	assert.Assert(t, ok)
	assert.Equal(t, title, "Go Packages")

	title, ok = p.LoadTitle(ctx, srv.URL+"/og-only")
	assert.Assert(t, ok)
	assert.Equal(t, title, "Only OG")

	_, ok = p.LoadTitle(ctx, srv.URL+"/gone")
	assert.Assert(t, !ok)
}

func TestHTTP_LoadText(t *testing.T) {
	srv := newServer(t)
	p := probe.NewHTTP(time.Second, nil)
	ctx := context.Background()

	text := p.LoadText(ctx, srv.URL+"/ok", 0)
	assert.Equal(t, text, "Heading Find and use packages.")
	assert.Assert(t, !strings.Contains(text, "hidden"))

	assert.Equal(t, p.LoadText(ctx, srv.URL+"/ok", 7), "Heading")
	assert.Equal(t, p.LoadText(ctx, srv.URL+"/broken", 100), "")
}
