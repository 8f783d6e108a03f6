package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "dailydispatch/pkg/logx"
)

var metricsStub = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("dispatch_runs_total 1\n"))
})

func get(t *testing.T, h http.Handler, target, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	h := Handler(Config{}, metricsStub)
	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := get(t, h, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dispatch_runs_total") {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof should be off by default, got %d", rec.Code)
	}
	if rec := get(t, Handler(Config{Pprof: true}, nil), "/debug/pprof/", ""); rec.Code != http.StatusOK {
		t.Fatalf("pprof index = %d", rec.Code)
	}
}

func TestHandlerToken(t *testing.T) {
	h := Handler(Config{Token: "t0k"}, metricsStub)
	cases := []struct {
		target, auth string
		want         int
	}{
		{"/metrics", "", http.StatusUnauthorized},
		{"/metrics", "Bearer nope", http.StatusUnauthorized},
		{"/metrics", "Bearer t0k", http.StatusOK},
		{"/metrics?token=t0k", "", http.StatusOK},
		{"/metrics?token=bad", "Bearer t0k", http.StatusUnauthorized},
		{"/healthz", "", http.StatusOK},
	}
	for _, c := range cases {
		if rec := get(t, h, c.target, c.auth); rec.Code != c.want {
			t.Fatalf("GET %s (%q) = %d, want %d", c.target, c.auth, rec.Code, c.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:9464": true,
		"[::1]:9464":     true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"10.0.0.5:9464":  false,
		"bogus":          false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestServeRefusesInsecureBind(t *testing.T) {
	err := Serve(context.Background(), Config{Addr: "0.0.0.0:0"}, nil, logx.Nop())
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Serve(ctx, Config{Addr: "127.0.0.1:0"}, metricsStub, logx.Nop()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
