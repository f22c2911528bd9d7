package httpd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), func() any { return map[string]int{"pending": 3} })
	h := s.Handler()

	for _, p := range []string{"/", "/health"} {
		rec := get(t, h, p, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Fatalf("GET %s = %d %q, want 200 OK", p, rec.Code, rec.Body.String())
		}
	}
	if rec := get(t, h, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d, want 404", rec.Code)
	}

	rec := get(t, h, "/healthz", nil)
	var doc struct {
		Status     string         `json:"status"`
		Components map[string]int `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("healthz body %q: %v", rec.Body.String(), err)
	}
	if doc.Status != "ok" || doc.Components["pending"] != 3 {
		t.Fatalf("healthz = %+v", doc)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	off := New(Config{}, logx.Nop(), nil).Handler()
	if rec := get(t, off, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: GET = %d, want 404", rec.Code)
	}

	on := New(Config{Pprof: PprofConfig{Enabled: true, Prefix: "dbg", Token: "s3"}}, logx.Nop(), nil).Handler()
	if rec := get(t, on, "/dbg/", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: GET = %d, want 401", rec.Code)
	}
	if rec := get(t, on, "/dbg/?token=bad", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: GET = %d, want 401", rec.Code)
	}
	if rec := get(t, on, "/dbg/", map[string]string{"Authorization": "Bearer s3"}); rec.Code != http.StatusOK {
		t.Fatalf("bearer: GET = %d, want 200", rec.Code)
	}
	if rec := get(t, on, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health behind token: GET = %d", rec.Code)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, logx.Nop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	if err := s.WaitBound(ctx); err != nil {
		t.Fatalf("WaitBound = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "OK" {
		t.Fatalf("body = %q", body)
	}

	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatalf("Addr after Stop = %q", s.Addr())
	}
}

func TestNormalizeAndListenAddr(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"": "/debug/pprof/", "x": "/x/", "/y/": "/y/"} {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
	if got := ListenAddr(0); got != ":8080" {
		t.Fatalf("ListenAddr(0) = %q", got)
	}
	if got := ListenAddr(9000); got != ":9000" {
		t.Fatalf("ListenAddr(9000) = %q", got)
	}
}
