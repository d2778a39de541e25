package pprof

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "keysendnotifier/pkg/logx"
)

func waitForAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not start")
	return ""
}

func get(t *testing.T, h http.Handler, target, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReflectsState(t *testing.T) {
	t.Parallel()
	healthy := true
	s := New(Config{}, logx.Nop(), WithHealth(func() (bool, string) {
		if healthy {
			return true, "processing"
		}
		return false, "terminated"
	}))
	h := s.routes("", "")

	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "processing" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	healthy = false
	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestStatsJSON(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), WithStats(func() any { return map[string]int{"dispatched": 3} }))
	rec := get(t, s.routes("", ""), "/stats", "")
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["dispatched"] != 3 {
		t.Fatalf("stats = %v", got)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{}, logx.Nop()).routes("s3cret", "/dbg")

	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("bearer = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz?token=s3cret", ""); rec.Code != http.StatusOK {
		t.Fatalf("query token = %d", rec.Code)
	}
	if rec := get(t, h, "/dbg/", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("pprof index = %d", rec.Code)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":         "/debug/pprof/",
		"dbg":      "/dbg/",
		"/dbg":     "/dbg/",
		" /x/y/ ": "/x/y/",
	} {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}

func TestReconfigureEnableDisable(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	ctx := context.Background()

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := waitForAddr(t, s)

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{Enabled: false})
	if s.Enabled() {
		t.Fatal("expected disabled")
	}
	if _, err := http.Get("http://" + addr + "/healthz"); err == nil {
		t.Fatal("server still reachable after disable")
	}
}

func TestListenerChanged(t *testing.T) {
	t.Parallel()
	base := Config{Enabled: true, Addr: "", Prefix: "/debug/pprof"}
	tests := []struct {
		name string
		next Config
		want bool
	}{
		{name: "same after defaults", next: Config{Enabled: true, Addr: defaultAddr, Prefix: "debug/pprof/"}, want: false},
		{name: "addr", next: Config{Enabled: true, Addr: "127.0.0.1:7070"}, want: true},
		{name: "token", next: Config{Enabled: true, Token: "t"}, want: true},
		{name: "prefix", next: Config{Enabled: true, Prefix: "/dbg"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := base.listenerChanged(tt.next); got != tt.want {
				t.Fatalf("listenerChanged = %v, want %v", got, tt.want)
			}
		})
	}
}
