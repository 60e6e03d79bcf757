package diag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tickjob/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerEndpoints(t *testing.T) {
	src := Sources{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "tickjob_frames_total 1\n") }),
		Loop:    func() any { return map[string]int{"frames": 42} },
	}
	s := New(Config{}, src, logx.Nop())
	h := s.Handler(Config{Prefix: "/pp"})

	assert.Equal(t, "ok", get(t, h, "/healthz").Body.String())
	assert.Contains(t, get(t, h, "/metrics").Body.String(), "tickjob_frames_total")

	rec := get(t, h, "/debug/loop")
	require.Equal(t, http.StatusOK, rec.Code)
	var loop map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loop))
	assert.Equal(t, 42, loop["frames"])

	assert.Equal(t, http.StatusOK, get(t, h, "/pp/").Code)
	rec = get(t, h, "/pp")
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/pp/", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/supervisor").Code, "no source")
}

func TestTokenAuth(t *testing.T) {
	s := New(Config{}, Sources{}, logx.Nop())
	h := s.Handler(Config{Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz", "Authorization", "Bearer nope").Code)
}

func TestAuthFailuresAreThrottled(t *testing.T) {
	s := New(Config{}, Sources{}, logx.Nop())
	h := s.Handler(Config{Token: "s3cret"})
	codes := map[int]int{}
	for i := 0; i < 20; i++ {
		codes[get(t, h, "/healthz?token=guess").Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code, "valid token is never throttled")
}

func TestStartRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	assert.ErrorIs(t, s.Start(context.Background()), ErrInsecure)
	assert.Empty(t, s.Addr())
}

func TestStartStopLoopback(t *testing.T) {
	s := New(Config{}, Sources{}, logx.Nop())
	require.NoError(t, s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"}))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Reconfigure(ctx, Config{Enabled: false}))
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:80":   true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}
