package tests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ridewatch/internal/middleware"
)

type idempotencyFixture struct {
	router *gin.Engine
	calls  int32
	status int
	gate   chan struct{}
}

func newIdempotencyFixture(t *testing.T) *idempotencyFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &idempotencyFixture{status: http.StatusOK}
	f.router = gin.New()
	f.router.Use(middleware.IdempotencyMiddleware(client))
	handle := func(c *gin.Context) {
		n := atomic.AddInt32(&f.calls, 1)
		if f.gate != nil {
			<-f.gate
		}
		c.JSON(f.status, gin.H{"ok": f.status < 300, "call": n})
	}
	f.router.POST("/rides", handle)
	f.router.GET("/rides", handle)
	return f
}

func (f *idempotencyFixture) send(method, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/rides", strings.NewReader(`{"origin":"A","destination":"B"}`))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysSuccessfulCreate(t *testing.T) {
	f := newIdempotencyFixture(t)

	first := f.send(http.MethodPost, "abc")
	second := f.send(http.MethodPost, "abc")

	if atomic.LoadInt32(&f.calls) != 1 {
		t.Fatalf("expected the handler to run once, ran %d times", atomic.LoadInt32(&f.calls))
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Errorf("expected replay %q, got %d %q", first.Body.String(), second.Code, second.Body.String())
	}
	if !strings.HasPrefix(second.Header().Get("Content-Type"), "application/json") {
		t.Errorf("expected JSON content type on replay, got %q", second.Header().Get("Content-Type"))
	}

	f.send(http.MethodPost, "other")
	if atomic.LoadInt32(&f.calls) != 2 {
		t.Errorf("expected a new key to reach the handler, calls=%d", atomic.LoadInt32(&f.calls))
	}
}

func TestIdempotency_FailuresAreRetried(t *testing.T) {
	f := newIdempotencyFixture(t)
	f.status = http.StatusBadGateway

	f.send(http.MethodPost, "abc")
	f.send(http.MethodPost, "abc")

	if atomic.LoadInt32(&f.calls) != 2 {
		t.Errorf("expected failed answers not to be replayed, calls=%d", atomic.LoadInt32(&f.calls))
	}
}

func TestIdempotency_ConcurrentDuplicateConflicts(t *testing.T) {
	f := newIdempotencyFixture(t)
	f.gate = make(chan struct{})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- f.send(http.MethodPost, "abc") }()
	waitFor(t, "first request in flight", func() bool { return atomic.LoadInt32(&f.calls) == 1 })

	second := f.send(http.MethodPost, "abc")
	close(f.gate)
	first := <-done

	if second.Code != http.StatusConflict {
		t.Errorf("expected 409 for the in-flight duplicate, got %d", second.Code)
	}
	if first.Code != http.StatusOK {
		t.Errorf("expected the first request to succeed, got %d", first.Code)
	}

	third := f.send(http.MethodPost, "abc")
	if third.Code != http.StatusOK || third.Body.String() != first.Body.String() {
		t.Errorf("expected the stored answer after completion, got %d %q", third.Code, third.Body.String())
	}
}

func TestIdempotency_IgnoresReadsAndMissingKey(t *testing.T) {
	f := newIdempotencyFixture(t)

	f.send(http.MethodGet, "abc")
	f.send(http.MethodGet, "abc")
	f.send(http.MethodPost, "")
	f.send(http.MethodPost, "")

	if atomic.LoadInt32(&f.calls) != 4 {
		t.Errorf("expected every request to reach the handler, calls=%d", atomic.LoadInt32(&f.calls))
	}
}
