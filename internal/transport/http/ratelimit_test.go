package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newLimitedRouter(l *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/payments", Authenticate(nil), l.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func post(r http.Handler, actor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments", nil)
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BlocksPastLimit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 45, 0, time.UTC)
	logger, _ := logtest.NewNullLogger()
	l := NewRateLimiter(client, 2, logger)
	l.now = func() time.Time { return now }
	r := newLimitedRouter(l)

	for i := 0; i < 2; i++ {
		if rec := post(r, "user-1"); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected status 201, got %d", i+1, rec.Code)
		}
	}

	rec := post(r, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	var resp struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != codeRateLimited || resp.RetryAfter != 16 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if rec.Header().Get("Retry-After") != "16" {
		t.Fatalf("expected Retry-After 16, got %q", rec.Header().Get("Retry-After"))
	}

	if rec := post(r, "user-2"); rec.Code != http.StatusCreated {
		t.Fatalf("expected other actor to pass, got %d", rec.Code)
	}

	key := fmt.Sprintf("ratelimit:user-1:%d", now.Truncate(time.Minute).Unix())
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("expected key ttl of one minute, got %v", ttl)
	}
}

func TestRateLimiter_NewWindowResets(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(client, 1, nil)
	l.now = func() time.Time { return now }
	r := newLimitedRouter(l)

	if rec := post(r, "user-1"); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if rec := post(r, "user-1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}

	now = now.Add(time.Minute)
	if rec := post(r, "user-1"); rec.Code != http.StatusCreated {
		t.Fatalf("expected next window to pass, got %d", rec.Code)
	}
}

func TestRateLimiter_AnonymousKeyedByIP(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := newLimitedRouter(NewRateLimiter(client, 1, nil))
	post(r, "")

	found := false
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "ratelimit:ip:192.0.2.1:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ip-scoped key, got %v", mr.Keys())
	}
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	logger, hook := logtest.NewNullLogger()
	r := newLimitedRouter(NewRateLimiter(client, 1, logger))

	for i := 0; i < 3; i++ {
		if rec := post(r, "user-1"); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected status 201, got %d", i+1, rec.Code)
		}
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %v", entry)
	}
}

func TestRateLimiter_NilIsDisabled(t *testing.T) {
	t.Parallel()

	var l *RateLimiter
	r := newLimitedRouter(l)
	if rec := post(r, "user-1"); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
}
