package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func do(e *echo.Echo, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID uint64, role model.Role) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, string(role), 5)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("", JWTAuth(secret))
	g.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(model.RoleAdmin))

	if rec := do(e, http.MethodGet, "/me", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/me", map[string]string{echo.HeaderAuthorization: "Bearer junk"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/me", bearer(t, 7, model.RoleStaff))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":7`) || !strings.Contains(rec.Body.String(), `"STAFF"`) {
		t.Fatalf("me: %d %s", rec.Code, rec.Body)
	}
	if rec := do(e, http.MethodGet, "/admin", bearer(t, 7, model.RoleStaff)); rec.Code != http.StatusForbidden {
		t.Fatalf("staff on admin route: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/admin", bearer(t, 1, model.RoleAdmin)); rec.Code != http.StatusNoContent {
		t.Fatalf("admin on admin route: %d", rec.Code)
	}
}

func TestRedisCache(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}

	calls := 0
	e := echo.New()
	e.Use(NewRedisCache(cfg, rdb))
	e.GET("/reports/:name", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"report": c.Param("name"), "calls": calls})
	})
	e.GET("/fail", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "boom"})
	})

	first := do(e, http.MethodGet, "/reports/revenue?start=2026-01-01", nil)
	second := do(e, http.MethodGet, "/reports/revenue?start=2026-01-01", nil)
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache = %q then %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() || calls != 1 {
		t.Fatalf("cached body differs or handler ran %d times", calls)
	}
	if ct := second.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		t.Fatalf("content type on hit = %q", ct)
	}

	other := do(e, http.MethodGet, "/reports/leaderboard", nil)
	if other.Header().Get("X-Cache") != "MISS" || calls != 2 {
		t.Fatal("different path served from cache")
	}

	do(e, http.MethodGet, "/fail", nil)
	do(e, http.MethodGet, "/fail", nil)
	if calls != 4 {
		t.Fatalf("error responses were cached (calls=%d)", calls)
	}

	mr.FastForward(2 * time.Minute)
	if rec := do(e, http.MethodGet, "/reports/revenue?start=2026-01-01", nil); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatal("entry survived its TTL")
	}
}

func TestRedisCacheDisabled(t *testing.T) {
	e := echo.New()
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}}, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") })
	rec := do(e, http.MethodGet, "/x", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("pass-through: %d %q", rec.Code, rec.Header().Get("X-Cache"))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"a":1}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0}); ok {
		t.Fatal("truncated payload accepted")
	}
}

func TestTokenBucket(t *testing.T) {
	// closed by hand below to simulate an outage
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 10 * time.Hour, KeyStrategy: "ip_route", Prefix: "rl"}

	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 2; i++ {
		if rec := do(e, http.MethodPost, "/login", nil); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := do(e, http.MethodPost, "/login", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// another client has its own bucket
	if rec := do(e, http.MethodPost, "/login", map[string]string{echo.HeaderXRealIP: "10.0.0.9"}); rec.Code != http.StatusNoContent {
		t.Fatalf("other ip: %d", rec.Code)
	}

	// redis outage fails open
	mr.Close()
	if rec := do(e, http.MethodPost, "/login", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("redis down: %d", rec.Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "1.2.3.4")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")
	c.Set(ContextUserID, uint64(9))

	cases := map[string]string{
		"ip":         "rl:ip:1.2.3.4",
		"user":       "rl:user:9",
		"ip_route":   "rl:ip:1.2.3.4:route:POST /v1/auth/login",
		"user_route": "rl:user:9:route:POST /v1/auth/login",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%s: key = %q, want %q", strategy, got, want)
		}
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestRequestLogger(t *testing.T) {
	h := &recordingHandler{}
	e := echo.New()
	e.Use(RequestID(), RequestLogger(slog.New(h)))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return echo.ErrNotFound })
	e.GET("/boom", func(c echo.Context) error { return c.JSON(http.StatusInternalServerError, echo.Map{"error": "x"}) })

	health := do(e, http.MethodGet, "/healthz", nil)
	if health.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("no request id")
	}
	if rec := do(e, http.MethodGet, "/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}
	do(e, http.MethodGet, "/boom", nil)

	if len(h.records) != 2 {
		t.Fatalf("%d records, want 2 (health probes skipped)", len(h.records))
	}
	if h.records[0].Level != slog.LevelWarn || h.records[1].Level != slog.LevelError {
		t.Fatalf("levels = %v, %v", h.records[0].Level, h.records[1].Level)
	}
	var buf bytes.Buffer
	h.records[1].Attrs(func(a slog.Attr) bool {
		buf.WriteString(a.Key + "=" + a.Value.String() + " ")
		return true
	})
	if !strings.Contains(buf.String(), "status=500") || !strings.Contains(buf.String(), "route=/boom") {
		t.Fatalf("attrs = %s", buf.String())
	}
}
