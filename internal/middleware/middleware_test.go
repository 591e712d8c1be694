package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"k1", "k2"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetAPIKeyFromContext(r.Context())))
	}))

	cases := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"bearer", "/v1/s/images", "Authorization", "Bearer k2", http.StatusOK},
		{"raw key", "/v1/s/images", "Authorization", "k1", http.StatusOK},
		{"x-api-key", "/v1/s/images", "X-API-Key", "k1", http.StatusOK},
		{"missing", "/v1/s/images", "", "", http.StatusUnauthorized},
		{"wrong", "/v1/s/images", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"health is public", "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/s/images", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mux := chi.NewRouter()
	mux.Route("/v1/{session}", func(rt chi.Router) {
		rt.Use(RateLimitMiddleware(2, 1))
		rt.Get("/", okHandler().ServeHTTP)
	})

	do := func(session string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/"+session+"/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("a") != http.StatusOK || do("a") != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := do("b"); code != http.StatusOK {
		t.Fatalf("other session should have its own bucket, got %d", code)
	}
}

func TestRateLimitMiddleware_KeyedByAPIKey(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(APIKeyAuth([]string{"k1", "k2"}))
	mux.Route("/v1/{session}", func(rt chi.Router) {
		rt.Use(RateLimitMiddleware(1, 1))
		rt.Get("/", okHandler().ServeHTTP)
	})

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/a/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("k1"); code != http.StatusOK {
		t.Fatalf("first k1 request status = %d", code)
	}
	if code := do("k1"); code != http.StatusTooManyRequests {
		t.Fatalf("second k1 request status = %d, want 429", code)
	}
	if code := do("k2"); code != http.StatusOK {
		t.Fatalf("k2 from the same IP should have its own bucket, got %d", code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("x")
	rl.Cleanup(0)
	if len(rl.visitors) != 0 {
		t.Fatalf("expected idle visitors to be removed, got %d", len(rl.visitors))
	}
}

func TestRequireValidSession(t *testing.T) {
	mux := chi.NewRouter()
	mux.Route("/v1/{session}", func(rt chi.Router) {
		rt.Use(RequireValidSession)
		rt.Get("/", okHandler().ServeHTTP)
	})

	for path, want := range map[string]int{
		"/v1/tab-1_A/":  http.StatusOK,
		"/v1/bad.name/": http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestValidateRecordID(t *testing.T) {
	if err := ValidateRecordID("0190f5c2-7c1a-7b3e-8e3f-1a2b3c4d5e6f"); err != nil {
		t.Errorf("valid uuid rejected: %v", err)
	}
	for _, id := range []string{"", "rec-1", "../etc"} {
		if ValidateRecordID(id) == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.png":             "photo.png",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\scan.HEIC`: "scan.HEIC",
		"bad\x00na\x07me.jpg":   "badname.jpg",
		"  spaced name.webp  ":  "spaced name.webp",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename_TruncatesOnRuneBoundary(t *testing.T) {
	for _, in := range []string{
		strings.Repeat("é", 200) + ".png",
		"a" + strings.Repeat("日", 120) + ".jpg",
		strings.Repeat("x", 300),
	} {
		got := SanitizeFilename(in)
		if len(got) > 255 {
			t.Errorf("len = %d, want at most 255", len(got))
		}
		if !utf8.ValidString(got) {
			t.Errorf("SanitizeFilename(%q...) produced invalid UTF-8", in[:8])
		}
		if !strings.HasPrefix(in, got) {
			t.Errorf("result is not a prefix of the input: %q", got)
		}
	}
	if got := SanitizeFilename(strings.Repeat("é", 200)); len(got) != 254 {
		t.Errorf("expected the split rune to be dropped whole, len = %d", len(got))
	}
}

func TestHealthHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	checkers := map[string]HealthChecker{
		"redis": &RedisHealthChecker{Client: rdb},
		"store": CheckerFunc(func(ctx context.Context) error { return nil }),
	}
	rec := httptest.NewRecorder()
	HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	checkers["store"] = CheckerFunc(func(ctx context.Context) error { return errors.New("bucket missing") })
	rec = httptest.NewRecorder()
	HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Checks["store"].Message != "bucket missing" || status.Checks["redis"].Status != "healthy" {
		t.Fatalf("unexpected checks: %+v", status.Checks)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	before := GetMetrics()["requests_failed"].(uint64)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if after := GetMetrics()["requests_failed"].(uint64); after != before+1 {
		t.Fatalf("requests_failed = %d, want %d", after, before+1)
	}
}
