package routes_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	redisrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/redis"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	httproutes "github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
)

func testBase(t *testing.T) httproutes.Base {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return httproutes.Base{
		Config: &config.AppConfig{
			App:  config.AppSettings{Env: "test"},
			HTTP: config.HTTPSettings{RequestTimeout: time.Second},
		},
		Logger:   zaptest.NewLogger(t),
		Registry: prometheus.NewRegistry(),
	}
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpointOnEveryService(t *testing.T) {
	builders := map[string]func(httproutes.Base) (*gin.Engine, error){
		"identity": func(b httproutes.Base) (*gin.Engine, error) {
			return httproutes.RegisterIdentity(httproutes.IdentityDependencies{Base: b})
		},
		"styling": func(b httproutes.Base) (*gin.Engine, error) {
			return httproutes.RegisterStyling(httproutes.StylingDependencies{Base: b})
		},
		"wardrobe": func(b httproutes.Base) (*gin.Engine, error) {
			return httproutes.RegisterWardrobe(httproutes.WardrobeDependencies{Base: b})
		},
		"social": func(b httproutes.Base) (*gin.Engine, error) {
			return httproutes.RegisterSocial(httproutes.SocialDependencies{Base: b})
		},
		"commerce": func(b httproutes.Base) (*gin.Engine, error) {
			return httproutes.RegisterCommerce(httproutes.CommerceDependencies{Base: b})
		},
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			r, err := build(testBase(t))
			if err != nil {
				t.Fatalf("build router: %v", err)
			}
			w := serve(r, http.MethodGet, "/healthz", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"service":"`+name+`"`) {
				t.Fatalf("expected service name in body, got %s", w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Fatalf("expected request id header")
			}
		})
	}
}

func TestRegisterRequiresConfig(t *testing.T) {
	if _, err := httproutes.RegisterWardrobe(httproutes.WardrobeDependencies{}); err == nil {
		t.Fatalf("expected error without config")
	}
}

func TestMetricsEndpointExposesHTTPCollectors(t *testing.T) {
	r, err := httproutes.RegisterCommerce(httproutes.CommerceDependencies{Base: testBase(t)})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	serve(r, http.MethodGet, "/healthz", "")

	w := serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "vanity_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestUserRoutesRejectMissingBearer(t *testing.T) {
	r, err := httproutes.RegisterWardrobe(httproutes.WardrobeDependencies{Base: testBase(t)})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	w := serve(r, http.MethodGet, "/wardrobe/items", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "auth_missing") {
		t.Fatalf("expected auth_missing, got %s", w.Body.String())
	}
}

func TestInternalRoutesWithoutServiceAuthAreUnavailable(t *testing.T) {
	r, err := httproutes.RegisterStyling(httproutes.StylingDependencies{Base: testBase(t)})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	w := serve(r, http.MethodGet, "/internal/export/u-1", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestIdentityRateLimitsArePerRoute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := testBase(t)
	base.Config.RateLimit = config.RateLimitSettings{
		WindowDuration:      time.Minute,
		LoginMaxAttempts:    2,
		RegisterMaxAttempts: 1,
	}
	store := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "test:rl:", TTL: time.Minute})

	r, err := httproutes.RegisterIdentity(httproutes.IdentityDependencies{
		Base:        base,
		RateLimiter: middleware.NewRateLimiter(store, base.Logger),
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	// Malformed bodies are rejected before any usecase is reached.
	if w := serve(r, http.MethodPost, "/auth/register", "{"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected first register to reach the handler, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/auth/register", "{"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second register to be limited, got %d", w.Code)
	}

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodPost, "/auth/login", "{"); w.Code != http.StatusBadRequest {
			t.Fatalf("login %d: expected 400, got %d", i+1, w.Code)
		}
	}
	w := serve(r, http.MethodPost, "/auth/login", "{")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third login to be limited, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
