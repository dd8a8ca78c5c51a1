package edge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/resolver"
)

func testConfig() config.EdgeConfig {
	return config.EdgeConfig{
		OriginHost:       "origin.internal",
		OriginScheme:     "https",
		ResolverURL:      "https://resolver.internal/resolve-domain",
		BaseHosts:        []string{"shops.respeiteohomem.com.br", "comandocentral.com.br", "localhost", "127.0.0.1"},
		PlatformSuffixes: []string{".pages.dev", ".workers.dev"},
		CacheTTL:         300 * time.Second,
		UpstreamTimeout:  5 * time.Second,
	}
}

func newTestRouter(t *testing.T, cfg config.EdgeConfig, resolverURL string) *Router {
	t.Helper()
	res, err := resolver.New(resolverURL, nil, 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	cfg.ResolverURL = resolverURL
	router, err := NewRouter(cfg, res, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func newTestApp(router *Router) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: router.ErrorHandler})
	app.All("/*", router.Handle)
	return app
}

func TestDecide(t *testing.T) {
	router := newTestRouter(t, testConfig(), "https://resolver.internal/resolve-domain")

	cases := []struct {
		name string
		host string
		path string
		want Action
	}{
		{"platform suffix pages", "acme.pages.dev", "/", ActionPassthrough},
		{"platform suffix workers", "edge.workers.dev", "/api", ActionPassthrough},
		{"base host exact", "comandocentral.com.br", "/", ActionPassthrough},
		{"base host subdomain", "sub.shops.respeiteohomem.com.br", "/", ActionPassthrough},
		{"base host subdomain deep path", "sub.shops.respeiteohomem.com.br", "/checkout", ActionPassthrough},
		{"localhost", "localhost", "/", ActionPassthrough},
		{"custom domain root", "loja.example.com", "/", ActionResolveRoot},
		{"custom domain empty path", "loja.example.com", "", ActionResolveRoot},
		{"custom domain asset", "loja.example.com", "/assets/app.css", ActionProxy},
		{"custom domain api", "loja.example.com", "/api/orders", ActionProxy},
		{"not a base host suffix match", "notcomandocentral.com.br", "/x", ActionProxy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := router.Decide(tc.host, tc.path); got != tc.want {
				t.Fatalf("Decide(%q, %q) = %v, want %v", tc.host, tc.path, got, tc.want)
			}
		})
	}
}

func TestRootRedirectsToStorePath(t *testing.T) {
	var resolverCalls int32
	resolverSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&resolverCalls, 1)
		if got := r.URL.Query().Get("hostname"); got != "loja.example.com" {
			t.Errorf("resolver hostname = %q, want loja.example.com", got)
		}
		json.NewEncoder(w).Encode(resolver.Result{Found: true, TenantSlug: "acme"})
	}))
	defer resolverSrv.Close()

	router := newTestRouter(t, testConfig(), resolverSrv.URL)
	app := newTestApp(router)

	req := httptest.NewRequest(http.MethodGet, "http://loja.example.com/", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "https://loja.example.com/store/acme" {
		t.Fatalf("Location = %q, want https://loja.example.com/store/acme", got)
	}
	if n := atomic.LoadInt32(&resolverCalls); n != 1 {
		t.Fatalf("resolver calls = %d, want 1", n)
	}
}

func TestRootUnknownHostIs404(t *testing.T) {
	resolverSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resolver.Result{Found: false})
	}))
	defer resolverSrv.Close()

	router := newTestRouter(t, testConfig(), resolverSrv.URL)
	app := newTestApp(router)

	req := httptest.NewRequest(http.MethodGet, "http://unknown.example.com/", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("Content-Type = %q, want text/html", ct)
	}
}

func TestAssetPathProxiesWithoutResolving(t *testing.T) {
	var resolverCalls int32
	resolverSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&resolverCalls, 1)
		json.NewEncoder(w).Encode(resolver.Result{Found: true, TenantSlug: "acme"})
	}))
	defer resolverSrv.Close()

	var gotHost, gotForwardedHost, gotOriginalHost string
	originSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		gotOriginalHost = r.Header.Get("X-Original-Host")
		fmt.Fprint(w, "body, img { margin: 0 }")
	}))
	defer originSrv.Close()

	cfg := testConfig()
	cfg.OriginHost = strings.TrimPrefix(originSrv.URL, "http://")
	cfg.OriginScheme = "http"

	router := newTestRouter(t, cfg, resolverSrv.URL)
	app := newTestApp(router)

	req := httptest.NewRequest(http.MethodGet, "http://loja.example.com/assets/app.css", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "margin") {
		t.Fatalf("proxied body not returned, got %q", body)
	}

	if gotHost != cfg.OriginHost {
		t.Fatalf("upstream Host = %q, want %q", gotHost, cfg.OriginHost)
	}
	if gotForwardedHost != "loja.example.com" {
		t.Fatalf("X-Forwarded-Host = %q, want loja.example.com", gotForwardedHost)
	}
	if gotOriginalHost != "loja.example.com" {
		t.Fatalf("X-Original-Host = %q, want loja.example.com", gotOriginalHost)
	}

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}

	if n := atomic.LoadInt32(&resolverCalls); n != 0 {
		t.Fatalf("resolver calls = %d, want 0", n)
	}
}

func TestProxyPassesRedirectsThrough(t *testing.T) {
	originSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://elsewhere.example.com/moved")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer originSrv.Close()

	cfg := testConfig()
	cfg.OriginHost = strings.TrimPrefix(originSrv.URL, "http://")
	cfg.OriginScheme = "http"

	router := newTestRouter(t, cfg, "http://resolver.invalid/resolve")
	app := newTestApp(router)

	req := httptest.NewRequest(http.MethodGet, "http://loja.example.com/old-page", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301 passed through", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "https://elsewhere.example.com/moved" {
		t.Fatalf("Location = %q, want origin redirect untouched", got)
	}
}

func TestNewRouterRequiresOrigin(t *testing.T) {
	res, err := resolver.New("https://resolver.internal/resolve", nil, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}

	cfg := testConfig()
	cfg.OriginHost = ""
	if _, err := NewRouter(cfg, res, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing origin host")
	}

	if _, err := NewRouter(testConfig(), nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing resolver")
	}
}
