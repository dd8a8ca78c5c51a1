// Package edge implements the storefront edge router: it intercepts requests
// on custom and platform domains, resolves the hostname to a tenant, and
// either redirects root requests to the tenant's storefront path or
// reverse-proxies everything else to the fixed origin.
package edge

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/metrics"
	"github.com/comandocentral/edge-svc/internal/resolver"
)

// Action is the routing decision for one request.
type Action int

const (
	// ActionPassthrough forwards the request to its original destination
	// untouched: platform-hosting domains and allow-listed base hosts.
	ActionPassthrough Action = iota
	// ActionResolveRoot resolves the hostname and redirects to the tenant
	// storefront path (root requests on custom domains).
	ActionResolveRoot
	// ActionProxy reverse-proxies to the fixed origin host.
	ActionProxy
)

const notFoundBody = `<!doctype html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Loja não encontrada</title></head>
<body><h1>Loja não encontrada</h1><p>Nenhuma loja está configurada para este endereço.</p></body>
</html>`

// Router holds the edge routing configuration and dependencies. It is
// stateless across requests; the only shared resource is the tenant cache
// behind the resolver.
type Router struct {
	cfg      config.EdgeConfig
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewRouter validates the configuration once and returns a Router. Missing
// origin host or resolver wiring is a startup error, not a per-request one.
func NewRouter(cfg config.EdgeConfig, res *resolver.Resolver, logger *zap.Logger) (*Router, error) {
	if cfg.OriginHost == "" {
		return nil, fmt.Errorf("origin host is required")
	}
	if res == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.OriginScheme == "" {
		cfg.OriginScheme = "https"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	return &Router{cfg: cfg, resolver: res, logger: logger}, nil
}

// Decide applies the routing algorithm to a normalized hostname and path.
// First match wins: platform suffixes, then the base-host allow list, then
// root-path resolution, then the origin proxy.
func (r *Router) Decide(hostname, path string) Action {
	for _, suffix := range r.cfg.PlatformSuffixes {
		if strings.HasSuffix(hostname, suffix) {
			return ActionPassthrough
		}
	}

	for _, base := range r.cfg.BaseHosts {
		if hostname == base || strings.HasSuffix(hostname, "."+base) {
			return ActionPassthrough
		}
	}

	if path == "" || path == "/" {
		return ActionResolveRoot
	}

	return ActionProxy
}

// Handle is the catch-all request handler.
func (r *Router) Handle(c *fiber.Ctx) error {
	hostname := NormalizeHostname(c.Hostname())

	switch r.Decide(hostname, c.Path()) {
	case ActionPassthrough:
		metrics.EdgeRequests.WithLabelValues("passthrough").Inc()
		return r.forward(c, c.Protocol(), hostname, false)
	case ActionResolveRoot:
		return r.resolveRoot(c, hostname)
	default:
		metrics.EdgeRequests.WithLabelValues("proxy").Inc()
		return r.forward(c, r.cfg.OriginScheme, r.cfg.OriginHost, true)
	}
}

// resolveRoot handles `/` on a custom domain: 404 for unknown hosts, 302 to
// the tenant storefront path for known ones. The redirect stays on the same
// hostname.
func (r *Router) resolveRoot(c *fiber.Ctx, hostname string) error {
	res, err := r.resolver.Resolve(c.Context(), hostname)
	if err != nil {
		return err
	}

	if !res.Found {
		metrics.EdgeRequests.WithLabelValues("not_found").Inc()
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(fiber.StatusNotFound).SendString(notFoundBody)
	}

	metrics.EdgeRequests.WithLabelValues("redirect").Inc()
	return c.Redirect("https://"+hostname+"/store/"+res.TenantSlug, fiber.StatusFound)
}

// forward reverse-proxies the request. When rewrite is true the upstream is
// the fixed origin and forwarding headers plus CORS are applied; otherwise
// the request continues to its original destination unmodified.
func (r *Router) forward(c *fiber.Ctx, scheme, upstreamHost string, rewrite bool) error {
	originalHost := NormalizeHostname(c.Hostname())

	target := scheme + "://" + upstreamHost + c.Path()
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		target += "?" + qs
	}

	if rewrite {
		c.Request().Header.SetHost(r.cfg.OriginHost)
		c.Request().Header.Set("X-Forwarded-Host", originalHost)
		c.Request().Header.Set("X-Original-Host", originalHost)
	}

	// GET/HEAD requests never carry a body upstream.
	if method := c.Method(); method == fiber.MethodGet || method == fiber.MethodHead {
		c.Request().ResetBody()
	}

	// proxy.DoTimeout performs a single upstream request: origin redirects
	// are passed through to the client, never followed here.
	if err := proxy.DoTimeout(c, target, r.cfg.UpstreamTimeout); err != nil {
		return err
	}

	if rewrite {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET,POST,PUT,DELETE,OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin,Content-Type,Accept,Authorization,X-Client-Info")
	}

	return nil
}

// ErrorHandler collapses anything unexpected into a generic 500. The real
// error stays in the server log; the client sees no internal detail.
func (r *Router) ErrorHandler(c *fiber.Ctx, err error) error {
	r.logger.Error("Edge request failed",
		zap.String("hostname", c.Hostname()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	metrics.EdgeRequests.WithLabelValues("error").Inc()
	return c.Status(fiber.StatusInternalServerError).SendString("Internal error")
}
