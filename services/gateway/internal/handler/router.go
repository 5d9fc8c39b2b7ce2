package handler

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/httputil"
	pkgmiddleware "github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/services/gateway/internal/proxy"
)

// RouterConfig collects the dependencies of the gateway router.
type RouterConfig struct {
	Proxy               *proxy.ServiceProxy
	RateLimit           func(http.Handler) http.Handler
	Authorizer          pkgmiddleware.TokenValidator // guards /api/v1/me; nil disables the check
	Health              *health.Handler
	Metrics             *pkgmiddleware.HTTPMetrics
	Gatherer            prometheus.Gatherer
	MetricsAllowedCIDRs []string
	CORS                pkgmiddleware.CORSConfig
	Logger              *slog.Logger
}

// NewRouter creates the gateway router: global middleware, health and
// metrics endpoints, and the proxy routes to the user, article and search
// services.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	r.Use(pkgmiddleware.CORS(cfg.CORS))
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit)
	}
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pkgmiddleware.Tracing("gateway"))
	r.Use(pkgmiddleware.RequestLogging(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Gatherer != nil {
		r.With(ipAllowlist(cfg.MetricsAllowedCIDRs, logger)).
			Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	user := cfg.Proxy.Handler("user")
	article := cfg.Proxy.Handler("article")
	search := cfg.Proxy.Handler("search")

	r.Route("/api/v1", func(r chi.Router) {
		// Anonymous routes
		r.Handle("/login/*", user)
		r.Handle("/users/*", user)
		r.Handle("/articles/*", article)
		r.Handle("/search/*", search)

		// Signed-in routes
		r.Group(func(r chi.Router) {
			if cfg.Authorizer != nil {
				r.Use(pkgmiddleware.Auth(cfg.Authorizer, logger))
			}
			r.Handle("/me/articles/*", article)
			r.Handle("/me/*", user)
		})
	})

	return r
}

// ipAllowlist restricts access to clients whose remote address falls within
// one of cidrs. Forwarding headers are ignored.
func ipAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if ip := net.ParseIP(host); ip != nil {
				for _, n := range nets {
					if n.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("metrics access denied", slog.String("ip", host))
			httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "metrics endpoint is restricted"},
			})
		})
	}
}
