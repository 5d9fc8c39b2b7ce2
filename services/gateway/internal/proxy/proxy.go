package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	pkghttputil "github.com/horike37/serverless-application/pkg/httputil"
)

// TransportConfig tunes the shared upstream transport.
type TransportConfig struct {
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	IdleTimeout     time.Duration
	MaxIdleConns    int
}

// ServiceProxy holds one reverse proxy per upstream service.
type ServiceProxy struct {
	routes  map[string]*httputil.ReverseProxy
	targets map[string]*url.URL
	dialer  *net.Dialer
	logger  *slog.Logger
}

// NewServiceProxy builds reverse proxies for services, a map of service
// name to base URL.
func NewServiceProxy(services map[string]string, tc TransportConfig, logger *slog.Logger) (*ServiceProxy, error) {
	dialer := &net.Dialer{Timeout: tc.DialTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConns,
		IdleConnTimeout:       tc.IdleTimeout,
		ResponseHeaderTimeout: tc.ResponseTimeout,
	}

	sp := &ServiceProxy{
		routes:  make(map[string]*httputil.ReverseProxy, len(services)),
		targets: make(map[string]*url.URL, len(services)),
		dialer:  dialer,
		logger:  logger,
	}

	for name, rawURL := range services {
		target, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse %s service URL: %w", name, err)
		}

		sp.targets[name] = target
		sp.routes[name] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
			},
			Transport:    transport,
			ErrorHandler: sp.errorHandler(name),
		}

		logger.Info("registered service proxy",
			slog.String("service", name),
			slog.String("target", rawURL),
		)
	}

	return sp, nil
}

// Handler returns the proxy for the named service. Unknown names answer 502.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	proxy, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeBadGateway(w, "SERVICE_UNAVAILABLE", "service not configured")
		})
	}
	return proxy
}

// Services returns the registered service names.
func (sp *ServiceProxy) Services() []string {
	names := make([]string, 0, len(sp.targets))
	for name := range sp.targets {
		names = append(names, name)
	}
	return names
}

// Reachable dials the service's host. It backs the readiness check.
func (sp *ServiceProxy) Reachable(ctx context.Context, serviceName string) error {
	target, ok := sp.targets[serviceName]
	if !ok {
		return fmt.Errorf("unknown service %q", serviceName)
	}
	conn, err := sp.dialer.DialContext(ctx, "tcp", hostPort(target))
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", serviceName, err)
	}
	_ = conn.Close()
	return nil
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		sp.logger.Error("proxy error",
			slog.String("service", serviceName),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeBadGateway(w, "BAD_GATEWAY", "upstream service unavailable")
	}
}

func writeBadGateway(w http.ResponseWriter, code, message string) {
	pkghttputil.WriteJSON(w, http.StatusBadGateway, pkghttputil.Response{
		Error: &pkghttputil.ErrorResponse{Code: code, Message: message},
	})
}
