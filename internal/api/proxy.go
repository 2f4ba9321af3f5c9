package api

import (
	"fmt"
	"net/url"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RegisterUpstreams mounts a reverse proxy per configured path prefix.
// Requests reach the proxy only after the full filter chain has run, so the
// upstream sees the injected identity headers.
func RegisterUpstreams(e *echo.Echo, upstreams map[string]string, log *zap.SugaredLogger) error {
	for prefix, target := range upstreams {
		u, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("invalid upstream %q for %s: %w", target, prefix, err)
		}

		g := e.Group(prefix)
		g.Use(echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{
			Balancer: echomiddleware.NewRoundRobinBalancer([]*echomiddleware.ProxyTarget{
				{URL: u},
			}),
		}))

		log.Infow("registered upstream", "prefix", prefix, "target", target)
	}
	return nil
}
