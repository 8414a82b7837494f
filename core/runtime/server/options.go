package server

import (
	"time"

	httpmiddleware "github.com/hyperterse/queryengine/core/infrastructure/transport/http/middleware"
)

type RuntimeOption func(*Runtime)

// WithAddr sets the listen address. A bare port is accepted.
func WithAddr(addr string) RuntimeOption {
	return func(r *Runtime) {
		r.addr = addr
	}
}

// WithDatasourceURL replaces the schema's datasource URL
func WithDatasourceURL(url string) RuntimeOption {
	return func(r *Runtime) {
		r.opts.DatasourceURL = url
	}
}

// WithConfigDir resolves relative SQLite paths against dir
func WithConfigDir(dir string) RuntimeOption {
	return func(r *Runtime) {
		r.opts.ConfigDir = dir
	}
}

// WithRateLimit limits each client IP to limit requests per window
func WithRateLimit(limiter httpmiddleware.RateLimiter, limit int, window time.Duration) RuntimeOption {
	return func(r *Runtime) {
		if limiter == nil || limit <= 0 {
			return
		}
		r.middleware = append(r.middleware, httpmiddleware.RateLimitByIP(limiter, limit, window))
	}
}

// WithDatasourceOverrides replaces the URL of the named datasources
func WithDatasourceOverrides(overrides map[string]string) RuntimeOption {
	return func(r *Runtime) {
		r.opts.DatasourceOverrides = overrides
	}
}
