package connectors

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds connection establishment when the URL does
// not set connect_timeout.
const DefaultConnectTimeout = 5 * time.Second

// engineParams are connection string parameters understood by the engine
// itself. They are removed before the URL reaches a driver.
var engineParams = []string{
	"schema",
	"connection_limit",
	"connect_timeout",
	"pool_timeout",
	"socket_timeout",
	"pgbouncer",
	"statement_cache_size",
	"sslaccept",
}

// connParams holds the engine parameters of a connection string
type connParams struct {
	schema          string
	connectionLimit int
	connectTimeout  time.Duration
}

// splitParams separates engine parameters from driver parameters
func splitParams(u *url.URL) (*url.URL, connParams) {
	query := u.Query()
	params := connParams{
		schema:         query.Get("schema"),
		connectTimeout: DefaultConnectTimeout,
	}
	if n, err := strconv.Atoi(query.Get("connection_limit")); err == nil && n > 0 {
		params.connectionLimit = n
	}
	if secs, err := strconv.Atoi(query.Get("connect_timeout")); err == nil && secs > 0 {
		params.connectTimeout = time.Duration(secs) * time.Second
	}
	for _, key := range engineParams {
		query.Del(key)
	}

	clean := *u
	clean.RawQuery = query.Encode()
	return &clean, params
}

// endpoint describes the server a connector talks to, for error messages
type endpoint struct {
	host     string
	port     string
	user     string
	database string
}

func (e endpoint) address() string {
	if e.port == "" {
		return e.host
	}
	return net.JoinHostPort(e.host, e.port)
}

func endpointFromURL(u *url.URL, defaultPort string) endpoint {
	ep := endpoint{
		host:     u.Hostname(),
		port:     u.Port(),
		database: trimSlash(u.Path),
	}
	if ep.port == "" {
		ep.port = defaultPort
	}
	if u.User != nil {
		ep.user = u.User.Username()
	}
	return ep
}

func trimSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
