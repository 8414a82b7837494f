package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/engine"
	httptransport "github.com/hyperterse/queryengine/core/infrastructure/transport/http"
	"github.com/hyperterse/queryengine/core/logger"
)

// Runtime serves one engine of an EngineService over HTTP. The engine can
// be replaced with ReloadSchema while the server keeps running.
type Runtime struct {
	service    *services.EngineService
	opts       engine.Options
	addr       string
	middleware []func(http.Handler) http.Handler
	server     *httptransport.Server
	handle     atomic.Int64
	reloadMu   sync.Mutex
	log        *logger.Logger
}

// NewRuntime creates the engine for datamodel and connects it
func NewRuntime(ctx context.Context, service *services.EngineService, datamodel string, options ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		service: service,
		opts:    engine.Options{Datamodel: datamodel},
		log:     logger.New("runtime"),
	}
	for _, opt := range options {
		opt(r)
	}

	h, err := r.connect(ctx, r.opts)
	if err != nil {
		return nil, err
	}
	r.handle.Store(int64(h))
	return r, nil
}

func (r *Runtime) connect(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	h, err := r.service.CreateEngine(opts)
	if err != nil {
		return -1, err
	}
	if err := r.service.Connect(ctx, h); err != nil {
		return -1, err
	}
	e, _ := r.service.Registry().Get(h)
	provider, url := e.Datasource()
	r.log.Infof("Engine %d connected to %s datasource %s", h, provider, url)
	return h, nil
}

// Handle returns the engine currently served
func (r *Runtime) Handle() engine.Handle {
	return engine.Handle(r.handle.Load())
}

// Addr returns the address the server is bound to
func (r *Runtime) Addr() string {
	if r.server == nil {
		return r.addr
	}
	return r.server.Addr()
}

// Start starts the runtime server and blocks until SIGTERM/SIGINT
func (r *Runtime) Start() error {
	if err := r.StartAsync(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return r.Stop()
}

// StartAsync starts the runtime server without blocking
func (r *Runtime) StartAsync() error {
	r.server = httptransport.NewServer(r.addr)
	r.server.Use(r.middleware...)
	httptransport.RegisterRoutes(r.server.Router(), r.service, r.Handle)
	return r.server.StartAsync()
}

// ReloadSchema connects a new engine for datamodel and swaps it in. The
// previous engine is disconnected after the swap; on failure it stays
// in service.
func (r *Runtime) ReloadSchema(ctx context.Context, datamodel string) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.log.Infof("Reloading schema")
	opts := r.opts
	opts.Datamodel = datamodel

	h, err := r.connect(ctx, opts)
	if err != nil {
		return err
	}
	r.opts = opts
	previous := engine.Handle(r.handle.Swap(int64(h)))

	if err := r.service.Disconnect(ctx, previous); err != nil {
		r.log.Warnf("Failed to disconnect engine %d: %v", previous, err)
	}
	r.log.Successf("Schema reloaded, serving engine %d", h)
	return nil
}

// Stop stops the HTTP server and disconnects every engine
func (r *Runtime) Stop() error {
	r.log.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var serverErr error
	if r.server != nil {
		serverErr = r.server.Stop(ctx)
	}

	if err := r.service.Registry().DisconnectAll(ctx); err != nil {
		r.log.Warnf("Errors disconnecting engines: %v", err)
	}

	r.log.Debugf("Shutdown complete")
	return serverErr
}
