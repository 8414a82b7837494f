package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperterse/queryengine/core/cli/internal"
	"github.com/hyperterse/queryengine/core/infrastructure/di"
	httpmiddleware "github.com/hyperterse/queryengine/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/observability"
	"github.com/hyperterse/queryengine/core/runtime/server"
	"github.com/hyperterse/queryengine/core/version"
)

var (
	rateLimit      int
	rateLimitRedis string
)

// serveCmd exposes one engine over HTTP
var serveCmd = &cobra.Command{
	Use:           "serve [schema]",
	Short:         "Serve the schema's datasource over HTTP",
	RunE:          serveSchema,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&port, "port", "p", "", "Server port (overrides config file and PORT env var)")
	cmd.Flags().StringVar(&datasource, "datasource-url", "", "Replace the schema's datasource URL")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Maximum requests per client IP per minute (requires Redis)")
	cmd.Flags().StringVar(&rateLimitRedis, "rate-limit-redis", "", "Redis URL for rate limiting (default: the cache URL)")
}

func serveSchema(cmd *cobra.Command, args []string) error {
	project, err := loadProject(args)
	if err != nil {
		return err
	}
	rt, cleanup, err := prepareRuntime(cmd.Context(), project)
	if err != nil {
		return err
	}
	defer cleanup()
	return rt.Start()
}

// prepareRuntime builds a connected runtime for the project. cleanup
// releases telemetry and cache resources after the runtime has stopped.
func prepareRuntime(ctx context.Context, project *internal.Project) (*server.Runtime, func(), error) {
	log := logger.New("main")

	providers, err := observability.Setup(ctx, version.Get().Version)
	if err != nil {
		return nil, nil, log.Fail("failed to set up observability: %w", err)
	}

	var ttl time.Duration
	if project.Config != nil {
		ttl = time.Duration(project.Config.Cache.TTLSeconds) * time.Second
	}
	container, err := di.NewContainer(ctx, di.Config{CacheURL: internal.CacheURL(project), CacheTTL: ttl})
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, nil, log.Fail("failed to initialize services: %w", err)
	}

	cleanups := []func(){
		func() {
			if err := container.Close(context.Background()); err != nil {
				log.Warnf("Failed to close cache: %v", err)
			}
		},
		func() {
			if err := providers.Shutdown(context.Background()); err != nil {
				log.Warnf("Failed to flush telemetry: %v", err)
			}
		},
	}
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	options := []server.RuntimeOption{
		server.WithAddr(internal.ResolvePort(port, project)),
		server.WithDatasourceURL(project.DatasourceURL(datasource)),
		server.WithDatasourceOverrides(project.DatasourceOverrides()),
		server.WithConfigDir(project.Dir),
	}

	if rateLimit > 0 {
		url := rateLimitRedis
		if url == "" {
			url = internal.CacheURL(project)
		}
		if url == "" {
			log.Warnf("Rate limiting disabled: no Redis URL configured")
		} else {
			limiter, err := httpmiddleware.NewRedisRateLimiter(ctx, url)
			if err != nil {
				cleanup()
				return nil, nil, log.Fail("failed to connect rate limiter: %w", err)
			}
			cleanups = append([]func(){func() { _ = limiter.Close() }}, cleanups...)
			options = append(options, server.WithRateLimit(limiter, rateLimit, time.Minute))
		}
	}

	log.Infof("Schema loaded from %s", project.SchemaPath)
	rt, err := server.NewRuntime(ctx, container.Service, project.Datamodel, options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	log.Infof("Runtime initialized")
	return rt, cleanup, nil
}
