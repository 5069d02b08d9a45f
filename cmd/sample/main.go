// Command sample serves a small user API through the dispatch pipeline.
//
// Run:
//
//	go run ./cmd/sample serve --config sample.yaml
//
// Then explore:
//
//	GET  http://localhost:8080/v1/users               list users (?format=xml, ?callback=cb)
//	POST http://localhost:8080/v1/users               create user
//	GET  http://localhost:8080/v1/users/{id}          get user
//	DELETE http://localhost:8080/v1/users/{id}        delete user
//	GET  http://localhost:8080/v1/users/{id}/avatar   download avatar
//	GET  http://localhost:8080/v1/users/{id}/report   deferred response
//	GET  http://localhost:8080/v1/events              SSE event stream
//	GET  http://localhost:8080/v1/home                redirect
//	GET  http://localhost:8080/metrics                Prometheus metrics
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bjaus/dispatch"
	"github.com/bjaus/dispatch/dispatchotel"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type serveOptions struct {
	configPath string
	addr       string
	trace      bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sample",
		Short:         "Sample API served by the dispatch pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newRoutesCmd())
	return root
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML settings file (DISPATCH_* env vars override)")
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "write OpenTelemetry spans to stderr")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	return cmd
}

func newRoutesCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the registered routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := dispatch.LoadSettings(configPath)
			if err != nil {
				return err
			}
			r := newRouter(settings, slog.Default(), nil, nil)
			for _, rt := range r.Routes() {
				cmd.Printf("%-7s %-28s %s\n", rt.Method, rt.Pattern, rt.Summary)
			}
			cmd.Printf("\nformats: %s\n", strings.Join(r.Pipeline().ContentTypes(), ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML settings file")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	settings, err := dispatch.LoadSettings(opts.configPath)
	if err != nil {
		return err
	}

	var tracer dispatch.SpanStarter
	if opts.trace {
		shutdown, err := dispatchotel.Setup("dispatch-sample", os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error("tracer shutdown", "err", err)
			}
		}()
		tracer = dispatchotel.New(nil)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dispatch.NewMetrics(reg)

	r := newRouter(settings, logger, tracer, metrics)
	dispatch.Raw(r, http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP)

	var handler http.Handler = r
	if opts.trace {
		handler = otelhttp.NewHandler(r, "dispatch-sample")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("starting server", "addr", opts.addr, "jsonp", settings.AllowJSONP, "default_type", settings.DefaultContentType)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

func newRouter(settings dispatch.Settings, logger *slog.Logger, tracer dispatch.SpanStarter, metrics *dispatch.Metrics) *dispatch.Router {
	r := dispatch.New(
		dispatch.WithSettings(settings),
		dispatch.WithLogger(logger),
		dispatch.WithTracer(tracer),
		dispatch.WithMetrics(metrics),
		dispatch.WithRequestFilters(
			dispatch.CORS(dispatch.CORSConfig{
				AllowOrigins:  []string{"*"},
				AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:  []string{"Content-Type", "Accept"},
				ExposeHeaders: []string{dispatch.RequestIDHeader, "ETag"},
				MaxAge:        600,
			}),
			dispatch.RequestID(),
			dispatch.RateLimit(dispatch.RateLimitConfig{Rate: 50, Burst: 100}),
			dispatch.Validate(),
		),
		dispatch.WithResponseFilters(
			dispatch.SecureHeaders(),
			dispatch.ETag(),
		),
		dispatch.WithErrorMapper(mapStoreErrors),
	)

	r.Use(dispatch.Recovery(logger))
	r.Use(dispatch.Logger(logger))
	r.Use(dispatch.Timeout(30 * time.Second))

	v1 := r.Group("/v1", dispatch.WithGroupTags("v1"))

	dispatch.Get(v1, "/health", handleHealth, dispatch.WithSummary("Health check"))
	dispatch.Get(v1, "/users", handleListUsers, dispatch.WithSummary("List users"))
	dispatch.Post(v1, "/users", handleCreateUser,
		dispatch.WithStatus(http.StatusCreated),
		dispatch.WithSummary("Create user"),
		dispatch.WithBodyLimit(64<<10),
	)
	dispatch.Options(v1, "/users", dispatch.WithSummary("CORS preflight"))
	dispatch.Get(v1, "/users/{id}", handleGetUser, dispatch.WithSummary("Get user by ID"))
	dispatch.Delete(v1, "/users/{id}", handleDeleteUser, dispatch.WithSummary("Delete user"))
	dispatch.Get(v1, "/users/{id}/avatar", handleDownloadAvatar, dispatch.WithSummary("Download avatar"))
	dispatch.Get(v1, "/users/{id}/report", handleReport, dispatch.WithSummary("Build a report after the handler returns"))
	dispatch.Get(v1, "/events", handleEvents, dispatch.WithSummary("Server-sent event stream"))
	dispatch.Get(v1, "/home", handleHome, dispatch.WithSummary("Redirect to the user list"))
	dispatch.Post(v1, "/audit", handleAudit,
		dispatch.WithSummary("Fire-and-forget audit record"),
		dispatch.WithAttributes(dispatch.OneWay),
	)

	return r
}
