package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/smeagol-wiki/smeagol-client/internal/app"
	"github.com/smeagol-wiki/smeagol-client/internal/audit"
	"github.com/smeagol-wiki/smeagol-client/internal/config"
	"github.com/smeagol-wiki/smeagol-client/internal/observe"
	"github.com/smeagol-wiki/smeagol-client/internal/server"
)

func configureServerRoutes(state *app.State) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	mux := observe.NewMux(http.NewServeMux())

	// Page content is the largest body accepted; anything beyond this is not
	// a page edit.
	requestLimitBytes := int64(1 << 20) // 1 MB
	requestLimiter := maxRequestSize(requestLimitBytes)

	apiRouteMiddleware := alice.New(audit.Middleware(), requestLimiter, withCurrentLocation)
	standardRouteMiddleware := alice.New(requestLimiter)

	mux.Handle("GET /api/wikis/{repository}/{branch}", apiRouteMiddleware.Then(handleGetEntry(state.Wikis, wikiKey)))
	mux.Handle("DELETE /api/wikis/{repository}/{branch}", apiRouteMiddleware.Then(handleInvalidate(state.Wikis, wikiKey)))

	mux.Handle("GET /api/pages/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handleGetEntry(state.Pages, contentKey)))
	mux.Handle("DELETE /api/pages/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handleInvalidate(state.Pages, contentKey)))
	mux.Handle("POST /api/pages/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handlePostMutation(state.Mutations)))

	mux.Handle("GET /api/history/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handleGetEntry(state.History, historyKey)))
	mux.Handle("DELETE /api/history/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handleInvalidate(state.History, historyKey)))

	mux.Handle("POST /api/prefetch/{repository}/{branch}/{path...}", apiRouteMiddleware.Then(handlePrefetch(state)))
	mux.Handle("GET /api/session", standardRouteMiddleware.Then(handleGetSession(state.Redirects)))

	// healthchecks are not included in telemetry
	mux.HandleUnobserved("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	for _, route := range mux.Routes() {
		log.Debug().Str("route", route.Pattern).Bool("observed", route.Observed).Msg("route registered")
	}

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	state, err := app.New(cfg, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("client state configuration failed: %w", err)
	}

	log.Info().
		Str("api", cfg.Wiki.APIURL).
		Dur("staleThreshold", cfg.Store.StaleThreshold()).
		Msg("wiki client ready")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           configureServerRoutes(state),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	// hooks run in reverse: fetches drain before telemetry flushes
	hooks := &server.ShutdownHooks{}
	hooks.Add("telemetry", shutdownTelemetry)
	hooks.AddWait("store fetches", state)

	err = server.Serve(ctx, srv, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
