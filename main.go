package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gadgethost/bridge/internal/audit"
	"github.com/gadgethost/bridge/internal/config"
	"github.com/gadgethost/bridge/internal/fetch"
	"github.com/gadgethost/bridge/internal/httpcache"
	"github.com/gadgethost/bridge/internal/observe"
	"github.com/gadgethost/bridge/internal/render"
	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/gadgethost/bridge/internal/server"
	"github.com/gadgethost/bridge/internal/sign"
	"github.com/gadgethost/bridge/internal/template"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/justinas/alice"
)

func configureServerRoutes(ctx context.Context, cfg config.Config, libraries *template.Store) (http.Handler, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	mux := observe.NewMux(http.NewServeMux())

	// configure middleware
	auditor := audit.Middleware()

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. Given the current API shape, this is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	contentRouteMiddleware := alice.New(requestLimiter, auditor)
	standardRouteMiddleware := alice.New(requestLimiter)

	// response cache, instrumented
	memory, err := httpcache.NewMemory(
		cfg.Cache.MaxEntries,
		time.Duration(cfg.Cache.MaxLifetimeSeconds)*time.Second,
	)
	if err != nil {
		return nil, fmt.Errorf("response cache configuration failed: %w", err)
	}
	cache := httpcache.NewInstrumented(memory, "memory")

	fetcher := fetch.NewHTTP(cfg.Fetch, &http.Client{
		Transport: http.DefaultTransport,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})

	// every available stage, registered by name; chain composition decides
	// which run and in what order
	stages := rewrite.NewStageSet()
	stages.AddResponse(rewrite.HeaderStripRewriter{})
	stages.AddResponse(rewrite.ViaRewriter{ServiceName: cfg.Observe.ServiceName})
	stages.AddGadget(render.NewTemplateRewriter(libraries))
	stages.AddGadget(render.NewStyleScriptRewriter(libraries))
	stages.AddGadget(render.NewLocaleRewriter(supportedLocales()))

	chains := rewrite.DefaultChainsConfig()
	if cfg.Rewrite.ChainFile != "" {
		chains, err = rewrite.LoadChainsFile(cfg.Rewrite.ChainFile)
		if err != nil {
			return nil, fmt.Errorf("chain configuration failed: %w", err)
		}
	}

	preCache, err := stages.ResponseChain(rewrite.RolePreCache, chains.PreCache)
	if err != nil {
		return nil, fmt.Errorf("chain configuration failed: %w", err)
	}
	postCache, err := stages.ResponseChain(rewrite.RolePostCache, chains.PostCache)
	if err != nil {
		return nil, fmt.Errorf("chain configuration failed: %w", err)
	}
	gadgetChain, err := stages.GadgetChain(rewrite.RoleGadget, chains.Gadget)
	if err != nil {
		return nil, fmt.Errorf("chain configuration failed: %w", err)
	}

	policy := httpcache.FreshnessPolicy{
		Default: time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		Min:     time.Duration(cfg.Cache.MinTTLSeconds) * time.Second,
		Max:     time.Duration(cfg.Cache.MaxTTLSeconds) * time.Second,
	}

	driver := rewrite.NewDriver(cache, fetcher, preCache, postCache, policy)
	renderer := render.NewRenderer(driver, gadgetChain)

	signer, err := sign.NewFromConfig(ctx, cfg.Sign)
	if err != nil {
		return nil, fmt.Errorf("signer configuration failed: %w", err)
	}

	mux.Handle("GET /gadget/render", contentRouteMiddleware.Then(handleRenderGadget(renderer)))
	mux.Handle("GET /proxy", contentRouteMiddleware.Then(handleProxy(driver, signer)))

	// healthchecks are not included in telemetry or audit
	mux.HandleUntraced("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux, nil
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

	hooks := &server.ShutdownHooks{}
	hooks.AddContext("telemetry", shutdownTelemetry)

	// template libraries: loaded at startup, optionally reloaded on change
	libraries := template.NewStore()
	template.LoadAll(libraries, cfg.Template.Libraries)

	if cfg.Template.WatchEnabled && len(cfg.Template.Libraries) > 0 {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		go func() {
			if err := template.Watch(watchCtx, libraries, cfg.Template.Libraries); err != nil {
				log.Warn().Err(err).Msg("template library watcher failed")
			}
		}()
		hooks.Add("library-watcher", func() error { cancelWatch(); return nil })
	}

	// setup routing and dependencies
	handler, err := configureServerRoutes(ctx, cfg, libraries)
	if err != nil {
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	return server.Run(ctx, cfg.Server, handler, hooks)
}

// supportedLocales lists the locales render output can be annotated with.
// The first entry is the fallback for unrecognized viewer locales.
func supportedLocales() []language.Tag {
	return []language.Tag{
		language.English,
		language.Spanish,
		language.French,
		language.German,
		language.Portuguese,
		language.Japanese,
		language.Korean,
		language.SimplifiedChinese,
		language.Russian,
		language.Arabic,
		language.Hebrew,
	}
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
