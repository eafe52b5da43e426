// Package server exposes the extension host over HTTP: session tokens, the
// streaming research endpoint and operator diagnostics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/konashevich/olexi-host/config"
	"github.com/konashevich/olexi-host/internal/linkcache"
	"github.com/konashevich/olexi-host/internal/llm"
	"github.com/konashevich/olexi-host/internal/mcp"
	"github.com/konashevich/olexi-host/internal/ratelimit"
	"github.com/konashevich/olexi-host/internal/research"
	"github.com/konashevich/olexi-host/internal/runtime"
	"github.com/konashevich/olexi-host/internal/session"
	"github.com/konashevich/olexi-host/internal/store"
)

// Deps are the components served by the HTTP surface. History and
// AdminSecret are optional.
type Deps struct {
	Tokens      *session.Manager
	Limiter     *ratelimit.Limiter
	Orch        *research.Orchestrator
	History     History
	Metrics     *runtime.Metrics
	AdminSecret []byte
}

// New builds the echo instance with every route registered.
func New(cfg *config.Config, deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if cfg.General.Debug || v.Status >= http.StatusInternalServerError {
				baseLogger.Printf("%s %s %d %s id=%s", v.Method, v.URIPath, v.Status, v.Latency, v.RequestID)
			}
			return nil
		},
	}))
	// Unified error handler: every failure is {"detail": "..."}.
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		if code >= http.StatusInternalServerError || cfg.General.Debug {
			baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, HTTPError{Detail: msg})
	}
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderContentType, echo.HeaderAuthorization,
			HeaderFingerprint, HeaderSessionToken, HeaderExtensionID,
		},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	registerDocs(e)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	guardLogger := log.New(log.Writer(), "[GUARD] ", log.LstdFlags)
	sg := e.Group("/session", extensionGuard(cfg.Server.RequireExtensionOrigin, guardLogger))
	sh := &SessionHandler{Tokens: deps.Tokens, Limiter: deps.Limiter, Metrics: deps.Metrics}
	sh.Register(sg)
	rh := &ResearchHandler{
		Tokens:        deps.Tokens,
		Limiter:       deps.Limiter,
		Orch:          deps.Orch,
		History:       deps.History,
		Metrics:       deps.Metrics,
		StreamTimeout: cfg.Server.StreamTimeout,
		Logger:        baseLogger,
	}
	rh.Register(sg)

	if len(deps.AdminSecret) > 0 {
		ah := &AdminHandler{
			Tokens:  deps.Tokens,
			Limiter: deps.Limiter,
			History: deps.History,
			Metrics: deps.Metrics,
			Secret:  deps.AdminSecret,
		}
		ah.Register(e.Group("/admin"))
	}
	return e
}

// Run wires every dependency from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, version string) error {
	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)

	tele, _, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tele.Shutdown(sctx)
	}()

	metrics := runtime.NewMetrics()
	deps := Deps{
		Tokens:  session.NewManager(cfg.Tokens.Lifetime, cfg.Tokens.MaxPerFingerprint),
		Limiter: ratelimit.New(cfg.Limits.Daily, cfg.Limits.Hourly),
		Metrics: metrics,
	}
	if secret, err := runtime.LoadAdminSecret(cfg); err == nil {
		deps.AdminSecret = secret
	} else {
		logger.Printf("admin endpoints disabled: %v", err)
	}

	gen := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout, nil)
	if !gen.Available() {
		logger.Printf("llm.api_key not configured; research requests will fail at planning")
	}
	opts := []research.Option{research.WithObserver(metrics)}

	var links *linkcache.Cache
	if cfg.Storage.Redis.Enabled() {
		r := cfg.Storage.Redis
		links, err = linkcache.Dial(ctx, r.Addr(), r.Password, r.DB, r.LinkTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", r.Addr(), err)
		}
		defer links.Close()
		opts = append(opts, research.WithLinkCache(links))
	}

	deps.Orch = research.NewOrchestrator(research.Config{
		SearchTool:          cfg.MCP.SearchTool,
		LinkTool:            cfg.MCP.LinkTool,
		SearchTimeout:       cfg.MCP.Timeout,
		LinkTimeout:         cfg.MCP.LinkTimeout,
		PlanTimeout:         cfg.LLM.Timeout,
		SummarizeTimeout:    cfg.LLM.Timeout,
		SearchBaseURL:       cfg.Research.SearchBaseURL,
		DefaultDatabases:    cfg.Research.DefaultDatabases,
		DefaultMaxResults:   cfg.Research.MaxResults,
		DefaultMaxDatabases: cfg.Research.MaxDatabases,
	}, llm.NewPlanner(gen), llm.NewSummarizer(gen), mcp.NewTransport(cfg.MCP.Endpoint, cfg.MCP.Timeout, nil), nil, opts...)

	if cfg.History.Enabled {
		dsn := cfg.Storage.Postgres.DSN()
		if err := store.Migrate(dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return err
		}
		defer st.Close()
		deps.History = st

		sched := &Scheduler{
			Store:     st,
			Schedule:  cfg.History.PurgeSchedule,
			Retention: time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
			Logger:    log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
			Stop:      make(chan struct{}),
		}
		if links != nil {
			sched.Rdb = links.Redis()
		}
		sched.Start()
		defer close(sched.Stop)
	}

	e := New(cfg, deps)
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Server.Address)
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
