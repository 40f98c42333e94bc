// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/chat/logchat"
	"github.com/bissquit/incident-bot/internal/chat/slackchat"
	"github.com/bissquit/incident-bot/internal/config"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/identity"
	"github.com/bissquit/incident-bot/internal/identity/jwt"
	identitypostgres "github.com/bissquit/incident-bot/internal/identity/postgres"
	"github.com/bissquit/incident-bot/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-bot/internal/incidents/postgres"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/pkg/httputil"
	"github.com/bissquit/incident-bot/internal/pkg/metrics"
	"github.com/bissquit/incident-bot/internal/pkg/postgres"
	"github.com/bissquit/incident-bot/internal/reminders"
	reminderspostgres "github.com/bissquit/incident-bot/internal/reminders/postgres"
	"github.com/bissquit/incident-bot/internal/slackbot"
	"github.com/bissquit/incident-bot/internal/tasks"
	"github.com/bissquit/incident-bot/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *reminders.Scheduler
	queue         *tasks.Queue
	incidents     *incidents.Service
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	notifier chat.Notifier
	adapters *incidents.Adapters
}

// WithNotifier replaces the chat notifier built from configuration.
func WithNotifier(n chat.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithAdapters replaces the external integrations built from configuration.
func WithAdapters(a incidents.Adapters) Option {
	return func(o *options) { o.adapters = &a }
}

// New creates a new application instance.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		ApplicationName: "incident-bot",
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx, o)
	if err != nil {
		app.stopBackground(context.Background())
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the HTTP servers, then background workers, then the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.stopBackground(ctx)
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) stopBackground(ctx context.Context) {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the reminder scheduler. Used in tests.
func (a *App) Scheduler() *reminders.Scheduler {
	return a.scheduler
}

// Incidents returns the incident lifecycle service. Used in tests.
func (a *App) Incidents() *incidents.Service {
	return a.incidents
}

func (a *App) setupRouter(ctx context.Context, o options) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	slog.Info("integrations configured",
		"slack", a.config.Slack.Enabled,
		"pagerduty", a.config.PagerDuty.Enabled,
		"statuspage", a.config.Statuspage.Enabled,
		"jira", a.config.Jira.Enabled,
		"confluence", a.config.Confluence.Enabled,
		"status_feeds", a.config.StatusFeeds.Enabled,
	)

	notifier := o.notifier
	var slackNotifier *slackchat.Notifier
	if notifier == nil {
		if a.config.Slack.Enabled {
			n, err := slackchat.NewNotifier(slackchat.Config{
				BotToken:        a.config.Slack.BotToken,
				APIURL:          a.config.Slack.APIURL,
				RateLimit:       a.config.Slack.RateLimit,
				PrivateChannels: a.config.Slack.PrivateChannels,
			})
			if err != nil {
				return nil, fmt.Errorf("create slack notifier: %w", err)
			}
			slackNotifier = n
			notifier = n
		} else {
			slog.Warn("slack is disabled: chat messages are only logged")
			notifier = logchat.NewNotifier(a.logger)
		}
	}

	lifecycle := lifecycleFromConfig(a.config.Incidents)

	// Reminder jobs are restored before the coordinator exists; they only
	// fire once the scheduler is started with it as runner.
	a.scheduler = reminders.NewScheduler(reminders.Config{}, reminderspostgres.NewRepository(a.db), a.logger)
	if err := a.scheduler.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore reminders: %w", err)
	}

	a.queue = tasks.NewQueue(tasks.Config{
		NumWorkers:        a.config.Extras.NumWorkers,
		QueueSize:         a.config.Extras.QueueSize,
		MaxAttempts:       a.config.Extras.MaxAttempts,
		InitialBackoff:    a.config.Extras.InitialBackoff,
		MaxBackoff:        a.config.Extras.MaxBackoff,
		BackoffMultiplier: a.config.Extras.BackoffMultiplier,
		Timeout:           a.config.Extras.Timeout,
	})

	adapters, err := a.buildAdapters(o)
	if err != nil {
		return nil, err
	}

	incidentRepo := incidentspostgres.NewRepository(a.db, lifecycle.ResolvedStatus)
	a.incidents = incidents.NewService(incidentRepo, notifier, a.scheduler, a.queue, adapters, incidents.Config{
		Lifecycle:        lifecycle,
		ChannelPrefix:    a.config.Incidents.ChannelPrefix,
		ChannelNameLimit: a.config.Incidents.ChannelNameLimit,
		DigestChannel:    a.config.Slack.DigestChannel,
		MeetingLink:      a.config.Slack.MeetingLink,
		ReminderInterval: a.config.Reminders.Interval,
		GracePeriod:      a.config.Reminders.GracePeriod,
		StaleThreshold:   a.config.Reminders.StaleThreshold,
	})

	extras := incidents.NewExtras(a.incidents, incidents.ExtrasConfig{
		AutoInviteUsers:          a.config.Slack.AutoInviteUsers,
		CreateTicket:             a.config.Jira.Enabled && a.config.Jira.AutoCreate,
		CreateStatusPageIncident: a.config.Statuspage.Enabled && a.config.Statuspage.AutoCreate,
		PagePolicies:             pagePolicies(a.config.PagerDuty.AutoPage),
	})
	a.queue.Register(incidents.TaskExtras, extras.Handle)

	a.scheduler.Start(a.incidents)
	if err := a.incidents.ReconcileReminders(ctx); err != nil {
		slog.Warn("reminder reconciliation failed", "error", err)
	}
	a.queue.Start(ctx)

	identityService := identity.NewService(
		identitypostgres.NewRepository(a.db),
		jwt.NewAuthenticator(jwt.Config{
			SecretKey:           a.config.JWT.SecretKey,
			AccessTokenDuration: a.config.JWT.AccessTokenDuration,
		}),
	)
	if err := identityService.EnsureAdmin(ctx, a.config.Auth.AdminEmail, a.config.Auth.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	identityHandler := identity.NewHandler(identityService)
	incidentsHandler := incidents.NewHandler(a.incidents)
	remindersHandler := reminders.NewHandler(a.scheduler)
	tasksHandler := tasks.NewHandler(a.queue)

	if slackNotifier != nil {
		slackbot.NewHandler(a.incidents, slackNotifier.Client(), a.config.Slack.SigningSecret, "").RegisterRoutes(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleOperator))
				incidentsHandler.RegisterRoutes(r)
				remindersHandler.RegisterRoutes(r)
				tasksHandler.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				identityHandler.RegisterAdminRoutes(r)
				remindersHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
