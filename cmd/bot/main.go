// Package main is the entry point of the AI teacher Telegram bot.
//
// The bot relays student messages to a language model that can call tools on
// the homework backend, keeps a bounded conversation buffer per student and
// persists it across restarts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/langflow/ai-teacher/config"
	"github.com/langflow/ai-teacher/internal/application/orchestrator"
	"github.com/langflow/ai-teacher/internal/application/tools"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
	"github.com/langflow/ai-teacher/internal/infrastructure/external/backend"
	"github.com/langflow/ai-teacher/internal/infrastructure/external/openai"
	tg "github.com/langflow/ai-teacher/internal/infrastructure/external/telegram"
	"github.com/langflow/ai-teacher/internal/infrastructure/metrics"
	"github.com/langflow/ai-teacher/internal/infrastructure/persistence"
	"github.com/langflow/ai-teacher/internal/infrastructure/persistence/postgres"
	"github.com/langflow/ai-teacher/internal/infrastructure/persistence/redis"
	"github.com/langflow/ai-teacher/internal/infrastructure/scheduler"
	httpserver "github.com/langflow/ai-teacher/internal/interface/http"
	"github.com/langflow/ai-teacher/internal/interface/http/handlers"
	"github.com/langflow/ai-teacher/internal/interface/telegram"
	"github.com/langflow/ai-teacher/pkg/circuitbreaker"
	"github.com/langflow/ai-teacher/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: !cfg.IsProduction(),
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting AI teacher bot",
		logger.String("name", cfg.App.Name),
		logger.String("config", cfg.String()),
	)

	collector := metrics.New()
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		durable orchestrator.BufferStore
		purger  scheduler.BufferPurger
	)
	if cfg.Database.Enabled() {
		log.Info("connecting to database...")
		dbConn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", logger.Int("applied", len(applied)))

		repo := postgres.NewBufferRepository(dbConn)
		durable, purger = repo, repo
		health.AddCheck("postgres", handlers.PingCheck(dbConn))
	} else {
		log.Warn("no database configured, conversation buffers will not survive restarts")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		snapshotCache persistence.SnapshotCache
		userCache     telegram.UserCache
	)
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			snapshotCache = redis.NewBufferCache(cache, cfg.Session.CacheTTL)
			userCache = redis.NewUserCache(cache, cfg.Session.UserCacheTTL)
			health.AddCheck("redis", handlers.PingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	store := persistence.NewTieredStore(snapshotCache, durable, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	backendConfig := backend.DefaultClientConfig(cfg.Backend.BaseURL)
	backendConfig.APIKey = cfg.Backend.APIKey
	backendConfig.Timeout = cfg.Backend.RequestTimeout
	backendConfig.RequestsPerSecond = cfg.Backend.RequestsPerSecond
	backendConfig.Burst = cfg.Backend.Burst
	backendConfig.Breaker = backendBreaker(cfg.Backend, log)
	backendConfig.Logger = log
	backendClient := backend.NewClient(backendConfig)
	health.AddCheck("backend", handlers.PingCheck(backendClient))

	modelConfig := openai.DefaultConfig(cfg.LLM.APIKey)
	modelConfig.BaseURL = cfg.LLM.BaseURL
	modelConfig.Model = cfg.LLM.Model
	modelConfig.Temperature = float32(cfg.LLM.Temperature)
	modelConfig.MaxTokens = cfg.LLM.MaxTokens
	modelConfig.Timeout = cfg.LLM.Timeout
	model := openai.NewChatModel(modelConfig, openai.WithLogger(log))

	telegramConfig := tg.DefaultClientConfig(cfg.Telegram.Token)
	telegramConfig.BaseURL = cfg.Telegram.BaseURL
	telegramConfig.PollTimeout = cfg.Telegram.PollingTimeout
	telegramConfig.Timeout = cfg.Telegram.PollingTimeout + 30*time.Second
	telegramConfig.Logger = log
	telegramClient := tg.NewClient(telegramConfig)

	me, err := telegramClient.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach telegram: %w", err)
	}
	log.Info("telegram bot authorized", logger.String("username", me.Username))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	registry := tools.DefaultRegistry()
	executor, err := tools.NewExecutor(registry, backendClient,
		tools.WithConfig(tools.Config{
			LookupTimeout:     cfg.Tools.LookupTimeout,
			GenerationTimeout: cfg.Tools.GenerationTimeout,
		}),
		tools.WithObserver(collector),
		tools.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to build tool executor: %w", err)
	}

	orch := orchestrator.New(model, executor, registry,
		orchestrator.WithObserver(collector),
		orchestrator.WithLogger(log),
	)

	policy := conversation.NewPolicy(conversation.PolicyConfig{
		MinInterval:       cfg.Memory.ConsolidationInterval,
		MessageThreshold:  cfg.Memory.MessageThreshold,
		SeenInfoThreshold: cfg.Memory.SeenInfoThreshold,
		ToolCallThreshold: cfg.Memory.ToolCallThreshold,
	})
	sessions := orchestrator.NewSessionManager(orch,
		orchestrator.WithStore(store),
		orchestrator.WithBufferOptions(
			conversation.WithMaxContext(cfg.Memory.MaxContextMessages),
			conversation.WithPolicy(policy),
		),
		orchestrator.WithSessionLogger(log),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	var users telegram.UserDirectory = backendClient
	if userCache != nil {
		users = telegram.NewCachedUserDirectory(backendClient, userCache, log)
	}

	botConfig := telegram.DefaultBotConfig()
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.RoundTimeout = cfg.Telegram.RoundTimeout
	botConfig.AnimationInterval = cfg.Telegram.AnimationInterval
	botConfig.Logger = log
	bot := telegram.NewBot(botConfig, telegramClient, users, sessions)

	collector.RegisterGauge("sessions_in_memory", "Conversation buffers currently held in memory.",
		func() float64 { return float64(sessions.Active()) })
	collector.RegisterGauge("conversations_active", "Users currently talking to the AI teacher.",
		func() float64 { return float64(bot.ActiveConversations()) })

	// ─────────────────────────────────────────────────────────────────────────
	// 8. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log})
	sched.OnJobComplete(func(r scheduler.JobResult) {
		collector.ObserveJob(r.JobName, r.Duration, r.Err)
	})
	if err := sched.Register(scheduler.NewFlushSessionsJob(sessions), scheduler.Every(cfg.Session.FlushInterval)); err != nil {
		return fmt.Errorf("failed to register flush job: %w", err)
	}
	if err := sched.Register(scheduler.NewEvictIdleJob(sessions, cfg.Session.IdleTTL, log), scheduler.Every(cfg.Session.EvictInterval)); err != nil {
		return fmt.Errorf("failed to register eviction job: %w", err)
	}
	if purger != nil && cfg.Session.Retention > 0 {
		job := scheduler.NewPurgeStaleBuffersJob(purger, cfg.Session.Retention, time.Now, log)
		if err := sched.Register(job, scheduler.Every(24*time.Hour)); err != nil {
			return fmt.Errorf("failed to register purge job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Port = cfg.Observability.HTTPPort
	deps := httpserver.Dependencies{Health: health, Logger: log}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = collector.Handler()
	}
	server := httpserver.NewServer(httpConfig, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("saving conversation buffers before exit...", logger.Int("buffers", sessions.Active()))
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := sessions.FlushAll(flushCtx); err != nil {
		log.Error("failed to flush conversation buffers", logger.Err(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("AI teacher bot stopped")
	return nil
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	if c.Host != "" {
		pc.Host = c.Host
	}
	pc.Port = c.Port
	pc.Database = c.Name
	pc.User = c.User
	pc.Password = c.Password
	pc.SSLMode = c.SSLMode
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.ConnectTimeout = c.ConnectTimeout
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func backendBreaker(c config.BackendConfig, log *logger.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New("backend-api",
		circuitbreaker.WithFailureThreshold(c.CircuitBreakerThreshold),
		circuitbreaker.WithSuccessThreshold(2),
		circuitbreaker.WithTimeout(c.CircuitBreakerTimeout),
		circuitbreaker.WithMaxHalfOpenRequests(1),
		circuitbreaker.WithIsFailure(func(err error) bool {
			return !tutoring.IsPermanent(err) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)
}
