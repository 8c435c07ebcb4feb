package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"daywise-insights/api"
	"daywise-insights/cache"
	"daywise-insights/config"
	"daywise-insights/database"
	"daywise-insights/engine"
	"daywise-insights/ingest"
	"daywise-insights/notifications"
	"daywise-insights/realtime"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	queries        *database.DB
	redis          *cache.RedisClient
	repo           *database.InsightRepository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	insightEngine  *engine.InsightEngine
	runQueue       *engine.RunQueue
	ingestManager  *ingest.ConnectionManager
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	app := &App{config: cfg}
	if cfg.IngestEnabled {
		app.ingestManager = ingest.NewConnectionManager(cfg.IngestWSURL, cfg.IngestAuthToken)
	}
	return app
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection (GORM, model writes)
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Raw read-query connection (hand-written SQL)
	queries, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("read-query connection failed: %w", err)
	}
	a.queries = queries

	// 3. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// Initialize schema
	a.repo = database.NewInsightRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Webhook Manager (with Redis rate limiting)
	a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)

	// Realtime Broker (SSE fanout)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 4. Insight engine and per-user run queue
	a.insightEngine = engine.NewInsightEngine(a.repo, a.redis, a.broker, a.webhookManager, a.config.Analysis)
	a.runQueue = engine.NewRunQueue(a.insightEngine)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runQueue.Run(ctx)
	}()

	// 5. Check-in event ingest (optional upstream gateway)
	if a.ingestManager != nil {
		if err := a.ingestManager.Connect(); err != nil {
			return fmt.Errorf("ingest connection failed: %w", err)
		}
		log.Println("✅ Check-in event stream connected")

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.ingestManager.Run(ctx, func(event *ingest.CheckinEvent) {
				a.runQueue.Enqueue(event.UserID)
			})
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.ingestManager.RunHealthMonitor(ctx)
		}()
	} else {
		log.Println("ℹ️  Check-in event stream DISABLED; runs come from the API only")
	}

	// 6. Start API server
	apiServer := api.NewServer(a.repo, a.queries, a.insightEngine, a.runQueue, a.broker, a.webhookManager, a.redis)
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 7. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.ingestManager != nil {
			fmt.Println("📡 Closing check-in event stream...")
			if err := a.ingestManager.Close(); err != nil {
				log.Printf("⚠️  Error closing ingest connection: %v", err)
			}
		}
		if a.queries != nil {
			if err := a.queries.Close(); err != nil {
				log.Printf("⚠️  Error closing read-query connection: %v", err)
			}
		}
		if a.db != nil {
			fmt.Println("🗄️  Closing database connection...")
			if err := a.db.Close(); err != nil {
				log.Printf("⚠️  Error closing database: %v", err)
			}
		}
		if a.redis != nil {
			fmt.Println("🧠 Closing Redis connection...")
			if err := a.redis.Close(); err != nil {
				log.Printf("⚠️  Error closing Redis: %v", err)
			}
		}
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown complete")
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
	}

	return nil
}
