package main // Entry point package

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"                 // .env loader for local runs
	"github.com/labstack/echo/v4"              // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/flowsurfer-web/internal/config"     // Internal config loader
	"github.com/iliyamo/flowsurfer-web/internal/database"   // MySQL connection
	"github.com/iliyamo/flowsurfer-web/internal/handler"    // HTTP handlers
	"github.com/iliyamo/flowsurfer-web/internal/middleware" // rate limit, cache, access log
	"github.com/iliyamo/flowsurfer-web/internal/queue"      // access-event consumer
	"github.com/iliyamo/flowsurfer-web/internal/repository" // access-event store
	"github.com/iliyamo/flowsurfer-web/internal/router"     // Internal router setup
	"github.com/iliyamo/flowsurfer-web/internal/service"    // access-event publisher
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg := config.Load() // Load environment config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := &handler.ReadyHandler{}
	var (
		repo     *repository.AccessRepo
		diagrams *handler.DiagramHandler
	)
	if cfg.DBEnabled() {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		repo = repository.NewAccessRepo(db)
		diagrams = handler.NewDiagramHandler(repository.NewDiagramRepo(db))
		ready.DB = db
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
		ready.Redis = rdb
	} else {
		log.Printf("redis unavailable; rate limiting and response cache disabled")
	}

	// Background workers outlive the signal context so the publisher can
	// flush events logged by requests that finish during e.Shutdown.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	var workers sync.WaitGroup

	var (
		sink middleware.EventSink
		pub  *service.Publisher
	)
	if cfg.AMQPURL != "" {
		pub = service.NewPublisher(cfg.AMQPURL, cfg.AccessQueue, cfg.AccessBuffer)
		pub.FlushTimeout = cfg.ShutdownWait
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = pub.Run(workCtx)
		}()
		sink = pub

		if cfg.ConsumerOn {
			consumer := &queue.Consumer{URL: cfg.AMQPURL, Queue: cfg.AccessQueue, LogPath: cfg.AccessLogPath}
			if repo != nil {
				consumer.Store = repo
			}
			workers.Add(1)
			go func() {
				defer workers.Done()
				_ = consumer.Run(workCtx)
			}()
		}
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.IPExtractor = middleware.ClientIP(cfg.TrustProxy)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.AccessLog(sink))

	router.RegisterRoutes(e, diagrams, // Register application routes
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	)
	router.RegisterReadiness(e, ready)
	if cfg.JWTSecret != "" {
		var stats *handler.StatsHandler
		if repo != nil {
			stats = &handler.StatsHandler{Source: repo}
		}
		router.RegisterAdmin(e, handler.NewAuthHandler(cfg), stats, cfg.JWTSecret)
	}

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	stopWork()
	workers.Wait()
	if pub != nil {
		log.Printf("access events dropped: %d", pub.Dropped())
	}
}
