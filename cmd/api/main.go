package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/eshotmap/eshot_core/internal/api"
	"github.com/eshotmap/eshot_core/internal/cache"
	"github.com/eshotmap/eshot_core/internal/cluster"
	"github.com/eshotmap/eshot_core/internal/config"
	"github.com/eshotmap/eshot_core/internal/csvfeed"
	"github.com/eshotmap/eshot_core/internal/eshot"
	"github.com/eshotmap/eshot_core/internal/logging"
	"github.com/eshotmap/eshot_core/internal/middleware"
	"github.com/eshotmap/eshot_core/internal/repository"
	"github.com/eshotmap/eshot_core/internal/service"
	"github.com/eshotmap/eshot_core/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		logging.LogError(log, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs, err := store.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	client := eshot.NewClient(eshot.Config{
		StopsURL:  cfg.Feed.StopsURL,
		LinesURL:  cfg.Feed.LinesURL,
		BusesURL:  cfg.Feed.BusesURL,
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   cfg.Feed.Timeout,
	}, log)

	repo := repository.New(client, fs, csvfeed.NewParser(log), log)
	svc := service.New(repo, client, cluster.New(cfg.Cluster.BaseSize, cfg.Cluster.ReferenceZoom), log)

	// Warm in the background; requests load on demand if this is still running
	go func() {
		if err := svc.Warm(ctx); err != nil {
			log.Warn("initial load incomplete", slog.String("error", err.Error()))
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Host:       cfg.Redis.Host,
			Port:       cfg.Redis.Port,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return err
		}
		defer logging.SafeCloseWithLogging(rdb, log, "close redis")
		log.Info("Redis connection established", slog.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
	}

	buses := cache.NewBusCache(svc, cfg.Cache.BusSize, cfg.Cache.BusTTL, log)

	app := fiber.New(fiber.Config{
		AppName:      "ESHOT API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Feed.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RateLimitMiddleware(rdb, middleware.RateLimits{
		PerSecond: cfg.RateLimit.PerSecond,
		PerDay:    cfg.RateLimit.PerDay,
	}, log))

	api.NewHandler(svc, buses, rdb, log).Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logging.LogError(log, "error during shutdown", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Server listening",
		slog.String("addr", addr),
		slog.String("cache_dir", fs.Dir()))

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// errorHandler renders handler errors as JSON
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
		}

		logging.LogError(log, "request failed", err,
			slog.String("path", c.Path()),
			slog.Int("status", code))

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
