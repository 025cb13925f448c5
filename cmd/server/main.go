package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"github.com/muandane/slugcache/internal/cache"
	"github.com/muandane/slugcache/internal/config"
	"github.com/muandane/slugcache/internal/dispatch"
	"github.com/muandane/slugcache/internal/handlers"
	"github.com/muandane/slugcache/internal/middleware"
	"github.com/muandane/slugcache/internal/origin"
	"github.com/muandane/slugcache/internal/resolver"
	"github.com/muandane/slugcache/internal/router"
	"github.com/muandane/slugcache/internal/sink"
	"github.com/muandane/slugcache/internal/storage"
	"github.com/muandane/slugcache/internal/sweep"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr.Message)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var minioClient *minio.Client
	if cfg.Origin.Kind == config.OriginS3 || cfg.Events.ArchiveBucket != "" {
		client, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			return err
		}
		minioClient = client
	}

	var redisClient *redis.Client
	if cfg.Origin.Kind == config.OriginRedis || cfg.Events.Clicks {
		redisClient = newRedisClient(cfg.Origin)
		defer redisClient.Close()
	}

	store, err := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	})
	if err != nil {
		return err
	}

	src, err := newOrigin(cfg.Origin, minioClient, redisClient)
	if err != nil {
		return err
	}

	sinks, err := newSinks(cfg.Events, minioClient, redisClient, logger)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(sinks, dispatch.Options{
		QueueSize:   cfg.Events.QueueSize,
		Workers:     cfg.Events.Workers,
		SinkTimeout: cfg.Events.SinkTimeout,
		Logger:      logger.With("component", "dispatcher"),
	})
	dispatcher.Start()

	res, err := resolver.New(store, src, dispatcher, resolver.Options{
		OriginTimeout: cfg.Origin.Timeout,
		SingleFlight:  cfg.Origin.SingleFlight,
		Logger:        logger.With("component", "resolver"),
	})
	if err != nil {
		return err
	}

	scheduler := sweep.New(store, sweep.Options{
		Interval: cfg.Cache.SweepInterval,
		Logger:   logger.With("component", "sweeper"),
	})
	scheduler.Start()

	gin.SetMode(gin.ReleaseMode)
	engine, err := router.NewRouter(logger).Setup(
		router.Config{
			Domain:         cfg.Domain,
			AdminKey:       cfg.AdminKey,
			TrustedProxies: cfg.TrustedProxies,
			RateLimit: middleware.RateLimitConfig{
				PerSecond: cfg.RateLimit,
				Burst:     cfg.RateBurst,
			},
		},
		router.Handlers{
			Redirect: handlers.NewRedirectHandler(res, logger),
			Stats: handlers.NewStatsHandler(handlers.StatsSource{
				Cache:      store.Stats,
				Resolver:   res.Stats,
				Dispatcher: dispatcher.Stats,
				Sweeper:    scheduler.Stats,
			}),
			Admin: handlers.NewAdminHandler(store, scheduler, logger),
		},
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("redirect service listening",
			"addr", srv.Addr,
			"origin", cfg.Origin.Kind,
			"cache_max_entries", cfg.Cache.MaxEntries,
			"cache_ttl", cfg.Cache.TTL.String(),
			"sweep_interval", cfg.Cache.SweepInterval.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("sweeper shutdown", "error", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown", "error", err)
	}
	if err := sinks.Close(shutdownCtx); err != nil {
		logger.Error("sink shutdown", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func newRedisClient(cfg config.OriginConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
}

func newOrigin(cfg config.OriginConfig, minioClient *minio.Client, redisClient *redis.Client) (resolver.Origin, error) {
	switch cfg.Kind {
	case config.OriginS3:
		return origin.NewS3(minioClient, cfg.Bucket, cfg.Prefix)

	case config.OriginRedis:
		if redisClient == nil {
			return nil, errors.New("redis origin needs a redis client")
		}
		return origin.NewRedis(redisClient, cfg.Prefix), nil

	default:
		return origin.NewHTTP(cfg.URL, &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		})
	}
}

func newSinks(cfg config.EventsConfig, minioClient *minio.Client, redisClient *redis.Client, logger *slog.Logger) (sink.Multi, error) {
	var sinks sink.Multi

	if cfg.Log {
		sinks = append(sinks, sink.NewLog(logger.With("component", "access_log")))
	}
	if cfg.Clicks {
		if redisClient == nil {
			return nil, errors.New("click counter needs a redis client")
		}
		sinks = append(sinks, sink.NewClicks(redisClient, cfg.ClicksPrefix))
	}
	if cfg.NATSURL != "" {
		n, err := sink.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}
	if cfg.ArchiveBucket != "" {
		a, err := sink.NewArchive(minioClient, cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveBatch)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a)
	}

	return sinks, nil
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
