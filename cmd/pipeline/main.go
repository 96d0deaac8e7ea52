package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	"github.com/blkoutuk/comms-pipeline/internal/api"
	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/credentials"
	"github.com/blkoutuk/comms-pipeline/internal/dispatch"
	"github.com/blkoutuk/comms-pipeline/internal/feedback"
	"github.com/blkoutuk/comms-pipeline/internal/matcher"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/distlock"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
	"github.com/blkoutuk/comms-pipeline/internal/queue"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	cancel()
	logger.Info("database connected")

	// Redis is optional: without it the credential cache is skipped and
	// pass locks fall back to PG advisory locks.
	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cache.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without cache", "error", err)
			cache = nil
		}
		cancel()
	}

	creds := credentials.NewStore(db, cache)

	var (
		dispatchers []dispatch.Dispatcher
		lister      queue.CampaignLister
	)
	if cfg.Mailchimp.Enabled {
		mc := dispatch.NewMailchimpDispatcher(cfg.Mailchimp, creds)
		dispatchers = append(dispatchers, mc)
		lister = mc
	}
	if cfg.Graph.Enabled {
		dispatchers = append(dispatchers,
			dispatch.NewInstagramDispatcher(cfg.Graph, creds),
			dispatch.NewFacebookDispatcher(cfg.Graph, creds))
	}
	if cfg.LinkedIn.Enabled {
		dispatchers = append(dispatchers, dispatch.NewLinkedInDispatcher(cfg.LinkedIn, creds))
	}
	if cfg.Twitter.Enabled {
		dispatchers = append(dispatchers, dispatch.NewTwitterDispatcher(cfg.Twitter, creds))
	}
	registry := dispatch.NewRegistry(dispatchers...)
	logger.Info("dispatchers registered", "count", len(dispatchers))

	store := queue.NewStore(db)
	links := matcher.NewLinkStore(db)
	emitter := feedback.NewEmitter(db)

	manager := queue.NewManager(store, registry, links, lister, emitter, cfg.Publish, cfg.Sync)
	manager.SetLocks(
		distlock.New(cache, db, "pipeline:pass:publish", 10*time.Minute),
		distlock.New(cache, db, "pipeline:pass:metrics", 30*time.Minute),
	)

	c := cron.New()
	mustSchedule(c, cfg.Publish.CronSchedule, "publish", func() {
		if _, err := manager.RunPublishPass(context.Background()); err != nil && err != queue.ErrPassRunning {
			logger.Error("scheduled publish pass failed", "error", err)
		}
	})
	mustSchedule(c, cfg.Sync.CronSchedule, "metrics", func() {
		if _, err := manager.RunMetricsPass(context.Background()); err != nil && err != queue.ErrPassRunning {
			logger.Error("scheduled metrics pass failed", "error", err)
		}
	})
	c.Start()
	defer c.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(manager, store, links, db, cache).Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("ops API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return config.LoadFromEnv(path)
}

func mustSchedule(c *cron.Cron, schedule, name string, fn func()) {
	if err := c.AddFunc(schedule, fn); err != nil {
		logger.Error("invalid cron schedule", "pass", name, "schedule", schedule, "error", err)
		os.Exit(1)
	}
}
