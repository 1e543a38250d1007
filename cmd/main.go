package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"pagedigest/internal/bot"
	"pagedigest/internal/config"
	"pagedigest/internal/database"
	"pagedigest/internal/form"
	"pagedigest/internal/llm"
	"pagedigest/internal/loader"
	"pagedigest/internal/scheduler"
	"pagedigest/internal/web"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	pageLoader := loader.New(loader.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		MaxPageBytes: cfg.MaxPageBytes,
	}, log)

	models := llm.NewOpenAIFactory(llm.OpenAIConfig{
		Model:           cfg.OpenAIModel,
		BaseURL:         cfg.OpenAIBaseURL,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})

	controller := form.New(pageLoader, models, log,
		form.WithRecorder(db),
		form.WithParallelism(cfg.MapReduceParallel))

	retention := time.Duration(cfg.StatsRetentionDays) * 24 * time.Hour

	sched := scheduler.New(ctx, db, retention, log)
	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", scheduler.HourlyPruneSpec)

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", scheduler.HourlyPruneSpec,
		"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String(),
		"retentionDays", cfg.StatsRetentionDays)

	gin.SetMode(gin.ReleaseMode)

	webServer, err := web.New(controller, db, web.Config{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StatsWindow:    retention,
	}, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize web server",
			"error", err)

		return
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var wg sync.WaitGroup

	serverErr := make(chan error, 1)
	wg.Go(func() {
		log.InfoContext(ctx, "HTTP server is started",
			"addr", cfg.HTTPAddr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	})

	var botInst *bot.Bot
	if cfg.BotEnabled() {
		botInst, err = bot.New(cfg.Token, cfg.OpenAIAPIKey, controller, db, cfg.AllowedUsers, log)
		if err != nil {
			log.ErrorContext(ctx, "Failed to initialize bot",
				"error", err,
				"allowedUsersCount", len(cfg.AllowedUsers))
		} else {
			log.InfoContext(ctx, "Bot is initialized",
				"allowedUsersCount", len(cfg.AllowedUsers))

			wg.Go(func() {
				botInst.Start(ctx)
			})
		}
	} else {
		log.InfoContext(ctx, "Bot is disabled",
			"hasToken", cfg.Token != "",
			"hasOpenAIKey", cfg.OpenAIAPIKey != "")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case err = <-serverErr:
		log.ErrorContext(ctx, "HTTP server failed",
			"error", err,
			"addr", cfg.HTTPAddr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down HTTP server",
			"error", err)
	}

	if botInst != nil {
		botInst.Stop()
	}

	wg.Wait()

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}
