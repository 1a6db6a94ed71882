package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/data/session"
	"github.com/KotFed0t/dividend_tracker/data/storage"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi/polygonApi"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/scheduler"
	"github.com/KotFed0t/dividend_tracker/internal/service/portfolioStore"
	"github.com/KotFed0t/dividend_tracker/internal/service/reportService"
	"github.com/KotFed0t/dividend_tracker/internal/tgbot"
	"github.com/KotFed0t/dividend_tracker/internal/transport/telegram"
	"github.com/KotFed0t/dividend_tracker/utils"
)

type keyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

type expiringKeyValue interface {
	keyValue
	DeleteExpired(ctx context.Context) error
}

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.String("storageDriver", cfg.StorageDriver), slog.Bool("googleDrive", cfg.GoogleDrive.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, closer := setupKeyValue(ctx, cfg)
	if closer != nil {
		defer closer.Close()
	}

	store := portfolioStore.New(utils.WithRqID(ctx, ""), storage.New(kv), polygonApi.New(cfg))
	chatSessions := session.New(kv, cfg)

	var cloudStorage reportService.CloudStorage
	var drive *googleDriveApi.GoogleDriveApi
	if cfg.GoogleDrive.Enabled {
		var err error
		drive, err = googleDriveApi.New(ctx, cfg)
		if err != nil {
			slog.Error("can't init google drive, exports won't be published", slog.String("err", err.Error()))
		} else {
			cloudStorage = drive
		}
	}

	reports := reportService.New(store, xslsxGenerator.New(), cloudStorage)

	sched := scheduler.New()
	sched.NewIntervalJob("refresh quotes", func(ctx context.Context) error {
		store.RefreshQuotes(ctx)
		return nil
	}, cfg.Jobs.RefreshQuotesInterval, true)
	sched.NewIntervalJob("refresh dividends", func(ctx context.Context) error {
		store.RefreshDividends(ctx, cfg.Dividends.MonthsBack)
		return nil
	}, cfg.Jobs.RefreshDividendsInterval, true)
	if drive != nil {
		sched.NewIntervalJob("delete old drive files", drive.DeleteOldFiles, cfg.Jobs.DeleteOldFilesInterval, false)
	}
	if expiring, ok := kv.(expiringKeyValue); ok {
		sched.NewIntervalJob("delete expired keys", expiring.DeleteExpired, cfg.SessionExpiration, false)
	}
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(store, reports, chatSessions, cfg)

	tgBot, err := tgbot.New(cfg, tgController)
	if err != nil {
		slog.Error("can't start telegram bot", slog.String("err", err.Error()))
		return
	}
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

// setupKeyValue returns the configured backend and the client to close on exit, if any.
func setupKeyValue(ctx context.Context, cfg *config.Config) (keyValue, io.Closer) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgClient := data.NewPostgresClient(ctx, cfg)
		return repository.NewPostgres(pgClient), pgClient
	case config.StorageMemory:
		slog.Warn("using in-memory storage, the portfolio is lost on restart")
		return repository.NewMemory(), nil
	default:
		redisClient := data.NewRedisClient(ctx, cfg)
		return repository.NewRedis(redisClient, cfg), redisClient
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
