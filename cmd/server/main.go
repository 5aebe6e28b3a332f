package main

import (
	"context"
	"fmt"
	"github.com/caarlos0/env/v6"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"marketplace-api/internal/auth"
	"marketplace-api/internal/conversation"
	"marketplace-api/internal/mail"
	"marketplace-api/internal/media"
	"marketplace-api/internal/product"
	"marketplace-api/internal/realtime"
	"marketplace-api/internal/server"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/memstore"
	"marketplace-api/internal/storage/mongo"
	"marketplace-api/internal/storage/postgres"
	"os"
	"time"
)

// logConfig defines fields used for configuring the application logger
type logConfig struct {
	Format     string `env:"LOG_FORMAT" envDefault:"console"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// newLogger builds a development logger, or a production one when JSON output is requested
// LOG_FILE adds a rotated file sink
func newLogger(cfg logConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return logger, nil
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zcfg.Level)

	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// openStore connects to the configured backend, retrying with exponential backoff until ConnectTimeout elapses
func openStore(logger *zap.SugaredLogger, cfg storage.Config) (storage.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == storage.DriverMemory {
		logger.Warn("Using in-memory storage, data will not survive a restart")
		return memstore.New(), nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout

	var store storage.Store
	connect := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()

		var err error
		switch cfg.Driver {
		case storage.DriverMongo:
			store, err = mongo.New(ctx, logger, cfg.MongoURI, cfg.MongoDatabase, cfg.ConnectTimeout)
		case storage.DriverPostgres:
			store, err = postgres.New(ctx, logger, cfg.DSN(), postgres.ConnectionTimeout(cfg.ConnectTimeout))
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		logger.Warnf("Cannot connect to %s storage, retrying in %s: %v", cfg.Driver, d, err)
	}

	if err := backoff.RetryNotify(connect, b, notify); err != nil {
		return nil, fmt.Errorf("connecting to %s storage: %w", cfg.Driver, err)
	}
	return store, nil
}

func newSender(logger *zap.SugaredLogger, cfg mail.Config) mail.Sender {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY is not set, mails will only be logged")
		return mail.NewLogSender(logger)
	}
	return mail.NewSendGrid(logger, cfg)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("godotenv.Load: %v", err)
	}

	var logCfg logConfig
	if err := env.Parse(&logCfg); err != nil {
		log.Fatalf("Cannot parse log config: %v", err)
	}

	logger, err := newLogger(logCfg)
	if err != nil {
		log.Fatalf("Cannot create logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	var (
		serverCfg  server.EnvConfig
		storageCfg storage.Config
		authCfg    auth.Config
		mailCfg    mail.Config
		mediaCfg   media.Config
	)
	for _, cfg := range []interface{}{&serverCfg, &storageCfg, &authCfg, &mailCfg, &mediaCfg} {
		if err := env.Parse(cfg); err != nil {
			sugar.Fatalf("Cannot parse env config: %v", err)
		}
	}

	store, err := openStore(sugar, storageCfg)
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	provider, err := media.NewCloudinary(sugar, mediaCfg)
	if err != nil {
		sugar.Fatalf("Cannot create Cloudinary client: %v", err)
	}
	images := media.NewStore(sugar, provider, mediaCfg.MaxSide)

	authService := auth.NewService(sugar, authCfg, store, mail.NewNotifier(newSender(sugar, mailCfg)), images)
	conversations := conversation.NewService(sugar, store)
	products := product.NewService(sugar, store, images)

	hub := realtime.NewHub()
	socket := realtime.NewHandler(sugar, authService, conversations, hub,
		realtime.AllowedOrigins(serverCfg.AllowedOrigins),
	)

	serverOpts := []server.Option{
		server.WithEnvConfig(serverCfg),
		server.RegisterAfterShutdown(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(ctx); err != nil {
				sugar.Errorf("Closing store: %v", err)
			}
		}),
	}

	srv := server.NewServer(sugar, server.Services{
		Auth:          authService,
		Conversations: conversations,
		Products:      products,
		Registry:      hub,
		Realtime:      socket,
	}, serverOpts...)

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
