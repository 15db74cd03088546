package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olliecrow/chapter_generator/internal/chapters"
	"github.com/olliecrow/chapter_generator/internal/config"
	"github.com/olliecrow/chapter_generator/internal/logger"
	"github.com/olliecrow/chapter_generator/internal/store"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	kv      store.Store
	state   *store.State
	client  *chapters.Client
	session *chapters.Session
}

// openApp wires the app and stores its logger on cmd's context.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(opts.logLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(opts.storage); v != "" {
		cfg.Storage.Driver = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageErrorf("invalid flags: %v", err)
	}
	if err := config.EnsureDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not ensure data dir: %v\n", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return nil, err
	}

	kv, err := openStore(cfg.Storage)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	log.Debug("state store opened", zap.String("driver", cfg.Storage.Driver))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithLogger(ctx, log))

	state := store.NewState(kv, log.Named("state"), cfg.History.MaxEntries)
	client := chapters.NewClient(cfg.Webhook.URL, cfg.Webhook.Timeout)
	engine := chapters.NewEngine(client, cfg.Quota.Policy(), cfg.History.MaxEntries)
	session := chapters.NewSession(engine, state, chapters.WithLogger(log.Named("session")))

	return &app{
		cfg:     cfg,
		logger:  log,
		kv:      kv,
		state:   state,
		client:  client,
		session: session,
	}, nil
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return store.NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	case config.DriverFile:
		return store.NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func (a *app) Close() error {
	err := a.kv.Close()
	// Sync on stderr returns EINVAL on some platforms.
	if syncErr := a.logger.Sync(); syncErr != nil && a.cfg.Logging.File != logger.Stderr {
		err = errors.Join(err, syncErr)
	}
	return err
}
