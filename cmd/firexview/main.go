package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"firexview/cli/internal/application"
	"firexview/cli/internal/command"
	"firexview/cli/internal/config"
	"firexview/cli/internal/global"
	"firexview/cli/internal/graph"
	"firexview/cli/internal/logging"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: loadConfig,
		Watch: func(ctx context.Context, cfg config.Config) error {
			a, err := startApplication(ctx, cfg)
			if err != nil {
				return err
			}
			return a.Watch(ctx, 0)
		},
		Tree: func(ctx context.Context, cfg config.Config, root string) ([]graph.Task, error) {
			a, err := startApplication(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return a.Tree(ctx, root)
		},
		Search: func(ctx context.Context, cfg config.Config, term string) ([]graph.Task, error) {
			a, err := startApplication(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return a.Search(ctx, term)
		},
		Revoke: func(ctx context.Context, cfg config.Config, uuid string) (json.RawMessage, error) {
			a, err := startApplication(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return a.Revoke(ctx, uuid)
		},
	})
	app.Version = version

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Level: "error", Writer: os.Stderr, Component: "firexview"}).Error("firexview failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig layers env over the settings file. A broken settings file is
// logged and skipped.
func loadConfig() config.Config {
	return config.LoadConfigWithDefaults(settingsDefaults())
}

func settingsDefaults() config.Defaults {
	logger := logging.NewLogger(logging.Options{Level: os.Getenv("FIREXVIEW_LOG_LEVEL"), Writer: os.Stderr, Component: "firexview"})
	dir, err := global.DefaultConfigDir()
	if err != nil {
		logger.Warn("resolve config dir failed", "err", err)
		return config.Defaults{}
	}
	settings, err := global.NewSettingsStore(dir).LoadOrInit()
	if err != nil {
		logger.Warn("load settings failed", "dir", dir, "err", err)
		return config.Defaults{}
	}
	return config.Defaults{
		ServerURL:       settings.ServerURL,
		APIBackend:      settings.APIBackend,
		FindUncollapsed: settings.Search.FindUncollapsedAncestor,
	}
}

func startApplication(ctx context.Context, cfg config.Config) (*application.Application, error) {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Writer: os.Stderr, Component: "firexview"})
	logger.Debug("starting", "version", version, "server", cfg.ServerURL, "backend", cfg.APIBackend)
	return application.StartApplication(ctx, application.StartOptions{Config: cfg, Logger: logger})
}
