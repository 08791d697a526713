package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/app"
	"github.com/ibeckermayer/ytfilter/internal/auth"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/logging"
	"github.com/ibeckermayer/ytfilter/internal/tray"
)

func main() {
	path, err := config.ConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	// Load or create configuration
	cfg, err := config.LoadFrom(path)
	created := false
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "invalid config %s: %v\n", path, err)
			os.Exit(1)
		}
		cfg = config.Default()
		created = cfg.SaveTo(path) == nil
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if created {
		logger.Info("created default config", zap.String("path", path))
	}

	cookieStorePath, err := auth.DefaultCookieStorePath()
	if err != nil {
		logger.Fatal("failed to get cookie store path", zap.Error(err))
	}
	authManager := auth.NewManager(auth.NewCookieStore(cookieStorePath), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{
		ConfigPath: path,
		Auth:       authManager,
		Live:       true,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	// Run systray (blocks until Quit)
	systray.Run(tray.OnReady(ctx, a, logger), tray.OnExit(logger))
}
