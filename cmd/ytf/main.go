// Command ytf is the ytfilter CLI: headless runs, scorer checks and
// maintenance of the stored counters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/app"
	"github.com/ibeckermayer/ytfilter/internal/auth"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ytf",
	Short:         "ytf - YouTube feed filter",
	Long:          `ytf scores YouTube feed items with a local model and hides the ones below your threshold.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the user config dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(botTestCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command starts from
type env struct {
	path   string
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	return &env{path: path, cfg: cfg, logger: logger}, nil
}

func (e *env) authManager() (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie store path: %w", err)
	}
	return auth.NewManager(auth.NewCookieStore(path), e.logger), nil
}

// withApp opens the App over the configured store, runs fn, and closes it
func withApp(cmd *cobra.Command, live bool, fn func(e *env, a *app.App) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	am, err := e.authManager()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), e.cfg, app.Options{
		ConfigPath: e.path,
		Auth:       am,
		Live:       live,
		Logger:     e.logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(e, a)
}
