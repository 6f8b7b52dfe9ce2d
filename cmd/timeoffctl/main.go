package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timeoff-scheduler-backend/config"
	"timeoff-scheduler-backend/internal/logging"
	"timeoff-scheduler-backend/internal/syncer"
)

// App holds what every command needs.
type App struct {
	cfg         *config.Config
	client      *syncer.Client
	coordinator *syncer.Coordinator
	logger      *zap.Logger
}

var (
	configPath string
	baseURL    string
	adminToken string
	verbose    bool
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "timeoffctl",
		Short:         "Inspect and manage staff time-off",
		Long:          `A command line client for the time-off scheduler: browse monthly availability, submit requests and make admin decisions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				app.coordinator.Close()
				app.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Server base URL (overrides sync.base_url)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", "", "Admin token for approve, reject and set-limit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log fetch states and retries")

	rootCmd.AddCommand(monthCmd())
	rootCmd.AddCommand(dateCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(rejectCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(setLimitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initApp loads configuration and builds the client and coordinator. A
// missing config file falls back to defaults.
func initApp() error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return fmt.Errorf("failed to load config: %w", err)
	}

	if baseURL != "" {
		cfg.Sync.BaseURL = baseURL
	}
	if adminToken == "" {
		adminToken = cfg.Server.AdminToken
	}

	cfg.Log.Level = "warn"
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	client := syncer.NewClient(cfg.Sync.BaseURL, cfg.Sync.RequestTimeout, syncer.WithAdminToken(adminToken))
	coordinator := syncer.NewCoordinator(client,
		syncer.WithRetryPolicy(syncer.RetryPolicy{
			MaxAttempts: cfg.Sync.MaxAttempts,
			BaseDelay:   cfg.Sync.BaseDelay,
			MaxDelay:    cfg.Sync.MaxDelay,
		}),
		syncer.WithSettleDelay(cfg.Sync.SettleDelay),
		syncer.WithLogger(logger),
		syncer.WithStateHook(func(s syncer.State) {
			logger.Debug("sync state", zap.String("state", string(s)))
		}),
	)

	app = &App{cfg: cfg, client: client, coordinator: coordinator, logger: logger}
	logger.Debug("client ready", zap.String("base_url", cfg.Sync.BaseURL))
	return nil
}
