package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tutorhub/internal/app"
	"tutorhub/internal/config"
	"tutorhub/internal/logger"
)

var (
	configFlag string
	portFlag   int
	dbFlag     string
	debugFlag  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tutorhub",
		Short: "Real-time help routing for students and tutors",
	}
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tutorhub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if portFlag != 0 {
				cfg.HTTP.Port = portFlag
			}
			if dbFlag != "" {
				cfg.Database.Path = dbFlag
			}
			if debugFlag {
				cfg.Debug = true
			}

			handler := logger.Init(cfg.Debug)
			defer func() { _ = handler.Close() }()

			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to JSON configuration file")
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Listen port (overrides configuration)")
	cmd.Flags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides configuration)")
	return cmd
}

// loadConfig applies precedence: file overrides env, flags override both.
func loadConfig() (*config.Config, error) {
	path := configFlag
	if path == "" {
		path = os.Getenv("TUTORHUB_CONFIG_FILE")
	}
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}
	return config.LoadFromEnv(), nil
}

func run(cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case <-signalCh:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return application.Stop(shutdownCtx)
	}
}
