package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/api"
	"github.com/newthinker/comps/internal/app"
	"github.com/newthinker/comps/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the comps API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if cfg.Log.Level != "" || cfg.Log.Encoding != "" {
		if configured, err := logger.Build(cfg.Log, debug); err == nil {
			log = configured
			defer log.Sync()
		} else {
			log.Warn("ignoring log config", zap.Error(err))
		}
	}
	if err := cfg.RequireFinnhubKey(); err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	log.Info("starting comps server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		JobTTL:      time.Duration(cfg.Server.JobTTLHours) * time.Hour,
		MaxJobs:     cfg.Server.MaxJobs,
		MetricsPath: metricsPath,
	}, a, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go server.PruneJobs(ctx, time.Minute)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down comps server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
