package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/genieacs-gateway/internal/config"
	"github.com/John-Robertt/genieacs-gateway/internal/genieacs"
	"github.com/John-Robertt/genieacs-gateway/internal/httpapi"
	"github.com/John-Robertt/genieacs-gateway/internal/logging"
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "genieacs-gateway",
		Short:         "HTTP facade over the GenieACS NBI with friendly parameter names",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (optional; env overrides it)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newExtractCmd(&configPath))
	root.AddCommand(newHealthcheckCmd(&configPath))
	return root
}

type serveFlags struct {
	listen      string
	upstreamURL string
	mappingFile string
	logLevel    string
}

func newServeCmd(configPath *string) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("listen") {
				cfg.Listen = f.listen
			}
			if fl.Changed("genieacs-url") {
				cfg.GenieACS.URL = f.upstreamURL
			}
			if fl.Changed("mapping") {
				cfg.MappingFile = f.mappingFile
			}
			if fl.Changed("log-level") {
				cfg.Logging.Level = config.NormalizeLevel(f.logLevel)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&f.upstreamURL, "genieacs-url", "", "GenieACS NBI base URL (overrides GENIEACS_URL)")
	cmd.Flags().StringVar(&f.mappingFile, "mapping", "", "parameter dictionary file (overrides MAPPING_FILE)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(logging.Options{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// A gateway without its dictionary would answer every extraction with {}.
	dict, err := mapping.Load(cfg.MappingFile)
	if err != nil {
		log.Error("failed to load parameter dictionary", zap.String("file", cfg.MappingFile), zap.Error(err))
		return err
	}
	log.Info("parameter dictionary loaded",
		zap.String("file", cfg.MappingFile),
		zap.Int("entries", dict.Len()),
		zap.Int("names", len(dict.Names())))

	client, err := genieacs.New(cfg.GenieACS.URL, genieacs.Options{
		Timeout:  cfg.GetRequestTimeout(),
		MaxBytes: cfg.GenieACS.MaxResponseBytes,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: httpapi.NewHandler(client, dict, httpapi.Options{
			Logger:           log,
			BatchConcurrency: cfg.Server.BatchConcurrency,
			MaxBatchSize:     cfg.Server.MaxBatchSize,
		}),
		ReadHeaderTimeout: cfg.GetReadHeaderTimeout(),
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.Info("listening",
		zap.String("addr", "http://"+ln.Addr().String()),
		zap.String("genieacs", client.BaseURL()))

	return serve(ctx, srv, ln, cfg.GetShutdownTimeout(), log)
}

// serve runs srv on ln until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
