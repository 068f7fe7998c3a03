// Command caption-web serves the caption-studio API on a local HTTP server.
//
// Storage defaults to in-memory records and a local data directory; set
// --records dynamo and --blobs s3 (or the CAPTION_* variables) to run
// against AWS.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/caption-studio/internal/api"
	"github.com/fpang/caption-studio/internal/boot"
	"github.com/fpang/caption-studio/internal/config"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/logging"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "caption-web",
	Short: "Local web server for captioning image datasets",
	Long: `Caption Web serves the caption-studio JSON API. Upload images with
their .txt captions, edit captions, remove duplicates, renumber files and
download the dataset as a ZIP.

Examples:
  caption-web
  caption-web --addr :9090 --data-dir ./datasets
  caption-web --records dynamo --table captions --blobs s3 --bucket my-media`,
	SilenceUsage: true,
	RunE:         runMain,
}

func init() {
	logging.Init()

	var err error
	cfg, err = config.FromEnv(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid environment configuration")
	}
	cfg.BindStorageFlags(rootCmd.Flags())
	cfg.BindServerFlags(rootCmd.Flags())
	cfg.BindIngestFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	backends, err := boot.Open(ctx, &cfg)
	if err != nil {
		return err
	}
	if backends.AWS != nil {
		if err := boot.LoadOriginSecret(ctx, ssm.NewFromConfig(*backends.AWS), &cfg); err != nil {
			return err
		}
	}
	layout, err := export.ParseLayout(cfg.ExportLayout)
	if err != nil {
		return err
	}

	ws := boot.NewWorkspace(&cfg, backends)
	handler := api.New(ws, api.Options{
		OriginVerifySecret: cfg.OriginVerifySecret,
		ExportLayout:       layout,
		LocalCORS:          true,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: stop accepting requests, then write pending captions.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown incomplete")
		}
		if err := ws.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Pending caption saves failed")
		}
	}()

	boot.StartupLog("caption-web", initStart, &cfg).Config("addr", cfg.Addr).Log()
	fmt.Printf("\n  Caption Studio API: http://localhost%s/api/health\n\n", cfg.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-done
	return nil
}
