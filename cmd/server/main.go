package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tabscribe/internal/app"
	"tabscribe/internal/config"
	"tabscribe/internal/export"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/pipeline"
	"tabscribe/internal/storage"
)

var log = logging.L("main")

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tabscribe",
	Short: "Session capture, transcription and analysis server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if it exists (ignore error if file doesn't exist)
		if err := godotenv.Load(); err != nil {
			log.Debug("no .env file found, using environment variables")
		}
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tabscribe %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Transcribe and analyze one audio file, then print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return processFile(cmd.Context(), cfg, args[0], format)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("format", "f", "record", "Output: record (raw JSON), markdown, json or yaml")

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	app.Version = version
	return cfg, nil
}

func serve(cfg *config.Config) error {
	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).WithField("version", version).Info("tabscribe running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			a.Close(context.Background())
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	a.Close(shutdownCtx)
	return nil
}

func processFile(ctx context.Context, cfg *config.Config, path, format string) error {
	// stdout carries the result.
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	// The CLI never records, so no ffmpeg host is needed.
	cfg.CaptureMode = "remote"
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	asset, err := storage.ReadAsset(f, path, "", cfg.MaxAssetBytes)
	_ = f.Close()
	if err != nil {
		return err
	}

	res, err := a.Process(ctx, asset, pipeline.Meta{Source: model.SourceUpload})
	if err != nil {
		return err
	}

	if format == "record" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Record)
	}
	normalized := a.Normalizer.Normalize(ctx, res.Record.Analysis, res.Record.Transcript, res.Record.Transcript.Language)
	normalized.RecordID = res.RecordID
	normalized.CreatedAt = res.Record.CreatedAt
	doc, err := export.Render(normalized, format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(doc.Body)
	return err
}
