package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from an optional YAML file
// and are overridden by environment variables of the same (upper-cased) name.
type Config struct {
	Port               string `mapstructure:"port" validate:"required,numeric"`
	OpenAIKey          string `mapstructure:"openai_api_key"`
	OpenAIBaseURL      string `mapstructure:"openai_base_url" validate:"omitempty,url"`
	AnalysisModel      string `mapstructure:"analysis_model" validate:"required"`
	TranscriptionModel string `mapstructure:"transcription_model" validate:"required"`
	STTProvider        string `mapstructure:"stt_provider" validate:"oneof=openai google"`
	GoogleProjectID    string `mapstructure:"google_stt_project_id"`
	GoogleKey          string `mapstructure:"google_stt_key_file"`
	GoogleLanguage     string `mapstructure:"google_stt_language" validate:"required"`
	DatabaseURL        string `mapstructure:"database_url"`
	LocalStoreDir      string `mapstructure:"local_store_dir"`
	TargetLanguage     string `mapstructure:"target_language" validate:"required"`
	ASCIIPlaceholder   string `mapstructure:"ascii_placeholder" validate:"required,printascii"`
	MaxAssetBytes      int64  `mapstructure:"max_asset_bytes" validate:"gt=0"`
	LogLevel           string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat          string `mapstructure:"log_format" validate:"oneof=text json"`
	Workers            int    `mapstructure:"workers" validate:"gte=1,lte=64"`
	QueueSize          int    `mapstructure:"queue_size" validate:"gte=1"`
	ExportS3Bucket     string `mapstructure:"export_s3_bucket"`
	ExportS3Region     string `mapstructure:"export_s3_region" validate:"required_with=ExportS3Bucket"`
	ExportS3AccessKey  string `mapstructure:"export_s3_access_key_id"`
	ExportS3SecretKey  string `mapstructure:"export_s3_secret_access_key" validate:"required_with=ExportS3AccessKey"`
	ExportS3Token      string `mapstructure:"export_s3_session_token"`
	FFmpegPath         string `mapstructure:"ffmpeg_path" validate:"required"`
	CaptureDevice      string `mapstructure:"capture_device"`
	CaptureMode        string `mapstructure:"capture_mode" validate:"oneof=local remote"`

	// CaptureOrigins lists browser origins allowed to attach as the remote
	// capture page. Empty refuses every browser origin.
	CaptureOrigins []string `mapstructure:"capture_allowed_origins"`
}

var defaults = map[string]any{
	"port":                "8080",
	"openai_base_url":     "",
	"analysis_model":      "gpt-4o-mini",
	"transcription_model": "whisper-1",
	"stt_provider":        "openai",
	"google_stt_language": "en-US",
	"target_language":     "en",
	"ascii_placeholder":   "[non-ASCII text omitted]",
	"max_asset_bytes":     25 * 1024 * 1024,
	"log_level":           "info",
	"log_format":          "text",
	"workers":             2,
	"queue_size":          16,
	"ffmpeg_path":         "ffmpeg",
	"capture_mode":        "local",
}

var keys = []string{
	"port", "openai_api_key", "openai_base_url", "analysis_model", "transcription_model",
	"stt_provider", "google_stt_project_id", "google_stt_key_file", "google_stt_language", "database_url",
	"local_store_dir", "target_language", "ascii_placeholder", "max_asset_bytes",
	"log_level", "log_format", "workers", "queue_size", "export_s3_bucket",
	"export_s3_region", "export_s3_access_key_id", "export_s3_secret_access_key",
	"export_s3_session_token", "ffmpeg_path", "capture_device", "capture_mode",
	"capture_allowed_origins",
}

// Load reads configuration. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.STTProvider = strings.ToLower(strings.TrimSpace(cfg.STTProvider))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.CaptureMode = strings.ToLower(strings.TrimSpace(cfg.CaptureMode))
	cfg.CaptureOrigins = splitList(cfg.CaptureOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// OpenAI key is optional at startup; analysis and translation report
	// the missing credential when they are called.
	if c.STTProvider == "google" && c.GoogleKey == "" {
		return fmt.Errorf("GOOGLE_STT_KEY_FILE is required when STT_PROVIDER=google")
	}
	return nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
