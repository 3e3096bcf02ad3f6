package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Sepay    SepayConfig
	Alerts   AlertsConfig
	Gemini   GeminiConfig
	Sheets   SheetsConfig
}

// AppConfig holds deployment mode settings.
type AppConfig struct {
	Env string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	URL string
}

// SepayConfig holds bank aggregator API and webhook settings.
type SepayConfig struct {
	APIKey               string        `mapstructure:"api_key"`
	WebhookSecret        string        `mapstructure:"webhook_secret"`
	BaseURL              string        `mapstructure:"base_url"`
	SignatureHeader      string        `mapstructure:"signature_header"`
	TimestampHeader      string        `mapstructure:"timestamp_header"`
	TimestampTolerance   time.Duration `mapstructure:"timestamp_tolerance"`
	AllowFallbackAccount bool          `mapstructure:"allow_fallback_account"`
}

// AlertsConfig holds anomaly thresholds.
type AlertsConfig struct {
	LargeTransactionAmount     float64 `mapstructure:"large_transaction_amount"`
	LargeTransactionMultiplier float64 `mapstructure:"large_transaction_multiplier"`
	CategorySpikePercent       float64 `mapstructure:"category_spike_percent"`
}

// GeminiConfig holds AI provider settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string
}

// SheetsConfig holds the Google Sheets import source.
type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	APIKey        string `mapstructure:"api_key"`
	Range         string
}

// IsProduction reports whether strict production behaviour is enabled.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Load reads configuration from an optional file and the environment.
// Keys map to env vars by upper-casing and replacing "." with "_" (sepay.webhook_secret -> SEPAY_WEBHOOK_SECRET).
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("app.env", "development")
	v.SetDefault("server.port", "3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("sepay.api_key", "")
	v.SetDefault("sepay.webhook_secret", "")
	v.SetDefault("sepay.base_url", "https://my.sepay.vn/userapi")
	v.SetDefault("sepay.signature_header", "x-sepay-signature")
	v.SetDefault("sepay.timestamp_header", "x-sepay-timestamp")
	v.SetDefault("sepay.timestamp_tolerance", 5*time.Minute)
	v.SetDefault("sepay.allow_fallback_account", false)
	v.SetDefault("alerts.large_transaction_amount", 5000000)
	v.SetDefault("alerts.large_transaction_multiplier", 3)
	v.SetDefault("alerts.category_spike_percent", 150)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.api_key", "")
	v.SetDefault("sheets.range", "Sheet1!A1:J1000")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by existing deployments.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("app.env", "APP_ENV", "GO_ENV")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
