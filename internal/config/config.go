package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"stocktrader/internal/model"
)

// AIConfig is the AI provider settings sent along with every analysis
// request. The wire names match the analysis service.
type AIConfig struct {
	APIKey      string  `json:"api_key" mapstructure:"ai_api_key" validate:"required"`
	BaseURL     string  `json:"base_url" mapstructure:"ai_base_url" validate:"required,url"`
	ModelName   string  `json:"model_name" mapstructure:"ai_model_name" validate:"required"`
	Temperature float64 `json:"temperature" mapstructure:"ai_temperature" validate:"gte=0,lte=2"`
}

// Config holds all configuration for the orchestrator.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RetryCount     int           `mapstructure:"retry_count" validate:"gte=0"`

	// CachePath is the SQLite file holding fetched histories; empty keeps
	// them in memory.
	CachePath     string        `mapstructure:"cache_path"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	ProgressGrace time.Duration `mapstructure:"progress_grace" validate:"gte=0"`

	// Requests per second per backend endpoint; zero keeps the built-in pace
	HistoryRate    float64 `mapstructure:"history_rate" validate:"gte=0"`
	BasicRate      float64 `mapstructure:"basic_rate" validate:"gte=0"`
	AnalysisRate   float64 `mapstructure:"analysis_rate" validate:"gte=0"`
	ConnectionRate float64 `mapstructure:"connection_rate" validate:"gte=0"`

	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	AI AIConfig `mapstructure:",squash" validate:"-"`

	// Inputs for the smoke-test run in main
	Symbol   string         `mapstructure:"symbol"`
	Market   string         `mapstructure:"market" validate:"oneof=cn hk us other"`
	Strategy model.Strategy `mapstructure:",squash"`
}

var validate = validator.New()

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Expected environment variables:
//   - API_BASE_URL (optional, defaults to the local backend)
//   - REQUEST_TIMEOUT, RETRY_COUNT (optional)
//   - CACHE_PATH, CACHE_TTL, PROGRESS_GRACE (optional)
//   - HISTORY_RATE, BASIC_RATE, ANALYSIS_RATE, CONNECTION_RATE (optional)
//   - LOG_LEVEL, METRICS_ADDR (optional)
//   - AI_API_KEY, AI_BASE_URL, AI_MODEL_NAME, AI_TEMPERATURE
//   - SYMBOL, MARKET, RISK_PREFERENCE, TREND_SENSITIVITY, BIAS
//
// The AI settings are not required here; they are checked when an analysis
// or connection test runs.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	strategy := model.DefaultStrategy()
	v.SetDefault("api_base_url", "http://localhost:8000/api/v1")
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("retry_count", 0)
	v.SetDefault("cache_path", "")
	v.SetDefault("cache_ttl", "168h")
	v.SetDefault("progress_grace", "1.5s")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("ai_temperature", 0.1)
	v.SetDefault("market", "cn")
	v.SetDefault("risk_preference", strategy.RiskPreference)
	v.SetDefault("trend_sensitivity", strategy.TrendSensitivity)
	v.SetDefault("bias", strategy.Bias)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.stocktrader")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	for _, key := range []string{
		"api_base_url", "request_timeout", "retry_count",
		"cache_path", "cache_ttl", "progress_grace",
		"history_rate", "basic_rate", "analysis_rate", "connection_rate",
		"log_level", "metrics_addr",
		"ai_api_key", "ai_base_url", "ai_model_name", "ai_temperature",
		"symbol", "market", "risk_preference", "trend_sensitivity", "bias",
	} {
		v.BindEnv(key, strings.ToUpper(key))
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.LogLevel = strings.ToLower(config.LogLevel)
	config.Market = strings.ToLower(config.Market)

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %s", describe(err))
	}

	return config, nil
}

// Validate reports missing or malformed AI settings in words fit
// for the user.
func (c AIConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.New(describe(err))
	}
	return nil
}

// ValidateStrategy rejects strategy values outside their enums. Empty fields
// are allowed and take their defaults.
func ValidateStrategy(s model.Strategy) error {
	if err := validate.Struct(s); err != nil {
		return errors.New(describe(err))
	}
	return nil
}

var fieldNames = map[string]string{
	"APIKey":           "AI API key",
	"BaseURL":          "AI base URL",
	"ModelName":        "AI model name",
	"Temperature":      "AI temperature",
	"APIBaseURL":       "api_base_url",
	"RequestTimeout":   "request_timeout",
	"RetryCount":       "retry_count",
	"CacheTTL":         "cache_ttl",
	"ProgressGrace":    "progress_grace",
	"HistoryRate":      "history_rate",
	"BasicRate":        "basic_rate",
	"AnalysisRate":     "analysis_rate",
	"ConnectionRate":   "connection_rate",
	"LogLevel":         "log_level",
	"Market":           "market",
	"RiskPreference":   "risk preference",
	"TrendSensitivity": "trend sensitivity",
	"Bias":             "bias",
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name, ok := fieldNames[fe.Field()]
		if !ok {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is not configured")
		case "url":
			msgs = append(msgs, name+" must be an absolute URL")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s, got %q", name, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is out of range (%s=%s)", name, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, ", ")
}
