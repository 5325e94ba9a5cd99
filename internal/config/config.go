package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv  string        `mapstructure:"app_env"`
	Server  ServerConfig  `mapstructure:"server"`
	Data    DataConfig    `mapstructure:"data"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

type DataConfig struct {
	AnomaliesCSVPath string `mapstructure:"anomalies_csv_path"`
}

// LLMConfig selects the provider and carries credentials for each backend.
// Provider is one of "azure", "openai" or "ollama".
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Azure             AzureConfig   `mapstructure:"azure"`
	OpenAI            OpenAIConfig  `mapstructure:"openai"`
	Ollama            OllamaConfig  `mapstructure:"ollama"`
}

type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	APIVersion string `mapstructure:"api_version"`
	Deployment string `mapstructure:"deployment"`
}

type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	APIEndpoint string `mapstructure:"endpoint"`
	Model       string `mapstructure:"model"`
}

type OllamaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var defaults = map[string]any{
	"app_env":                 "dev",
	"server.port":             "8000",
	"server.host":             "0.0.0.0",
	"server.read_timeout":     "30s",
	"server.write_timeout":    "120s",
	"server.request_timeout":  "110s",
	"server.cors_origins":     []string{"*"},
	"data.anomalies_csv_path": "backend/data/Synthetic Accounting Financial Dataset.csv",
	"llm.provider":            "azure",
	"llm.max_attempts":        3,
	"llm.requests_per_second": 0,
	"llm.timeout":             "30s",
	"llm.azure.api_version":   "2024-02-15-preview",
	"llm.openai.endpoint":     "https://api.openai.com/v1",
	"llm.openai.model":        "gpt-4o-mini",
	"llm.ollama.base_url":     "http://localhost:11434",
	"llm.ollama.model":        "llama3.1",
	"llm.ollama.timeout":      "30s",
	"logging.level":           "info",
	"logging.format":          "console",
	"tracing.enabled":         false,
}

// envBindings keeps the variable names the service has always been deployed with.
var envBindings = map[string]string{
	"app_env":                 "APP_ENV",
	"server.port":             "SERVER_PORT",
	"server.host":             "SERVER_HOST",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.request_timeout":  "SERVER_REQUEST_TIMEOUT",
	"server.cors_origins":     "CORS_ORIGINS",
	"data.anomalies_csv_path": "ANOMALIES_CSV_PATH",
	"llm.provider":            "LLM_PROVIDER",
	"llm.max_attempts":        "LLM_MAX_ATTEMPTS",
	"llm.requests_per_second": "LLM_REQUESTS_PER_SECOND",
	"llm.timeout":             "LLM_TIMEOUT",
	"llm.azure.endpoint":      "AZURE_OPENAI_ENDPOINT",
	"llm.azure.api_key":       "AZURE_OPENAI_API_KEY",
	"llm.azure.api_version":   "AZURE_OPENAI_API_VERSION",
	"llm.azure.deployment":    "AZURE_OPENAI_DEPLOYMENT",
	"llm.openai.api_key":      "OPENAI_API_KEY",
	"llm.openai.endpoint":     "OPENAI_ENDPOINT",
	"llm.openai.model":        "OPENAI_MODEL",
	"llm.ollama.base_url":     "OLLAMA_BASE_URL",
	"llm.ollama.model":        "OLLAMA_MODEL",
	"llm.ollama.timeout":      "OLLAMA_TIMEOUT",
	"auth.api_key":            "API_KEY",
	"logging.level":           "LOG_LEVEL",
	"logging.format":          "LOG_FORMAT",
	"tracing.enabled":         "TRACING_ENABLED",
}

// flagBindings maps command-line flags onto config keys.
var flagBindings = map[string]string{
	"logging.level":  "log-level",
	"logging.format": "log-format",
	"server.port":    "port",
	"llm.provider":   "provider",
}

// LoadConfig reads .env, an optional config file, the environment and any
// bound flags, in increasing order of precedence.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, relying on the process environment")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("auditai")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded successfully", "env", cfg.AppEnv, "llm_provider", cfg.LLM.Provider)
	return &cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm.requests_per_second must not be negative")
	}
	if c.Server.Port == "" {
		return errors.New("server.port must be set")
	}
	return nil
}
