package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the twin gateway.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Identity IdentityConfig `yaml:"identity"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Presets  PresetsConfig  `yaml:"presets"`
}

// ServerConfig controls the HTTP, gRPC health and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// ModelConfig configures the generative model provider.
type ModelConfig struct {
	Name                 string        `yaml:"name"`
	APIKey               string        `yaml:"apiKey"`
	BaseURL              string        `yaml:"baseURL"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"maxRetries"`
	RetryInitialInterval time.Duration `yaml:"retryInitialInterval"`
}

// IdentityConfig configures bearer-token verification.
type IdentityConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
	ProjectID       string `yaml:"projectID"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls prediction caching. An empty Addr selects the in-process cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	TLS           bool          `yaml:"tls"`
	PredictionTTL time.Duration `yaml:"predictionTTL"`
}

// HistoryConfig controls persistence of completed analyses.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertsConfig controls MQTT fan-out of warning and critical predictions.
type AlertsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"clientID"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
	QueueSize int    `yaml:"queueSize"`
}

// PresetsConfig points at the battery preset catalog.
type PresetsConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from defaults, an optional YAML file, an optional .env file and
// environment overrides, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("TWIN_GATEWAY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate reports settings without which the gateway must not start.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Model.APIKey) == "" {
		problems = append(problems, "model API key is not set (API_KEY or TWIN_GATEWAY_MODEL_API_KEY)")
	}
	if strings.TrimSpace(c.Identity.CredentialsFile) == "" {
		problems = append(problems, "identity credentials file is not set (GOOGLE_APPLICATION_CREDENTIALS or TWIN_GATEWAY_IDENTITY_CREDENTIALS)")
	} else if _, err := os.Stat(c.Identity.CredentialsFile); err != nil {
		problems = append(problems, fmt.Sprintf("identity credentials file unreadable: %v", err))
	}
	if c.Model.MaxRetries < 0 {
		problems = append(problems, "model maxRetries must not be negative")
	}
	if c.History.Enabled && c.History.Path == "" {
		problems = append(problems, "history is enabled but history.path is empty")
	}
	if c.Alerts.Enabled && c.Alerts.Broker == "" {
		problems = append(problems, "alerts are enabled but alerts.broker is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":3001",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Model: ModelConfig{
			Name:                 "gemini-2.5-flash",
			Timeout:              30 * time.Second,
			MaxRetries:           0,
			RetryInitialInterval: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:       false,
			DialTimeout:   2 * time.Second,
			ReadTimeout:   500 * time.Millisecond,
			WriteTimeout:  500 * time.Millisecond,
			MaxRetries:    2,
			PredictionTTL: 10 * time.Minute,
		},
		History: HistoryConfig{Enabled: false, Path: "data/analyses.db"},
		Alerts: AlertsConfig{
			Enabled:   false,
			ClientID:  "twin-gateway",
			Topic:     "ev/battery/alerts/{alert_level}",
			QoS:       1,
			QueueSize: 64,
		},
		Presets: PresetsConfig{Path: "configs/presets.yaml"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("TWIN_GATEWAY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v, ok := os.LookupEnv("TWIN_GATEWAY_GRPC_ADDRESS"); ok {
		cfg.Server.GRPCAddress = v
	}
	if v, ok := os.LookupEnv("TWIN_GATEWAY_METRICS_ADDRESS"); ok {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TWIN_GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("TWIN_GATEWAY_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("TWIN_GATEWAY_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("TWIN_GATEWAY_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("TWIN_GATEWAY_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.Timeout = d
		}
	}
	if v := os.Getenv("TWIN_GATEWAY_MODEL_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxRetries = n
		}
	}

	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Identity.CredentialsFile = v
	}
	if v := os.Getenv("TWIN_GATEWAY_IDENTITY_CREDENTIALS"); v != "" {
		cfg.Identity.CredentialsFile = v
	}
	if v := os.Getenv("TWIN_GATEWAY_IDENTITY_PROJECT_ID"); v != "" {
		cfg.Identity.ProjectID = v
	}

	if v := os.Getenv("TWIN_GATEWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TWIN_GATEWAY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("TWIN_GATEWAY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_TLS"); v != "" {
		cfg.Cache.TLS = parseBool(v)
	}
	if v := os.Getenv("TWIN_GATEWAY_CACHE_PREDICTION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.PredictionTTL = d
		}
	}

	if v := os.Getenv("TWIN_GATEWAY_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = parseBool(v)
	}
	if v := os.Getenv("TWIN_GATEWAY_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	if v := os.Getenv("TWIN_GATEWAY_ALERTS_ENABLED"); v != "" {
		cfg.Alerts.Enabled = parseBool(v)
	}
	if v := os.Getenv("TWIN_GATEWAY_ALERTS_BROKER"); v != "" {
		cfg.Alerts.Broker = v
	}
	if v := os.Getenv("TWIN_GATEWAY_ALERTS_USERNAME"); v != "" {
		cfg.Alerts.Username = v
	}
	if v := os.Getenv("TWIN_GATEWAY_ALERTS_PASSWORD"); v != "" {
		cfg.Alerts.Password = v
	}
	if v := os.Getenv("TWIN_GATEWAY_ALERTS_TOPIC"); v != "" {
		cfg.Alerts.Topic = v
	}

	if v := os.Getenv("TWIN_GATEWAY_PRESETS_PATH"); v != "" {
		cfg.Presets.Path = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
