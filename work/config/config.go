package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"streamkey-relay/work/logger"
)

// DefaultUpstreamURL is the Streamlabs endpoint that starts a TikTok stream.
const DefaultUpstreamURL = "https://streamlabs.com/api/v5/slobs/tiktok/stream/start"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RELAY_"

var log = logger.New("config")

// Config holds all application configuration values for the relay server.
type Config struct {
	ListenAddr            string        `json:"listenAddr"            env:"LISTEN_ADDR"`             // host:port the HTTP server binds
	DataDir               string        `json:"dataDir"               env:"DATA_DIR"`                // directory holding the JSON stores
	StaticDir             string        `json:"staticDir"             env:"STATIC_DIR"`              // serve the UI from disk instead of the embedded copy
	UpstreamURL           string        `json:"upstreamURL"           env:"UPSTREAM_URL"`            // start-stream endpoint
	UserAgent             string        `json:"userAgent"             env:"USER_AGENT"`              // User-Agent for upstream requests
	RequestTimeout        time.Duration `json:"requestTimeout"        env:"REQUEST_TIMEOUT"`         // 0 keeps the HTTP client default
	UpstreamRateLimit     int           `json:"upstreamRateLimit"     env:"UPSTREAM_RATE_LIMIT"`     // requests per minute, 0 = unlimited
	MaxConcurrentRequests int           `json:"maxConcurrentRequests" env:"MAX_CONCURRENT_REQUESTS"` // in-flight upstream calls
	LogRetention          int           `json:"logRetention"          env:"LOG_RETENTION"`           // activity entries kept on disk
	RecentLogs            int           `json:"recentLogs"            env:"RECENT_LOGS"`             // entries returned by default
	LogLevel              string        `json:"logLevel"              env:"LOG_LEVEL"`
	LogJSON               bool          `json:"logJSON"               env:"LOG_JSON"`
	LogFile               string        `json:"logFile"               env:"LOG_FILE"`
	Debug                 bool          `json:"debug"                 env:"DEBUG"`
	ObfuscateSecrets      bool          `json:"obfuscateSecrets"      env:"OBFUSCATE_SECRETS"`
	MetricsEnabled        bool          `json:"metricsEnabled"        env:"METRICS_ENABLED"`
}

// ConfigFile represents the JSON file structure. Durations are strings
// such as "30s" and are parsed into time.Duration.
type ConfigFile struct {
	ListenAddr            string `json:"listenAddr"`
	DataDir               string `json:"dataDir"`
	StaticDir             string `json:"staticDir"`
	UpstreamURL           string `json:"upstreamURL"`
	UserAgent             string `json:"userAgent"`
	RequestTimeout        string `json:"requestTimeout"`
	UpstreamRateLimit     *int   `json:"upstreamRateLimit"`
	MaxConcurrentRequests *int   `json:"maxConcurrentRequests"`
	LogRetention          *int   `json:"logRetention"`
	RecentLogs            *int   `json:"recentLogs"`
	LogLevel              string `json:"logLevel"`
	LogJSON               *bool  `json:"logJSON"`
	LogFile               string `json:"logFile"`
	Debug                 *bool  `json:"debug"`
	ObfuscateSecrets      *bool  `json:"obfuscateSecrets"`
	MetricsEnabled        *bool  `json:"metricsEnabled"`
}

// Load builds the configuration from defaults, the optional JSON file at
// path, any .env file next to it or in the working directory, and RELAY_*
// environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			log.Warn("{config - Load} config file %s not found, using defaults", path)
		} else {
			log.Info("{config - Load} loaded config from %s", path)
		}
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	// PORT is honoured the way the original deployment scripts set it.
	if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	validateAndSetDefaults(cfg)
	return cfg, nil
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ListenAddr:            ":3000",
		DataDir:               "data",
		UpstreamURL:           DefaultUpstreamURL,
		UserAgent:             "streamkey-relay",
		RequestTimeout:        0,
		UpstreamRateLimit:     0,
		MaxConcurrentRequests: 4,
		LogRetention:          100,
		RecentLogs:            20,
		LogLevel:              "INFO",
		ObfuscateSecrets:      true,
		MetricsEnabled:        true,
	}
}

// loadFromFile reads the JSON config file and overlays it onto cfg.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cf ConfigFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&cf, cfg)
}

// convertFromFile copies the set fields of cf onto cfg, parsing duration strings.
func convertFromFile(cf *ConfigFile, cfg *Config) error {
	setString(&cfg.ListenAddr, cf.ListenAddr)
	setString(&cfg.DataDir, cf.DataDir)
	setString(&cfg.StaticDir, cf.StaticDir)
	setString(&cfg.UpstreamURL, cf.UpstreamURL)
	setString(&cfg.UserAgent, cf.UserAgent)
	setString(&cfg.LogLevel, cf.LogLevel)
	setString(&cfg.LogFile, cf.LogFile)

	setInt(&cfg.UpstreamRateLimit, cf.UpstreamRateLimit)
	setInt(&cfg.MaxConcurrentRequests, cf.MaxConcurrentRequests)
	setInt(&cfg.LogRetention, cf.LogRetention)
	setInt(&cfg.RecentLogs, cf.RecentLogs)

	setBool(&cfg.LogJSON, cf.LogJSON)
	setBool(&cfg.Debug, cf.Debug)
	setBool(&cfg.ObfuscateSecrets, cf.ObfuscateSecrets)
	setBool(&cfg.MetricsEnabled, cf.MetricsEnabled)

	if cf.RequestTimeout != "" {
		d, err := time.ParseDuration(cf.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid requestTimeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

// loadDotEnv loads .env files without overriding variables already present
// in the process environment.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}

	var files []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err == nil {
			files = append(files, abs)
		}
	}
	if len(files) == 0 {
		return nil
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	log.Debug("{config - loadDotEnv} loaded %s", strings.Join(files, ", "))
	return nil
}

// validateAndSetDefaults clamps values that would make the service unusable.
func validateAndSetDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = DefaultUpstreamURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "streamkey-relay"
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = 0
	}
	if cfg.UpstreamRateLimit < 0 {
		cfg.UpstreamRateLimit = 0
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 4
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = 100
	}
	if cfg.RecentLogs <= 0 {
		cfg.RecentLogs = 20
	}
	if cfg.RecentLogs > cfg.LogRetention {
		cfg.RecentLogs = cfg.LogRetention
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}
}

// CredentialsPath is the bearer token store location.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.DataDir, "bearer-tokens.json")
}

// ActivityPath is the stream log store location.
func (c *Config) ActivityPath() string {
	return filepath.Join(c.DataDir, "stream-logs.json")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
