package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level engine configuration, loaded from a JSON file with
// environment variable overrides for deployment secrets.
type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	AuthConfig       AuthConfig       `json:"auth"`
	VaultConfig      VaultConfig      `json:"vault"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	EngineConfig     EngineConfig     `json:"engine"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ServerConfig holds the HTTP API server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds quote cache settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	QuoteTTL int    `json:"quote_ttl"` // seconds
}

// AuthConfig holds JWT settings for the API. The admin account seeded from
// AdminEmail/AdminPassword is the only user the engine knows about; user
// management lives outside this service.
type AuthConfig struct {
	Enabled            bool   `json:"enabled"`
	JWTSecret          string `json:"jwt_secret"`
	AccessTokenMinutes int    `json:"access_token_minutes"`
	RefreshTokenHours  int    `json:"refresh_token_hours"`
	AdminEmail         string `json:"admin_email"`
	AdminPassword      string `json:"admin_password"`
}

// VaultConfig holds HashiCorp Vault settings for broker credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// MarketDataConfig selects the quote source
type MarketDataConfig struct {
	BaseURL   string `json:"base_url"`
	StreamURL string `json:"stream_url"`
	MockMode  bool   `json:"mock_mode"` // simulated quotes when no feed is available
}

// EngineConfig holds the proposal engine tunables
type EngineConfig struct {
	SampleRangePct       float64 `json:"sample_range_pct"`       // curve range around spot, e.g. 0.30
	SampleCount          int     `json:"sample_count"`           // curve resolution
	ProposalDeadlineMins int     `json:"proposal_deadline_mins"` // default approval window
	RiskFreeRate         float64 `json:"risk_free_rate"`
}

// LoggingConfig mirrors internal/logging.Config
type LoggingConfig struct {
	Level      string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"`
}

// Load reads the config file, applies defaults and environment overrides,
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "engine",
			Database: "trade_engine",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			QuoteTTL: 5,
		},
		AuthConfig: AuthConfig{
			AccessTokenMinutes: 15,
			RefreshTokenHours:  168,
		},
		VaultConfig: VaultConfig{
			MountPath: "secret/data/broker",
		},
		MarketDataConfig: MarketDataConfig{
			MockMode: true,
		},
		EngineConfig: EngineConfig{
			SampleRangePct:       0.30,
			SampleCount:          121,
			ProposalDeadlineMins: 60,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ServerConfig.Port = port
		}
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.DatabaseConfig.Host = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.DatabaseConfig.Password = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.RedisConfig.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisConfig.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.AuthConfig.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.AuthConfig.AdminEmail = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AuthConfig.AdminPassword = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.VaultConfig.Address = v
	}
	if v := os.Getenv("VAULT_TOKEN"); v != "" {
		cfg.VaultConfig.Token = v
	}
	if v := os.Getenv("MARKET_DATA_MOCK"); v != "" {
		if mock, err := strconv.ParseBool(v); err == nil {
			cfg.MarketDataConfig.MockMode = mock
		}
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerConfig.Port)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt_secret is empty")
	}
	if c.EngineConfig.SampleRangePct <= 0 || c.EngineConfig.SampleRangePct >= 1 {
		return fmt.Errorf("sample_range_pct %.2f must be within (0,1)", c.EngineConfig.SampleRangePct)
	}
	if c.EngineConfig.SampleCount < 2 {
		return fmt.Errorf("sample_count %d too small", c.EngineConfig.SampleCount)
	}
	if c.EngineConfig.ProposalDeadlineMins <= 0 {
		return fmt.Errorf("proposal_deadline_mins must be positive")
	}
	return nil
}

// ProposalDeadline returns the default approval window as a duration
func (c *Config) ProposalDeadline() time.Duration {
	return time.Duration(c.EngineConfig.ProposalDeadlineMins) * time.Minute
}
