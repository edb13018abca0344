package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/84adam/zkauth/crypto"
)

var (
	config     *Config
	configOnce sync.Once
)

type Config struct {
	Server struct {
		Port    string `json:"port"`
		Host    string `json:"host"`
		BaseURL string `json:"base_url"`
	} `json:"server"`

	Database struct {
		Driver         string `json:"driver"` // sqlite3 or rqlite
		Path           string `json:"path"`
		RqliteNodes    string `json:"rqlite_nodes"`
		RqliteUsername string `json:"rqlite_username"`
		RqlitePassword string `json:"rqlite_password"`
	} `json:"database"`

	Storage struct {
		Backend          string `json:"backend"` // memory, sql or s3
		S3Endpoint       string `json:"s3_endpoint"`
		S3Region         string `json:"s3_region"`
		S3AccessKey      string `json:"s3_access_key"`
		S3SecretKey      string `json:"s3_secret_key"`
		S3Bucket         string `json:"s3_bucket"`
		S3Prefix         string `json:"s3_prefix"`
		S3ForcePathStyle bool   `json:"s3_force_path_style"`
	} `json:"storage"`

	Protocol struct {
		InteractiveGroup          string `json:"interactive_group"`
		ChallengeTTLSeconds       int    `json:"challenge_ttl_seconds"`
		NonInteractiveSkewSeconds int    `json:"non_interactive_skew_seconds"`
		SweepIntervalSeconds      int    `json:"sweep_interval_seconds"`
	} `json:"protocol"`

	Security struct {
		JWTSecret                  string `json:"jwt_secret"`
		JWTExpiryMinutes           int    `json:"jwt_expiry_minutes"`
		SecurityEventRetentionDays int    `json:"security_event_retention_days"`
	} `json:"security"`

	Logging struct {
		Directory  string `json:"directory"`
		MaxSize    int64  `json:"max_size"`
		MaxBackups int    `json:"max_backups"`
		Level      string `json:"level"`
		Stdout     bool   `json:"stdout"`
	} `json:"logging"`
}

// LoadConfig loads the configuration from defaults, .env, environment
// variables and an optional JSON file named by CONFIG_FILE, in that order.
func LoadConfig() (*Config, error) {
	var err error
	configOnce.Do(func() {
		cfg := &Config{}

		// Load .env file if it exists
		godotenv.Load()

		loadDefaultConfig(cfg)

		if err = loadEnvConfig(cfg); err != nil {
			return
		}

		if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
			if err = loadJSONConfig(cfg, configPath); err != nil {
				return
			}
		}

		if err = validateConfig(cfg); err != nil {
			return
		}
		config = cfg
	})

	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, fmt.Errorf("configuration failed to load earlier")
	}
	return config, nil
}

// NewDefaultConfig returns the built-in defaults without reading the
// environment. JWTSecret is left empty.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	loadDefaultConfig(cfg)
	return cfg
}

func loadDefaultConfig(cfg *Config) {
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Database.Driver = "sqlite3"
	cfg.Database.Path = "./zkauth.db"
	cfg.Database.RqliteNodes = "localhost:4001"
	cfg.Storage.Backend = "sql"
	cfg.Storage.S3Region = "us-east-1"
	cfg.Storage.S3Prefix = "zkauth"
	cfg.Protocol.InteractiveGroup = crypto.GroupMODP2048
	cfg.Protocol.ChallengeTTLSeconds = 120
	cfg.Protocol.NonInteractiveSkewSeconds = 60
	cfg.Protocol.SweepIntervalSeconds = 60
	cfg.Security.JWTExpiryMinutes = 60
	cfg.Security.SecurityEventRetentionDays = 90
	cfg.Logging.Directory = "logs"
	cfg.Logging.MaxSize = 10 * 1024 * 1024 // 10MB
	cfg.Logging.MaxBackups = 5
	cfg.Logging.Level = "INFO"
}

func loadEnvConfig(cfg *Config) error {
	// Server configuration
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Server.BaseURL, "BASE_URL")

	// Database configuration
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setString(&cfg.Database.RqliteNodes, "RQLITE_NODES")
	setString(&cfg.Database.RqliteUsername, "RQLITE_USERNAME")
	setString(&cfg.Database.RqlitePassword, "RQLITE_PASSWORD")

	// Storage configuration; the AWS_* names are fallbacks
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.Storage.S3Region, "AWS_REGION", "S3_REGION")
	setString(&cfg.Storage.S3AccessKey, "AWS_ACCESS_KEY_ID", "S3_ACCESS_KEY")
	setString(&cfg.Storage.S3SecretKey, "AWS_SECRET_ACCESS_KEY", "S3_SECRET_KEY")
	setString(&cfg.Storage.S3Bucket, "AWS_S3_BUCKET_NAME", "S3_BUCKET")
	setString(&cfg.Storage.S3Prefix, "S3_PREFIX")
	if err := setBool(&cfg.Storage.S3ForcePathStyle, "S3_FORCE_PATH_STYLE"); err != nil {
		return err
	}

	// Protocol configuration
	setString(&cfg.Protocol.InteractiveGroup, "PROTOCOL_GROUP")
	for name, dst := range map[string]*int{
		"PROTOCOL_CHALLENGE_TTL":        &cfg.Protocol.ChallengeTTLSeconds,
		"PROTOCOL_NONINTERACTIVE_SKEW":  &cfg.Protocol.NonInteractiveSkewSeconds,
		"PROTOCOL_SWEEP_INTERVAL":       &cfg.Protocol.SweepIntervalSeconds,
		"JWT_EXPIRY_MINUTES":            &cfg.Security.JWTExpiryMinutes,
		"SECURITY_EVENT_RETENTION_DAYS": &cfg.Security.SecurityEventRetentionDays,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}

	// Security configuration
	setString(&cfg.Security.JWTSecret, "JWT_SECRET")

	// Logging configuration
	setString(&cfg.Logging.Directory, "LOG_DIR")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	return setBool(&cfg.Logging.Stdout, "LOG_STDOUT")
}

// setString assigns the first non-empty variable among names.
func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", name, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a boolean: %w", name, err)
	}
	*dst = b
	return nil
}

func loadJSONConfig(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Security.JWTExpiryMinutes <= 0 {
		return fmt.Errorf("JWT expiry must be positive")
	}

	if _, err := crypto.NewGroup(cfg.Protocol.InteractiveGroup); err != nil {
		return fmt.Errorf("invalid protocol group: %w", err)
	}
	if cfg.Protocol.ChallengeTTLSeconds <= 0 || cfg.Protocol.NonInteractiveSkewSeconds <= 0 || cfg.Protocol.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("protocol durations must be positive")
	}

	switch cfg.Database.Driver {
	case "sqlite3":
	case "rqlite":
		if cfg.Database.RqliteUsername == "" || cfg.Database.RqlitePassword == "" {
			return fmt.Errorf("RQLITE_USERNAME and RQLITE_PASSWORD must be set")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	switch cfg.Storage.Backend {
	case "memory", "sql":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires AWS_S3_BUCKET_NAME or S3_BUCKET")
		}
		if (cfg.Storage.S3AccessKey == "") != (cfg.Storage.S3SecretKey == "") {
			return fmt.Errorf("s3 storage requires both an access key and a secret key")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}

	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.Logging.Level)
	}

	return nil
}

func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.Protocol.ChallengeTTLSeconds) * time.Second
}

func (c *Config) NonInteractiveSkew() time.Duration {
	return time.Duration(c.Protocol.NonInteractiveSkewSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Protocol.SweepIntervalSeconds) * time.Second
}

func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.Security.JWTExpiryMinutes) * time.Minute
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	if config == nil {
		panic("Configuration not loaded")
	}
	return config
}

// ResetConfigForTest clears the loaded configuration so the next LoadConfig
// reads the environment again.
func ResetConfigForTest() {
	config = nil
	configOnce = sync.Once{}
}

// SetConfigForTest installs cfg as the loaded configuration.
func SetConfigForTest(cfg *Config) {
	config = cfg
	configOnce = sync.Once{}
	configOnce.Do(func() {})
}
