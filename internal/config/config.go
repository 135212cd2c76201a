package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backoff policies understood by the transport retryer.
const (
	BackoffNone        = "none"
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     string        `yaml:"backoff"` // none|constant|exponential
	Delay       time.Duration `yaml:"delay"`   // constant delay, or the exponential cap
}

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Provider      string `yaml:"provider"`      // aws or a preset name
	Endpoint      string `yaml:"endpoint"`      // empty means AWS
	AddressStyle  string `yaml:"address_style"` // path|vhost, empty picks per endpoint
	Insecure      bool   `yaml:"insecure"`
	Region        string `yaml:"region"`
	Profile       string `yaml:"profile"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	NoCredentials bool   `yaml:"no_credentials"`

	Threads     int           `yaml:"threads"`
	DumpThreads int           `yaml:"dump_threads"`
	MaxPages    int           `yaml:"max_pages"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryPolicy   `yaml:"retry"`

	DBDriver string `yaml:"db_driver"` // sqlite|postgres
	DBPath   string `yaml:"db_path"`   // used when DBDriver=sqlite
	DBDsn    string `yaml:"db_dsn"`    // used when DBDriver=postgres (e.g., DATABASE_URL)

	MetricsFile string `yaml:"metrics_file"`
}

func Load() *Config {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		Provider:      getEnv("S3AUDIT_PROVIDER", "aws"),
		Endpoint:      getEnv("S3AUDIT_ENDPOINT", ""),
		AddressStyle:  getEnv("S3AUDIT_ADDRESS_STYLE", ""),
		Insecure:      getEnvBool("S3AUDIT_INSECURE", false),
		Region:        getEnv("S3AUDIT_REGION", "us-east-1"),
		NoCredentials: getEnvBool("S3AUDIT_NO_CREDS", false),

		Threads:     getEnvInt("S3AUDIT_THREADS", 4),
		DumpThreads: getEnvInt("S3AUDIT_DUMP_THREADS", 4),
		MaxPages:    getEnvInt("S3AUDIT_MAX_PAGES", 5000),
		Timeout:     getEnvDuration("S3AUDIT_TIMEOUT", 10*time.Second),
		Retry: RetryPolicy{
			MaxAttempts: getEnvInt("S3AUDIT_RETRY_MAX_ATTEMPTS", 3),
			Backoff:     getEnv("S3AUDIT_RETRY_BACKOFF", BackoffExponential),
			Delay:       getEnvDuration("S3AUDIT_RETRY_DELAY", 2*time.Second),
		},

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBPath:   getEnv("DB_PATH", "data/s3audit.db"),
		DBDsn:    getEnv("DATABASE_URL", getEnv("DB_DSN", "")),

		MetricsFile: getEnv("S3AUDIT_METRICS_FILE", ""),
	}
	return cfg
}

// LoadFile overlays the YAML document at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Provider != "" && c.Provider != "aws" && c.Endpoint != "" {
		return fmt.Errorf("provider %q and endpoint %q are mutually exclusive", c.Provider, c.Endpoint)
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint %q: %w", c.Endpoint, err)
		}
		if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint %q: unsupported scheme %q", c.Endpoint, u.Scheme)
		}
	}
	switch c.AddressStyle {
	case "", "path", "vhost":
	default:
		return fmt.Errorf("address style must be path or vhost, got %q", c.AddressStyle)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.DumpThreads < 1 {
		return fmt.Errorf("dump threads must be at least 1, got %d", c.DumpThreads)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1, got %d", c.MaxPages)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	switch c.Retry.Backoff {
	case BackoffNone, BackoffConstant, BackoffExponential:
	default:
		return fmt.Errorf("unknown retry backoff %q", c.Retry.Backoff)
	}
	switch strings.ToLower(c.DBDriver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" { return v }
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil { return v }
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil { return v }
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil { return v }
	return def
}
