package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSimbadTAPURL    = "https://simbad.cds.unistra.fr/simbad/sim-tap"
	DefaultGaiaDataLinkURL = "https://gea.esac.esa.int/data-server"
	DefaultGaiaTAPURL      = "https://gea.esac.esa.int/tap-server/tap"
	DefaultUserAgent       = "gaiacurves/1.0"
	DefaultOutputDir       = "data"
)

type Config struct {
	Logging     LoggingConfig  `yaml:"logging"`
	Archive     ArchiveConfig  `yaml:"archive"`
	Fetch       FetchConfig    `yaml:"fetch"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Tracing     TracingConfig  `yaml:"tracing"`
	Environment string         `yaml:"environment" validate:"oneof=development test staging production"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// ArchiveConfig points the clients at the remote services.
type ArchiveConfig struct {
	SimbadTAPURL    string        `yaml:"simbad_tap_url" validate:"required,url"`
	GaiaDataLinkURL string        `yaml:"gaia_datalink_url" validate:"required,url"`
	GaiaTAPURL      string        `yaml:"gaia_tap_url" validate:"required,url"`
	UserAgent       string        `yaml:"user_agent"`
	HTTPTimeout     time.Duration `yaml:"http_timeout" validate:"gte=0"`
}

type FetchConfig struct {
	OutputDir    string        `yaml:"output_dir" validate:"required"`
	Ignore       string        `yaml:"ignore"`
	Concurrency  int           `yaml:"concurrency" validate:"gte=1,lte=64"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	JobTimeout   time.Duration `yaml:"job_timeout" validate:"gt=0"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
	// BatchesPerMinute limits batch requests per client; zero disables the
	// limit.
	BatchesPerMinute int `yaml:"batches_per_minute" validate:"gte=0"`
	// BatchTimeout bounds a batch run inside a request, which is how
	// batches run when the run ledger is off. The write timeout is derived
	// from it.
	BatchTimeout time.Duration `yaml:"batch_timeout" validate:"gt=0"`
	// BatchWorkers is the number of queued batches worked at once when the
	// run ledger is on.
	BatchWorkers int `yaml:"batch_workers" validate:"gte=1,lte=32"`
}

// DatabaseConfig is optional; an empty URL disables the run ledger.
type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections" validate:"gte=0"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=stdout otlp none"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Defaults returns the configuration used when neither a file nor the
// environment says otherwise.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Archive: ArchiveConfig{
			SimbadTAPURL:    DefaultSimbadTAPURL,
			GaiaDataLinkURL: DefaultGaiaDataLinkURL,
			GaiaTAPURL:      DefaultGaiaTAPURL,
			UserAgent:       DefaultUserAgent,
			HTTPTimeout:     60 * time.Second,
		},
		Fetch: FetchConfig{
			OutputDir:    DefaultOutputDir,
			Concurrency:  1,
			PollInterval: 2 * time.Second,
			JobTimeout:   10 * time.Minute,
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			BatchesPerMinute: 10,
			BatchTimeout:     5 * time.Minute,
			BatchWorkers:     2,
		},
		Database: DatabaseConfig{MaxConnections: 4},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "gaiacurves",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence. A .env file in
// the working directory is loaded first when present.
func Load(path string) (Config, error) {
	LoadEnvFile(".env")

	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads key=value pairs from path into the process environment
// without overriding variables that are already set. Missing files are ignored.
func LoadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Archive.SimbadTAPURL = getEnv("GAIACURVES_SIMBAD_TAP_URL", cfg.Archive.SimbadTAPURL)
	cfg.Archive.GaiaDataLinkURL = getEnv("GAIACURVES_GAIA_DATALINK_URL", cfg.Archive.GaiaDataLinkURL)
	cfg.Archive.GaiaTAPURL = getEnv("GAIACURVES_GAIA_TAP_URL", cfg.Archive.GaiaTAPURL)
	cfg.Archive.UserAgent = getEnv("GAIACURVES_USER_AGENT", cfg.Archive.UserAgent)
	cfg.Archive.HTTPTimeout = getEnvDuration("GAIACURVES_HTTP_TIMEOUT", cfg.Archive.HTTPTimeout)

	cfg.Fetch.OutputDir = getEnv("GAIACURVES_OUTPUT_DIR", cfg.Fetch.OutputDir)
	cfg.Fetch.Ignore = getEnv("GAIACURVES_IGNORE", cfg.Fetch.Ignore)
	cfg.Fetch.Concurrency = getEnvInt("GAIACURVES_CONCURRENCY", cfg.Fetch.Concurrency)
	cfg.Fetch.PollInterval = getEnvDuration("GAIACURVES_POLL_INTERVAL", cfg.Fetch.PollInterval)
	cfg.Fetch.JobTimeout = getEnvDuration("GAIACURVES_JOB_TIMEOUT", cfg.Fetch.JobTimeout)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BatchesPerMinute = getEnvInt("SERVER_BATCHES_PER_MINUTE", cfg.Server.BatchesPerMinute)
	cfg.Server.BatchTimeout = getEnvDuration("SERVER_BATCH_TIMEOUT", cfg.Server.BatchTimeout)
	cfg.Server.BatchWorkers = getEnvInt("SERVER_BATCH_WORKERS", cfg.Server.BatchWorkers)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("TRACING_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate checks struct constraints and returns a single error naming every
// offending field.
func Validate(cfg Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
