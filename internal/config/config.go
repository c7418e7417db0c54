package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// Remote service credentials and endpoint.
	CDSAPIURL string
	CDSAPIKey string

	// Local data layout. Raw archives land under DataDir/raw/<year>/;
	// the manifest database and logs live under DataDir as well.
	DataDir string

	// Download orchestration.
	MaxConcurrentDownloads int
	RetryLimit             int
	BackoffBase            time.Duration
	BackoffMultiplier      float64
	BackoffMax             time.Duration
	PollInterval           time.Duration
	AttemptTimeout         time.Duration
	DispatchDelay          time.Duration
	SubRequestMaxCost      int

	// Aggregation and hazard inputs.
	DistrictsPath    string
	HazardParamsPath string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka sink for hazard records.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaHazardTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	backoffBase, err := parseDuration("BACKOFF_BASE", "5s")
	if err != nil {
		return nil, err
	}
	backoffMax, err := parseDuration("BACKOFF_MAX", "5m")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	attemptTimeout, err := parseDuration("ATTEMPT_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}
	dispatchDelay, err := parseNonNegativeDuration("DISPATCH_DELAY", "2s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	maxConcurrent, err := parseInt("MAX_CONCURRENT_DOWNLOADS", 3)
	if err != nil {
		return nil, err
	}
	retryLimit, err := parseInt("RETRY_LIMIT", 3)
	if err != nil {
		return nil, err
	}
	maxCost, err := parseInt("SUBREQUEST_SIZE_THRESHOLD", 2000)
	if err != nil {
		return nil, err
	}
	multiplier, err := parseFloat("BACKOFF_MULTIPLIER", 2.0)
	if err != nil {
		return nil, err
	}

	kafkaBrokers := splitCommaList(envOrDefault("KAFKA_BROKERS", "localhost:9092"))
	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		CDSAPIURL: envOrDefault("CDS_API_URL", "https://cds.climate.copernicus.eu/api/v2"),
		CDSAPIKey: os.Getenv("CDS_API_KEY"),

		DataDir: envOrDefault("DATA_DIR", "data"),

		MaxConcurrentDownloads: maxConcurrent,
		RetryLimit:             retryLimit,
		BackoffBase:            backoffBase,
		BackoffMultiplier:      multiplier,
		BackoffMax:             backoffMax,
		PollInterval:           pollInterval,
		AttemptTimeout:         attemptTimeout,
		DispatchDelay:          dispatchDelay,
		SubRequestMaxCost:      maxCost,

		DistrictsPath:    envOrDefault("DISTRICTS_PATH", "data/districts.geojson"),
		HazardParamsPath: envOrDefault("HAZARD_PARAMS_PATH", "hazard.yaml"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     kafkaBrokers,
		KafkaHazardTopic: envOrDefault("KAFKA_HAZARD_TOPIC", "district-hazard-records"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.MaxConcurrentDownloads < 1 {
		return nil, errors.New("MAX_CONCURRENT_DOWNLOADS must be at least 1")
	}
	if cfg.RetryLimit < 0 {
		return nil, errors.New("RETRY_LIMIT must not be negative")
	}
	if cfg.BackoffMultiplier < 1 {
		return nil, errors.New("BACKOFF_MULTIPLIER must be at least 1")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// RawDir returns the directory where raw archives are stored.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// TempDir returns the directory for in-progress downloads.
func (c *Config) TempDir() string { return filepath.Join(c.DataDir, "temp") }

// ManifestPath returns the location of the manifest database.
func (c *Config) ManifestPath() string { return filepath.Join(c.DataDir, "manifest.db") }

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

// parseNonNegativeDuration accepts zero, which disables the delay.
func parseNonNegativeDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
