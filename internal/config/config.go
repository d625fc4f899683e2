package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Artifact and rule sources
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceDefault  = "default"
)

// Config holds all configuration for the risk scoring server.
type Config struct {
	Port string

	ModelPath    string
	SchemaSource string
	SchemaPath   string
	DatabaseURL  string

	GuidanceSource    string
	GuidanceRulesPath string

	RequestTimeout       time.Duration
	SlowRequestThreshold time.Duration

	LogLevel        string
	ErrorSampleRate int
	OTELEnabled     bool
	OTELServiceName string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers and durations are reported by Validate through their zero values.
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		ModelPath:            getEnv("MODEL_PATH", "artifacts/model.json"),
		SchemaSource:         strings.ToLower(getEnv("SCHEMA_SOURCE", SourceFile)),
		SchemaPath:           getEnv("SCHEMA_PATH", "artifacts/feature_schema.json"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		GuidanceSource:       strings.ToLower(getEnv("GUIDANCE_SOURCE", SourceDefault)),
		GuidanceRulesPath:    getEnv("GUIDANCE_RULES_PATH", ""),
		RequestTimeout:       getDuration("REQUEST_TIMEOUT", 60*time.Second),
		SlowRequestThreshold: getDuration("SLOW_REQUEST_THRESHOLD", time.Second),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ErrorSampleRate:      getInt("ERROR_SAMPLE_RATE", 100),
		OTELEnabled:          strings.EqualFold(getEnv("OTEL_ENABLED", "false"), "true"),
		OTELServiceName:      getEnv("OTEL_SERVICE_NAME", "riskscore"),
	}
}

// Validate reports the first inconsistent setting
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH cannot be empty")
	}

	switch c.SchemaSource {
	case SourceFile:
		if c.SchemaPath == "" {
			return fmt.Errorf("SCHEMA_PATH is required when SCHEMA_SOURCE=%s", SourceFile)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SCHEMA_SOURCE=%s", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown SCHEMA_SOURCE %q (use %s or %s)", c.SchemaSource, SourceFile, SourcePostgres)
	}

	switch c.GuidanceSource {
	case SourceDefault:
	case SourceFile:
		if c.GuidanceRulesPath == "" {
			return fmt.Errorf("GUIDANCE_RULES_PATH is required when GUIDANCE_SOURCE=%s", SourceFile)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when GUIDANCE_SOURCE=%s", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown GUIDANCE_SOURCE %q (use %s, %s or %s)", c.GuidanceSource, SourceDefault, SourceFile, SourcePostgres)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be a positive duration")
	}
	if c.SlowRequestThreshold <= 0 {
		return fmt.Errorf("SLOW_REQUEST_THRESHOLD must be a positive duration")
	}
	if c.ErrorSampleRate <= 0 {
		return fmt.Errorf("ERROR_SAMPLE_RATE must be a positive integer")
	}

	return nil
}

// NeedsDatabase reports whether any source reads from Postgres
func (c *Config) NeedsDatabase() bool {
	return c.SchemaSource == SourcePostgres || c.GuidanceSource == SourcePostgres
}

// HTTPAddress returns the full HTTP listen address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
