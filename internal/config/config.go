package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"airquality-platform/internal/models"
	"airquality-platform/internal/segmentation"
	"airquality-platform/pkg/database"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Logging   LoggingConfig
	Ingestion IngestionConfig
	Pipeline  PipelineConfig
}

// DatabaseConfig holds database connection settings.
// Driver is "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string
}

// IngestionConfig holds CSV loader settings
type IngestionConfig struct {
	DataDir   string
	BatchSize int
}

// PipelineConfig holds the segmentation constants
type PipelineConfig struct {
	AnalysisStart   time.Time
	ValueMin        float64
	ValueMax        float64
	Parameters      []models.ParameterBinding
	ShatterGapHours int
	SilverHours     int
	GoldHours       int
	MinSegmentHours int
	Workers         int
}

// LoadConfig loads configuration from environment variables, reading a .env
// file first when one exists. Malformed pipeline values are errors; other
// malformed values fall back to their defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	defaults := segmentation.DefaultParams()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "airquality"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "airquality"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			Path:            getEnv("DB_PATH", "airquality.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
		Ingestion: IngestionConfig{
			DataDir:   getEnv("INGEST_DATA_DIR", "./data"),
			BatchSize: getEnvInt("INGEST_BATCH_SIZE", 1000),
		},
		Pipeline: PipelineConfig{
			AnalysisStart:   defaults.AnalysisStart,
			ValueMin:        defaults.ValueMin,
			ValueMax:        defaults.ValueMax,
			Parameters:      defaults.Parameters,
			ShatterGapHours: getEnvInt("PIPELINE_SHATTER_GAP_HOURS", defaults.ShatterGapHours),
			SilverHours:     getEnvInt("PIPELINE_SILVER_HOURS", defaults.SilverHours),
			GoldHours:       getEnvInt("PIPELINE_GOLD_HOURS", defaults.GoldHours),
			MinSegmentHours: getEnvInt("PIPELINE_MIN_SEGMENT_HOURS", defaults.MinSegmentHours),
			Workers:         getEnvInt("PIPELINE_WORKERS", defaults.Workers),
		},
	}

	if raw, ok := os.LookupEnv("PIPELINE_ANALYSIS_START"); ok {
		start, err := models.ParseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_ANALYSIS_START: %w", err)
		}
		cfg.Pipeline.AnalysisStart = start
	}

	if raw, ok := os.LookupEnv("PIPELINE_VALUE_MIN"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_VALUE_MIN: %w", err)
		}
		cfg.Pipeline.ValueMin = v
	}

	if raw, ok := os.LookupEnv("PIPELINE_VALUE_MAX"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_VALUE_MAX: %w", err)
		}
		cfg.Pipeline.ValueMax = v
	}

	if raw, ok := os.LookupEnv("PIPELINE_PARAMETERS"); ok {
		bindings, err := models.ParseParameterBindings(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_PARAMETERS: %w", err)
		}
		cfg.Pipeline.Parameters = bindings
	}

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for postgres"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid DB_PORT: %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("DB_NAME is required for postgres"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.Logging.Level))
	}

	if c.Ingestion.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid INGEST_BATCH_SIZE: %d", c.Ingestion.BatchSize))
	}

	if err := c.SegmentationParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	return errors.Join(errs...)
}

// SegmentationParams returns the single parameter set shared by every
// pipeline stage
func (c *Config) SegmentationParams() segmentation.Params {
	return segmentation.Params{
		AnalysisStart:   c.Pipeline.AnalysisStart,
		ValueMin:        c.Pipeline.ValueMin,
		ValueMax:        c.Pipeline.ValueMax,
		Parameters:      append([]models.ParameterBinding(nil), c.Pipeline.Parameters...),
		ShatterGapHours: c.Pipeline.ShatterGapHours,
		SilverHours:     c.Pipeline.SilverHours,
		GoldHours:       c.Pipeline.GoldHours,
		MinSegmentHours: c.Pipeline.MinSegmentHours,
		Workers:         c.Pipeline.Workers,
	}
}

// DatabaseOptions returns the connection settings for database.Open
func (c *Config) DatabaseOptions() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
