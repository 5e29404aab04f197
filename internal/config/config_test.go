package config

import (
	"strings"
	"testing"
	"time"

	"airquality-platform/internal/models"
)

// TestLoadConfig_Defaults tests the defaults with an empty environment
func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}

	params := cfg.SegmentationParams()
	if !params.AnalysisStart.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AnalysisStart = %v", params.AnalysisStart)
	}
	if params.RequiredSensors() != 6 {
		t.Errorf("RequiredSensors() = %d, want 6", params.RequiredSensors())
	}
	if params.ShatterGapHours != 4 || params.SilverHours != 168 || params.GoldHours != 336 {
		t.Errorf("thresholds = %d/%d/%d", params.ShatterGapHours, params.SilverHours, params.GoldHours)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// TestLoadConfig_Pipeline tests pipeline overrides from the environment
func TestLoadConfig_Pipeline(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIPELINE_ANALYSIS_START", "2023-06-01T00:00:00Z")
	t.Setenv("PIPELINE_VALUE_MAX", "500")
	t.Setenv("PIPELINE_PARAMETERS", "2:pm25_ugm3,1:pm10_ugm3")
	t.Setenv("PIPELINE_SHATTER_GAP_HOURS", "6")
	t.Setenv("PIPELINE_WORKERS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	params := cfg.SegmentationParams()
	if !params.AnalysisStart.Equal(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AnalysisStart = %v", params.AnalysisStart)
	}
	if params.ValueMax != 500 {
		t.Errorf("ValueMax = %v, want 500", params.ValueMax)
	}
	if params.RequiredSensors() != 2 {
		t.Errorf("RequiredSensors() = %d, want 2", params.RequiredSensors())
	}
	if p, ok := params.PollutantFor("1"); !ok || p != models.PollutantPM10 {
		t.Errorf("PollutantFor(1) = %v, %v", p, ok)
	}
	if params.ShatterGapHours != 6 || params.Workers != 2 {
		t.Errorf("gap/workers = %d/%d, want 6/2", params.ShatterGapHours, params.Workers)
	}
}

// TestLoadConfig_Errors tests rejection of malformed pipeline values
func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad start", "PIPELINE_ANALYSIS_START", "yesterday"},
		{"bad min", "PIPELINE_VALUE_MIN", "zero"},
		{"bad max", "PIPELINE_VALUE_MAX", "1e"},
		{"bad parameters", "PIPELINE_PARAMETERS", "2=pm25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("LoadConfig() error = %v, want mention of %s", err, tt.key)
			}
		})
	}
}

// TestConfig_Validate tests configuration validation
func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		t.Chdir(t.TempDir())
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" }, "DB_PATH"},
		{"sqlite with path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Host = "" }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad batch", func(c *Config) { c.Ingestion.BatchSize = 0 }, "INGEST_BATCH_SIZE"},
		{"gold below silver", func(c *Config) { c.Pipeline.GoldHours = 10 }, "tier thresholds"},
		{"empty range", func(c *Config) { c.Pipeline.ValueMax = c.Pipeline.ValueMin }, "value range"},
		{"unaligned start", func(c *Config) { c.Pipeline.AnalysisStart = c.Pipeline.AnalysisStart.Add(time.Minute) }, "aligned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// TestConfig_DatabaseOptions tests the mapping onto database.Open settings
func TestConfig_DatabaseOptions(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/var/lib/airquality/store.db")
	t.Setenv("DB_MAX_OPEN_CONNS", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	opts := cfg.DatabaseOptions()
	if opts.Driver != "sqlite" || opts.Path != "/var/lib/airquality/store.db" || opts.MaxOpenConns != 3 {
		t.Errorf("DatabaseOptions() = %+v", opts)
	}

	dsn, err := opts.DSN()
	if err != nil {
		t.Fatalf("DSN() error = %v", err)
	}
	if !strings.HasPrefix(dsn, "file:/var/lib/airquality/store.db?") {
		t.Errorf("DSN() = %q", dsn)
	}
}
