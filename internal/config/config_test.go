package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	if cfg.S3Bucket != "access-logs" {
		t.Errorf("S3Bucket = %q", cfg.S3Bucket)
	}
	if cfg.RawPrefix != "raw/" || cfg.CuratedPrefix != "curated/" {
		t.Errorf("prefixes = %q %q", cfg.RawPrefix, cfg.CuratedPrefix)
	}
	if cfg.BatchSize != 1000 || cfg.ParseWorkers != 4 {
		t.Errorf("BatchSize/ParseWorkers = %d/%d", cfg.BatchSize, cfg.ParseWorkers)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
	if cfg.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v", cfg.Retention)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("S3_BUCKET", "mybucket")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("RETENTION", "72h")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Load()

	if cfg.S3Bucket != "mybucket" {
		t.Errorf("S3Bucket = %q", cfg.S3Bucket)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.Retention != 72*time.Hour {
		t.Errorf("Retention = %v", cfg.Retention)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("RETENTION", "soon")

	cfg := Load()

	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want default 1000", cfg.BatchSize)
	}
	if cfg.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want default", cfg.Retention)
	}
}

func TestLoadPanicsWithoutCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	defer func() {
		if recover() == nil {
			t.Error("Load() did not panic without credentials")
		}
	}()
	Load()
}
