package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns default when unset", func(t *testing.T) {
		os.Unsetenv("MRSDK_TEST_GETENV_UNSET")
		got := GetEnv("MRSDK_TEST_GETENV_UNSET", "default")
		if got != "default" {
			t.Errorf("GetEnv(unset) = %q, want %q", got, "default")
		}
	})

	t.Run("returns value when set", func(t *testing.T) {
		t.Setenv("MRSDK_TEST_GETENV_SET", "myvalue")
		got := GetEnv("MRSDK_TEST_GETENV_SET", "default")
		if got != "myvalue" {
			t.Errorf("GetEnv(set) = %q, want %q", got, "myvalue")
		}
	})

	t.Run("returns default when empty", func(t *testing.T) {
		t.Setenv("MRSDK_TEST_GETENV_EMPTY", "")
		got := GetEnv("MRSDK_TEST_GETENV_EMPTY", "default")
		if got != "default" {
			t.Errorf("GetEnv(empty) = %q, want %q", got, "default")
		}
	})

	t.Run("trims space", func(t *testing.T) {
		t.Setenv("MRSDK_TEST_GETENV_TRIM", "  trimmed  ")
		got := GetEnv("MRSDK_TEST_GETENV_TRIM", "default")
		if got != "trimmed" {
			t.Errorf("GetEnv(trim) = %q, want %q", got, "trimmed")
		}
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("returns default when unset", func(t *testing.T) {
		os.Unsetenv("MRSDK_TEST_DURATION_UNSET")
		got := GetEnvDuration("MRSDK_TEST_DURATION_UNSET", 5*time.Second)
		if got != 5*time.Second {
			t.Errorf("GetEnvDuration(unset) = %v, want 5s", got)
		}
	})

	t.Run("parses valid duration", func(t *testing.T) {
		t.Setenv("MRSDK_TEST_DURATION_VALID", "30s")
		got := GetEnvDuration("MRSDK_TEST_DURATION_VALID", time.Second)
		if got != 30*time.Second {
			t.Errorf("GetEnvDuration(30s) = %v, want 30s", got)
		}
	})

	t.Run("returns default on invalid duration", func(t *testing.T) {
		t.Setenv("MRSDK_TEST_DURATION_INVALID", "not-a-duration")
		got := GetEnvDuration("MRSDK_TEST_DURATION_INVALID", 7*time.Second)
		if got != 7*time.Second {
			t.Errorf("GetEnvDuration(invalid) = %v, want 7s", got)
		}
	})
}

func TestGetEnvBoolAndInt(t *testing.T) {
	t.Setenv("MRSDK_TEST_BOOL", "true")
	if !GetEnvBool("MRSDK_TEST_BOOL", false) {
		t.Error("GetEnvBool(true) = false")
	}
	t.Setenv("MRSDK_TEST_BOOL", "maybe")
	if !GetEnvBool("MRSDK_TEST_BOOL", true) {
		t.Error("GetEnvBool(invalid) should return default")
	}

	t.Setenv("MRSDK_TEST_INT", "42")
	if got := GetEnvInt("MRSDK_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	t.Setenv("MRSDK_TEST_INT", "x")
	if got := GetEnvInt("MRSDK_TEST_INT", 1); got != 1 {
		t.Errorf("GetEnvInt(invalid) = %d, want 1", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("MRSDK_TEST_LIST", " ssh, ,http,")
	got := GetEnvList("MRSDK_TEST_LIST", nil)
	if len(got) != 2 || got[0] != "ssh" || got[1] != "http" {
		t.Errorf("GetEnvList = %v, want [ssh http]", got)
	}

	os.Unsetenv("MRSDK_TEST_LIST_UNSET")
	if got := GetEnvList("MRSDK_TEST_LIST_UNSET", []string{"a"}); len(got) != 1 {
		t.Errorf("GetEnvList(unset) = %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
			t.Errorf("LoadDotEnv(missing) = %v", err)
		}
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		path := filepath.Join(dir, "test.env")
		content := "MRSDK_TEST_DOTENV_NEW=fromfile\nMRSDK_TEST_DOTENV_KEEP=fromfile\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("MRSDK_TEST_DOTENV_KEEP", "fromenv")
		os.Unsetenv("MRSDK_TEST_DOTENV_NEW")
		defer os.Unsetenv("MRSDK_TEST_DOTENV_NEW")

		if err := LoadDotEnv(path); err != nil {
			t.Fatalf("LoadDotEnv = %v", err)
		}
		if got := os.Getenv("MRSDK_TEST_DOTENV_NEW"); got != "fromfile" {
			t.Errorf("NEW = %q", got)
		}
		if got := os.Getenv("MRSDK_TEST_DOTENV_KEEP"); got != "fromenv" {
			t.Errorf("KEEP = %q", got)
		}
	})
}

func TestConnectionFromEnv(t *testing.T) {
	t.Setenv("MAZERUNNER_HOST", "mr.example.com")
	t.Setenv("MAZERUNNER_API_KEY", "key")
	t.Setenv("MAZERUNNER_API_SECRET", "secret")
	t.Setenv("MAZERUNNER_CERTIFICATE", "/etc/mr.crt")
	t.Setenv("MAZERUNNER_TIMEOUT", "5s")

	cfg := ConnectionFromEnv()
	if cfg.Host != "mr.example.com" || cfg.APIKey != "key" || cfg.APISecret != "secret" {
		t.Errorf("unexpected connection: %+v", cfg)
	}
	if cfg.Certificate != "/etc/mr.crt" {
		t.Errorf("Certificate = %q", cfg.Certificate)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml overlays base", func(t *testing.T) {
		path := filepath.Join(dir, "creds.yaml")
		content := "ip_address: 10.0.0.5\nid: abc\nsecret: s3cr3t\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadCredentialsFile(path, mazerunner.Config{Certificate: "/keep.crt", Timeout: time.Second})
		if err != nil {
			t.Fatalf("LoadCredentialsFile = %v", err)
		}
		if cfg.Host != "10.0.0.5" || cfg.APIKey != "abc" || cfg.APISecret != "s3cr3t" {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.Certificate != "/keep.crt" || cfg.Timeout != time.Second {
			t.Errorf("base fields lost: %+v", cfg)
		}
	})

	t.Run("json is accepted", func(t *testing.T) {
		path := filepath.Join(dir, "creds.json")
		content := `{"ip_address": "mr.local", "id": "k", "secret": "s", "mazerunner_certificate_path": "/c.pem"}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadCredentialsFile(path, mazerunner.Config{})
		if err != nil {
			t.Fatalf("LoadCredentialsFile = %v", err)
		}
		if cfg.Host != "mr.local" || cfg.Certificate != "/c.pem" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCredentialsFile(filepath.Join(dir, "nope.yaml"), mazerunner.Config{}); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestDefaultTrackerConfig(t *testing.T) {
	os.Unsetenv("TRACKER_POLL_INTERVAL")
	os.Unsetenv("TRACKER_SHOW_MUTED")
	os.Unsetenv("TRACKER_RETENTION")
	os.Unsetenv("TRACKER_ALERT_TYPES")
	cfg := DefaultTrackerConfig()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ShowMuted {
		t.Error("ShowMuted should be false when env unset")
	}
	if cfg.Retention != 10000 {
		t.Errorf("Retention = %d", cfg.Retention)
	}
	if len(cfg.AlertTypes) != 0 {
		t.Errorf("AlertTypes = %v", cfg.AlertTypes)
	}
}

func TestDefaultFeederConfig(t *testing.T) {
	t.Setenv("SOCFEED_SOC_NAME", "splunk")
	cfg := DefaultFeederConfig()
	if cfg.SOCName != "splunk" {
		t.Errorf("SOCName = %q", cfg.SOCName)
	}
	if cfg.SpoolDir == "" {
		t.Error("SpoolDir should be set")
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
}
