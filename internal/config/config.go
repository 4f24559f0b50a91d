// Package config provides shared configuration loading from environment,
// .env files and credentials files for the MazeRunner tools.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvBool returns the boolean for key, or defaultValue if unset/invalid.
func GetEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return b
}

// GetEnvInt returns the integer for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvList splits a comma separated value, dropping empty items.
func GetEnvList(key string, defaultValue []string) []string {
	s := os.Getenv(key)
	if strings.TrimSpace(s) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadDotEnv loads variables from a .env file without overriding the ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ConnectionFromEnv reads the MazeRunner connection settings.
func ConnectionFromEnv() mazerunner.Config {
	return mazerunner.Config{
		Host:        GetEnv("MAZERUNNER_HOST", ""),
		APIKey:      GetEnv("MAZERUNNER_API_KEY", ""),
		APISecret:   GetEnv("MAZERUNNER_API_SECRET", ""),
		Certificate: GetEnv("MAZERUNNER_CERTIFICATE", ""),
		Timeout:     GetEnvDuration("MAZERUNNER_TIMEOUT", 30*time.Second),
		BaseURL:     GetEnv("MAZERUNNER_BASE_URL", ""),
	}
}

// CredentialsFile is the layout of a saved API key file. JSON files parse
// too.
type CredentialsFile struct {
	IPAddress       string `yaml:"ip_address"`
	ID              string `yaml:"id"`
	Secret          string `yaml:"secret"`
	CertificatePath string `yaml:"mazerunner_certificate_path"`
}

// LoadCredentialsFile reads a credentials file and overlays it on base. Empty
// file values leave base untouched.
func LoadCredentialsFile(path string, base mazerunner.Config) (mazerunner.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds CredentialsFile
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return base, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if creds.IPAddress != "" {
		base.Host = creds.IPAddress
	}
	if creds.ID != "" {
		base.APIKey = creds.ID
	}
	if creds.Secret != "" {
		base.APISecret = creds.Secret
	}
	if creds.CertificatePath != "" {
		base.Certificate = creds.CertificatePath
	}
	return base, nil
}

// TrackerConfig holds configuration for the alert tracker.
type TrackerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	PollInterval    time.Duration
	TaskInterval    time.Duration
	ShowMuted       bool
	AlertTypes      []string
	Retention       int
	RulesFile       string
	Connection      mazerunner.Config
}

// FeederConfig holds configuration for the SOC event feeder.
type FeederConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	SOCName         string
	SpoolDir        string
	SyslogAddr      string
	BatchSize       int
	Connection      mazerunner.Config
}

// DefaultTrackerConfig returns tracker config from environment.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HTTPAddr:        GetEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		PollInterval:    GetEnvDuration("TRACKER_POLL_INTERVAL", 3*time.Second),
		TaskInterval:    GetEnvDuration("TRACKER_TASK_INTERVAL", 30*time.Second),
		ShowMuted:       GetEnvBool("TRACKER_SHOW_MUTED", false),
		AlertTypes:      GetEnvList("TRACKER_ALERT_TYPES", nil),
		Retention:       GetEnvInt("TRACKER_RETENTION", 10000),
		RulesFile:       GetEnv("TRACKER_RULES_FILE", ""),
		Connection:      ConnectionFromEnv(),
	}
}

// DefaultFeederConfig returns feeder config from environment.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		HTTPAddr:        GetEnv("HTTP_ADDR", ":8081"),
		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		SOCName:         GetEnv("SOCFEED_SOC_NAME", "mazerunner-api"),
		SpoolDir:        GetEnv("SOCFEED_SPOOL_DIR", "/var/spool/mazerunner-socfeed"),
		SyslogAddr:      GetEnv("SOCFEED_SYSLOG_ADDR", ""),
		BatchSize:       GetEnvInt("SOCFEED_BATCH_SIZE", 100),
		Connection:      ConnectionFromEnv(),
	}
}
