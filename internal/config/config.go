package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default values used when the environment does not override them
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 21
	DefaultSQLitePath            = "data/nepbot.db"
	DefaultRapidWindow           = 10 * time.Minute
	DefaultRapidThreshold        = 3
	DefaultFailureWindow         = 5 * time.Minute
	DefaultCheckTimeout          = 5 * time.Second
	DefaultFollowUpWindow        = 3 * time.Hour
)

// Config is the process configuration, read from the environment
type Config struct {
	TelegramToken string
	LogMode       string

	// DBType is "sqlite" or "postgres"
	DBType      string
	DatabaseURL string
	SQLitePath  string

	AdminUserIDs     map[int64]bool
	SchedulerEnabled bool

	NotificationStartHour int
	NotificationEndHour   int
	FollowUpWindow        time.Duration

	SOSKeywords       []string
	SOSRapidWindow    time.Duration
	SOSRapidThreshold int
	SOSFailureWindow  time.Duration
	SOSCheckTimeout   time.Duration

	// Warnings collects values that were present but invalid and got replaced by defaults
	Warnings []string
}

// LoadDotEnv loads variables from the given .env files (or ".env") if they exist
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		LogMode:       envOr("LOG_MODE", "dev"),
		DBType:        strings.ToLower(envOr("DB_TYPE", "sqlite")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    envOr("SQLITE_PATH", DefaultSQLitePath),
		AdminUserIDs:  make(map[int64]bool),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	switch cfg.DBType {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_TYPE=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}

	if ids := os.Getenv("ADMIN_USER_IDS"); ids != "" {
		for _, idStr := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				cfg.warnf("invalid admin user ID %q", idStr)
				continue
			}
			cfg.AdminUserIDs[id] = true
		}
	}

	cfg.SchedulerEnabled = os.Getenv("ENABLE_SCHEDULER") != "false"
	cfg.NotificationStartHour = cfg.hour("NOTIFICATION_START_HOUR", DefaultNotificationStartHour)
	cfg.NotificationEndHour = cfg.hour("NOTIFICATION_END_HOUR", DefaultNotificationEndHour)
	cfg.FollowUpWindow = cfg.duration("FOLLOW_UP_WINDOW", DefaultFollowUpWindow)

	if kw := os.Getenv("SOS_KEYWORDS"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				cfg.SOSKeywords = append(cfg.SOSKeywords, k)
			}
		}
	}
	cfg.SOSRapidWindow = cfg.duration("SOS_RAPID_WINDOW", DefaultRapidWindow)
	cfg.SOSRapidThreshold = cfg.positiveInt("SOS_RAPID_THRESHOLD", DefaultRapidThreshold)
	cfg.SOSFailureWindow = cfg.duration("SOS_FAILURE_WINDOW", DefaultFailureWindow)
	cfg.SOSCheckTimeout = cfg.duration("SOS_CHECK_TIMEOUT", DefaultCheckTimeout)

	return cfg, nil
}

// DSN returns the connection string for the configured database type
func (c *Config) DSN() string {
	if c.DBType == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) warnf(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) hour(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	h, err := strconv.Atoi(v)
	if err != nil || h < 0 || h > 23 {
		c.warnf("%s=%q is not an hour (0-23), using %d", key, v, def)
		return def
	}
	return h
}

func (c *Config) positiveInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.warnf("%s=%q is not a positive integer, using %d", key, v, def)
		return def
	}
	return n
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.warnf("%s=%q is not a positive duration, using %s", key, v, def)
		return def
	}
	return d
}
