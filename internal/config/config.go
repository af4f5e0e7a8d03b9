package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ReportCacheTTLSeconds  int
	ReportTimezone         string
	OneSignalAppID         string
	OneSignalRESTAPIKey    string
	OneSignalAPIURL        string
	NotifyTimeoutSeconds   int
	MetricsEnabled         bool
	LoginAttemptsPerMinute int
}

// Load reads configuration from the environment, with an optional .env file in the
// working directory underneath it.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			log.Printf("[config] WARN: ignoring unreadable .env: %v", err)
		}
	}

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 30)
	v.SetDefault("REPORT_TIMEZONE", "UTC")
	v.SetDefault("ONESIGNAL_API_URL", "https://onesignal.com/api/v1")
	v.SetDefault("NOTIFY_TIMEOUT_SECONDS", 10)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 5)

	cfg := Config{
		Port:                   strings.TrimSpace(v.GetString("PORT")),
		AllowedOrigin:          strings.TrimSpace(v.GetString("ALLOWED_ORIGIN")),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 480),
		ReportCacheTTLSeconds:  positiveOr(v.GetInt("REPORT_CACHE_TTL_SECONDS"), 30),
		ReportTimezone:         strings.TrimSpace(v.GetString("REPORT_TIMEZONE")),
		OneSignalAppID:         strings.TrimSpace(v.GetString("ONESIGNAL_APP_ID")),
		OneSignalRESTAPIKey:    strings.TrimSpace(v.GetString("ONESIGNAL_REST_API_KEY")),
		OneSignalAPIURL:        strings.TrimSpace(v.GetString("ONESIGNAL_API_URL")),
		NotifyTimeoutSeconds:   positiveOr(v.GetInt("NOTIFY_TIMEOUT_SECONDS"), 10),
		MetricsEnabled:         v.GetBool("METRICS_ENABLED"),
		LoginAttemptsPerMinute: positiveOr(v.GetInt("LOGIN_RATE_PER_MINUTE"), 5),
	}
	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves ReportTimezone, the zone report days are grouped in.
func (c Config) Location() (*time.Location, error) {
	name := c.ReportTimezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func (c Config) NotificationsConfigured() bool {
	return c.OneSignalAppID != "" && c.OneSignalRESTAPIKey != ""
}

func positiveOr(value int, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
