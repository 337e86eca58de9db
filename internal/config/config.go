package config

import (
	"encoding/json"
	"os"
	"strconv"

	"whatshub/internal/constants"
	"whatshub/internal/models"
)

var (
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir = models.ConfigError{Message: "missing media directory"}
	ErrMissingRedis    = models.ConfigError{Message: "missing redis address"}
)

// LoadConfig reads the JSON config file, applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.Dir == "" {
		return ErrMissingMediaDir
	}
	if c.Redis.Addr == "" {
		return ErrMissingRedis
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeout
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeout
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeout
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = constants.RateLimitWindowSec
	}
	if c.Queue.ShortWorkers <= 0 {
		c.Queue.ShortWorkers = constants.DefaultShortQueueWorkers
	}
	if c.Queue.LongWorkers <= 0 {
		c.Queue.LongWorkers = constants.DefaultLongQueueWorkers
	}
	if c.Campaign.BatchSize <= 0 {
		c.Campaign.BatchSize = constants.DefaultCampaignBatchSize
	}
	if c.Scheduler.SweepIntervalSec <= 0 {
		c.Scheduler.SweepIntervalSec = constants.DefaultSweepIntervalSec
	}
	if c.Media.MetadataTimeoutSec <= 0 {
		c.Media.MetadataTimeoutSec = constants.DefaultMediaMetadataTimeoutSec
	}
	if c.Media.DownloadTimeoutSec <= 0 {
		c.Media.DownloadTimeoutSec = constants.DefaultMediaDownloadTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		c.Media.Dir = dir
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if token := os.Getenv("WHATSHUB_VERIFY_TOKEN"); token != "" {
		c.VerifyToken = token
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}
