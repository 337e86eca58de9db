package models

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type MediaConfig struct {
	Dir                string `json:"dir"`
	MetadataTimeoutSec int    `json:"metadataTimeoutSec"`
	DownloadTimeoutSec int    `json:"downloadTimeoutSec"`
}

type RateLimitConfig struct {
	PerMinute int `json:"perMinute"`
	WindowSec int `json:"windowSec"`
}

type QueueConfig struct {
	ShortWorkers int `json:"shortWorkers"`
	LongWorkers  int `json:"longWorkers"`
}

type CampaignConfig struct {
	BatchSize int `json:"batchSize"`
}

type SchedulerConfig struct {
	SweepIntervalSec int `json:"sweepIntervalSec"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type Config struct {
	LogLevel    string          `json:"logLevel"`
	VerifyToken string          `json:"verifyToken"`
	Server      ServerConfig    `json:"server"`
	Database    DatabaseConfig  `json:"database"`
	Redis       RedisConfig     `json:"redis"`
	Media       MediaConfig     `json:"media"`
	RateLimit   RateLimitConfig `json:"rateLimit"`
	Queue       QueueConfig     `json:"queue"`
	Campaign    CampaignConfig  `json:"campaign"`
	Scheduler   SchedulerConfig `json:"scheduler"`
	Retry       RetryConfig     `json:"retry"`
	Tracing     TracingConfig   `json:"tracing"`
}
