package constants

// Rate limiting defaults
const (
	DefaultRateLimitPerMinute = 30
	RateLimitWindowSec        = 60
	RateLimitKeyPrefix        = "whatsapp_rate_limit:"
)

// Campaign defaults
const (
	DefaultCampaignBatchSize = 20
)

// Scheduler defaults
const (
	DefaultSweepIntervalSec = 60
)

// Task queue defaults
const (
	QueueShort = "short"
	QueueLong  = "long"

	DefaultShortQueueWorkers = 4
	DefaultLongQueueWorkers  = 2
	DefaultQueueBuffer       = 256
)

// Media pipeline defaults
const (
	MediaCompressionThresholdBytes = 500 * 1024
	MediaMaxImageDimensionPx       = 1920
	MediaCompressionJPEGQuality    = 85
	ThumbnailMaxDimensionPx        = 200
	ThumbnailJPEGQuality           = 70

	DefaultMediaMetadataTimeoutSec = 30
	DefaultMediaDownloadTimeoutSec = 60
)

// HTTP defaults
const (
	DefaultServerPort          = 8080
	DefaultServerReadTimeout   = 15
	DefaultServerWriteTimeout  = 15
	DefaultServerIdleTimeout   = 60
	DefaultHTTPTimeoutSec      = 30
	DefaultGracefulShutdownSec = 30
)

// Database defaults
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxMs          = 60000
)

// SignatureHeader carries the provider's HMAC of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// Credential encryption parameters
const (
	EncryptionSalt       = "whatshub-credentials-v1"
	EncryptionIterations = 100000
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
)

// Live event channel for flow responses
const FlowResponseChannel = "whatsapp_flow_response"
