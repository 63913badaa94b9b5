package constants

import (
	"time"
)

// Application identity
const (
	// AppName - binary and config directory name
	AppName = "rescale-upload"

	// EnvPrefix - prefix for environment variable overrides (RESCALE_UPLOAD_CONCURRENCY, ...)
	EnvPrefix = "RESCALE_UPLOAD_"

	// DefaultAPIBaseURL - drive API used when no credentials profile overrides it
	DefaultAPIBaseURL = "https://platform.rescale.com"

	// DefaultProfile - credentials section used when --profile is not given
	DefaultProfile = "default"
)

// Upload scheduling
const (
	// DefaultConcurrency - number of upload workers per batch
	DefaultConcurrency = 10

	// MaxConcurrency - upper bound accepted from config and flags
	// Higher values only add pressure on the backend without improving throughput
	MaxConcurrency = 64

	// DefaultFolderConcurrency - concurrent create-directory calls within one depth level
	// 1 keeps materialization strictly sequential
	DefaultFolderConcurrency = 1

	// MaxFolderConcurrency - upper bound for same-depth folder creation
	MaxFolderConcurrency = 16
)

// Transfer watchdog
const (
	// DefaultStallTimeout - a transfer with no progress for this long is aborted
	DefaultStallTimeout = 10 * time.Second

	// HardTimeoutFloor - minimum wall-clock bound for a single transfer (3 minutes)
	// The hard timeout is max(2 * stall timeout, HardTimeoutFloor)
	HardTimeoutFloor = 180 * time.Second

	// HardTimeoutStallMultiplier - hard timeout as a multiple of the stall window
	HardTimeoutStallMultiplier = 2
)

// Per-task preparation
const (
	// ZeroByteMaterializeTimeout - time allowed to read a zero-length entry into memory (2s)
	// Entries that block longer are treated as inert placeholders
	ZeroByteMaterializeTimeout = 2 * time.Second

	// ZeroByteTaskTimeout - request preparation budget for zero-length entries (3s)
	ZeroByteTaskTimeout = 3 * time.Second

	// TaskTimeout - request preparation budget for all other entries (10s)
	TaskTimeout = 10 * time.Second
)

// Entry collection
const (
	// ProbeTimeout - time allowed for the one-byte readability probe
	ProbeTimeout = 2 * time.Second

	// ProbeConcurrency - parallel readability probes during collection
	ProbeConcurrency = 16
)

// API client
const (
	// APIRetryMax - retryablehttp attempts for transient transport/5xx errors
	// Upload bodies are not replayable and are sent with retries disabled
	APIRetryMax = 3

	// APIRetryWaitMin - minimum wait between retries
	APIRetryWaitMin = 1 * time.Second

	// APIRetryWaitMax - maximum wait between retries
	APIRetryWaitMax = 10 * time.Second

	// APIRequestsPerSecond - sustained request rate for folder/metadata calls
	APIRequestsPerSecond = 20

	// APIBurst - burst allowance on top of the sustained rate
	APIBurst = 10

	// ProgressReportInterval - minimum bytes between progress callbacks (64 KB)
	ProgressReportInterval = 64 * 1024

	// ProgressReportPeriod - longest gap between callbacks while bytes are moving
	ProgressReportPeriod = time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - refresh interval for terminal progress bars (150ms)
	ProgressRefreshRate = 150 * time.Millisecond

	// MaxDisplayPathLength - file names longer than this are truncated in bars
	MaxDisplayPathLength = 40
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// ProxyWarmupTimeout - budget for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)
