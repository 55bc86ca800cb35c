package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// IncompleteSuffix is appended to files while downloading
	IncompleteSuffix = ".pledo"
)

// Transfer defaults
const (
	DefaultBufferSize  = 4 * KB
	DefaultMaxAttempts = 5
	RetryBaseDelay     = 1 * time.Second // attempt n waits RetryBaseDelay * 2^n
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 10 * time.Second
	PersistTimeout               = 5 * time.Second
)

// Channel buffer sizes
const (
	EventChannelBuffer = 100
)

const defaultUserAgent = "pledo/1.0 (+https://github.com/lunikdev/pledo)"

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	BufferSize          int
	MaxAttempts         int
	RetryBaseDelay      time.Duration
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return defaultUserAgent
	}
	return r.UserAgent
}

// GetBufferSize returns configured value or default
func (r *RuntimeConfig) GetBufferSize() int {
	if r == nil || r.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return r.BufferSize
}

// GetMaxAttempts returns configured value or default
func (r *RuntimeConfig) GetMaxAttempts() int {
	if r == nil || r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// GetRetryBaseDelay returns configured value or default
func (r *RuntimeConfig) GetRetryBaseDelay() time.Duration {
	if r == nil || r.RetryBaseDelay <= 0 {
		return RetryBaseDelay
	}
	return r.RetryBaseDelay
}
