package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable prefix for all webinfo settings
const envPrefix = "WEBINFO_"

// HTTPClientConfig contains configurable HTTP client settings (used by DoH)
type HTTPClientConfig struct {
	// DoH response size limit (bytes)
	MaxDoHResponseSize int64

	// HTTP client connection pool settings
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// HTTP client timeouts
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	KeepAlive      time.Duration
}

// ScannerConfig contains defaults for the probing engine
type ScannerConfig struct {
	// Channel buffer between workers and the collector
	ReportChannelBuffer int

	// CLI defaults (overridable via CLI or a config profile)
	DefaultConcurrency     int
	DefaultTimeout         time.Duration
	DefaultPort            int
	DefaultConnectAttempts int
	DefaultRateLimit       int
	DefaultDNSProto        string
	DefaultDNSStrategy     string
	DefaultExtraRecords    bool
}

// DNSConfig contains DNS query settings
type DNSConfig struct {
	UseEDNS        bool
	EDNSBufferSize uint16

	// Validation settings (for security vs speed trade-offs)
	ValidateResponseID bool
}

// LogConfig contains rotation settings for the event log file
type LogConfig struct {
	DefaultFile string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
}

// DefaultHTTPClientConfig returns default HTTP client configuration
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxDoHResponseSize:  getEnvInt64("MAX_DOH_RESPONSE_SIZE", 64*1024),            // 64KB
		MaxIdleConns:        getEnvInt("HTTP_MAX_IDLE_CONNS", 100),                    // 100 connections
		MaxIdleConnsPerHost: getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 10),            // 10 per host
		IdleConnTimeout:     getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second), // 90s
		DialTimeout:         getEnvDuration("HTTP_DIAL_TIMEOUT", 5*time.Second),       // 5s
		RequestTimeout:      getEnvDuration("HTTP_REQUEST_TIMEOUT", 10*time.Second),   // 10s
		KeepAlive:           getEnvDuration("HTTP_KEEPALIVE", 30*time.Second),         // 30s
	}
}

// DefaultScannerConfig returns default scanner configuration
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		ReportChannelBuffer:    getEnvInt("SCANNER_REPORT_BUFFER", 1000),           // 1000 reports
		DefaultConcurrency:     getEnvInt("DEFAULT_CONCURRENCY", 5),                // 5 targets in flight
		DefaultTimeout:         getEnvDuration("DEFAULT_TIMEOUT", 5*time.Second),   // per stage
		DefaultPort:            getEnvInt("DEFAULT_PORT", 443),                     // HTTPS
		DefaultConnectAttempts: getEnvInt("DEFAULT_CONNECT_ATTEMPTS", 2),           // first address + one fallback
		DefaultRateLimit:       getEnvInt("DEFAULT_RATE_LIMIT", 0),                 // unlimited
		DefaultDNSProto:        getEnvString("DEFAULT_DNS_PROTO", "udp"),           // plain DNS
		DefaultDNSStrategy:     getEnvString("DEFAULT_DNS_STRATEGY", "sequential"), // first success in listed order
		DefaultExtraRecords:    getEnvBool("DEFAULT_EXTRA_RECORDS", true),          // CNAME + NS
	}
}

// DefaultDNSConfig returns default DNS configuration
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		UseEDNS:        getEnvBool("DNS_USE_EDNS", true),
		EDNSBufferSize: uint16(getEnvInt("DNS_EDNS_BUFFER_SIZE", 1232)),
		// Enable with WEBINFO_DNS_VALIDATE_RESPONSE_ID=true for security-focused scanning
		ValidateResponseID: getEnvBool("DNS_VALIDATE_RESPONSE_ID", false),
	}
}

// DefaultLogConfig returns default event log configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		DefaultFile: getEnvString("LOG_FILE", "./webinfo.log"),
		MaxSizeMB:   getEnvInt("LOG_MAX_SIZE_MB", 10),
		MaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays:  getEnvInt("LOG_MAX_AGE_DAYS", 14),
		Compress:    getEnvBool("LOG_COMPRESS", true),
	}
}

// getEnvInt retrieves an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable with a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable with a default value
// Accepts values like "5s", "10m", "1h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable with a default value
// Accepts: "true", "false", "1", "0", "yes", "no" (case-insensitive)
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvString retrieves a string environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultValue
}

// Global configuration instances (initialized once at startup)
var (
	HTTP    = DefaultHTTPClientConfig()
	Scanner = DefaultScannerConfig()
	DNS     = DefaultDNSConfig()
	Log     = DefaultLogConfig()
)

// Init initializes all configuration from environment variables
// Call this at application startup
func Init() {
	HTTP = DefaultHTTPClientConfig()
	Scanner = DefaultScannerConfig()
	DNS = DefaultDNSConfig()
	Log = DefaultLogConfig()
}
