// Package config holds the environment-driven configuration for the
// observability pipeline
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type (
	// SamplingMode selects which node executions the producer captures
	SamplingMode string

	// Config holds configuration settings for the observability pipeline
	Config struct {
		// API Server
		APIHost   string
		APIPort   int
		AdminRoot string
		LogLevel  string

		// Pipeline
		WebSocket WebSocketConfig
		Client    ClientConfig
		Frame     FrameConfig

		// Producer contracts
		Sampling  SamplingConfig
		Limits    LimitsConfig
		Redaction RedactionConfig

		ShutdownTimeout time.Duration
	}

	// WebSocketConfig bounds the transport server
	WebSocketConfig struct {
		HeartbeatInterval time.Duration
		MaxConnections    int
	}

	// ClientConfig tunes the transport client's reconnect behavior
	ClientConfig struct {
		BackoffBase time.Duration
		BackoffCap  time.Duration
		QuietAfter  int
	}

	// FrameConfig tunes frame grouping and snapshot retention
	FrameConfig struct {
		IdleTimeout   time.Duration
		PreviewLength int
		MaxSnapshots  int
	}

	// SamplingConfig selects which executions emit telemetry
	SamplingConfig struct {
		Mode        SamplingMode
		MaxPerNode  int
		Probability float64
	}

	// LimitsConfig caps payload previews before they leave the producer
	LimitsConfig struct {
		MaxPayloadBytes int
		MaxDepth        int
		MaxKeys         int
		MaxArrayItems   int
		MaxStringLength int
	}

	// RedactionConfig lists payload keys masked before any preview is built.
	// Matching is case-insensitive
	RedactionConfig struct {
		Fields []string
	}
)

const (
	SamplingFirstN        SamplingMode = "first-n"
	SamplingErrorsOnly    SamplingMode = "errors-only"
	SamplingProbabilistic SamplingMode = "probabilistic"
	SamplingDebugOnly     SamplingMode = "debug-only"
)

const (
	DefaultAPIHost   = "0.0.0.0"
	DefaultAPIPort   = 1880
	DefaultAdminRoot = "/"
	MaxTCPPort       = 65535

	DefaultHeartbeatInterval = 15 * time.Second
	DefaultMaxConnections    = 10
	MaxMaxConnections        = 1024

	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffCap  = 30 * time.Second
	DefaultQuietAfter  = 10

	DefaultIdleTimeout   = 5 * time.Second
	DefaultPreviewLength = 100
	DefaultMaxSnapshots  = 50
	MaxMaxSnapshots      = 10_000

	DefaultSamplingMaxPerNode  = 10
	DefaultSamplingProbability = 0.1

	DefaultMaxPayloadBytes = 8192
	DefaultMaxDepth        = 4
	DefaultMaxKeys         = 25
	DefaultMaxArrayItems   = 10
	DefaultMaxStringLength = 256

	DefaultShutdownTimeout = 10 * time.Second

	maxInterval = 24 * time.Hour
)

var (
	ErrInvalidAPIPort        = errors.New("invalid API port")
	ErrInvalidHeartbeat      = errors.New("heartbeat interval must be positive")
	ErrInvalidMaxConnections = errors.New("max connections must be positive")
	ErrInvalidIdleTimeout    = errors.New("frame idle timeout must be positive")
	ErrInvalidBackoffBase    = errors.New("backoff base must be positive")
	ErrBackoffCapTooSmall    = errors.New("backoff cap must be >= backoff base")
	ErrInvalidSamplingMode   = errors.New("invalid sampling mode")
	ErrInvalidProbability    = errors.New("probability must be in [0, 1]")
	ErrInvalidLimit          = errors.New("preview limits must be positive")
)

// DefaultRedactionFields are the payload keys masked when no denylist is
// configured
var DefaultRedactionFields = []string{
	"password", "secret", "token", "apikey", "api_key", "authorization",
	"credentials",
}

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, client, framing, and producer contracts
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:   DefaultAPIHost,
		APIPort:   DefaultAPIPort,
		AdminRoot: DefaultAdminRoot,
		LogLevel:  "info",
		WebSocket: WebSocketConfig{
			HeartbeatInterval: DefaultHeartbeatInterval,
			MaxConnections:    DefaultMaxConnections,
		},
		Client: ClientConfig{
			BackoffBase: DefaultBackoffBase,
			BackoffCap:  DefaultBackoffCap,
			QuietAfter:  DefaultQuietAfter,
		},
		Frame: FrameConfig{
			IdleTimeout:   DefaultIdleTimeout,
			PreviewLength: DefaultPreviewLength,
			MaxSnapshots:  DefaultMaxSnapshots,
		},
		Sampling: SamplingConfig{
			Mode:        SamplingFirstN,
			MaxPerNode:  DefaultSamplingMaxPerNode,
			Probability: DefaultSamplingProbability,
		},
		Limits: LimitsConfig{
			MaxPayloadBytes: DefaultMaxPayloadBytes,
			MaxDepth:        DefaultMaxDepth,
			MaxKeys:         DefaultMaxKeys,
			MaxArrayItems:   DefaultMaxArrayItems,
			MaxStringLength: DefaultMaxStringLength,
		},
		Redaction: RedactionConfig{
			Fields: DefaultRedactionFields,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if host := os.Getenv("API_HOST"); host != "" {
		c.APIHost = host
	}
	if root := os.Getenv("ADMIN_ROOT"); root != "" {
		c.AdminRoot = root
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if mode := os.Getenv("SAMPLING_MODE"); mode != "" {
		c.Sampling.Mode = SamplingMode(mode)
	}
	if fields := os.Getenv("REDACTION_FIELDS"); fields != "" {
		c.Redaction.Fields = splitFields(fields)
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"WS_MAX_CONNECTIONS", &c.WebSocket.MaxConnections,
		0, MaxMaxConnections,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"CLIENT_QUIET_AFTER", &c.Client.QuietAfter, 0, 1000,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"FRAME_PREVIEW_LENGTH", &c.Frame.PreviewLength, 0, 1_000_000,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SNAPSHOT_HISTORY", &c.Frame.MaxSnapshots, 0, MaxMaxSnapshots,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SAMPLING_MAX_PER_NODE", &c.Sampling.MaxPerNode, 0, 1_000_000,
	); err != nil {
		return err
	}
	if err := loadEnvFloat(
		"SAMPLING_PROBABILITY", &c.Sampling.Probability,
	); err != nil {
		return err
	}

	if err := c.loadLimits(); err != nil {
		return err
	}
	return c.loadIntervals()
}

func (c *Config) loadLimits() error {
	limits := []struct {
		key string
		dst *int
	}{
		{"LIMIT_MAX_PAYLOAD_BYTES", &c.Limits.MaxPayloadBytes},
		{"LIMIT_MAX_DEPTH", &c.Limits.MaxDepth},
		{"LIMIT_MAX_KEYS", &c.Limits.MaxKeys},
		{"LIMIT_MAX_ARRAY_ITEMS", &c.Limits.MaxArrayItems},
		{"LIMIT_MAX_STRING_LENGTH", &c.Limits.MaxStringLength},
	}
	for _, l := range limits {
		if err := loadEnvInt(l.key, l.dst, 0, 100_000_000); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) loadIntervals() error {
	intervals := []struct {
		key string
		dst *time.Duration
	}{
		{"WS_HEARTBEAT_INTERVAL", &c.WebSocket.HeartbeatInterval},
		{"CLIENT_BACKOFF_BASE", &c.Client.BackoffBase},
		{"CLIENT_BACKOFF_CAP", &c.Client.BackoffCap},
		{"FRAME_IDLE_TIMEOUT", &c.Frame.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
	}
	for _, iv := range intervals {
		if err := loadEnvMillis(iv.key, iv.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeat
	}
	if c.WebSocket.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.Frame.IdleTimeout <= 0 {
		return ErrInvalidIdleTimeout
	}
	if c.Client.BackoffBase <= 0 {
		return ErrInvalidBackoffBase
	}
	if c.Client.BackoffCap < c.Client.BackoffBase {
		return ErrBackoffCapTooSmall
	}
	if c.Sampling.Probability < 0 || c.Sampling.Probability > 1 {
		return fmt.Errorf("%w: %f", ErrInvalidProbability,
			c.Sampling.Probability)
	}

	switch c.Sampling.Mode {
	case SamplingFirstN, SamplingErrorsOnly, SamplingProbabilistic,
		SamplingDebugOnly:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSamplingMode, c.Sampling.Mode)
	}

	limits := []int{
		c.Limits.MaxPayloadBytes, c.Limits.MaxDepth, c.Limits.MaxKeys,
		c.Limits.MaxArrayItems, c.Limits.MaxStringLength,
	}
	for _, l := range limits {
		if l <= 0 {
			return ErrInvalidLimit
		}
	}
	return nil
}

func splitFields(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvMillis reads key as a millisecond count and sets *dst
func loadEnvMillis(key string, dst *time.Duration) error {
	var ms int64
	if err := loadEnvInt(key, &ms, 0, maxInterval.Milliseconds()); err != nil {
		return err
	}
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func loadEnvFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}
