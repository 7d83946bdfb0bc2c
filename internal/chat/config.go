// Package chat provides configuration helpers that define runtime
// defaults, validation, and flood-control parameters for the chat
// service.
package chat

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultListenAddr = ":9000"
	defaultHTTPAddr   = ":8080"
	defaultLogFile    = "server.log"
	defaultMaxClients = 32
	defaultMaxLine    = 1024
)

// RateLimitConfig defines the parameters for per-session message flood
// control. A Burst of zero disables the limiter entirely.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	// ListenAddr is the TCP address the line-protocol server binds.
	ListenAddr string
	// HTTPAddr is the address of the WebSocket gateway.
	HTTPAddr string
	// LogFile is the path of the append-only chat log.
	LogFile string
	// MaxClients is the registry capacity; connections beyond it are
	// rejected, not queued.
	MaxClients int
	// MaxLineSize bounds a single protocol line in bytes.
	MaxLineSize int
	// AllowedOrigins lists origins accepted by the WebSocket gateway.
	AllowedOrigins []string
	// RateLimit throttles public chat lines per session when enabled.
	RateLimit RateLimitConfig
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		ListenAddr:  defaultListenAddr,
		HTTPAddr:    defaultHTTPAddr,
		LogFile:     defaultLogFile,
		MaxClients:  defaultMaxClients,
		MaxLineSize: defaultMaxLine,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = defaultMaxLine
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.Burst > 0 && cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to
// defaults. Changes affect connections accepted after the call; live
// sessions keep the settings they started with.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		ListenAddr:     cfg.ListenAddr,
		HTTPAddr:       cfg.HTTPAddr,
		LogFile:        cfg.LogFile,
		MaxClients:     cfg.MaxClients,
		MaxLineSize:    cfg.MaxLineSize,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config populated with default values.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling
// back to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("CHAT_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("CHAT_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if path := os.Getenv("CHAT_LOG_FILE"); path != "" {
		cfg.LogFile = path
	}
	if v := os.Getenv("CHAT_MAX_CLIENTS"); v != "" {
		cfg.MaxClients = parseIntValue(v, cfg.MaxClients)
	}
	if v := os.Getenv("CHAT_MAX_LINE_SIZE"); v != "" {
		cfg.MaxLineSize = parseIntValue(v, cfg.MaxLineSize)
	}
	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_BURST"); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_REFILL_SECONDS"); v != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(v, cfg.RateLimit.RefillInterval)
	}

	return &cfg
}

// fileConfig is the JSON shape of the configuration file. Durations are
// expressed in whole seconds.
type fileConfig struct {
	ListenAddr             string   `json:"listenAddr"`
	HTTPAddr               string   `json:"httpAddr"`
	LogFile                string   `json:"logFile"`
	MaxClients             int      `json:"maxClients"`
	MaxLineSize            int      `json:"maxLineSize"`
	AllowedOrigins         []string `json:"allowedOrigins"`
	RateLimitBurst         int      `json:"rateLimitBurst"`
	RateLimitRefillSeconds int      `json:"rateLimitRefillSeconds"`
}

// LoadConfigFile reads and parses a JSON configuration file, applying
// defaults for any omitted fields.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
	if fc.MaxClients > 0 {
		cfg.MaxClients = fc.MaxClients
	}
	if fc.MaxLineSize > 0 {
		cfg.MaxLineSize = fc.MaxLineSize
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = fc.RateLimitBurst
	}
	if fc.RateLimitRefillSeconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(fc.RateLimitRefillSeconds) * time.Second
	}
	return &cfg, nil
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
