package config

type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Server      ServerConfig      `json:"server"`
	Negotiation NegotiationConfig `json:"negotiation"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
	Report      ReportConfig      `json:"report"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Debug       DebugConfig       `json:"debug"`
	// Features force-enables or disables optional components by name
	// ("ratelimit", "report", "storage", "timing", "debug"). Omitted names
	// follow their section's settings.
	Features map[string]bool `json:"features,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig controls the HTTP listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - addr: "127.0.0.1:8080"
//   - read_timeout: "10s"
//   - write_timeout: "0s" (disabled; async requests may be long)
//   - idle_timeout: "60s"
//   - async_timeout: "30s"
//   - shutdown_timeout: "10s"
//   - slow_request: "0s" (disabled)
type ServerConfig struct {
	Addr            string `json:"addr,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	AsyncTimeout    string `json:"async_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	SlowRequest     string `json:"slow_request,omitempty"`
}

// NegotiationConfig declares the content-type resolver chain.
//
// Example:
//
//	"negotiation": {
//	  "strategies": ["parameter", "header"],
//	  "parameter_name": "format",
//	  "media_types": {"json": "application/json", "txt": "text/plain"}
//	}
type NegotiationConfig struct {
	Strategies    []string          `json:"strategies,omitempty"`
	ParameterName string            `json:"parameter_name,omitempty"`
	MediaTypes    map[string]string `json:"media_types,omitempty"`
	Fixed         []string          `json:"fixed,omitempty"`
}

// RateLimitConfig is a global token bucket. rate_per_sec <= 0 disables it.
type RateLimitConfig struct {
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// ReportConfig controls the periodic request timing report.
//
// Schedule accepts cron expressions (with optional seconds field) and
// descriptors such as "@every 1m". Empty disables the report.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty"`
	// History bounds how many timings are kept in memory between reports.
	History  int    `json:"history,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/appkit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the diagnostics listener (pprof, startup breakdown,
// goroutine stats). An empty addr disables it.
//
// A non-loopback addr requires token or allow_insecure.
type DebugConfig struct {
	Addr                 string `json:"addr,omitempty"`
	Prefix               string `json:"prefix,omitempty"`
	Token                string `json:"token,omitempty"`
	AllowInsecure        bool   `json:"allow_insecure,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}
