// Package config provides the configuration schema and loader for the
// companionhub server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr      = ":8086"
	DefaultMCPPath         = "/mcp"
	DefaultContentPath     = "configs/content.yaml"
	DefaultBonusWindow     = 22 * time.Hour
	DefaultLeaderboardSize = 10
	DefaultMemoryCapacity  = 20
	DefaultBaseRating      = 1200
	DefaultArtworkTimeout  = 15 * time.Second
	DefaultArtworkMaxBytes = 8 << 20
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Fields tagged with env are overridden by the matching environment
// variable when it is set.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Content ContentConfig `yaml:"content"`
	Game    GameConfig    `yaml:"game"`
	Artwork ArtworkConfig `yaml:"artwork"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8086").
	ListenAddr string `yaml:"listen_addr" env:"COMPANIONHUB_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"COMPANIONHUB_LOG_LEVEL"`

	// MCPPath is the HTTP path the MCP endpoint is mounted on.
	MCPPath string `yaml:"mcp_path" env:"COMPANIONHUB_MCP_PATH"`
}

// ContentConfig locates the persona and adventure document.
type ContentConfig struct {
	// Path is a YAML or JSON content document. The server refuses to start
	// when it cannot be loaded.
	Path string `yaml:"path" env:"COMPANIONHUB_CONTENT_PATH"`
}

// GameConfig tunes progression and ranking.
type GameConfig struct {
	// BonusWindow is the idle time after which a chat earns the return bonus.
	BonusWindow time.Duration `yaml:"bonus_window"`

	// LeaderboardSize caps the number of leaderboard rows.
	LeaderboardSize int `yaml:"leaderboard_size"`

	// MemoryCapacity bounds the per-user memory log.
	MemoryCapacity int `yaml:"memory_capacity"`

	// BaseRating is the starting competitive rating.
	BaseRating int `yaml:"base_rating"`
}

// ArtworkConfig tunes the image fetcher.
type ArtworkConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-host circuit breakers of the artwork fetcher.
// Zero values fall back to the breaker's own defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// AuthConfig holds the caller credential and the owner identity returned by
// the validate tool. Both are normally supplied through the environment.
type AuthConfig struct {
	Token       string `yaml:"token" env:"COMPANIONHUB_AUTH_TOKEN"`
	OwnerNumber string `yaml:"owner_number" env:"COMPANIONHUB_OWNER_NUMBER"`
}
