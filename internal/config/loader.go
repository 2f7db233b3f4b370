package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays the environment
// and returns a validated [Config]. A missing file is not an error: the
// configuration is then built from the environment and defaults alone.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadFromReader(strings.NewReader(""))
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Unset variables leave
// the existing field values untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MCPPath == "" {
		cfg.Server.MCPPath = DefaultMCPPath
	}
	if cfg.Content.Path == "" {
		cfg.Content.Path = DefaultContentPath
	}
	if cfg.Game.BonusWindow == 0 {
		cfg.Game.BonusWindow = DefaultBonusWindow
	}
	if cfg.Game.LeaderboardSize == 0 {
		cfg.Game.LeaderboardSize = DefaultLeaderboardSize
	}
	if cfg.Game.MemoryCapacity == 0 {
		cfg.Game.MemoryCapacity = DefaultMemoryCapacity
	}
	if cfg.Game.BaseRating == 0 {
		cfg.Game.BaseRating = DefaultBaseRating
	}
	if cfg.Artwork.Timeout == 0 {
		cfg.Artwork.Timeout = DefaultArtworkTimeout
	}
	if cfg.Artwork.MaxBytes == 0 {
		cfg.Artwork.MaxBytes = DefaultArtworkMaxBytes
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !strings.HasPrefix(cfg.Server.MCPPath, "/") {
		errs = append(errs, fmt.Errorf("server.mcp_path %q must start with /", cfg.Server.MCPPath))
	}
	switch cfg.Server.MCPPath {
	case "/healthz", "/readyz", "/metrics":
		errs = append(errs, fmt.Errorf("server.mcp_path %q collides with a built-in endpoint", cfg.Server.MCPPath))
	}

	// Game
	if cfg.Game.BonusWindow < 0 {
		errs = append(errs, fmt.Errorf("game.bonus_window %s must not be negative", cfg.Game.BonusWindow))
	}
	if cfg.Game.LeaderboardSize < 1 {
		errs = append(errs, fmt.Errorf("game.leaderboard_size %d must be at least 1", cfg.Game.LeaderboardSize))
	}
	if cfg.Game.MemoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("game.memory_capacity %d must be at least 1", cfg.Game.MemoryCapacity))
	}
	if cfg.Game.BaseRating < 0 {
		errs = append(errs, fmt.Errorf("game.base_rating %d must not be negative", cfg.Game.BaseRating))
	}

	// Artwork
	if cfg.Artwork.Timeout < 0 {
		errs = append(errs, fmt.Errorf("artwork.timeout %s must not be negative", cfg.Artwork.Timeout))
	}
	if cfg.Artwork.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("artwork.max_bytes %d must not be negative", cfg.Artwork.MaxBytes))
	}
	if cfg.Artwork.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("artwork.breaker.max_failures %d must not be negative", cfg.Artwork.Breaker.MaxFailures))
	}

	// Auth
	if cfg.Auth.Token == "" {
		errs = append(errs, errors.New("auth.token is required (set COMPANIONHUB_AUTH_TOKEN)"))
	}
	if cfg.Auth.OwnerNumber == "" {
		errs = append(errs, errors.New("auth.owner_number is required (set COMPANIONHUB_OWNER_NUMBER)"))
	}

	return errors.Join(errs...)
}
