// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all session-core settings.
//
// IMPORTANT: When changing defaults, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port     int
	LogFile  string
	LogDebug bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:    3000,
		LogFile: "gridkeep.log",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if f := os.Getenv("LOG_FILE"); f != "" {
		cfg.LogFile = f
	}
	if os.Getenv("LOG_DEBUG") == "true" {
		cfg.LogDebug = true
	}

	return cfg
}

// =============================================================================
// ROOM CONFIGURATION
// =============================================================================

// RoomConfig controls the per-room timers and limits.
type RoomConfig struct {
	TickInterval    time.Duration // command queue drain cadence
	CommandsPerTick int           // max commands applied per tick
	GraceWindow     time.Duration // reconnection window after an abrupt disconnect
	CountdownSecs   int           // pre-game countdown length
	AutosaveEvery   time.Duration // snapshot persistence cadence
	Retention       int           // snapshots kept per game id
	MirrorEvery     time.Duration // presence -> participant mirror cadence
	ExpirySweep     time.Duration // stale session sweep cadence
	ExpiryCutoff    time.Duration // liveness age that counts as expired
	EvictFlushDelay time.Duration // notice flush delay before a forced close
	LogLines        int           // bounded room log retention
}

// DefaultRoom returns the default room configuration.
func DefaultRoom() RoomConfig {
	return RoomConfig{
		TickInterval:    100 * time.Millisecond,
		CommandsPerTick: 32,
		GraceWindow:     180 * time.Second,
		CountdownSecs:   5,
		AutosaveEvery:   10 * time.Second,
		Retention:       3,
		MirrorEvery:     5 * time.Second,
		ExpirySweep:     60 * time.Second,
		ExpiryCutoff:    120 * time.Second,
		EvictFlushDelay: 100 * time.Millisecond,
		LogLines:        200,
	}
}

// RoomFromEnv returns room configuration with environment variable overrides.
func RoomFromEnv() RoomConfig {
	cfg := DefaultRoom()

	if ms := getEnvInt("TICK_MS", 0); ms > 0 {
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if n := getEnvInt("COMMANDS_PER_TICK", 0); n > 0 {
		cfg.CommandsPerTick = n
	}
	if s := getEnvInt("GRACE_SECONDS", 0); s > 0 {
		cfg.GraceWindow = time.Duration(s) * time.Second
	}
	if s := getEnvInt("COUNTDOWN_SECONDS", 0); s > 0 {
		cfg.CountdownSecs = s
	}
	if s := getEnvInt("AUTOSAVE_SECONDS", 0); s > 0 {
		cfg.AutosaveEvery = time.Duration(s) * time.Second
	}
	if n := getEnvInt("SNAPSHOT_RETENTION", 0); n > 0 {
		cfg.Retention = n
	}

	return cfg
}

// =============================================================================
// PRESENCE CONFIGURATION
// =============================================================================

// PresenceConfig controls liveness tiers and the sweep cadence.
type PresenceConfig struct {
	SweepEvery    time.Duration // background status recompute cadence
	GreenWithin   time.Duration // heartbeat age for status green
	YellowWithin  time.Duration // heartbeat age for status yellow
	PingGreenMs   float64       // smoothed RTT ceiling for net tier green
	PingYellowMs  float64       // smoothed RTT ceiling for net tier yellow
	SmoothingPrev float64       // EWMA weight of the previous sample
}

// DefaultPresence returns the default presence configuration.
func DefaultPresence() PresenceConfig {
	return PresenceConfig{
		SweepEvery:    5 * time.Second,
		GreenWithin:   10 * time.Second,
		YellowWithin:  20 * time.Second,
		PingGreenMs:   60,
		PingYellowMs:  120,
		SmoothingPrev: 0.7,
	}
}

// =============================================================================
// AUTH CONFIGURATION
// =============================================================================

// AuthConfig controls identity verification policy.
type AuthConfig struct {
	JWTSecret            string // HMAC secret for identity tokens; empty disables verification
	RequireLogin         bool   // refuse guests when true
	RequireVerifiedEmail bool   // refuse unverified identities when true
	EnforceSingleSession bool   // evict older connections holding the same identity
}

// DefaultAuth returns the default auth configuration.
func DefaultAuth() AuthConfig {
	return AuthConfig{
		EnforceSingleSession: true,
	}
}

// AuthFromEnv returns auth configuration with environment variable overrides.
func AuthFromEnv() AuthConfig {
	cfg := DefaultAuth()

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if os.Getenv("REQUIRE_LOGIN") == "true" {
		cfg.RequireLogin = true
	}
	if os.Getenv("REQUIRE_VERIFIED_EMAIL") == "true" {
		cfg.RequireVerifiedEmail = true
	}
	if os.Getenv("SINGLE_SESSION") == "false" {
		cfg.EnforceSingleSession = false
	}

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig controls terrain generation and the glyph palette.
type WorldConfig struct {
	Width       int
	Height      int
	Seed        int64
	PalettePath string // optional YAML palette override
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:  60,
		Height: 24,
		Seed:   1337,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvInt("MAP_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("MAP_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if s := os.Getenv("MAP_SEED"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	cfg.PalettePath = os.Getenv("PALETTE_PATH")

	return cfg
}

// =============================================================================
// PERSISTENCE CONFIGURATION
// =============================================================================

// StoreConfig holds durable store settings.
type StoreConfig struct {
	Path string // sqlite database path
}

// DefaultStore returns the default store configuration.
func DefaultStore() StoreConfig {
	return StoreConfig{Path: "data/gridkeep.db"}
}

// StoreFromEnv returns store configuration with environment variable overrides.
func StoreFromEnv() StoreConfig {
	cfg := DefaultStore()
	if p := os.Getenv("DB_PATH"); p != "" {
		cfg.Path = p
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server   ServerConfig
	Room     RoomConfig
	Presence PresenceConfig
	Auth     AuthConfig
	World    WorldConfig
	Store    StoreConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:   ServerFromEnv(),
		Room:     RoomFromEnv(),
		Presence: DefaultPresence(),
		Auth:     AuthFromEnv(),
		World:    WorldFromEnv(),
		Store:    StoreFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
