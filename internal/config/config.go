// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all simulation and server settings.
//
// IMPORTANT: When changing values, only modify this file (or the realms
// YAML file). All other parts of the codebase should reference these values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// WorldConfig holds the authoritative simulation settings.
type WorldConfig struct {
	TickRate          int     // Simulation steps per second
	SoftBoundary      float64 // Distance from origin where wisps turn back
	MaxCoordinate     float64 // Hard clamp on any position component
	TrustDecayPerTick float64
	SessionTimeoutSec int // Idle seconds before a session is probed/closed
	SweepIntervalSec  int // How often the staleness sweep runs
}

// DefaultWorld returns the default simulation configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		TickRate:          20,
		SoftBoundary:      1800,
		MaxCoordinate:     5000,
		TrustDecayPerTick: 0.005,
		SessionTimeoutSec: 90,
		SweepIntervalSec:  10,
	}
}

// WorldFromEnv returns world configuration with environment overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if t := getEnvInt("SESSION_TIMEOUT_SEC", 0); t > 0 {
		cfg.SessionTimeoutSec = t
	}
	if d := getEnvFloat("TRUST_DECAY_PER_TICK", -1); d >= 0 {
		cfg.TrustDecayPerTick = d
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// Limits controls abuse protection and per-realm capacity ceilings.
type Limits struct {
	MaxSessions        int     // Hard cap on concurrently connected sessions
	MaxEchoesPerRealm  int     // Planted-message ceiling per realm
	MaxStarsPerRealm   int     // Lit-marker ceiling per realm
	InboundPerSecond   float64 // Per-session message-rate ceiling
	InboundBurst       int
	OutboxDepth        int // Buffered frames per session before drops
	PopulationFloor    int // Sessions+wisps below this spawns wisps
	PopulationHeadroom int // Ceiling = floor + headroom
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSessions:        500,
		MaxEchoesPerRealm:  64,
		MaxStarsPerRealm:   128,
		InboundPerSecond:   50,
		InboundBurst:       10,
		OutboxDepth:        64,
		PopulationFloor:    3,
		PopulationHeadroom: 2,
	}
}

// LimitsFromEnv returns limits with environment overrides.
func LimitsFromEnv() Limits {
	cfg := DefaultLimits()

	if m := getEnvInt("MAX_SESSIONS", 0); m > 0 {
		cfg.MaxSessions = m
	}
	if m := getEnvInt("MAX_ECHOES_PER_REALM", 0); m > 0 {
		cfg.MaxEchoesPerRealm = m
	}
	if m := getEnvInt("MAX_STARS_PER_REALM", 0); m > 0 {
		cfg.MaxStarsPerRealm = m
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port             int
	MaxConnsPerIP    int
	DBPath           string
	DebugListenAddr  string
	DisableDebugHTTP bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		MaxConnsPerIP:   10,
		DBPath:          "lanternfall.db",
		DebugListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if m := getEnvInt("MAX_CONNS_PER_IP", 0); m > 0 {
		cfg.MaxConnsPerIP = m
	}
	if p := os.Getenv("DB_PATH"); p != "" {
		cfg.DBPath = p
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DisableDebugHTTP = true
	}

	return cfg
}

// =============================================================================
// REALM CATALOG
// =============================================================================

// Realm is one named partition of the world.
type Realm struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// RealmCatalog is the fixed set of realms plus the passive-correction default.
type RealmCatalog struct {
	Default string  `yaml:"default"`
	Realms  []Realm `yaml:"realms"`
}

// DefaultRealms returns the built-in realm catalog.
func DefaultRealms() RealmCatalog {
	return RealmCatalog{
		Default: "genesis",
		Realms: []Realm{
			{Name: "genesis", Description: "the first clearing"},
			{Name: "aurora", Description: "shifting light over still water"},
			{Name: "ember", Description: "warm dark, slow sparks"},
			{Name: "hollow", Description: "a quiet bowl of stars"},
		},
	}
}

// RealmsFromEnv loads the realm catalog from REALMS_PATH when set,
// falling back to the built-in catalog on any problem.
func RealmsFromEnv() RealmCatalog {
	path := os.Getenv("REALMS_PATH")
	if path == "" {
		return DefaultRealms()
	}
	catalog, err := LoadRealms(path)
	if err != nil {
		return DefaultRealms()
	}
	return catalog
}

// LoadRealms parses a realm catalog YAML file.
func LoadRealms(path string) (RealmCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RealmCatalog{}, fmt.Errorf("read realms: %w", err)
	}

	var catalog RealmCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return RealmCatalog{}, fmt.Errorf("parse realms: %w", err)
	}
	if len(catalog.Realms) == 0 {
		return RealmCatalog{}, fmt.Errorf("realms file %s defines no realms", path)
	}
	if catalog.Default == "" {
		catalog.Default = catalog.Realms[0].Name
	}
	return catalog, nil
}

// Known reports whether name is a realm in the catalog.
func (c RealmCatalog) Known(name string) bool {
	for _, r := range c.Realms {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Names returns the realm names in catalog order.
func (c RealmCatalog) Names() []string {
	names := make([]string, 0, len(c.Realms))
	for _, r := range c.Realms {
		names = append(names, r.Name)
	}
	return names
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World  WorldConfig
	Limits Limits
	Server ServerConfig
	Realms RealmCatalog
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:  WorldFromEnv(),
		Limits: LimitsFromEnv(),
		Server: ServerFromEnv(),
		Realms: RealmsFromEnv(),
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
