// Package config loads dnsflatd's configuration from a YAML file with
// environment variable overrides, following the same layered-load and
// normalize pattern as the teacher's configuration package, retargeted at
// the flattening proxy's own settings surface: upstreams, selection
// strategy, health checks, cache bounds, CNAME flattening, rate limiting,
// logging, and the admin HTTP surface.
//
// Environment variables use the DNSFLATD_ prefix and underscore-separated
// keys, e.g. DNSFLATD_SERVER_PORT -> server.port.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// WorkersMode specifies how the front end's concurrent-query ceiling is determined.
type WorkersMode int

const (
	WorkersAuto WorkersMode = iota
	WorkersFixed
)

// WorkerSetting is the parsed form of ServerConfig.WorkersRaw.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains frontend listener settings (C9).
type ServerConfig struct {
	Host             string        `yaml:"host"               mapstructure:"host"`
	Port             int           `yaml:"port"               mapstructure:"port"`
	Workers          WorkerSetting `yaml:"-"                  mapstructure:"-"`
	WorkersRaw       string        `yaml:"workers"            mapstructure:"workers"`
	EnableTCP        bool          `yaml:"enable_tcp"         mapstructure:"enable_tcp"`
	ReusePort        bool          `yaml:"reuse_port"         mapstructure:"reuse_port"`
	TCPIdleTimeout   time.Duration `yaml:"-"                  mapstructure:"-"`
	TCPIdleTimeoutRaw string       `yaml:"tcp_idle_timeout"   mapstructure:"tcp_idle_timeout"`
}

// UpstreamConfig describes one configured upstream resolver (C1).
type UpstreamConfig struct {
	Name               string   `yaml:"name"                 mapstructure:"name"`
	Addrs              []string `yaml:"addrs"                mapstructure:"addrs"`
	Port               int      `yaml:"port"                mapstructure:"port"`
	Weight             int      `yaml:"weight"              mapstructure:"weight"`
	Priority           int      `yaml:"priority"            mapstructure:"priority"`
	HealthCheckEnabled bool     `yaml:"health_check"        mapstructure:"health_check"`
	TimeoutRaw         string   `yaml:"timeout"             mapstructure:"timeout"`
	Timeout            time.Duration `yaml:"-"               mapstructure:"-"`
	Description        string   `yaml:"description"         mapstructure:"description"`
}

// SelectorConfig chooses the upstream selection strategy (C6).
type SelectorConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
}

// HealthConfig parameterizes the health monitor (C5).
type HealthConfig struct {
	Enabled              bool   `yaml:"enabled"               mapstructure:"enabled"`
	IntervalRaw          string `yaml:"interval"              mapstructure:"interval"`
	Interval             time.Duration `yaml:"-"              mapstructure:"-"`
	TimeoutRaw           string `yaml:"timeout"               mapstructure:"timeout"`
	Timeout              time.Duration `yaml:"-"              mapstructure:"-"`
	FailureThreshold     int    `yaml:"failure_threshold"     mapstructure:"failure_threshold"`
	RecoveryThreshold    int    `yaml:"recovery_threshold"    mapstructure:"recovery_threshold"`
	StartupGraceRaw      string `yaml:"startup_grace"         mapstructure:"startup_grace"`
	StartupGrace         time.Duration `yaml:"-"              mapstructure:"-"`
}

// CacheConfig parameterizes the TTL cache (C4).
type CacheConfig struct {
	MaxSize             int     `yaml:"max_size"             mapstructure:"max_size"`
	CleanupIntervalRaw  string  `yaml:"cleanup_interval"     mapstructure:"cleanup_interval"`
	CleanupInterval     time.Duration `yaml:"-"              mapstructure:"-"`
	SweepProbability    float64 `yaml:"sweep_probability"   mapstructure:"sweep_probability"`
}

// FlattenerConfig parameterizes the flattening resolver (C8).
type FlattenerConfig struct {
	MinTTL             uint32 `yaml:"min_ttl"               mapstructure:"min_ttl"`
	MaxTTL             uint32 `yaml:"max_ttl"               mapstructure:"max_ttl"`
	DefaultTTL         uint32 `yaml:"default_ttl"           mapstructure:"default_ttl"`
	MaxNegativeTTL     uint32 `yaml:"max_negative_ttl"      mapstructure:"max_negative_ttl"`
	MaxRecursion       int    `yaml:"max_recursion"        mapstructure:"max_recursion"`
	RemoveAAAA         bool   `yaml:"remove_aaaa"          mapstructure:"remove_aaaa"`
	MaxUpstreamRetries int    `yaml:"max_upstream_retries" mapstructure:"max_upstream_retries"`
	QueryTimeoutRaw    string `yaml:"query_timeout"        mapstructure:"query_timeout"`
	QueryTimeout       time.Duration `yaml:"-"             mapstructure:"-"`
	MaxInFlightPerUpstream int `yaml:"max_in_flight_per_upstream" mapstructure:"max_in_flight_per_upstream"`
}

// RateLimitConfig controls the per-IP token bucket in the frontend.
type RateLimitConfig struct {
	IPQPS          float64 `yaml:"ip_qps"          mapstructure:"ip_qps"`
	IPBurst        int     `yaml:"ip_burst"        mapstructure:"ip_burst"`
	MaxIPEntries   int     `yaml:"max_ip_entries"  mapstructure:"max_ip_entries"`
	CleanupSeconds float64 `yaml:"cleanup_seconds" mapstructure:"cleanup_seconds"`
}

// LoggingConfig mirrors the teacher's logging settings unchanged.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// AdminConfig controls the admin/stats HTTP surface (gin + swaggo).
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// StateStoreConfig controls periodic durable snapshots of upstream health
// and metrics history.
type StateStoreConfig struct {
	Enabled              bool   `yaml:"enabled"               mapstructure:"enabled"`
	Path                 string `yaml:"path"                  mapstructure:"path"`
	SnapshotIntervalRaw  string `yaml:"snapshot_interval"     mapstructure:"snapshot_interval"`
	SnapshotInterval     time.Duration `yaml:"-"              mapstructure:"-"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig      `yaml:"server"     mapstructure:"server"`
	Upstreams  []UpstreamConfig  `yaml:"upstreams"  mapstructure:"upstreams"`
	Selector   SelectorConfig    `yaml:"selector"   mapstructure:"selector"`
	Health     HealthConfig      `yaml:"health"     mapstructure:"health"`
	Cache      CacheConfig       `yaml:"cache"      mapstructure:"cache"`
	Flattener  FlattenerConfig   `yaml:"flattener"  mapstructure:"flattener"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging    LoggingConfig     `yaml:"logging"    mapstructure:"logging"`
	Admin      AdminConfig       `yaml:"admin"      mapstructure:"admin"`
	StateStore StateStoreConfig  `yaml:"state_store" mapstructure:"state_store"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DNSFLATD_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. Configuration priority (highest to lowest):
//  1. Environment variables (DNSFLATD_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
