package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DNSFLATD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 53)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.enable_tcp", true)
	v.SetDefault("server.reuse_port", true)
	v.SetDefault("server.tcp_idle_timeout", "30s")

	v.SetDefault("selector.strategy", "weighted")

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.timeout", "2s")
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.recovery_threshold", 2)
	v.SetDefault("health.startup_grace", "10s")

	v.SetDefault("cache.max_size", 100000)
	v.SetDefault("cache.cleanup_interval", "60s")
	v.SetDefault("cache.sweep_probability", 0.01)

	v.SetDefault("flattener.min_ttl", 0)
	v.SetDefault("flattener.max_ttl", 86400)
	v.SetDefault("flattener.default_ttl", 300)
	v.SetDefault("flattener.max_negative_ttl", 300)
	v.SetDefault("flattener.max_recursion", 16)
	v.SetDefault("flattener.remove_aaaa", false)
	v.SetDefault("flattener.max_upstream_retries", 2)
	v.SetDefault("flattener.query_timeout", "2s")
	v.SetDefault("flattener.max_in_flight_per_upstream", 512)

	v.SetDefault("rate_limit.ip_qps", 50.0)
	v.SetDefault("rate_limit.ip_burst", 100)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8080)
	v.SetDefault("admin.api_key", "")

	v.SetDefault("state_store.enabled", false)
	v.SetDefault("state_store.path", "dnsflatd-state.db")
	v.SetDefault("state_store.snapshot_interval", "60s")
}

func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	loadServerConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadSelectorConfig(v, cfg)
	loadHealthConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadFlattenerConfig(v, cfg)
	loadRateLimitConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAdminConfig(v, cfg)
	loadStateStoreConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.EnableTCP = v.GetBool("server.enable_tcp")
	cfg.Server.ReusePort = v.GetBool("server.reuse_port")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
	cfg.Server.TCPIdleTimeoutRaw = v.GetString("server.tcp_idle_timeout")
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	if !v.IsSet("upstreams") {
		cfg.Upstreams = []UpstreamConfig{
			{Name: "cloudflare", Addrs: []string{"1.1.1.1"}, Port: 53, Weight: 100, Priority: 1, HealthCheckEnabled: true, TimeoutRaw: "2s"},
		}
		return
	}
	var upstreams []UpstreamConfig
	if err := v.UnmarshalKey("upstreams", &upstreams); err != nil {
		upstreams = nil
	}
	cfg.Upstreams = upstreams
}

func loadSelectorConfig(v *viper.Viper, cfg *Config) {
	cfg.Selector.Strategy = strings.ToLower(v.GetString("selector.strategy"))
}

func loadHealthConfig(v *viper.Viper, cfg *Config) {
	cfg.Health.Enabled = v.GetBool("health.enabled")
	cfg.Health.IntervalRaw = v.GetString("health.interval")
	cfg.Health.TimeoutRaw = v.GetString("health.timeout")
	cfg.Health.FailureThreshold = v.GetInt("health.failure_threshold")
	cfg.Health.RecoveryThreshold = v.GetInt("health.recovery_threshold")
	cfg.Health.StartupGraceRaw = v.GetString("health.startup_grace")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.MaxSize = v.GetInt("cache.max_size")
	cfg.Cache.CleanupIntervalRaw = v.GetString("cache.cleanup_interval")
	cfg.Cache.SweepProbability = v.GetFloat64("cache.sweep_probability")
}

func loadFlattenerConfig(v *viper.Viper, cfg *Config) {
	cfg.Flattener.MinTTL = uint32(v.GetUint("flattener.min_ttl"))
	cfg.Flattener.MaxTTL = uint32(v.GetUint("flattener.max_ttl"))
	cfg.Flattener.DefaultTTL = uint32(v.GetUint("flattener.default_ttl"))
	cfg.Flattener.MaxNegativeTTL = uint32(v.GetUint("flattener.max_negative_ttl"))
	cfg.Flattener.MaxRecursion = v.GetInt("flattener.max_recursion")
	cfg.Flattener.RemoveAAAA = v.GetBool("flattener.remove_aaaa")
	cfg.Flattener.MaxUpstreamRetries = v.GetInt("flattener.max_upstream_retries")
	cfg.Flattener.QueryTimeoutRaw = v.GetString("flattener.query_timeout")
	cfg.Flattener.MaxInFlightPerUpstream = v.GetInt("flattener.max_in_flight_per_upstream")
}

func loadRateLimitConfig(v *viper.Viper, cfg *Config) {
	cfg.RateLimit.IPQPS = v.GetFloat64("rate_limit.ip_qps")
	cfg.RateLimit.IPBurst = v.GetInt("rate_limit.ip_burst")
	cfg.RateLimit.MaxIPEntries = v.GetInt("rate_limit.max_ip_entries")
	cfg.RateLimit.CleanupSeconds = v.GetFloat64("rate_limit.cleanup_seconds")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAdminConfig(v *viper.Viper, cfg *Config) {
	cfg.Admin.Enabled = v.GetBool("admin.enabled")
	cfg.Admin.Host = v.GetString("admin.host")
	cfg.Admin.Port = v.GetInt("admin.port")
	cfg.Admin.APIKey = v.GetString("admin.api_key")
}

func loadStateStoreConfig(v *viper.Viper, cfg *Config) {
	cfg.StateStore.Enabled = v.GetBool("state_store.enabled")
	cfg.StateStore.Path = v.GetString("state_store.path")
	cfg.StateStore.SnapshotIntervalRaw = v.GetString("state_store.snapshot_interval")
}

func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

func parseDurationDefault(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// normalizeConfig validates the configuration and resolves every *Raw
// duration/string field into its parsed counterpart.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	cfg.Server.TCPIdleTimeout = parseDurationDefault(cfg.Server.TCPIdleTimeoutRaw, 30*time.Second)

	if len(cfg.Upstreams) == 0 {
		return errors.New("at least one upstream must be configured")
	}
	for i := range cfg.Upstreams {
		u := &cfg.Upstreams[i]
		if u.Name == "" {
			return fmt.Errorf("upstreams[%d].name must not be empty", i)
		}
		if len(u.Addrs) == 0 {
			return fmt.Errorf("upstream %q: at least one address required", u.Name)
		}
		if u.Port <= 0 {
			u.Port = 53
		}
		if u.Weight <= 0 {
			u.Weight = 100
		}
		if u.Priority <= 0 {
			u.Priority = 1
		}
		u.Timeout = parseDurationDefault(u.TimeoutRaw, 2*time.Second)
	}

	switch cfg.Selector.Strategy {
	case "weighted", "lowest-latency", "failover", "round-robin", "random", "least-queries":
	default:
		cfg.Selector.Strategy = "weighted"
	}

	cfg.Health.Interval = parseDurationDefault(cfg.Health.IntervalRaw, 30*time.Second)
	cfg.Health.Timeout = parseDurationDefault(cfg.Health.TimeoutRaw, 2*time.Second)
	cfg.Health.StartupGrace = parseDurationDefault(cfg.Health.StartupGraceRaw, 10*time.Second)
	if cfg.Health.FailureThreshold <= 0 {
		cfg.Health.FailureThreshold = 3
	}
	if cfg.Health.RecoveryThreshold <= 0 {
		cfg.Health.RecoveryThreshold = 2
	}

	cfg.Cache.CleanupInterval = parseDurationDefault(cfg.Cache.CleanupIntervalRaw, 60*time.Second)
	if cfg.Cache.MaxSize <= 0 {
		cfg.Cache.MaxSize = 100000
	}
	if cfg.Cache.SweepProbability < 0 || cfg.Cache.SweepProbability > 1 {
		cfg.Cache.SweepProbability = 0.01
	}

	if cfg.Flattener.MaxTTL > 0 && cfg.Flattener.MinTTL > cfg.Flattener.MaxTTL {
		return errors.New("flattener.min_ttl must not exceed flattener.max_ttl")
	}
	if cfg.Flattener.MaxRecursion <= 0 {
		cfg.Flattener.MaxRecursion = 16
	}
	if cfg.Flattener.MaxUpstreamRetries < 0 {
		cfg.Flattener.MaxUpstreamRetries = 0
	}
	cfg.Flattener.QueryTimeout = parseDurationDefault(cfg.Flattener.QueryTimeoutRaw, 2*time.Second)
	if cfg.Flattener.MaxInFlightPerUpstream <= 0 {
		cfg.Flattener.MaxInFlightPerUpstream = 512
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
	if cfg.Admin.Enabled && (cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535) {
		return errors.New("admin.port must be 1..65535")
	}

	cfg.StateStore.SnapshotInterval = parseDurationDefault(cfg.StateStore.SnapshotIntervalRaw, 60*time.Second)
	if cfg.StateStore.Path == "" {
		cfg.StateStore.Path = "dnsflatd-state.db"
	}

	return nil
}
