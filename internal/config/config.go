package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sukryu/stellane/internal/stellaneerr"
)

type Config struct {
	Runtime      RuntimeConfig
	WorkStealing WorkStealingConfig
	Affinity     AffinityConfig
	Recovery     RecoveryConfig
	Journal      JournalConfig
	Server       ServerConfig
	Metrics      MetricsConfig
	Auth         AuthConfig
	LogLevel     string
}

type RuntimeConfig struct {
	Backend         string
	Strategy        string
	WorkerThreads   int
	MaxTasksPerLoop int
	IdleTimeout     time.Duration
}

type WorkStealingConfig struct {
	Enabled           bool
	StealThreshold    int
	StealInterval     time.Duration
	MaxStealAttempts  int
	MaxTasksPerSteal  int
	MinStealInterval  time.Duration
	MaxStealInterval  time.Duration
	RebalanceInterval time.Duration
}

type AffinityConfig struct {
	Mode              string // none, round-robin, numa-aware, custom
	WorkerCoreMap     map[int][]int
	ExcludedCores     []int
	IsolateMainThread bool
	NUMANodes         map[int]int // worker id -> NUMA node
}

type RecoveryConfig struct {
	Enabled                bool
	Backend                string
	Path                   string
	MaxAttempts            uint32
	Timeout                time.Duration
	MaxRecoveryAge         time.Duration
	RetryBackoff           time.Duration
	BackoffMultiplier      float64
	MaxRetryDelay          time.Duration
	IdempotencyWindow      time.Duration
	ResumePendingOnCrash   bool
	MaxRecoveriesPerSecond int
	ExcludedMethods        []string
	ExcludedPathPatterns   []string
	NotifyEndpoints        []string
}

type JournalConfig struct {
	MaxFileSize      int64
	MaxFiles         int
	CompressOldFiles bool
	MaxFileAge       time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads stellane.toml from the working directory/./config/
// /etc/stellane, applying STELLANE_<SECTION>_<KEY> environment overrides
// on top, and returns the validated result.
func Load() (*Config, error) {
	return load("")
}

// LoadFromFile reads exactly the TOML file at path, still honoring
// STELLANE_ env overrides and defaults, per Runtime.init_from_file.
func LoadFromFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stellane")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/stellane")
	}

	setDefaults(v)

	v.SetEnvPrefix("STELLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToDurationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("%w: %v", stellaneerr.ErrConfigInvalid, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validBackends = map[string]bool{
	"cross-platform": true, "readiness-linux": true, "completion-linux": true,
	"custom": true, "user-provided": true,
}

var validStrategies = map[string]bool{
	"fifo": true, "priority": true, "work-stealing": true,
	"affinity": true, "round-robin": true, "custom": true,
}

var validAffinityModes = map[string]bool{
	"none": true, "round-robin": true, "numa-aware": true, "custom": true,
}

func (c *Config) validate() error {
	if !validBackends[c.Runtime.Backend] {
		return fmt.Errorf("%w: runtime.backend %q", stellaneerr.ErrConfigInvalid, c.Runtime.Backend)
	}
	if !validStrategies[c.Runtime.Strategy] {
		return fmt.Errorf("%w: runtime.strategy %q", stellaneerr.ErrConfigInvalid, c.Runtime.Strategy)
	}
	if !validAffinityModes[c.Affinity.Mode] {
		return fmt.Errorf("%w: affinity.mode %q", stellaneerr.ErrConfigInvalid, c.Affinity.Mode)
	}
	if c.Runtime.WorkerThreads < 0 {
		return fmt.Errorf("%w: runtime.worker_threads must be >= 0", stellaneerr.ErrConfigInvalid)
	}
	if c.Recovery.Enabled && c.Recovery.MaxAttempts == 0 {
		return fmt.Errorf("%w: recovery.max_attempts must be > 0 when recovery.enabled", stellaneerr.ErrConfigInvalid)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Runtime defaults
	v.SetDefault("runtime.backend", "cross-platform")
	v.SetDefault("runtime.strategy", "work-stealing")
	v.SetDefault("runtime.workerthreads", 4)
	v.SetDefault("runtime.maxtasksperloop", 256)
	v.SetDefault("runtime.idletimeout", "100ms")

	// Work-stealing defaults
	v.SetDefault("workstealing.enabled", true)
	v.SetDefault("workstealing.stealthreshold", 1)
	v.SetDefault("workstealing.stealinterval", "1ms")
	v.SetDefault("workstealing.maxstealattempts", 2)
	v.SetDefault("workstealing.maxtaskspersteal", 4)
	v.SetDefault("workstealing.minstealinterval", "1ms")
	v.SetDefault("workstealing.maxstealinterval", "50ms")
	v.SetDefault("workstealing.rebalanceinterval", "1s")

	// Affinity defaults
	v.SetDefault("affinity.mode", "none")
	v.SetDefault("affinity.isolatemainthread", false)

	// Recovery defaults
	v.SetDefault("recovery.enabled", false)
	v.SetDefault("recovery.backend", "mmap")
	v.SetDefault("recovery.path", "./data/journal")
	v.SetDefault("recovery.maxattempts", 5)
	v.SetDefault("recovery.timeout", "30s")
	v.SetDefault("recovery.maxrecoveryage", "24h")
	v.SetDefault("recovery.retrybackoff", "2s")
	v.SetDefault("recovery.backoffmultiplier", 2.0)
	v.SetDefault("recovery.maxretrydelay", "5min")
	v.SetDefault("recovery.idempotencywindow", "10min")
	v.SetDefault("recovery.resumependingoncrash", false)
	v.SetDefault("recovery.maxrecoveriespersecond", 0)

	// Journal rotation defaults
	v.SetDefault("journal.maxfilesize", 64<<20)
	v.SetDefault("journal.maxfiles", 32)
	v.SetDefault("journal.compressoldfiles", false)
	v.SetDefault("journal.maxfileage", "0s")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.adminport", 8081)
	v.SetDefault("server.readtimeout", "30s")
	v.SetDefault("server.writetimeout", "30s")
	v.SetDefault("server.idletimeout", "120s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	v.SetDefault("loglevel", "info")
}
