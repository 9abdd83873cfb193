package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ossim/backend/internal/engine"
	"ossim/backend/internal/memory"
	"ossim/backend/internal/scheduler"
	"ossim/backend/internal/workload"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Workload   workload.Config  `mapstructure:"workload"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Security   SecurityConfig   `mapstructure:"security"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type SimulationConfig struct {
	Policy                string        `mapstructure:"policy"`
	Quantum               int           `mapstructure:"quantum"`
	Frames                int           `mapstructure:"frames"`
	Replacement           string        `mapstructure:"replacement"`
	Processes             int           `mapstructure:"processes"`
	FileAccessProbability float64       `mapstructure:"file_access_probability"`
	HoldDuration          time.Duration `mapstructure:"hold_duration"`
	Seed                  int64         `mapstructure:"seed"`
	StepInterval          time.Duration `mapstructure:"step_interval"`
	LogTail               int           `mapstructure:"log_tail"`
	MaxRuns               int           `mapstructure:"max_runs"`
}

type UserConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
	Users     []UserConfig  `mapstructure:"users"`
}

type SecurityConfig struct {
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateBurst      int      `mapstructure:"rate_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	PostgresURL string        `mapstructure:"postgres_url"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisDB     int           `mapstructure:"redis_db"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

type SnapshotsConfig struct {
	Dir string `mapstructure:"dir"`
}

type AuditConfig struct {
	LogPath       string        `mapstructure:"log_path"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type ThresholdsConfig struct {
	MemoryUsage float64 `mapstructure:"memory_usage"`
	FaultRate   float64 `mapstructure:"fault_rate"`
	Conflicts   float64 `mapstructure:"conflicts"`
}

type MetricsConfig struct {
	MaxDataPoints int              `mapstructure:"max_data_points"`
	MaxAlerts     int              `mapstructure:"max_alerts"`
	Thresholds    ThresholdsConfig `mapstructure:"thresholds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")

	defaults := engine.DefaultConfig()
	v.SetDefault("simulation.policy", string(defaults.Policy))
	v.SetDefault("simulation.quantum", defaults.Quantum)
	v.SetDefault("simulation.frames", defaults.Frames)
	v.SetDefault("simulation.replacement", string(defaults.Replacement))
	v.SetDefault("simulation.processes", defaults.Processes)
	v.SetDefault("simulation.file_access_probability", defaults.FileAccessProbability)
	v.SetDefault("simulation.hold_duration", defaults.Hold)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.step_interval", 500*time.Millisecond)
	v.SetDefault("simulation.log_tail", 50)
	v.SetDefault("simulation.max_runs", 32)

	w := workload.DefaultConfig()
	v.SetDefault("workload.burst.min", w.Burst.Min)
	v.SetDefault("workload.burst.max", w.Burst.Max)
	v.SetDefault("workload.priority.min", w.Priority.Min)
	v.SetDefault("workload.priority.max", w.Priority.Max)
	v.SetDefault("workload.page_count.min", w.PageCount.Min)
	v.SetDefault("workload.page_count.max", w.PageCount.Max)
	v.SetDefault("workload.page_ids.min", w.PageIDs.Min)
	v.SetDefault("workload.page_ids.max", w.PageIDs.Max)
	v.SetDefault("workload.file_count.min", w.FileCount.Min)
	v.SetDefault("workload.file_count.max", w.FileCount.Max)
	v.SetDefault("workload.files", w.Files)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.issuer", "ossim")

	v.SetDefault("security.rate_limit", 20.0)
	v.SetDefault("security.rate_burst", 40)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.max_body_bytes", 1<<20)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_ttl", 7*24*time.Hour)

	v.SetDefault("snapshots.dir", "./data/snapshots")

	v.SetDefault("audit.log_path", "./data/audit.log")
	v.SetDefault("audit.buffer_size", 100)
	v.SetDefault("audit.flush_interval", 5*time.Second)

	v.SetDefault("metrics.max_data_points", 1000)
	v.SetDefault("metrics.max_alerts", 100)
	v.SetDefault("metrics.thresholds.memory_usage", 100.0)
	v.SetDefault("metrics.thresholds.fault_rate", 0.75)
	v.SetDefault("metrics.thresholds.conflicts", 10.0)
}

// Load reads defaults, then the optional file at path, then OSSIM_* variables
// (OSSIM_SIMULATION_QUANTUM overrides simulation.quantum).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("OSSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is empty", ErrInvalidConfig)
	}

	if _, err := c.Engine(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Simulation.StepInterval <= 0 {
		return fmt.Errorf("%w: simulation.step_interval must be positive", ErrInvalidConfig)
	}
	if c.Simulation.MaxRuns <= 0 {
		return fmt.Errorf("%w: simulation.max_runs must be positive", ErrInvalidConfig)
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 16 {
			return fmt.Errorf("%w: auth.jwt_secret must be at least 16 bytes", ErrInvalidConfig)
		}
		if len(c.Auth.Users) == 0 {
			return fmt.Errorf("%w: auth is enabled but no users are configured", ErrInvalidConfig)
		}
		for _, u := range c.Auth.Users {
			if u.Username == "" || (u.Password == "" && u.PasswordHash == "") {
				return fmt.Errorf("%w: user %q needs a name and a password", ErrInvalidConfig, u.Username)
			}
		}
	}

	if c.Security.RateLimit < 0 || c.Security.RateBurst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for postgres", ErrInvalidConfig)
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Metrics.MaxDataPoints <= 0 {
		return fmt.Errorf("%w: metrics.max_data_points must be positive", ErrInvalidConfig)
	}
	return nil
}

// Engine returns the run defaults as a validated engine config.
func (c *Config) Engine() (engine.Config, error) {
	cfg := engine.Config{
		Policy:                scheduler.Policy(c.Simulation.Policy),
		Quantum:               c.Simulation.Quantum,
		Frames:                c.Simulation.Frames,
		Replacement:           memory.Replacement(c.Simulation.Replacement),
		Processes:             c.Simulation.Processes,
		FileAccessProbability: c.Simulation.FileAccessProbability,
		Hold:                  c.Simulation.HoldDuration,
		Seed:                  c.Simulation.Seed,
		Workload:              c.Workload,
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}
