// Package config loads engine configuration from a YAML file and the
// environment. File values override defaults; CONCLAVE_* environment
// variables override both, so deployments can tune single knobs without
// shipping a config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/conclave/engine"
)

// Config is the loadable configuration surface. The coordination section
// mirrors engine.Config; the rest wires ambient concerns.
type Config struct {
	SessionTimeout       time.Duration `mapstructure:"session_timeout"`
	OracleCallTimeout    time.Duration `mapstructure:"oracle_call_timeout"`
	AllocationFloor      float64       `mapstructure:"allocation_floor"`
	ConvergenceThreshold float64       `mapstructure:"convergence_threshold"`
	MaxConsensusRounds   int           `mapstructure:"max_consensus_rounds"`
	MaxConsensusTopics   int           `mapstructure:"max_consensus_topics"`
	MaxRosterSize        int           `mapstructure:"max_roster_size"`
	DefaultLeaderID      string        `mapstructure:"default_leader_id"`

	Logging LoggingConfig `mapstructure:"logging"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// LoggingConfig selects level and output format for the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig points the Redis event log at its server. Addr empty means the
// Redis event log is not used.
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	StreamPrefix string `mapstructure:"stream_prefix"`
}

// Load reads configuration from the given YAML file path, overridden by
// CONCLAVE_* environment variables (e.g. CONCLAVE_ALLOCATION_FLOOR=2.5,
// CONCLAVE_LOGGING_LEVEL=debug). An empty path loads defaults plus
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := engine.DefaultConfig
	v.SetDefault("session_timeout", def.SessionTimeout)
	v.SetDefault("oracle_call_timeout", def.OracleCallTimeout)
	v.SetDefault("allocation_floor", def.AllocationFloor)
	v.SetDefault("convergence_threshold", def.ConvergenceThreshold)
	v.SetDefault("max_consensus_rounds", def.MaxConsensusRounds)
	v.SetDefault("max_consensus_topics", def.MaxConsensusTopics)
	v.SetDefault("max_roster_size", def.MaxRosterSize)
	v.SetDefault("default_leader_id", def.DefaultLeaderID)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.stream_prefix", "conclave:events:")

	v.SetEnvPrefix("CONCLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %s", c.SessionTimeout)
	}
	if c.AllocationFloor < 0 || c.AllocationFloor > 5 {
		return fmt.Errorf("allocation_floor must be in [0,5], got %g", c.AllocationFloor)
	}
	if c.ConvergenceThreshold < 0 || c.ConvergenceThreshold > 1 {
		return fmt.Errorf("convergence_threshold must be in [0,1], got %g", c.ConvergenceThreshold)
	}
	return nil
}

// Engine converts the coordination section into an engine.Config.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		SessionTimeout:       c.SessionTimeout,
		OracleCallTimeout:    c.OracleCallTimeout,
		AllocationFloor:      c.AllocationFloor,
		ConvergenceThreshold: c.ConvergenceThreshold,
		MaxConsensusRounds:   c.MaxConsensusRounds,
		MaxConsensusTopics:   c.MaxConsensusTopics,
		MaxRosterSize:        c.MaxRosterSize,
		DefaultLeaderID:      c.DefaultLeaderID,
	}
}
