// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// GUARDLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Optional environment variables:
//   - MYSQL_DSN or GUARDLANE_DATA_DATABASE_SOURCE: MySQL DSN for the audit trail
//   - GUARDLANE_DATA_REDIS_ADDR: Redis address for snapshots and fallbacks
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GUARDLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "GUARDLANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "GUARDLANE_DATA_REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Resilience: &Resilience{
			HealthSweepInterval: durationpb.New(v.GetDuration("resilience.health_sweep_interval")),
			Defaults:            policyFromViper(v, "resilience.defaults"),
			Services:            servicePolicies(v),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// policyFromViper reads one resilience policy rooted at prefix.
func policyFromViper(v *viper.Viper, prefix string) *Resilience_Policy {
	return &Resilience_Policy{
		FailureThreshold:  v.GetInt32(prefix + ".failure_threshold"),
		RecoveryTimeout:   durationpb.New(v.GetDuration(prefix + ".recovery_timeout")),
		MonitoringPeriod:  durationpb.New(v.GetDuration(prefix + ".monitoring_period")),
		HalfOpenMaxCalls:  v.GetInt32(prefix + ".half_open_max_calls"),
		MaxRetries:        v.GetInt32(prefix + ".max_retries"),
		BaseDelay:         durationpb.New(v.GetDuration(prefix + ".base_delay")),
		MaxDelay:          durationpb.New(v.GetDuration(prefix + ".max_delay")),
		BackoffMultiplier: v.GetFloat64(prefix + ".backoff_multiplier"),
		Jitter:            v.GetBool(prefix + ".jitter"),
		Timeout:           durationpb.New(v.GetDuration(prefix + ".timeout")),
		EnableFallback:    v.GetBool(prefix + ".enable_fallback"),
	}
}

// servicePolicies reads the per-service policy overrides. Each override is
// resolved against the defaults at load time, field by field: keys the
// override sets explicitly win, explicit zeros and explicit false included,
// and every other field inherits the defaults value.
func servicePolicies(v *viper.Viper) map[string]*Resilience_Policy {
	services := make(map[string]*Resilience_Policy)
	for name := range v.GetStringMap("resilience.services") {
		services[name] = resolvedPolicy(v, "resilience.services."+name)
	}
	return services
}

// resolvedPolicy reads one service policy, falling back per key to
// resilience.defaults for fields the override leaves unset.
func resolvedPolicy(v *viper.Viper, prefix string) *Resilience_Policy {
	key := func(field string) string {
		if v.IsSet(prefix + "." + field) {
			return prefix + "." + field
		}
		return "resilience.defaults." + field
	}
	return &Resilience_Policy{
		FailureThreshold:  v.GetInt32(key("failure_threshold")),
		RecoveryTimeout:   durationpb.New(v.GetDuration(key("recovery_timeout"))),
		MonitoringPeriod:  durationpb.New(v.GetDuration(key("monitoring_period"))),
		HalfOpenMaxCalls:  v.GetInt32(key("half_open_max_calls")),
		MaxRetries:        v.GetInt32(key("max_retries")),
		BaseDelay:         durationpb.New(v.GetDuration(key("base_delay"))),
		MaxDelay:          durationpb.New(v.GetDuration(key("max_delay"))),
		BackoffMultiplier: v.GetFloat64(key("backoff_multiplier")),
		Jitter:            v.GetBool(key("jitter")),
		Timeout:           durationpb.New(v.GetDuration(key("timeout"))),
		EnableFallback:    v.GetBool(key("enable_fallback")),
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", time.Minute)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", time.Minute)

	// Data defaults: both stores optional, Redis on localhost by convention
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Resilience defaults
	v.SetDefault("resilience.health_sweep_interval", 30*time.Second)
	v.SetDefault("resilience.defaults.failure_threshold", 5)
	v.SetDefault("resilience.defaults.recovery_timeout", 30*time.Second)
	v.SetDefault("resilience.defaults.monitoring_period", 30*time.Second)
	v.SetDefault("resilience.defaults.half_open_max_calls", 3)
	v.SetDefault("resilience.defaults.max_retries", 3)
	v.SetDefault("resilience.defaults.base_delay", 100*time.Millisecond)
	v.SetDefault("resilience.defaults.max_delay", 5*time.Second)
	v.SetDefault("resilience.defaults.backoff_multiplier", 2.0)
	v.SetDefault("resilience.defaults.jitter", true)
	v.SetDefault("resilience.defaults.timeout", 10*time.Second)
	v.SetDefault("resilience.defaults.enable_fallback", false)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the loaded configuration is internally consistent.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Resilience != nil && bc.Resilience.Defaults != nil {
		d := bc.Resilience.Defaults
		if d.FailureThreshold < 1 {
			problems = append(problems, "resilience.defaults.failure_threshold must be >= 1")
		}
		if d.HalfOpenMaxCalls < 1 {
			problems = append(problems, "resilience.defaults.half_open_max_calls must be >= 1")
		}
		if d.MaxRetries < 0 {
			problems = append(problems, "resilience.defaults.max_retries must be >= 0")
		}
		if d.BackoffMultiplier < 1 {
			problems = append(problems, "resilience.defaults.backoff_multiplier must be >= 1")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}
