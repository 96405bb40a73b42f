// Package config loads brminer settings from files, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hed1ad/brminer/pkg/detectors/brm"
)

// DetectorConfig holds the bagging random miner settings.
type DetectorConfig struct {
	Estimators     int
	SamplePercent  int
	SampleCount    int
	UseSampleCount bool
	Smoothing      bool
	Contamination  float64
	Threshold      float64
	Seed           int64
	Workers        int
}

// Options maps the settings to miner options.
func (c DetectorConfig) Options() []brm.Option {
	opts := []brm.Option{
		brm.WithEstimators(c.Estimators),
		brm.WithSmoothing(c.Smoothing),
		brm.WithContamination(c.Contamination),
		brm.WithThreshold(c.Threshold),
		brm.WithSeed(c.Seed),
	}
	if c.UseSampleCount {
		opts = append(opts, brm.WithSampleCount(c.SampleCount))
	} else {
		opts = append(opts, brm.WithSamplePercent(c.SamplePercent))
	}
	if c.Workers > 0 {
		opts = append(opts, brm.WithWorkers(c.Workers))
	}
	return opts
}

// ServerConfig holds the HTTP scoring service settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RateLimit is the accepted /classify requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Addr returns the listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig holds the model store settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("brminer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/brminer")
	}

	// Environment variable support: BRMINER_SERVER_PORT=9090
	v.SetEnvPrefix("BRMINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	d := brm.DefaultConfig()
	v.SetDefault("detector.estimators", d.Estimators)
	v.SetDefault("detector.sample_percent", d.SamplePercent)
	v.SetDefault("detector.sample_count", d.SampleCount)
	v.SetDefault("detector.use_sample_count", d.UseSampleCount)
	v.SetDefault("detector.smoothing", d.Smoothing)
	v.SetDefault("detector.contamination", d.Contamination)
	v.SetDefault("detector.threshold", d.Threshold)
	v.SetDefault("detector.seed", d.RandomSeed)
	v.SetDefault("detector.workers", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.result_ttl", "5m")
}

// Detector returns the detector section.
func Detector(v *viper.Viper) DetectorConfig {
	return DetectorConfig{
		Estimators:     v.GetInt("detector.estimators"),
		SamplePercent:  v.GetInt("detector.sample_percent"),
		SampleCount:    v.GetInt("detector.sample_count"),
		UseSampleCount: v.GetBool("detector.use_sample_count"),
		Smoothing:      v.GetBool("detector.smoothing"),
		Contamination:  v.GetFloat64("detector.contamination"),
		Threshold:      v.GetFloat64("detector.threshold"),
		Seed:           v.GetInt64("detector.seed"),
		Workers:        v.GetInt("detector.workers"),
	}
}

// Server returns the server section.
func Server(v *viper.Viper) ServerConfig {
	return ServerConfig{
		Host:            v.GetString("server.host"),
		Port:            v.GetInt("server.port"),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		RateLimit:       v.GetFloat64("server.rate_limit"),
		RateBurst:       v.GetInt("server.rate_burst"),
	}
}

// Redis returns the redis section.
func Redis(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Addr:      v.GetString("redis.addr"),
		Password:  v.GetString("redis.password"),
		DB:        v.GetInt("redis.db"),
		ResultTTL: v.GetDuration("redis.result_ttl"),
	}
}
