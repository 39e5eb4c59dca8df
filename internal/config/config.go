package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline. The core packages never
// read the environment; cmds build a Config and inject what each component
// needs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Dumps    DumpsConfig    `yaml:"dumps"`
	Parser   ParserConfig   `yaml:"parser"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings. An empty URL
// disables everything database-backed.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds progress-tracking Redis settings. An empty Addr disables
// progress publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DumpsConfig holds the S3 dump-ingestion settings.
type DumpsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	AWSProfile      string `yaml:"aws_profile"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// ParserConfig holds the parse-worker settings.
type ParserConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	Profile         string `yaml:"profile"` // empty runs every profile
}

// Interval returns the dump poll interval.
func (d DumpsConfig) Interval() time.Duration {
	if d.IntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(d.IntervalMinutes) * time.Minute
}

// Interval returns the parse cycle interval.
func (p ParserConfig) Interval() time.Duration {
	if p.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A missing config file is not an error; the environment alone can carry a
// deployment. .env is honored for local development.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DUMPS_S3_BUCKET"); v != "" {
		cfg.Dumps.S3Bucket = v
		cfg.Dumps.Enabled = true
	}
	if v := os.Getenv("DUMPS_S3_REGION"); v != "" {
		cfg.Dumps.S3Region = v
	}
	if v := os.Getenv("AWS_PROFILE_OVERRIDE"); v != "" {
		cfg.Dumps.AWSProfile = v
	}
	if v := os.Getenv("PARSER_PROFILE"); v != "" {
		cfg.Parser.Profile = v
		cfg.Parser.Enabled = true
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Dumps.S3Region == "" {
		c.Dumps.S3Region = "us-west-2"
	}
}
