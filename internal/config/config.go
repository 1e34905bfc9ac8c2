package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
		// Notify switches change notifications to LISTEN/NOTIFY when redis is not configured.
		Notify bool `yaml:"notify"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL          string `yaml:"ttl"`
		CodeAttempts int    `yaml:"code_attempts"`
	} `yaml:"quiz"`
	Session struct {
		IdleTimeout     string `yaml:"idle_timeout"`
		RefreshInterval string `yaml:"refresh_interval"`
		SubmitTimeout   string `yaml:"submit_timeout"`
		SweepSchedule   string `yaml:"sweep_schedule"`
	} `yaml:"session"`
	Leaderboard struct {
		MaxRetries        int    `yaml:"max_retries"`
		RetryBackoff      string `yaml:"retry_backoff"`
		ReconcileSchedule string `yaml:"reconcile_schedule"`
	} `yaml:"leaderboard"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	Storage struct {
		CloudinaryURL string `yaml:"cloudinary_url"`
		Folder        string `yaml:"folder"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"storage"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
}

// Load reads YAML config from path. Environment variables referenced as
// ${NAME} are expanded before parsing, and a few well-known variables
// override their fields so secrets can stay out of the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, name string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	override(&c.Postgres.URL, "DATABASE_URL")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Storage.CloudinaryURL, "CLOUDINARY_URL")
	override(&c.AMQP.URL, "AMQP_URL")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
