package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Exam struct {
		CacheTTL      string `yaml:"cache_ttl"`
		Tick          string `yaml:"tick"`
		SubmitTimeout string `yaml:"submit_timeout"`
	} `yaml:"exam"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		TokenTTL         string `yaml:"token_ttl"`
		IdentifierDomain string `yaml:"identifier_domain"`
	} `yaml:"auth"`
	AI      AI      `yaml:"ai"`
	Storage Storage `yaml:"storage"`
	Logging Logging `yaml:"logging"`
}

// AI configures the OpenAI-compatible chat completions endpoint.
type AI struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Timeout           string `yaml:"timeout"`
}

// Storage configures the S3-compatible image bucket.
type Storage struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ErrMissingJWTSecret rejects a server config that would sign tokens with an empty key.
var ErrMissingJWTSecret = errors.New("auth.jwt_secret is required")

// ValidateServer checks the settings the HTTP server cannot start without.
func (c Config) ValidateServer() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	return nil
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
