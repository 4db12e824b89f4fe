package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"` // "dev" or "prod"
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTtl"`
	} `yaml:"auth"`
	Content struct {
		MediaDir     string `yaml:"mediaDir"`
		MediaBaseURL string `yaml:"mediaBaseUrl"`
		HTTPTimeout  string `yaml:"httpTimeout"`
	} `yaml:"content"`
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
	Duel struct {
		Questions int    `yaml:"questions"`
		RoomTTL   string `yaml:"roomTtl"`
	} `yaml:"duel"`
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

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
