package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-show-service/internal/game"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		PublicURL      string   `yaml:"publicURL"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
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
	Mongo struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
	Questions struct {
		File string `yaml:"file"`
		TTL  string `yaml:"ttl"`
	} `yaml:"questions"`
	Show struct {
		MaxPlayers    int    `yaml:"maxPlayers"`
		CodeLength    int    `yaml:"codeLength"`
		CodeAttempts  int    `yaml:"codeAttempts"`
		QuestionTime  string `yaml:"questionTime"`
		TickInterval  string `yaml:"tickInterval"`
		IdleGrace     string `yaml:"idleGrace"`
		DefaultPoints int    `yaml:"defaultPoints"`
	} `yaml:"show"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTTL"`
	} `yaml:"auth"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.PublicURL = "http://localhost:8080"
	cfg.Redis.TTL = "10m"
	cfg.Mongo.Database = "trivia"
	cfg.Mongo.Collection = "questions"
	cfg.NATS.SubjectPrefix = "trivia"
	cfg.Questions.TTL = "10m"
	cfg.Show.MaxPlayers = 8
	cfg.Show.CodeLength = 4
	cfg.Show.CodeAttempts = 10
	cfg.Show.QuestionTime = "20s"
	cfg.Show.TickInterval = "1s"
	cfg.Show.IdleGrace = "10m"
	cfg.Show.DefaultPoints = 10
	cfg.Auth.Secret = "change-me"
	cfg.Auth.TokenTTL = "12h"
	return cfg
}

// Load reads YAML config from path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Settings converts the show section into room rules.
func (c Config) Settings() game.Settings {
	def := game.DefaultSettings()
	s := game.Settings{
		MaxPlayers:    c.Show.MaxPlayers,
		QuestionTime:  TTLDuration(c.Show.QuestionTime, def.QuestionTime),
		DefaultPoints: c.Show.DefaultPoints,
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = def.MaxPlayers
	}
	if s.DefaultPoints <= 0 {
		s.DefaultPoints = def.DefaultPoints
	}
	return s
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
