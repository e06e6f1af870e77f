package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Quiz source kinds.
const (
	SourceStatic   = "static"
	SourcePostgres = "postgres"
	SourceHTTP     = "http"
	SourceSheet    = "xlsx"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
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
	Quiz struct {
		TTL string `yaml:"ttl"`
		// SessionTTL is how long an untouched session is kept; defaults to redis.ttl.
		SessionTTL string `yaml:"sessionTTL"`
		// Source selects the question source: static, postgres, http or xlsx.
		Source string `yaml:"source"`
		// URL is the quiz-data endpoint for the http source; may contain {quizId}.
		URL string `yaml:"url"`
		// Dir holds <quizId>.xlsx workbooks for the xlsx source.
		Dir     string `yaml:"dir"`
		Default string `yaml:"default"`
	} `yaml:"quiz"`
	Rules struct {
		TimeLimit       int    `yaml:"timeLimit"`
		BasePoints      int    `yaml:"basePoints"`
		StreakThreshold int    `yaml:"streakThreshold"`
		StreakBonus     int    `yaml:"streakBonus"`
		ExtraTimeBonus  int    `yaml:"extraTimeBonus"`
		PowerUpUses     int    `yaml:"powerUpUses"`
		RevealDelay     string `yaml:"revealDelay"`
		TickInterval    string `yaml:"tickInterval"`
	} `yaml:"rules"`
	Events struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields an empty config so
// the service can run on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// QuizSource returns the configured source, defaulting to postgres when a
// database is configured and the built-in quizzes otherwise.
func (c Config) QuizSource() string {
	source := strings.ToLower(strings.TrimSpace(c.Quiz.Source))
	if source != "" {
		return source
	}
	if c.Postgres.URL != "" {
		return SourcePostgres
	}
	return SourceStatic
}

func (c *Config) applyEnv() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if url := os.Getenv("QUIZ_DATA_URL"); url != "" {
		c.Quiz.URL = url
	}
}

// SessionTTL returns quiz.sessionTTL, then redis.ttl, then fallback.
func (c Config) SessionTTL(fallback time.Duration) time.Duration {
	return TTLDuration(c.Quiz.SessionTTL, TTLDuration(c.Redis.TTL, fallback))
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
