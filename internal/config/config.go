package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"priority-agent-backend/internal/agent"
	"priority-agent-backend/internal/db"
	"priority-agent-backend/internal/preferences"
	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/stress"
)

// Engine holds every numeric tunable of the recommendation engine.
type Engine struct {
	Scoring        scoring.Params     `yaml:"scoring"`
	DefaultWeights scoring.Weights    `yaml:"default_weights"`
	Preferences    preferences.Params `yaml:"preferences"`
	Stress         stress.Params      `yaml:"stress"`
	Agent          agent.Params       `yaml:"agent"`
}

func DefaultEngine() Engine {
	return Engine{
		Scoring:        scoring.DefaultParams(),
		DefaultWeights: scoring.DefaultWeights(),
		Preferences:    preferences.DefaultParams(),
		Stress:         stress.DefaultParams(),
		Agent:          agent.DefaultParams(),
	}
}

func (e Engine) Validate() error {
	if e.Scoring.UrgencyScale <= 0 {
		return fmt.Errorf("scoring.urgency_scale must be positive, got %v", e.Scoring.UrgencyScale)
	}
	if err := e.Preferences.Validate(); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	if err := e.Stress.Validate(); err != nil {
		return fmt.Errorf("stress: %w", err)
	}
	if err := e.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	HTTPAddr string
	MaxConns int

	JWTSecret    string
	AuthRequired bool

	LogLevel  string
	LogFormat string

	CORSOrigins []string

	EngineFile string
	Engine     Engine
}

// Load reads .env (if present), the environment and the optional engine
// file named by ENGINE_CONFIG. Env tunables override the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		DBDriver:   getEnv("DB_DRIVER", "sqlite3"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getInt("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "priority_agent"),
		SQLitePath: getEnv("SQLITE_PATH", "priority_agent.db"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		MaxConns: getInt("MAX_CONNS", 256),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		AuthRequired: getBool("AUTH_REQUIRED", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		EngineFile: os.Getenv("ENGINE_CONFIG"),
		Engine:     DefaultEngine(),
	}

	if cfg.EngineFile != "" {
		engine, err := LoadEngine(cfg.EngineFile)
		if err != nil {
			return nil, err
		}
		cfg.Engine = engine
	}
	applyEngineEnv(&cfg.Engine)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "memory", string(db.Postgres), string(db.SQLite):
	default:
		return fmt.Errorf("DB_DRIVER must be memory, postgres or sqlite3, got %q", c.DBDriver)
	}
	if c.AuthRequired && c.JWTSecret == "" {
		return errors.New("AUTH_REQUIRED needs JWT_SECRET")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("MAX_CONNS must be positive, got %d", c.MaxConns)
	}
	return c.Engine.Validate()
}

// LoadEngine reads a YAML tunables file on top of the defaults, so the file
// only needs the keys it changes.
func LoadEngine(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config: %w", err)
	}
	engine := DefaultEngine()
	if err := yaml.Unmarshal(data, &engine); err != nil {
		return Engine{}, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	return engine, nil
}

func applyEngineEnv(e *Engine) {
	e.Scoring.UrgencyScale = getFloat("URGENCY_SCALE", e.Scoring.UrgencyScale)
	e.Preferences.LearningRate = getFloat("LEARNING_RATE", e.Preferences.LearningRate)
	e.Stress.Entry = getFloat("STRESS_ENTRY", e.Stress.Entry)
	e.Stress.Exit = getFloat("STRESS_EXIT", e.Stress.Exit)
	e.Agent.Cooldown = getDuration("IGNORE_COOLDOWN", e.Agent.Cooldown)
}

func (c *Config) ConnString() string {
	if c.DBDriver == string(db.SQLite) {
		return "file:" + c.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
