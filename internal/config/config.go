package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration
type Config struct {
	Server    Server
	Database  Database
	JWT       JWT
	WebSocket WebSocket
	Queue     Queue
	LogLevel  string
}

type Server struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	LogFile        string
}

type Database struct {
	Type string
	URL  string
}

type JWT struct {
	Secret string
	TTL    time.Duration
}

type WebSocket struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
}

type Queue struct {
	Backend  string
	Size     int
	RedisURL string
}

var ErrMissingSecret = errors.New("JWT_SECRET environment variable is required")

// Load reads an optional .env file and resolves configuration from the environment
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return Parse(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_FILE", "server.log")
	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("WS_PING_INTERVAL", "54s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_WRITE_WAIT", "10s")
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 64*1024)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("RATE_LIMIT", 2.0)
	v.SetDefault("RATE_BURST", 20)
	v.SetDefault("OFFLINE_QUEUE", "memory")
	v.SetDefault("OFFLINE_QUEUE_SIZE", 100)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
}

// Parse builds a Config from an already populated viper instance
func Parse(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Port:           v.GetString("PORT"),
			Environment:    v.GetString("ENV"),
			AllowedOrigins: splitCSV(v.GetString("ALLOWED_ORIGINS")),
			LogFile:        v.GetString("LOG_FILE"),
		},
		Database: Database{
			Type: strings.ToLower(v.GetString("DB_TYPE")),
			URL:  v.GetString("DATABASE_URL"),
		},
		JWT: JWT{
			Secret: v.GetString("JWT_SECRET"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		WebSocket: WebSocket{
			PingInterval:   v.GetDuration("WS_PING_INTERVAL"),
			PongWait:       v.GetDuration("WS_PONG_WAIT"),
			WriteWait:      v.GetDuration("WS_WRITE_WAIT"),
			MaxMessageSize: v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			SendBuffer:     v.GetInt("WS_SEND_BUFFER"),
			RateLimit:      v.GetFloat64("RATE_LIMIT"),
			RateBurst:      v.GetInt("RATE_BURST"),
		},
		Queue: Queue{
			Backend:  strings.ToLower(v.GetString("OFFLINE_QUEUE")),
			Size:     v.GetInt("OFFLINE_QUEUE_SIZE"),
			RedisURL: v.GetString("REDIS_URL"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if cfg.JWT.Secret == "" {
		return nil, ErrMissingSecret
	}

	if cfg.Database.URL == "" && cfg.Database.Type == "postgres" {
		// Fallback to individual connection parameters if DATABASE_URL not set
		host, name, user := v.GetString("DB_HOST"), v.GetString("DB_NAME"), v.GetString("DB_USER")
		if host == "" || name == "" || user == "" {
			return nil, errors.New("database connection details missing: set DATABASE_URL or DB_HOST, DB_NAME and DB_USER")
		}
		cfg.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, v.GetString("DB_PASSWORD"), host, v.GetString("DB_PORT"), name,
		)
	}

	if cfg.WebSocket.PingInterval >= cfg.WebSocket.PongWait {
		return nil, fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)",
			cfg.WebSocket.PingInterval, cfg.WebSocket.PongWait)
	}
	if cfg.Queue.Size <= 0 {
		return nil, fmt.Errorf("OFFLINE_QUEUE_SIZE must be positive, got %d", cfg.Queue.Size)
	}
	switch cfg.Queue.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported OFFLINE_QUEUE backend: %s", cfg.Queue.Backend)
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in release mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
