package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Poll     PollConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects the poll store. Driver is one of sqlite, postgres, mysql, mongo or memory.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig is optional: an empty URL disables presence mirroring and rate limiting.
type RedisConfig struct {
	URL          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// KafkaConfig is optional: no brokers disables the activity feed. Client picks the
// producer: kafka-go (async) or sarama (sync, acks from all replicas).
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Client  string
}

// MinIOConfig is optional: an empty endpoint disables result archiving.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

type PollConfig struct {
	DefaultTimer int
	TimerUnit    time.Duration
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("POLL_HOST"),
			Port:           v.GetString("POLL_PORT"),
			ReadTimeout:    v.GetDuration("POLL_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("POLL_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("POLL_IDLE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DB_DSN"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
			Client:  strings.ToLower(v.GetString("KAFKA_CLIENT")),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			ExpirationTime: v.GetDuration("JWT_EXPIRE"),
		},
		Poll: PollConfig{
			DefaultTimer: v.GetInt("POLL_DEFAULT_TIMER"),
			TimerUnit:    v.GetDuration("POLL_TIMER_UNIT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("POLL_HOST", "")
	v.SetDefault("POLL_PORT", "8080")
	v.SetDefault("POLL_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("POLL_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("POLL_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "polls.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "polls")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "poll-activity")
	v.SetDefault("KAFKA_CLIENT", "kafka-go")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_BUCKET", "poll-results")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("JWT_EXPIRE", "24h")
	v.SetDefault("POLL_DEFAULT_TIMER", 60)
	v.SetDefault("POLL_TIMER_UNIT", time.Second)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Kafka.Client {
	case "kafka-go", "sarama":
	default:
		return fmt.Errorf("unsupported KAFKA_CLIENT %q", c.Kafka.Client)
	}
	if c.Poll.DefaultTimer <= 0 {
		return fmt.Errorf("POLL_DEFAULT_TIMER must be positive, got %d", c.Poll.DefaultTimer)
	}
	if c.Poll.TimerUnit <= 0 {
		return fmt.Errorf("POLL_TIMER_UNIT must be positive, got %s", c.Poll.TimerUnit)
	}
	if c.JWT.ExpirationTime <= 0 {
		return fmt.Errorf("JWT_EXPIRE must be positive, got %s", c.JWT.ExpirationTime)
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func (c LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
