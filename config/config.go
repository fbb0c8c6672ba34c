package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

type Config struct {
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	StoreDriver      string
	SQLitePath       string
	RedisAddr        string
	ServerPort       string
	JWTSecret        string
	GeminiAPIKey     string
	GeminiEndpoint   string
	LogLevel         string
	LogFormat        string
	TuningFile       string
}

func LoadConfig() Config {
	return Config{
		DatabaseHost:     getEnv("DATABASE_HOST", "db"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseUser:     getEnv("DATABASE_USER", "postgres"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", "password"),
		DatabaseName:     getEnv("DATABASE_NAME", "torchverso"),
		StoreDriver:      getEnv("STORE_DRIVER", "postgres"),
		SQLitePath:       getEnv("SQLITE_PATH", "torchverso.db"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiEndpoint: getEnv(
			"GEMINI_ENDPOINT",
			"https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent",
		),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "console"),
		TuningFile: os.Getenv("TUNING_FILE"),
	}
}

func (c Config) PostgresConnStr() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
	)
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// InitDB opens the save store selected by StoreDriver.
func InitDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.StoreDriver {
	case "postgres":
		db, err = sql.Open("postgres", cfg.PostgresConnStr())
	case "sqlite":
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.StoreDriver, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.StoreDriver, err)
	}
	return db, nil
}

func InitRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}
