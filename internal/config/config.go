package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Addr              string
	GRPCPort          int
	DBDriver          string
	DBPath            string
	BroadcastInterval time.Duration
	PointLimit        int
	PointLimitMax     int
	QueryTimeout      time.Duration
	RedisAddr         string
	RedisChannel      string
	MockMode          bool
	AllowedOrigins    []string
	Debug             bool
}

// Load reads .env (when present), then environment variables, then args.
// Flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := &Config{}

	// Defaults and Environment Variables
	originStr := getEnv("TMAP_ALLOWED_ORIGINS", "")
	cfg.Addr = getEnv("TMAP_ADDR", ":5000")
	cfg.GRPCPort = getEnvInt("TMAP_GRPC", 9000)
	cfg.DBDriver = getEnv("TMAP_DB_DRIVER", "sqlite")
	cfg.DBPath = getEnv("TMAP_DB", "")
	cfg.BroadcastInterval = getEnvDuration("TMAP_BROADCAST_INTERVAL", 5*time.Second)
	cfg.PointLimit = getEnvInt("TMAP_POINT_LIMIT", 100)
	cfg.PointLimitMax = getEnvInt("TMAP_POINT_LIMIT_MAX", 500)
	cfg.QueryTimeout = getEnvDuration("TMAP_QUERY_TIMEOUT", 3*time.Second)
	cfg.RedisAddr = getEnv("TMAP_REDIS_ADDR", "")
	cfg.RedisChannel = getEnv("TMAP_REDIS_CHANNEL", "traffic_points")
	cfg.MockMode = getEnvBool("TMAP_MOCK", false)
	cfg.Debug = getEnvBool("TMAP_DEBUG", false)

	// Command Line Flags (Override Env)
	fs := flag.NewFlagSet("tmap", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP and WebSocket listen address")
	fs.IntVar(&cfg.GRPCPort, "grpc", cfg.GRPCPort, "gRPC health port (0 disables)")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Database driver: sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database DSN or SQLite path")
	fs.DurationVar(&cfg.BroadcastInterval, "interval", cfg.BroadcastInterval, "Broadcast tick interval")
	fs.IntVar(&cfg.PointLimit, "limit", cfg.PointLimit, "Default snapshot point limit")
	fs.IntVar(&cfg.PointLimitMax, "limit-max", cfg.PointLimitMax, "Maximum snapshot point limit")
	fs.DurationVar(&cfg.QueryTimeout, "query-timeout", cfg.QueryTimeout, "Per-query store timeout")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for point ingest (empty disables)")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", cfg.RedisChannel, "Redis ingest channel")
	fs.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run the traffic simulator")
	fs.StringVar(&originStr, "origins", originStr, "Allowed WebSocket origins (comma separated, empty allows all)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = parseList(originStr)
	if cfg.DBPath == "" && cfg.DBDriver == "sqlite" {
		cfg.DBPath = getDefaultDBPath()
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BroadcastInterval <= 0 {
		errs = append(errs, fmt.Errorf("broadcast interval must be positive, got %s", c.BroadcastInterval))
	}
	if c.PointLimit <= 0 || c.PointLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("point limits must be positive, got %d and %d", c.PointLimit, c.PointLimitMax))
	} else if c.PointLimit > c.PointLimitMax {
		errs = append(errs, fmt.Errorf("point limit %d exceeds maximum %d", c.PointLimit, c.PointLimitMax))
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("query timeout must not be negative"))
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DBDriver))
	}
	if c.DBDriver == "postgres" && c.DBPath == "" {
		errs = append(errs, fmt.Errorf("postgres requires a DSN"))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid gRPC port %d", c.GRPCPort))
	}
	return errors.Join(errs...)
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDBPath returns ~/.tmap/tmap.db, or tmap.db when the home directory is unknown.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("Could not get user home directory, using current dir", "error", err)
		return "tmap.db"
	}
	return filepath.Join(home, ".tmap", "tmap.db")
}
