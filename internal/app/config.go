package app

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fredpottier/factgov/internal/conflict"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/utils"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string
	Version     string

	JWTSecretKey string
	CORSOrigins  []string

	// Tolerance is the numeric-divergence threshold below which two values
	// corroborate. Configuration, not a hardcoded business constant.
	Tolerance float64

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Neo4jTimeout  int
	Neo4jPoolSize int

	RedisAddr string
}

// fileConfig is the optional YAML overlay pointed at by FACTGOV_CONFIG.
// Environment variables win over file values.
type fileConfig struct {
	Port        string   `yaml:"port"`
	LogMode     string   `yaml:"log_mode"`
	Environment string   `yaml:"environment"`
	Version     string   `yaml:"version"`
	JWTSecret   string   `yaml:"jwt_secret"`
	CORSOrigins []string `yaml:"cors_origins"`
	Tolerance   float64  `yaml:"tolerance"`
	Neo4j       struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		Timeout  int    `yaml:"timeout_seconds"`
		PoolSize int    `yaml:"max_pool_size"`
	} `yaml:"neo4j"`
	RedisAddr string `yaml:"redis_addr"`
}

func LoadConfig(log *logger.Logger) Config {
	var file fileConfig
	if path := strings.TrimSpace(os.Getenv("FACTGOV_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable, using env only", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &file); err != nil {
			log.Warn("config file malformed, using env only", "path", path, "error", err)
		}
	}

	tolerance := utils.GetEnvAsFloat("CONFLICT_TOLERANCE", fallbackFloat(file.Tolerance, conflict.DefaultTolerance), log)

	cfg := Config{
		Port:          utils.GetEnv("PORT", fallback(file.Port, "8080"), log),
		LogMode:       utils.GetEnv("LOG_MODE", fallback(file.LogMode, "development"), log),
		Environment:   utils.GetEnv("ENVIRONMENT", fallback(file.Environment, "development"), log),
		Version:       utils.GetEnv("SERVICE_VERSION", fallback(file.Version, "dev"), log),
		JWTSecretKey:  utils.GetEnv("JWT_SECRET_KEY", fallback(file.JWTSecret, "defaultsecret"), log),
		CORSOrigins:   file.CORSOrigins,
		Tolerance:     tolerance,
		Neo4jURI:      utils.GetEnv("NEO4J_URI", file.Neo4j.URI, log),
		Neo4jUser:     utils.GetEnv("NEO4J_USER", fallback(file.Neo4j.User, "neo4j"), log),
		Neo4jPassword: utils.GetEnv("NEO4J_PASSWORD", file.Neo4j.Password, log),
		Neo4jDatabase: utils.GetEnv("NEO4J_DATABASE", file.Neo4j.Database, log),
		Neo4jTimeout:  utils.GetEnvAsInt("NEO4J_TIMEOUT_SECONDS", fallbackInt(file.Neo4j.Timeout, 10), log),
		Neo4jPoolSize: utils.GetEnvAsInt("NEO4J_MAX_POOL_SIZE", fallbackInt(file.Neo4j.PoolSize, 50), log),
		RedisAddr:     utils.GetEnv("REDIS_ADDR", file.RedisAddr, log),
	}
	if origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); origins != "" {
		cfg.CORSOrigins = splitAndTrim(origins)
	}
	return cfg
}

func fallback(fromFile, def string) string {
	if strings.TrimSpace(fromFile) != "" {
		return fromFile
	}
	return def
}

func fallbackInt(fromFile, def int) int {
	if fromFile > 0 {
		return fromFile
	}
	return def
}

func fallbackFloat(fromFile, def float64) float64 {
	if fromFile > 0 {
		return fromFile
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
