// Package config loads application configuration from environment
// variables. Required values are enforced with must(); optional values
// fall back to defaults suited for a local sqlite deployment.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBDriver     string // "sqlite3" or "mysql"
	DBPath       string // sqlite database file (DBDriver=sqlite3)
	DBUser       string // mysql username (DBDriver=mysql)
	DBPass       string // mysql password, empty allowed
	DBHost       string // mysql host
	DBPort       string // mysql port
	DBName       string // mysql database name
	JWTSecret    string // secret used to sign access tokens
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for credential hashing
}

// Load reads configuration from the environment. Missing required
// variables abort startup with a fatal log message; mysql connection
// fields are required only when DB_DRIVER selects mysql.
func Load() Config {
	cfg := Config{
		Env:          getenv("APP_ENV", "dev"),
		Port:         must("APP_PORT"),
		DBDriver:     getenv("DB_DRIVER", "sqlite3"),
		DBPath:       getenv("DB_PATH", "vault-blog.db"),
		DBPass:       os.Getenv("DB_PASS"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),
	}
	if cfg.DBDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
