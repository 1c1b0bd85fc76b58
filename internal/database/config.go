package database

import (
	"os"
	"strconv"
)

// Config holds the database configuration
type Config struct {
	URL              string
	AuthToken        string
	ProjectsDir      string
	MultiProjectMode bool
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleSec   int
	ConnMaxLifeSec   int
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	url := os.Getenv("LIBSQL_URL")
	if url == "" {
		url = "file:./correlations.db"
	}

	cfg := &Config{
		URL:            url,
		AuthToken:      os.Getenv("LIBSQL_AUTH_TOKEN"),
		ProjectsDir:    os.Getenv("PROJECTS_DIR"),
		MaxOpenConns:   envInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   envInt("DB_MAX_IDLE_CONNS"),
		ConnMaxIdleSec: envInt("DB_CONN_MAX_IDLE_SEC"),
		ConnMaxLifeSec: envInt("DB_CONN_MAX_LIFETIME_SEC"),
	}
	cfg.MultiProjectMode = cfg.ProjectsDir != ""
	return cfg
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
