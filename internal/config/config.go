// Package config collects environment-level configuration. A .env file in
// the working directory is honored when present; every setting has a
// default that keeps the tool fully functional offline.
package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/indranil/pokerledger/internal/remote"
)

const (
	// BackendJSON selects the crash-safe JSON file store.
	BackendJSON = "json"
	// BackendSQLite selects the SQLite store.
	BackendSQLite = "sqlite"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DataDir is the directory holding the JSON file store.
	DataDir string

	// Backend selects the storage backend: BackendJSON or BackendSQLite.
	Backend string

	// DBPath is the SQLite database path (sqlite backend only).
	DBPath string

	// MetricsAddr is the optional listen address for the /metrics and
	// /healthz endpoints. Empty disables the listener.
	MetricsAddr string

	// GitHub configures the remote sync target. An unset token leaves
	// remote sync disabled; local operation is unaffected.
	GitHub remote.GitHubConfig
}

// Load reads configuration from the environment, loading .env first when it
// exists. Missing values fall back to defaults.
func Load() Config {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	return Config{
		DataDir:     getEnv("DATA_DIR", "./data"),
		Backend:     getEnv("STORE_BACKEND", BackendJSON),
		DBPath:      getEnv("DB_PATH", "./data/pokerledger.db"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		GitHub: remote.GitHubConfig{
			Token:    os.Getenv("GITHUB_TOKEN"),
			Owner:    os.Getenv("GITHUB_OWNER"),
			Repo:     os.Getenv("GITHUB_REPO"),
			Branch:   getEnv("GITHUB_BRANCH", "main"),
			FilePath: getEnv("SYNC_FILE", "snapshot.json"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
