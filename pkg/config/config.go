// Package config loads settings from config.yaml, a .env file and the environment,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSheetURL is the published CSV export of the places sheet
const DefaultSheetURL = "https://docs.google.com/spreadsheets/d/e/2PACX-1vRXOGFWmvUFgJOYffY8arFpHltMm7HUcU2kfQx4lTz-ydft6PBFqKq6Oci9SdejhmvoAJppEApG3Lfn/pub?gid=1462335138&single=true&output=csv"

// Favourites backends
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config structure for YAML configuration
type Config struct {
	App struct {
		Name       string `yaml:"name"`
		SuggestURL string `yaml:"suggest_url"`
	} `yaml:"app"`
	Source struct {
		URL             string `yaml:"url"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
		SnapshotFile    string `yaml:"snapshot_file"`
	} `yaml:"source"`
	Favourites struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
	} `yaml:"favourites"`
	PostGIS struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgis"`
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	var c Config
	c.App.Name = "Halal Mapa Polski"
	c.App.SuggestURL = "https://forms.gle/dL256gxLXWHzCpT7A"
	c.Source.URL = DefaultSheetURL
	c.Source.TimeoutSeconds = 15
	c.Source.CacheTTLMinutes = 30
	c.Source.SnapshotFile = "data/places.gob"
	c.Favourites.Backend = BackendFile
	c.Favourites.Dir = "data"
	c.PostGIS.Host = "localhost"
	c.PostGIS.Port = 5432
	c.PostGIS.User = "postgres"
	c.PostGIS.Database = "halal_mapa"
	c.Server.Port = "8080"
	c.Server.AllowedOrigins = []string{"*"}
	return c
}

// Load reads path (falling back to path+".example"), then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			data, err = os.ReadFile(path + ".example")
			if err == nil {
				log.Printf("Using %s.example (copy to %s for custom settings)", path, path)
			}
		}
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Printf("No %s found, using defaults", path)
		default:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional; production sets the variables directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Source.URL = getEnvWithDefault("SOURCE_URL", cfg.Source.URL)
	cfg.Source.TimeoutSeconds = getEnvAsInt("SOURCE_TIMEOUT_SECONDS", cfg.Source.TimeoutSeconds)
	cfg.Source.CacheTTLMinutes = getEnvAsInt("SOURCE_CACHE_TTL_MINUTES", cfg.Source.CacheTTLMinutes)
	cfg.Source.SnapshotFile = getEnvWithDefault("SOURCE_SNAPSHOT_FILE", cfg.Source.SnapshotFile)
	cfg.Favourites.Backend = getEnvWithDefault("FAVOURITES_BACKEND", cfg.Favourites.Backend)
	cfg.Favourites.Dir = getEnvWithDefault("FAVOURITES_DIR", cfg.Favourites.Dir)
	cfg.PostGIS.Host = getEnvWithDefault("DB_HOST", cfg.PostGIS.Host)
	cfg.PostGIS.Port = getEnvAsInt("DB_PORT", cfg.PostGIS.Port)
	cfg.PostGIS.User = getEnvWithDefault("DB_USER", cfg.PostGIS.User)
	cfg.PostGIS.Password = getEnvWithDefault("DB_PASSWORD", cfg.PostGIS.Password)
	cfg.PostGIS.Database = getEnvWithDefault("DB_NAME", cfg.PostGIS.Database)
	cfg.PostGIS.SSLMode = getEnvWithDefault("DB_SSLMODE", cfg.PostGIS.SSLMode)
	cfg.Server.Port = getEnvWithDefault("PORT", cfg.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
}

// Validate rejects settings the program cannot run with
func (c Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source url is empty")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source timeout must be positive, got %d", c.Source.TimeoutSeconds)
	}
	switch c.Favourites.Backend {
	case BackendFile, BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown favourites backend %q", c.Favourites.Backend)
	}
	return nil
}

// SourceTimeout is the HTTP timeout for the sheet download
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// CacheTTL is how long the server reuses a fetched sheet; zero disables the cache
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Source.CacheTTLMinutes) * time.Minute
}

// Helper functions
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Ignoring %s=%q: not an integer", key, value)
	}
	return defaultValue
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
