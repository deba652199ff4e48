package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"op-insight/internal/openproject"
	"op-insight/internal/store"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// SnapshotFile is the memory store snapshot inside CacheDir.
const SnapshotFile = "store.jsonl"

// AppConfig holds the complete application configuration.
type AppConfig struct {
	OpenProject openproject.Config
	Store       store.Config

	DataPath string
	LogDir   string
	CacheDir string

	// HTTPAddr is the listen address of the JSON API.
	HTTPAddr string
	// SyncCron is a 5-field cron spec for the scheduled import. Empty disables it.
	SyncCron string
	// SyncFile is the export imported by the scheduled and triggered imports.
	SyncFile string
	// DurationPolicy reduces repeated in-progress to done pairings: first, last or average.
	DurationPolicy string
	AppEnv         string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Executable's directory first, so an installed binary finds its own .env
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Then the working directory. godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := filepath.Join(dataPath, "logs")
	cacheDir := filepath.Join(dataPath, "cache")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", cacheDir).Msg("Failed to create cache directory")
	}

	timeoutSecs, err := strconv.Atoi(getEnv("OPENPROJECT_TIMEOUT_SECONDS", "60"))
	if err != nil || timeoutSecs <= 0 {
		log.Warn().Str("value", os.Getenv("OPENPROJECT_TIMEOUT_SECONDS")).Msg("Invalid OPENPROJECT_TIMEOUT_SECONDS, using 60")
		timeoutSecs = 60
	}

	cfg := &AppConfig{
		OpenProject: openproject.Config{
			BaseURL:      getEnv("OPENPROJECT_URL", ""),
			APIKey:       getEnv("OPENPROJECT_API_KEY", ""),
			ClientID:     getEnv("OPENPROJECT_CLIENT_ID", ""),
			ClientSecret: getEnv("OPENPROJECT_CLIENT_SECRET", ""),
			Timeout:      time.Duration(timeoutSecs) * time.Second,
		},
		Store: store.Config{
			Driver:       getEnv("STORE_DRIVER", store.DriverMemory),
			DSN:          getEnv("DB_DSN", ""),
			SnapshotPath: filepath.Join(cacheDir, SnapshotFile),
		},
		DataPath:       dataPath,
		LogDir:         logDir,
		CacheDir:       cacheDir,
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		SyncCron:       getEnv("SYNC_CRON", ""),
		SyncFile:       getEnv("SYNC_FILE", filepath.Join(dataPath, "work_packages.json")),
		DurationPolicy: getEnv("DURATION_POLICY", "first"),
		AppEnv:         getEnv("APP_ENV", "prod"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
