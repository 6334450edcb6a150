package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Keywords KeywordsConfig
	Feed     FeedConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type KeywordsConfig struct {
	// DictDir points at a directory of dictionary YAML files. Empty means
	// the embedded default dictionary.
	DictDir string
}

type FeedConfig struct {
	CandidateWindow int
	RecentDays      int
}

type WorkerConfig struct {
	PollInterval string
	Concurrency  int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Feed: FeedConfig{
			CandidateWindow: 100,
			RecentDays:      30,
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
			Concurrency:  4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML config file at
// $XDG_CONFIG_HOME/relevance/config.yaml, then applies RELEVANCE_*
// environment overrides. The API token guards content writes and must be
// present from one of the two sources.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable RELEVANCE_API_TOKEN")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "relevance-data"
		}
	}
	return filepath.Join(dir, "relevance")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "relevance", "config.yaml")
}
