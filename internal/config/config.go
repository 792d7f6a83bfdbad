package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server     ServerConfig
	Completion CompletionConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type CompletionConfig struct {
	BaseURL         string
	DefaultProvider string
	ChatModel       string
	SummaryModel    string
	Temperature     float64
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Completion: CompletionConfig{
			BaseURL:         "http://localhost:8787",
			DefaultProvider: "chatgpt",
			ChatModel:       "gpt-4o",
			SummaryModel:    "gpt-4o-mini",
			Temperature:     0.4,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/atelier/config.json, then applies ATELIER_* environment
// overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "atelier-data"
		}
	}
	return filepath.Join(dir, "atelier")
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
	return filepath.Join(dir, "atelier", "config.json")
}
