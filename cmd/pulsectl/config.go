package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type config struct {
	Server         string
	SessionDB      string
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	LogLevel       string
	LogFormat      string
}

type fileConfig struct {
	Server         string `toml:"server"`
	SessionDB      string `toml:"session_db"`
	RequestTimeout string `toml:"request_timeout"`
	RefreshTimeout string `toml:"refresh_timeout"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
}

func defaultConfig() config {
	return config{
		Server:         "http://127.0.0.1:8080",
		SessionDB:      filepath.Join(configDir(), "session.db"),
		RequestTimeout: 15 * time.Second,
		RefreshTimeout: 10 * time.Second,
		LogLevel:       "warn",
		LogFormat:      "pretty",
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pulse")
	}
	return ".pulse"
}

func defaultConfigPath() string { return filepath.Join(configDir(), "pulsectl.toml") }

// loadConfig overlays the TOML file at path on the defaults. A missing file is not an error
// unless the caller named it explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return config{}, fmt.Errorf("load pulsectl config: %w", err)
	}

	if meta.IsDefined("server") {
		if v := strings.TrimSpace(raw.Server); v != "" {
			cfg.Server = v
		}
	}
	if meta.IsDefined("session_db") {
		if v := strings.TrimSpace(raw.SessionDB); v != "" {
			cfg.SessionDB = v
		}
	}
	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if meta.IsDefined("refresh_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RefreshTimeout))
		if err != nil {
			return config{}, fmt.Errorf("parse refresh_timeout: %w", err)
		}
		cfg.RefreshTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load pulsectl config: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}
