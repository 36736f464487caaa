package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultDBFile           = "progress.db"
	DefaultWindowWeeks      = 12
	DefaultPodWindowWeeks   = 4
	DefaultCacheTTLMinutes  = 15
	DefaultSweepSchedule    = "0 0 6 * * *"  // daily 06:00
	DefaultDigestSchedule   = "0 0 17 * * 0" // sunday 17:00
	DefaultMonitorDays      = 30
	DefaultDigestMaxItems   = 5
	DefaultAtRiskPrediction = 0.5
)

type Config struct {
	Store    StoreConfig    `json:"store"`
	Analysis AnalysisConfig `json:"analysis"`
	Channels ChannelsConfig `json:"channels"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type AnalysisConfig struct {
	WindowWeeks     int     `json:"windowWeeks"`
	PodWindowWeeks  int     `json:"podWindowWeeks"`
	CacheTTLMinutes int     `json:"cacheTtlMinutes"`
	SweepSchedule   string  `json:"sweepSchedule"`
	DigestSchedule  string  `json:"digestSchedule"`
	MonitorDays     int     `json:"monitorDays"`
	RulesPath       string  `json:"rulesPath,omitempty"`
	AtRiskThreshold float64 `json:"atRiskThreshold,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// PodChats maps pod IDs to the Telegram chat that receives that pod's digest.
	PodChats map[string]string `json:"podChats,omitempty"`
	Proxy    string            `json:"proxy,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			DBPath: filepath.Join(ConfigDir(), "data", DefaultDBFile),
		},
		Analysis: AnalysisConfig{
			WindowWeeks:     DefaultWindowWeeks,
			PodWindowWeeks:  DefaultPodWindowWeeks,
			CacheTTLMinutes: DefaultCacheTTLMinutes,
			SweepSchedule:   DefaultSweepSchedule,
			DigestSchedule:  DefaultDigestSchedule,
			MonitorDays:     DefaultMonitorDays,
			AtRiskThreshold: DefaultAtRiskPrediction,
		},
		Channels: ChannelsConfig{},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".progressd")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if path := os.Getenv("PROGRESSD_DB_PATH"); path != "" {
		cfg.Store.DBPath = path
	}
	if token := os.Getenv("PROGRESSD_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if weeks := os.Getenv("PROGRESSD_WINDOW_WEEKS"); weeks != "" {
		if parsed, err := strconv.Atoi(weeks); err == nil && parsed > 0 {
			cfg.Analysis.WindowWeeks = parsed
		}
	}
	if ttl := os.Getenv("PROGRESSD_CACHE_TTL_MINUTES"); ttl != "" {
		if parsed, err := strconv.Atoi(ttl); err == nil && parsed > 0 {
			cfg.Analysis.CacheTTLMinutes = parsed
		}
	}
	if expr := os.Getenv("PROGRESSD_SWEEP_SCHEDULE"); expr != "" {
		cfg.Analysis.SweepSchedule = expr
	}
	if path := os.Getenv("PROGRESSD_RULES_PATH"); path != "" {
		cfg.Analysis.RulesPath = path
	}

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = DefaultConfig().Store.DBPath
	}
	if cfg.Analysis.WindowWeeks <= 0 {
		cfg.Analysis.WindowWeeks = DefaultWindowWeeks
	}
	if cfg.Analysis.PodWindowWeeks <= 0 {
		cfg.Analysis.PodWindowWeeks = DefaultPodWindowWeeks
	}
	if cfg.Analysis.CacheTTLMinutes <= 0 {
		cfg.Analysis.CacheTTLMinutes = DefaultCacheTTLMinutes
	}
	if cfg.Analysis.SweepSchedule == "" {
		cfg.Analysis.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Analysis.DigestSchedule == "" {
		cfg.Analysis.DigestSchedule = DefaultDigestSchedule
	}
	if cfg.Analysis.MonitorDays <= 0 {
		cfg.Analysis.MonitorDays = DefaultMonitorDays
	}
	if cfg.Analysis.AtRiskThreshold <= 0 {
		cfg.Analysis.AtRiskThreshold = DefaultAtRiskPrediction
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
