// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the controller's YAML configuration. A missing
// file is created with defaults on first run, and a small set of
// environment variables override the file for containerized deploys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the full controller configuration.
type Config struct {
	// Server holds the HTTP listener settings.
	Server ServerConfig `yaml:"server"`

	// Bus holds the event queue settings.
	Bus BusConfig `yaml:"bus"`

	// Locks holds the lock table settings.
	Locks LockConfig `yaml:"locks"`

	// Valves holds the registry thresholds.
	Valves ValveConfig `yaml:"valves"`

	// Quarantine holds the ledger settings.
	Quarantine QuarantineConfig `yaml:"quarantine"`

	// Escalation holds the sink settings.
	Escalation EscalationConfig `yaml:"escalation"`

	// Audit holds the archive settings.
	Audit AuditConfig `yaml:"audit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// BusConfig configures the event queue.
type BusConfig struct {
	// QueueBound is the maximum number of buffered events.
	QueueBound int `yaml:"queue_bound"`
}

// LockConfig configures the lock table and its sweeper.
type LockConfig struct {
	// DefaultTTL applies to local and regional locks that do not name
	// their own TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// SweepInterval is the expiry sweeper's tick.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ValveConfig configures registry thresholds as load ratios.
type ValveConfig struct {
	ElevatedRatio    float64 `yaml:"elevated_ratio"`
	CriticalRatio    float64 `yaml:"critical_ratio"`
	CascadeThreshold float64 `yaml:"cascade_threshold"`

	// ClusterCritical is the magnitude a cluster event must reach
	// before regional mitigation is worth attempting.
	ClusterCritical float64 `yaml:"cluster_critical"`
}

// QuarantineConfig configures the ledger.
type QuarantineConfig struct {
	// CapacityUnits is the ledger's live capacity.
	CapacityUnits float64 `yaml:"capacity_units"`
}

// EscalationConfig configures the escalation sink.
type EscalationConfig struct {
	QueueBound    int           `yaml:"queue_bound"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	RatePerSecond float64       `yaml:"rate_per_second"`

	// WebhookURL, when set, delivers escalations by HTTP POST instead
	// of the structured log.
	WebhookURL string `yaml:"webhook_url"`
}

// AuditConfig configures the persistent audit archive.
type AuditConfig struct {
	// ArchivePath is the badger directory. Empty disables persistence.
	ArchivePath string `yaml:"archive_path"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8093",
		},
		Bus: BusConfig{
			QueueBound: 1024,
		},
		Locks: LockConfig{
			DefaultTTL:    30 * time.Second,
			SweepInterval: time.Second,
		},
		Valves: ValveConfig{
			ElevatedRatio:    0.7,
			CriticalRatio:    0.95,
			CascadeThreshold: 0.85,
			ClusterCritical:  0.8,
		},
		Quarantine: QuarantineConfig{
			CapacityUnits: 1000,
		},
		Escalation: EscalationConfig{
			QueueBound:    64,
			MaxAttempts:   5,
			BaseBackoff:   500 * time.Millisecond,
			RatePerSecond: 2,
		},
		Audit: AuditConfig{
			ArchivePath: "",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads the configuration at path, creating it with defaults if it
// does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv returns defaults with environment overrides applied, for
// deployments that carry no config file.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	if c.Bus.QueueBound < 1 {
		return fmt.Errorf("config: bus queue_bound %d must be at least 1", c.Bus.QueueBound)
	}
	if c.Locks.DefaultTTL <= 0 {
		return fmt.Errorf("config: locks default_ttl must be positive")
	}
	if c.Valves.ElevatedRatio <= 0 || c.Valves.ElevatedRatio >= c.Valves.CriticalRatio {
		return fmt.Errorf("config: valve thresholds must satisfy 0 < elevated < critical, got %f and %f",
			c.Valves.ElevatedRatio, c.Valves.CriticalRatio)
	}
	if c.Valves.ClusterCritical <= 0 || c.Valves.ClusterCritical > 1 {
		return fmt.Errorf("config: valve cluster_critical %f must be in (0, 1]", c.Valves.ClusterCritical)
	}
	if c.Quarantine.CapacityUnits <= 0 {
		return fmt.Errorf("config: quarantine capacity_units must be positive")
	}
	if c.Escalation.MaxAttempts < 1 {
		return fmt.Errorf("config: escalation max_attempts %d must be at least 1", c.Escalation.MaxAttempts)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv overrides file settings from the environment. Malformed
// values are ignored in favor of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CONTROLLER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CONTROLLER_BUS_QUEUE_BOUND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.QueueBound = n
		}
	}
	if v := os.Getenv("CONTROLLER_DEFAULT_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Locks.DefaultTTL = d
		}
	}
	if v := os.Getenv("CONTROLLER_QUARANTINE_CAPACITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quarantine.CapacityUnits = f
		}
	}
	if v := os.Getenv("CONTROLLER_ESCALATION_WEBHOOK_URL"); v != "" {
		cfg.Escalation.WebhookURL = v
	}
	if v := os.Getenv("CONTROLLER_AUDIT_ARCHIVE_PATH"); v != "" {
		cfg.Audit.ArchivePath = v
	}
}
