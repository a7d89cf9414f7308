// Package config loads the engine configuration from YAML. Missing
// files fall back to defaults so a fresh install works without any
// setup; invalid YAML is an error.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/notify"
)

// PatternSpec names one approved call-flow pattern, either as the
// routine id sequence to fold or as a precomputed fingerprint.
type PatternSpec struct {
	Name string  `yaml:"name"`
	IDs  []int64 `yaml:"ids,omitempty"`
	Hash string  `yaml:"hash,omitempty"`
}

// Fingerprint resolves the pattern to its fingerprint. IDs take
// precedence over Hash when both are set.
func (p PatternSpec) Fingerprint() (fingerprint.Hash, error) {
	if len(p.IDs) > 0 {
		return fingerprint.FoldSequence(p.IDs), nil
	}
	if p.Hash != "" {
		h, err := fingerprint.Parse(p.Hash)
		if err != nil {
			return fingerprint.Hash{}, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		return h, nil
	}
	return fingerprint.Hash{}, fmt.Errorf("pattern %q: needs ids or hash", p.Name)
}

// StorageConfig selects the durable state backend.
type StorageConfig struct {
	// Path is the SQLite database location. Empty means in-memory
	// state that does not survive restarts.
	Path string `yaml:"path"`
}

// Config holds all engine parameters.
type Config struct {
	// Mode selects the enforcement rule: "continuity", "prefix_flow",
	// or "off".
	Mode string `yaml:"mode"`

	// Operators are principals granted the administrator capability.
	Operators []string `yaml:"operators"`

	// Senders are callers approved to originate guarded flows.
	Senders []string `yaml:"senders"`

	// Patterns are the approved call-flow fingerprints.
	Patterns []PatternSpec `yaml:"patterns"`

	Storage StorageConfig `yaml:"storage"`

	// AuditLog is the hash-chained JSONL audit log path.
	// Empty disables audit logging.
	AuditLog string `yaml:"audit_log"`

	// Notifications are webhook destinations for guard events.
	Notifications []notify.WebhookConfig `yaml:"notifications"`
}

// DefaultConfig returns the built-in configuration: continuity mode,
// no approved senders or patterns, in-memory state.
func DefaultConfig() *Config {
	return &Config{
		Mode: "continuity",
	}
}

// DefaultPath returns ~/.flowguard/config.yaml, or "" if the home
// directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".flowguard", "config.yaml")
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Load loads configuration from a YAML file.
// Empty path falls back to ~/.flowguard/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				data = nil
			} else {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, hash, nil
}

// Validate checks mode and pattern specs without touching engine state.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", "continuity", "prefix_flow", "off":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	for _, p := range c.Patterns {
		if _, err := p.Fingerprint(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// DefaultConfigYAML returns a commented YAML string for flowguard init.
func DefaultConfigYAML() string {
	return `# flowguard configuration
# Generated by: flowguard init
#
# Enforcement mode. Exactly one rule can be active:
#   continuity  - the fingerprint resets when the outermost call returns;
#                 each top-level call is checked in isolation
#   prefix_flow - the fingerprint carries across outermost calls;
#                 later calls are checked as extensions of earlier ones
#   off         - tracking and checks fully disabled
mode: continuity

# Principals granted the administrator capability. Only these may
# change rules or edit the allow lists at runtime.
operators:
  - alice

# Callers approved to originate guarded flows. Calls from any other
# sender are rejected before tracking begins.
senders:
  - svc-payments

# Approved call-flow patterns. Give either the signed routine id
# sequence (positive = entry, negative = exit) or a precomputed
# fingerprint hex string.
patterns:
  - name: deposit
    ids: [1, 2, -2, -1]
  # - name: precomputed
  #   hash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

# Durable engine state. Empty path keeps state in memory only.
storage:
  path: ~/.flowguard/state.db

# Hash-chained JSONL audit log. Empty disables audit logging.
audit_log: ~/.flowguard/audit.jsonl

# Webhook notifications for guard events.
# Formats: generic, slack, pagerduty
# Events: flow_blocked, irregular_depth, rules_changed, rules_disabled,
#         sender_added, sender_removed, pattern_added, pattern_removed
notifications: []
#  - url: https://hooks.slack.com/services/XXX
#    format: slack
#    events: [flow_blocked, rules_disabled]
`
}
