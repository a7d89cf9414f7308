package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "continuity" {
		t.Errorf("default mode = %q, want continuity", cfg.Mode)
	}
	if len(cfg.Senders) != 0 || len(cfg.Patterns) != 0 {
		t.Error("defaults should have no senders or patterns")
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: prefix_flow
senders: [svc-a, svc-b]
patterns:
  - name: deposit
    ids: [1, 2, -2, -1]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "prefix_flow" {
		t.Errorf("mode = %q, want prefix_flow", cfg.Mode)
	}
	if len(cfg.Senders) != 2 {
		t.Errorf("senders = %v, want 2 entries", cfg.Senders)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0].Name != "deposit" {
		t.Errorf("patterns = %+v", cfg.Patterns)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "mode: [broken")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, "mode: turbo")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLoadRejectsEmptyPattern(t *testing.T) {
	path := writeConfig(t, `
patterns:
  - name: bad
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for pattern without ids or hash")
	}
}

func TestLoadWithHashReflectsFileBytes(t *testing.T) {
	path := writeConfig(t, "mode: off\n")
	_, h1, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Errorf("hash %q missing prefix", h1)
	}

	os.WriteFile(path, []byte("mode: continuity\n"), 0600)
	_, h2, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected different hashes for different file contents")
	}
}

func TestPatternSpecIDsTakePrecedence(t *testing.T) {
	spec := PatternSpec{
		Name: "both",
		IDs:  []int64{3, -3},
		Hash: fingerprint.Seed.String(),
	}
	got, err := spec.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if got != fingerprint.FoldSequence([]int64{3, -3}) {
		t.Error("expected ids to win over hash")
	}
}

func TestPatternSpecHashParses(t *testing.T) {
	want := fingerprint.FoldSequence([]int64{7, -7})
	spec := PatternSpec{Name: "hex", Hash: want.String()}
	got, err := spec.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		t.Fatalf("generated YAML does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated YAML does not validate: %v", err)
	}
	if cfg.Mode != "continuity" {
		t.Errorf("generated mode = %q, want continuity", cfg.Mode)
	}
}
