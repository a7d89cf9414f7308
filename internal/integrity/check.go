// Package integrity verifies the guard binary's checksum at startup.
// A guard whose own binary has been swapped cannot be trusted to
// enforce call-flow patterns, so a mismatch records a tamper event and
// refuses to start.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherex-xyz/flowguard/internal/notify"
)

// ExpectedHash is set at build time via:
//
//	-ldflags "-X github.com/spherex-xyz/flowguard/internal/integrity.ExpectedHash=<sha256hex>"
//
// When empty (dev builds), verification falls back to a checksum file.
var ExpectedHash string

// TamperLogDir is where tamper events are written.
// Defaults to /var/log/flowguard. Override for testing.
var TamperLogDir = "/var/log/flowguard"

// ChecksumPaths are checked in order for a file holding a single
// hex-encoded SHA-256 digest of the installed binary. Override for
// testing.
var ChecksumPaths = []string{
	"/etc/flowguard/binary.sha256",
	"$HOME/.flowguard/binary.sha256",
}

const sourceLdflags = "ldflags"

// TamperEvent records a binary integrity violation. Source names where
// the expected digest came from, so an operator can tell a stale
// checksum file from a rebuilt binary.
type TamperEvent struct {
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type"`
	Binary       string `json:"binary"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Source       string `json:"source"`
	Hostname     string `json:"hostname"`
	Reason       string `json:"reason"`
}

// Verify checks the running binary against the expected digest. Nil
// when the digests match or when no expected digest is available (dev
// mode). On mismatch it records a tamper event before returning the
// error; the caller is expected to refuse startup.
func Verify() error {
	expected, source := expectedDigest()
	if expected == "" {
		fmt.Fprintf(os.Stderr, "integrity: WARNING no build-time hash or checksum file found (dev build, integrity check skipped)\n")
		return nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}

	actual, err := hashFile(exePath)
	if err != nil {
		return fmt.Errorf("integrity: cannot hash binary: %w", err)
	}

	if actual == expected {
		fmt.Fprintf(os.Stderr, "integrity: binary checksum verified (%s...%s)\n",
			actual[:8], actual[len(actual)-8:])
		return nil
	}

	event := TamperEvent{
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Type:         notify.TypeBinaryTamper,
		Binary:       exePath,
		ExpectedHash: expected,
		ActualHash:   actual,
		Source:       source,
		Reason:       fmt.Sprintf("binary checksum mismatch: expected %s, got %s", expected, actual),
	}
	event.Hostname, _ = os.Hostname()

	recordTamper(event)

	return fmt.Errorf("integrity: binary checksum mismatch (expected %s, got %s)", expected, actual)
}

// HashSelf returns the SHA-256 hex digest of the running binary.
// Useful for writing the checksum file after install.
func HashSelf() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return hashFile(exePath)
}

// expectedDigest resolves the expected hash and names its source: the
// build-time ldflags value wins, then the first readable checksum file.
func expectedDigest() (hash, source string) {
	if ExpectedHash != "" {
		return ExpectedHash, sourceLdflags
	}
	for _, p := range ChecksumPaths {
		path := os.ExpandEnv(p)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		h := strings.TrimSpace(string(data))
		if len(h) == 64 && isHex(h) {
			return h, path
		}
	}
	return "", ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// recordTamper appends the event to the tamper log, prints it to
// stderr for the journal, and fires webhook alerts. All best effort:
// the mismatch error is returned to the caller regardless.
func recordTamper(event TamperEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	logPath := filepath.Join(TamperLogDir, "tamper.jsonl")
	if err := os.MkdirAll(TamperLogDir, 0700); err == nil {
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600); err == nil {
			f.Write(append(line, '\n'))
			f.Sync()
			f.Close()
		}
	}

	fmt.Fprintf(os.Stderr, "TAMPER ALERT: %s\n", string(line))

	dispatchTamperAlert(event)
}

// dispatchTamperAlert posts the event to every configured webhook
// subscribed to binary_tamper or flow_blocked. This runs before full
// engine init, so it parses only the notifications section of the
// config file.
func dispatchTamperAlert(event TamperEvent) {
	alert := notify.Event{
		Timestamp: event.Timestamp,
		Type:      notify.TypeBinaryTamper,
		Reason:    event.Reason,
		Detail: fmt.Sprintf("binary=%s host=%s source=%s expected=%s actual=%s",
			event.Binary, event.Hostname, event.Source, event.ExpectedHash, event.ActualHash),
	}

	for _, cfg := range loadWebhookConfigs() {
		for _, e := range cfg.Events {
			if e == notify.TypeBinaryTamper || e == notify.TypeFlowBlocked {
				// Synchronous — we're about to exit anyway
				notify.Send(cfg, alert)
				break
			}
		}
	}
}

// loadWebhookConfigs reads just the notifications section from the
// default config file.
func loadWebhookConfigs() []notify.WebhookConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(home, ".flowguard", "config.yaml"))
	if err != nil {
		return nil
	}

	var cn struct {
		Notifications []notify.WebhookConfig `yaml:"notifications"`
	}
	if err := yaml.Unmarshal(data, &cn); err != nil {
		return nil
	}
	return cn.Notifications
}
