package server

import (
	"context"
	"fmt"

	"github.com/spherex-xyz/flowguard/internal/access"
	"github.com/spherex-xyz/flowguard/internal/audit"
	"github.com/spherex-xyz/flowguard/internal/config"
	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/flow"
	"github.com/spherex-xyz/flowguard/internal/notify"
	"github.com/spherex-xyz/flowguard/internal/rules"
	"github.com/spherex-xyz/flowguard/internal/session"
	"github.com/spherex-xyz/flowguard/internal/state"
)

// Engine bundles a configured Validator with the resources it owns.
// Both the daemon and the CLI commands build one from the config file.
type Engine struct {
	Validator  *flow.Validator
	Session    *session.Ambient
	Config     *config.Config
	ConfigHash string

	backend  state.Backend
	auditLog *audit.Log
}

// SessionOrigin labels ambient transaction identities from this process.
const SessionOrigin = "flowguard"

// NewEngine builds an Engine from the config file at cfgPath.
// Empty cfgPath uses the default config location.
func NewEngine(ctx context.Context, cfgPath string) (*Engine, error) {
	cfg, hash, err := config.LoadWithHash(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewEngineFromConfig(ctx, cfg, hash)
}

// NewEngineFromConfig builds an Engine from an already loaded config.
func NewEngineFromConfig(ctx context.Context, cfg *config.Config, hash string) (*Engine, error) {
	var backend state.Backend
	if cfg.Storage.Path != "" {
		sb, err := state.NewSQLiteBackend(config.ExpandPath(cfg.Storage.Path))
		if err != nil {
			return nil, err
		}
		backend = sb
	} else {
		backend = state.NewMemoryBackend()
	}

	var auditLog *audit.Log
	if cfg.AuditLog != "" {
		var err error
		auditLog, err = audit.Open(config.ExpandPath(cfg.AuditLog))
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	mode, err := rules.ParseMode(cfg.Mode)
	if err != nil {
		backend.Close()
		return nil, err
	}

	patterns := make([]fingerprint.Hash, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		h, err := p.Fingerprint()
		if err != nil {
			backend.Close()
			return nil, err
		}
		patterns = append(patterns, h)
	}

	// No operators configured means local administration: whoever can
	// edit the config file is trusted anyway.
	var ac access.Controller = access.AllowAll{}
	if len(cfg.Operators) > 0 {
		ac = access.NewStaticController(cfg.Operators)
	}

	sess := session.NewAmbient(SessionOrigin)

	v, err := flow.New(ctx, flow.Options{
		Rules:      mode,
		Senders:    cfg.Senders,
		Patterns:   patterns,
		Session:    sess,
		Backend:    backend,
		Audit:      auditLog,
		Notify:     notify.NewDispatcher(cfg.Notifications),
		Access:     ac,
		ConfigHash: hash,
	})
	if err != nil {
		if auditLog != nil {
			auditLog.Close()
		}
		backend.Close()
		return nil, err
	}

	return &Engine{
		Validator:  v,
		Session:    sess,
		Config:     cfg,
		ConfigHash: hash,
		backend:    backend,
		auditLog:   auditLog,
	}, nil
}

// Begin starts a new transaction identity and returns it.
func (e *Engine) Begin() fingerprint.Hash {
	return e.Session.Advance(SessionOrigin)
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var firstErr error
	if e.auditLog != nil {
		if err := e.auditLog.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("server: close engine: %w", firstErr)
	}
	return nil
}
