package flow

import (
	"context"
	"fmt"

	"github.com/spherex-xyz/flowguard/internal/access"
	"github.com/spherex-xyz/flowguard/internal/audit"
	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/notify"
	"github.com/spherex-xyz/flowguard/internal/rules"
	"github.com/spherex-xyz/flowguard/internal/state"
)

// Admin operations mutate the engine's configuration at runtime. Every
// operation is capability-gated, written through to the backend, and
// audited per affected key.

func (v *Validator) requireAdmin(principal, op string) error {
	if !v.access.HasCapability(principal, access.RoleAdministrator) {
		return &AuthorizationError{Principal: principal, Op: op}
	}
	return nil
}

func (v *Validator) persistSender(ctx context.Context, key string) error {
	rec, _ := v.senders.Get(key)
	err := v.backend.SaveAllowRecord(ctx, state.AllowRecord{
		Kind:       state.KindSender,
		Key:        key,
		Permitted:  rec.Permitted,
		LastChange: rec.LastChange,
	})
	if err != nil {
		return fmt.Errorf("flow: persist sender %q: %w", key, err)
	}
	return nil
}

func (v *Validator) persistPattern(ctx context.Context, key fingerprint.Hash) error {
	rec, _ := v.patterns.Get(key)
	err := v.backend.SaveAllowRecord(ctx, state.AllowRecord{
		Kind:       state.KindPattern,
		Key:        key.String(),
		Permitted:  rec.Permitted,
		LastChange: rec.LastChange,
	})
	if err != nil {
		return fmt.Errorf("flow: persist pattern %s: %w", key, err)
	}
	return nil
}

// AddAllowedSenders grants the given senders. Requires the
// administrator capability.
func (v *Validator) AddAllowedSenders(ctx context.Context, principal string, senders ...string) error {
	if err := v.requireAdmin(principal, "add senders"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, s := range senders {
		v.senders.Add(s)
		if err := v.persistSender(ctx, s); err != nil {
			return err
		}
		v.record(audit.Entry{
			Event:   audit.EventSenderAdded,
			Caller:  principal,
			Detail:  s,
			Outcome: audit.OutcomeOK,
		})
		v.dispatch(notify.Event{Type: notify.TypeSenderAdded, Caller: principal, Detail: s})
	}
	return nil
}

// RemoveAllowedSenders revokes the given senders. In-flight validation
// within the same instant still passes; one instant later the removal
// is strictly enforced.
func (v *Validator) RemoveAllowedSenders(ctx context.Context, principal string, senders ...string) error {
	if err := v.requireAdmin(principal, "remove senders"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().Unix()
	for _, s := range senders {
		v.senders.Remove(now, s)
		if err := v.persistSender(ctx, s); err != nil {
			return err
		}
		v.record(audit.Entry{
			Event:   audit.EventSenderRemoved,
			Caller:  principal,
			Detail:  s,
			Outcome: audit.OutcomeOK,
		})
		v.dispatch(notify.Event{Type: notify.TypeSenderRemoved, Caller: principal, Detail: s})
	}
	return nil
}

// AddAllowedPatterns grants the given call-flow fingerprints.
func (v *Validator) AddAllowedPatterns(ctx context.Context, principal string, patterns ...fingerprint.Hash) error {
	if err := v.requireAdmin(principal, "add patterns"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, p := range patterns {
		v.patterns.Add(p)
		if err := v.persistPattern(ctx, p); err != nil {
			return err
		}
		v.record(audit.Entry{
			Event:   audit.EventPatternAdded,
			Caller:  principal,
			Pattern: p.String(),
			Outcome: audit.OutcomeOK,
		})
		v.dispatch(notify.Event{Type: notify.TypePatternAdded, Caller: principal, Pattern: p.String()})
	}
	return nil
}

// RemoveAllowedPatterns revokes the given fingerprints with the same
// same-instant grace as sender removal.
func (v *Validator) RemoveAllowedPatterns(ctx context.Context, principal string, patterns ...fingerprint.Hash) error {
	if err := v.requireAdmin(principal, "remove patterns"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().Unix()
	for _, p := range patterns {
		v.patterns.Remove(now, p)
		if err := v.persistPattern(ctx, p); err != nil {
			return err
		}
		v.record(audit.Entry{
			Event:   audit.EventPatternRemoved,
			Caller:  principal,
			Pattern: p.String(),
			Outcome: audit.OutcomeOK,
		})
		v.dispatch(notify.Event{Type: notify.TypePatternRemoved, Caller: principal, Pattern: p.String()})
	}
	return nil
}

// SetRules replaces the active rule set. At most one enforcement rule
// may be active; requesting both is rejected and the prior set stays.
func (v *Validator) SetRules(ctx context.Context, principal string, rs rules.RuleSet) error {
	if err := v.requireAdmin(principal, "set rules"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.rules.Set(rs); err != nil {
		return err
	}
	if err := v.backend.SaveRules(ctx, uint8(rs)); err != nil {
		return fmt.Errorf("flow: persist rules: %w", err)
	}
	v.record(audit.Entry{
		Event:   audit.EventRulesSet,
		Caller:  principal,
		Detail:  rules.ModeString(rs),
		Outcome: audit.OutcomeOK,
	})
	return nil
}

// DisableAllRules turns enforcement off entirely. Hooks become
// pass-throughs with no tracking and no checks.
func (v *Validator) DisableAllRules(ctx context.Context, principal string) error {
	if err := v.requireAdmin(principal, "disable rules"); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.rules.DisableAll()
	if err := v.backend.SaveRules(ctx, 0); err != nil {
		return fmt.Errorf("flow: persist rules: %w", err)
	}
	v.record(audit.Entry{
		Event:   audit.EventRulesDisabled,
		Caller:  principal,
		Outcome: audit.OutcomeOK,
	})
	return nil
}
