// Package flow implements the call-flow integrity engine. It tracks a
// rolling fingerprint of the nested call sequence in the current
// transaction and checks it against an approved pattern set at flow
// boundaries. A fingerprint outside the set aborts the transaction.
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spherex-xyz/flowguard/internal/access"
	"github.com/spherex-xyz/flowguard/internal/allowlist"
	"github.com/spherex-xyz/flowguard/internal/audit"
	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/notify"
	"github.com/spherex-xyz/flowguard/internal/rules"
	"github.com/spherex-xyz/flowguard/internal/session"
	"github.com/spherex-xyz/flowguard/internal/state"
)

// DepthBaseline is the depth of an idle context. Zero is reserved so an
// uninitialized context is distinguishable from an idle one.
const DepthBaseline uint64 = 1

// Options configures a Validator.
type Options struct {
	// Rules is the initial rule set. Persisted rule state, when
	// present, takes precedence.
	Rules rules.RuleSet

	// Senders and Patterns seed the allow lists. Persisted records
	// take precedence over seeds for the same key.
	Senders  []string
	Patterns []fingerprint.Hash

	// Session supplies the current transaction identity.
	Session session.Source

	// Backend is the durable store. Required.
	Backend state.Backend

	// Audit and Notify are optional; nil disables them.
	Audit  *audit.Log
	Notify *notify.Dispatcher

	// Access gates the admin surface. Required.
	Access access.Controller

	// ConfigHash is stamped into audit entries.
	ConfigHash string

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Validator is the call-flow integrity engine. All methods are safe for
// concurrent use; the engine serializes hook and admin processing.
type Validator struct {
	mu sync.Mutex

	rules    *rules.Store
	senders  *allowlist.List[string]
	patterns *allowlist.List[fingerprint.Hash]
	session  session.Source
	backend  state.Backend
	auditLog *audit.Log
	notifier *notify.Dispatcher
	access   access.Controller

	configHash string
	now        func() time.Time

	fp    fingerprint.Hash
	depth uint64
	txID  fingerprint.Hash
}

// New builds a Validator, restoring persisted state from the backend.
// Persisted context, rules, and allow records win over the seeds in
// opts; seeds only fill keys the backend has never seen.
func New(ctx context.Context, opts Options) (*Validator, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("flow: backend is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("flow: session source is required")
	}
	if opts.Access == nil {
		return nil, fmt.Errorf("flow: access controller is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	v := &Validator{
		senders:    allowlist.New[string](),
		patterns:   allowlist.New[fingerprint.Hash](),
		session:    opts.Session,
		backend:    opts.Backend,
		auditLog:   opts.Audit,
		notifier:   opts.Notify,
		access:     opts.Access,
		configHash: opts.ConfigHash,
		now:        opts.Now,
		fp:         fingerprint.Seed,
		depth:      DepthBaseline,
	}

	initial := opts.Rules
	bits, ok, err := opts.Backend.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("flow: load rules: %w", err)
	}
	if ok {
		initial = rules.RuleSet(bits)
	}
	v.rules = rules.NewStore(initial, v.onRuleChange)

	if err := v.restoreRecords(ctx, opts.Senders, opts.Patterns); err != nil {
		return nil, err
	}

	row, err := opts.Backend.LoadContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("flow: load context: %w", err)
	}
	if row != nil {
		v.fp = row.Fingerprint
		v.depth = row.Depth
		v.txID = row.TxID
	}

	return v, nil
}

func (v *Validator) restoreRecords(ctx context.Context, senders []string, patterns []fingerprint.Hash) error {
	senderRecs, err := v.backend.ListAllowRecords(ctx, state.KindSender)
	if err != nil {
		return fmt.Errorf("flow: load sender records: %w", err)
	}
	for _, rec := range senderRecs {
		v.senders.Restore(rec.Key, allowlist.Record{Permitted: rec.Permitted, LastChange: rec.LastChange})
	}
	for _, s := range senders {
		if _, ok := v.senders.Get(s); !ok {
			v.senders.Add(s)
			if err := v.persistSender(ctx, s); err != nil {
				return err
			}
		}
	}

	patternRecs, err := v.backend.ListAllowRecords(ctx, state.KindPattern)
	if err != nil {
		return fmt.Errorf("flow: load pattern records: %w", err)
	}
	for _, rec := range patternRecs {
		h, err := fingerprint.Parse(rec.Key)
		if err != nil {
			return fmt.Errorf("flow: corrupt pattern record %q: %w", rec.Key, err)
		}
		v.patterns.Restore(h, allowlist.Record{Permitted: rec.Permitted, LastChange: rec.LastChange})
	}
	for _, p := range patterns {
		if _, ok := v.patterns.Get(p); !ok {
			v.patterns.Add(p)
			if err := v.persistPattern(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnterExternal records entry into a flow-boundary routine. The caller
// must be an approved sender; calls from anyone else are rejected
// before tracking begins. payload is accepted for interface stability
// and not consulted by validation.
func (v *Validator) EnterExternal(ctx context.Context, id int64, caller string, payload []byte) error {
	_ = payload
	return v.enter(ctx, id, caller)
}

// EnterInternal records entry into a nested routine inside an already
// guarded flow. The sender gate applies here as on every hook.
func (v *Validator) EnterInternal(ctx context.Context, id int64, caller string) error {
	return v.enter(ctx, id, caller)
}

// ExitExternal records exit from a flow-boundary routine. The
// fingerprint is always checked against the pattern set here. The cost
// metric and before/after value slots are accepted for interface
// stability and not consulted by validation.
func (v *Validator) ExitExternal(ctx context.Context, id int64, caller string, cost uint64, before, after [][]byte) error {
	_, _, _ = cost, before, after
	return v.exit(ctx, id, caller, true)
}

// ExitInternal records exit from a nested routine. The fingerprint is
// checked only when the exit returns the context to baseline depth.
func (v *Validator) ExitInternal(ctx context.Context, id int64, caller string, cost uint64) error {
	_ = cost
	return v.exit(ctx, id, caller, false)
}

func (v *Validator) enter(ctx context.Context, id int64, caller string) error {
	if id <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("routine id must be positive, got %d", id)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rules.Deactivated() {
		return nil
	}
	if err := v.gateSender(id, caller, "enter"); err != nil {
		return err
	}

	// Compute the transition into locals; nothing is committed until
	// the persist succeeds, so a failing hook leaves the context as it
	// was.
	fp, depth, txID := v.fp, v.depth, v.txID

	if cur := v.session.Current(); cur != txID {
		if depth != DepthBaseline {
			v.record(audit.Entry{
				Session: txID.String(),
				Event:   audit.EventIrregularDepth,
				Depth:   depth,
				Outcome: audit.OutcomeOK,
				Reason:  "session changed at non-baseline depth",
			})
			v.dispatch(notify.Event{
				Type:    notify.TypeIrregularDepth,
				Session: txID.String(),
				Depth:   depth,
				Reason:  "session changed at non-baseline depth",
			})
		}
		fp = fingerprint.Seed
		depth = DepthBaseline
		txID = cur
	}

	fp = fingerprint.Fold(id, fp)
	depth++

	if err := v.backend.SaveContext(ctx, state.ContextRow{Fingerprint: fp, Depth: depth, TxID: txID}); err != nil {
		return fmt.Errorf("flow: persist context: %w", err)
	}
	v.fp, v.depth, v.txID = fp, depth, txID

	v.record(audit.Entry{
		Session: txID.String(),
		Event:   audit.EventEnter,
		Routine: id,
		Caller:  caller,
		Pattern: fp.String(),
		Depth:   depth,
		Outcome: audit.OutcomeOK,
	})
	return nil
}

// gateSender checks the caller against the sender allow list. Every
// hook runs it, on the state as it stood before the hook. Callers hold
// v.mu. routine is the signed id recorded on rejection.
func (v *Validator) gateSender(routine int64, caller, op string) error {
	now := v.now().Unix()
	if v.senders.Allowed(caller, now) {
		return nil
	}
	event := audit.EventEnter
	if op == "exit" {
		event = audit.EventExit
	}
	v.record(audit.Entry{
		Session: v.txID.String(),
		Event:   event,
		Routine: routine,
		Caller:  caller,
		Depth:   v.depth,
		Outcome: audit.OutcomeBlocked,
		Reason:  "sender not in allow list",
	})
	v.dispatch(notify.Event{
		Type:    notify.TypeFlowBlocked,
		Session: v.txID.String(),
		Routine: routine,
		Caller:  caller,
		Depth:   v.depth,
		Reason:  "sender not in allow list",
	})
	return &AuthorizationError{Principal: caller, Op: op}
}

func (v *Validator) exit(ctx context.Context, id int64, caller string, forceCheck bool) error {
	if id <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("routine id must be positive, got %d", id)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rules.Deactivated() {
		return nil
	}
	if err := v.gateSender(-id, caller, "exit"); err != nil {
		return err
	}

	fp := fingerprint.Fold(-id, v.fp)
	depth := v.depth
	if depth > 0 {
		depth--
	}

	if forceCheck || depth == DepthBaseline {
		now := v.now().Unix()
		if !v.patterns.Allowed(fp, now) {
			v.record(audit.Entry{
				Session: v.txID.String(),
				Event:   audit.EventExit,
				Routine: -id,
				Caller:  caller,
				Pattern: fp.String(),
				Depth:   depth,
				Outcome: audit.OutcomeBlocked,
				Reason:  "pattern not in allow list",
			})
			v.dispatch(notify.Event{
				Type:    notify.TypeFlowBlocked,
				Session: v.txID.String(),
				Routine: -id,
				Caller:  caller,
				Pattern: fp.String(),
				Depth:   depth,
				Reason:  "pattern not in allow list",
			})
			return &IntegrityError{Pattern: fp, Depth: depth}
		}
	}

	// With the continuity rule each outermost call stands alone, so
	// the fingerprint returns to the seed at baseline. The prefix-flow
	// rule carries it forward instead.
	if depth == DepthBaseline && v.rules.ContinuityActive() {
		fp = fingerprint.Seed
	}

	if err := v.backend.SaveContext(ctx, state.ContextRow{Fingerprint: fp, Depth: depth, TxID: v.txID}); err != nil {
		return fmt.Errorf("flow: persist context: %w", err)
	}
	v.fp, v.depth = fp, depth

	v.record(audit.Entry{
		Session: v.txID.String(),
		Event:   audit.EventExit,
		Routine: -id,
		Caller:  caller,
		Pattern: fp.String(),
		Depth:   depth,
		Outcome: audit.OutcomeOK,
	})
	return nil
}

// CheckSequence folds a routine id sequence from the seed and reports
// whether the result is in the pattern set. Read-only; used by the
// dry-run surfaces.
func (v *Validator) CheckSequence(ids []int64) (fingerprint.Hash, bool) {
	fp := fingerprint.FoldSequence(ids)
	v.mu.Lock()
	defer v.mu.Unlock()
	return fp, v.patterns.Allowed(fp, v.now().Unix())
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Mode        string `json:"mode"`
	Depth       uint64 `json:"depth"`
	Fingerprint string `json:"fingerprint"`
	Session     string `json:"session"`
	Senders     int    `json:"senders"`
	Patterns    int    `json:"patterns"`
	ConfigHash  string `json:"config_hash,omitempty"`
}

// Status returns the current engine state.
func (v *Validator) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Status{
		Mode:        rules.ModeString(v.rules.Active()),
		Depth:       v.depth,
		Fingerprint: v.fp.String(),
		Session:     v.txID.String(),
		Senders:     v.senders.Len(),
		Patterns:    v.patterns.Len(),
		ConfigHash:  v.configHash,
	}
}

// Senders returns a copy of the sender records, removed entries included.
func (v *Validator) Senders() map[string]allowlist.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.senders.Snapshot()
}

// Patterns returns a copy of the pattern records, removed entries included.
func (v *Validator) Patterns() map[fingerprint.Hash]allowlist.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.patterns.Snapshot()
}

func (v *Validator) record(entry audit.Entry) {
	if v.auditLog == nil {
		return
	}
	entry.ConfigHash = v.configHash
	// Best effort: a failing audit write must not block the flow.
	_ = v.auditLog.Record(entry)
}

func (v *Validator) dispatch(event notify.Event) {
	if v.notifier == nil {
		return
	}
	event.Timestamp = v.now().UTC().Format(audit.TimestampFormat)
	event.ConfigHash = v.configHash
	v.notifier.Dispatch(event)
}

func (v *Validator) onRuleChange(old, new rules.RuleSet) {
	eventType := notify.TypeRulesChanged
	if new == 0 {
		eventType = notify.TypeRulesDisabled
	}
	v.dispatch(notify.Event{
		Type:   eventType,
		Detail: fmt.Sprintf("%s -> %s", rules.ModeString(old), rules.ModeString(new)),
	})
}
