package flowguard

import (
	"errors"
	"fmt"

	"github.com/spherex-xyz/flowguard/internal/flow"
)

// Status is the engine's snapshot: active mode, current depth and
// fingerprint, transaction identity, and allow-list sizes.
type Status = flow.Status

// BlockedError is returned when the engine rejects a hook: an
// unapproved call-flow pattern, an unknown sender, or a malformed id.
type BlockedError struct {
	ID     int64  // routine id at the blocked hook
	Caller string // sender identity presented
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("flowguard blocked (routine %d): %s", e.ID, e.Reason)
}

// IsBlocked reports whether err is a guard rejection rather than an
// infrastructure failure.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// asBlocked maps a hook error to a *BlockedError if it is a guard
// rejection. Infrastructure errors pass through unchanged.
func asBlocked(id int64, caller string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *flow.AuthorizationError
	var intErr *flow.IntegrityError
	var cfgErr *flow.ConfigurationError
	if errors.As(err, &authErr) || errors.As(err, &intErr) || errors.As(err, &cfgErr) {
		return &BlockedError{ID: id, Caller: caller, Reason: err.Error()}
	}
	return err
}
