package flow

import (
	"fmt"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
)

// ConfigurationError reports a structurally invalid request, such as a
// non-positive routine id. The call must not proceed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("flow: invalid configuration: %s", e.Reason)
}

// AuthorizationError reports a principal that lacks the capability for
// the attempted operation, or a sender outside the allow list.
type AuthorizationError struct {
	Principal string
	Op        string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("flow: %q not authorized for %s", e.Principal, e.Op)
}

// IntegrityError reports a call-flow fingerprint outside the approved
// pattern set. The transaction must be aborted.
type IntegrityError struct {
	Pattern fingerprint.Hash
	Depth   uint64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("flow: pattern %s not in allow list at depth %d", e.Pattern, e.Depth)
}
