// Package access defines the capability check the engine consumes before
// administrative mutations. Role management itself lives outside this
// repository; the engine only asks a yes/no question.
package access

// RoleAdministrator gates every administrative operation on the engine.
const RoleAdministrator = "administrator"

// Controller answers capability queries for a principal.
type Controller interface {
	HasCapability(principal, role string) bool
}

// StaticController grants the administrator role to a fixed set of
// principals, typically loaded from the config file's operators list.
type StaticController struct {
	operators map[string]bool
}

// NewStaticController builds a controller from operator principals.
func NewStaticController(operators []string) *StaticController {
	m := make(map[string]bool, len(operators))
	for _, o := range operators {
		if o != "" {
			m[o] = true
		}
	}
	return &StaticController{operators: m}
}

// HasCapability reports whether principal holds the given role.
// Only RoleAdministrator is ever granted; matching is exact.
func (c *StaticController) HasCapability(principal, role string) bool {
	if role != RoleAdministrator {
		return false
	}
	return c.operators[principal]
}

// AllowAll grants every capability to every principal. For tests and for
// local CLI administration, where the operator owns the config file anyway.
type AllowAll struct{}

// HasCapability always returns true.
func (AllowAll) HasCapability(principal, role string) bool { return true }
