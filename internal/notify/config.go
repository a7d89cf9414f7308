package notify

// WebhookConfig defines a webhook notification destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["flow_blocked", "irregular_depth", ...]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event types dispatched to webhooks.
const (
	TypeFlowBlocked    = "flow_blocked"
	TypeIrregularDepth = "irregular_depth"
	TypeRulesChanged   = "rules_changed"
	TypeRulesDisabled  = "rules_disabled"
	TypeSenderAdded    = "sender_added"
	TypeSenderRemoved  = "sender_removed"
	TypePatternAdded   = "pattern_added"
	TypePatternRemoved = "pattern_removed"
	TypeBinaryTamper   = "binary_tamper"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	Session    string `json:"session,omitempty"`
	Routine    int64  `json:"routine,omitempty"`
	Caller     string `json:"caller,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
	Depth      uint64 `json:"depth,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ConfigHash string `json:"config_hash,omitempty"`
}
