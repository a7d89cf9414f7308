package audit

// Event names recorded in the audit log.
const (
	EventEnter          = "enter"
	EventExit           = "exit"
	EventRulesSet       = "rules_set"
	EventRulesDisabled  = "rules_disabled"
	EventSenderAdded    = "sender_added"
	EventSenderRemoved  = "sender_removed"
	EventPatternAdded   = "pattern_added"
	EventPatternRemoved = "pattern_removed"
	EventIrregularDepth = "irregular_depth"
)

// Outcomes recorded per entry.
const (
	OutcomeOK      = "ok"
	OutcomeBlocked = "blocked"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp  string `json:"ts"`
	Session    string `json:"session,omitempty"` // transaction identity, hex
	Event      string `json:"event"`
	Routine    int64  `json:"routine,omitempty"` // signed routine id for hooks
	Caller     string `json:"caller,omitempty"`
	Pattern    string `json:"pattern,omitempty"` // fingerprint after fold, hex
	Depth      uint64 `json:"depth,omitempty"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"` // admin payload: keys, rule modes
	ConfigHash string `json:"config_hash,omitempty"`
	PrevHash   string `json:"prev_hash"`
}
