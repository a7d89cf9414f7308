package notify

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("flowguard: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.Session)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Caller:* %s", event.Caller)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Depth:* %d", event.Depth)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Type {
	case TypeFlowBlocked, TypeBinaryTamper:
		severity = "critical"
	case TypeIrregularDepth:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("flowguard %s: %s", event.Type, event.Reason),
			"severity": severity,
			"source":   "flowguard",
			"custom_details": map[string]any{
				"session": event.Session,
				"routine": event.Routine,
				"caller":  event.Caller,
				"pattern": event.Pattern,
				"depth":   event.Depth,
				"detail":  event.Detail,
			},
		},
	}
	return json.Marshal(payload)
}
