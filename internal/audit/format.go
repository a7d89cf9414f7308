package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", result.Session)
	}

	var b strings.Builder

	// Header
	first := result.Summary.FirstTimestamp
	last := result.Summary.LastTimestamp
	firstTime := formatDateRange(first)
	lastTime := formatTimeOnly(last)
	b.WriteString(fmt.Sprintf("Session: %s | %s–%s UTC\n", shorten(result.Session), firstTime, lastTime))
	b.WriteString(separator + "\n")

	// Entries
	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		depth := fmt.Sprintf("d%d", e.Depth)
		outcome := strings.ToUpper(e.Outcome)
		event := truncate(e.Event, 16)

		detail := e.Caller
		if e.Routine != 0 {
			detail = fmt.Sprintf("%d %s", e.Routine, e.Caller)
		}

		tag := ""
		if e.Event == EventIrregularDepth {
			tag = "  [irregular]"
		}

		b.WriteString(fmt.Sprintf("%-10s %-4s %-9s %-16s %-40s%s\n",
			ts, depth, outcome, event, truncate(detail, 40), tag))
	}

	// Footer
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.OKCount > 0 {
		parts = append(parts, fmt.Sprintf("%d ok", s.OKCount))
	}
	if s.BlockedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", s.BlockedCount))
	}
	if s.IrregularCount > 0 {
		parts = append(parts, fmt.Sprintf("%d irregular", s.IrregularCount))
	}

	return fmt.Sprintf("Summary: %s | Max depth: %d\n",
		strings.Join(parts, ", "), s.MaxDepth)
}

func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
