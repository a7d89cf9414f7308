package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTestLog creates a temp audit log with known entries for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Timestamp: base.Format(TimestampFormat), Session: "aaa", Event: EventEnter, Routine: 1, Caller: "svc-a", Depth: 2, Outcome: OutcomeOK},
		{Timestamp: base.Add(2 * time.Second).Format(TimestampFormat), Session: "aaa", Event: EventEnter, Routine: 2, Caller: "svc-a", Depth: 3, Outcome: OutcomeOK},
		{Timestamp: base.Add(4 * time.Second).Format(TimestampFormat), Session: "bbb", Event: EventEnter, Routine: 1, Caller: "svc-b", Depth: 2, Outcome: OutcomeOK},
		{Timestamp: base.Add(6 * time.Second).Format(TimestampFormat), Session: "aaa", Event: EventExit, Routine: -2, Caller: "svc-a", Depth: 2, Outcome: OutcomeOK},
		{Timestamp: base.Add(8 * time.Second).Format(TimestampFormat), Session: "aaa", Event: EventIrregularDepth, Depth: 2, Outcome: OutcomeOK, Reason: "session changed at non-baseline depth"},
		{Timestamp: base.Add(10 * time.Second).Format(TimestampFormat), Session: "aaa", Event: EventExit, Routine: -1, Caller: "svc-a", Depth: 1, Outcome: OutcomeBlocked, Reason: "pattern not in allow list"},
	}

	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestReplayFiltersBySession(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Session: "aaa"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 5 {
		t.Errorf("expected 5 entries for session aaa, got %d", len(result.Entries))
	}

	for _, e := range result.Entries {
		if e.Session != "aaa" {
			t.Errorf("unexpected session: %s", e.Session)
		}
	}
}

func TestReplayTimeRangeFrom(t *testing.T) {
	path := writeTestLog(t)

	from := time.Date(2025, 1, 15, 14, 0, 5, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{Session: "aaa", From: from})
	if err != nil {
		t.Fatal(err)
	}

	// Entries at 14:00:06, 14:00:08, 14:00:10
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 entries after from filter, got %d", len(result.Entries))
	}
}

func TestReplayTimeRangeTo(t *testing.T) {
	path := writeTestLog(t)

	to := time.Date(2025, 1, 15, 14, 0, 3, 0, time.UTC)
	result, err := Replay(path, ReplayFilter{Session: "aaa", To: to})
	if err != nil {
		t.Fatal(err)
	}

	// Entries at 14:00:00, 14:00:02
	if len(result.Entries) != 2 {
		t.Errorf("expected 2 entries before to filter, got %d", len(result.Entries))
	}
}

func TestReplaySummaryCounts(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Session: "aaa"})
	if err != nil {
		t.Fatal(err)
	}

	s := result.Summary
	if s.Total != 5 {
		t.Errorf("total = %d, want 5", s.Total)
	}
	if s.OKCount != 4 {
		t.Errorf("ok count = %d, want 4", s.OKCount)
	}
	if s.BlockedCount != 1 {
		t.Errorf("blocked count = %d, want 1", s.BlockedCount)
	}
	if s.IrregularCount != 1 {
		t.Errorf("irregular count = %d, want 1", s.IrregularCount)
	}
	if s.MaxDepth != 3 {
		t.Errorf("max depth = %d, want 3", s.MaxDepth)
	}
}

func TestReplayUnknownSessionIsEmpty(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Session: "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(result.Entries))
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := writeTestLog(t)

	// Append garbage
	appendLine(t, path, "not json at all\n")
	appendLine(t, path, `{"session":"aaa","event":"exit","outcome":"ok"}`+"\n")

	result, err := Replay(path, ReplayFilter{Session: "aaa"})
	if err != nil {
		t.Fatal(err)
	}
	// 5 from the fixture plus the one valid appended line
	if len(result.Entries) != 6 {
		t.Errorf("expected 6 entries, got %d", len(result.Entries))
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.Fatal(err)
	}
}

func TestFormatTimelineRendersEntries(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Session: "aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)
	if !strings.Contains(out, "Session: aaa") {
		t.Errorf("timeline missing header:\n%s", out)
	}
	if !strings.Contains(out, "BLOCKED") {
		t.Errorf("timeline missing blocked outcome:\n%s", out)
	}
	if !strings.Contains(out, "[irregular]") {
		t.Errorf("timeline missing irregular tag:\n%s", out)
	}
	if !strings.Contains(out, "Max depth: 3") {
		t.Errorf("timeline missing summary:\n%s", out)
	}
}

func TestFormatTimelineEmptyResult(t *testing.T) {
	out := FormatTimeline(&ReplayResult{Session: "none"})
	if !strings.Contains(out, "No entries found") {
		t.Errorf("unexpected empty output: %s", out)
	}
}

func TestFormatJSONRoundTrips(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Session: "aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"session": "aaa"`) {
		t.Errorf("json output missing session:\n%s", out)
	}
}
