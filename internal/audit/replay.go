package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter holds filtering criteria for session replay.
type ReplayFilter struct {
	Session string
	From    time.Time // zero value = no lower bound
	To      time.Time // zero value = no upper bound
}

// ReplaySummary holds outcome counts and metadata for a replayed session.
type ReplaySummary struct {
	Total          int    `json:"total"`
	OKCount        int    `json:"ok_count"`
	BlockedCount   int    `json:"blocked_count"`
	IrregularCount int    `json:"irregular_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	MaxDepth       uint64 `json:"max_depth"`
}

// ReplayResult holds filtered entries and summary for a session replay.
type ReplayResult struct {
	Session string        `json:"session"`
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		Session: filter.Session,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if entry.Session != filter.Session {
			continue
		}

		// Time range filtering
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue // skip unparseable timestamps
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++

	switch entry.Outcome {
	case OutcomeOK:
		s.OKCount++
	case OutcomeBlocked:
		s.BlockedCount++
	}

	if entry.Event == EventIrregularDepth {
		s.IrregularCount++
	}

	if entry.Depth > s.MaxDepth {
		s.MaxDepth = entry.Depth
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
