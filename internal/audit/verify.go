package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult is the outcome of a hash-chain verification, with flow
// activity totals gathered on the same pass.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Sessions  int    `json:"sessions"`
	Blocked   int    `json:"blocked"`
	Irregular int    `json:"irregular"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

func broken(lines, at int, format string, args ...any) VerifyResult {
	return VerifyResult{Lines: lines, Error: fmt.Sprintf(format, args...), ErrorLine: at}
}

// Verify walks a JSONL audit log and validates that every entry's
// prev_hash matches the hash of the previous line (the genesis hash for
// the first). While walking it counts distinct sessions, blocked
// decisions, and irregular-depth diagnostics, so one pass answers both
// "is this log intact" and "what did the guard do".
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	var (
		result   VerifyResult
		prevLine []byte
		sessions = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		result.Lines++
		// Copy: the scanner reuses its buffer across lines.
		line := append([]byte(nil), scanner.Bytes()...)

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return broken(result.Lines, result.Lines, "parse error: %v", err)
		}

		want := GenesisHash
		if prevLine != nil {
			want = HashLine(prevLine)
		}
		if entry.PrevHash != want {
			return broken(result.Lines, result.Lines, "hash mismatch: expected %s, got %s", want, entry.PrevHash)
		}

		if entry.Session != "" {
			sessions[entry.Session] = struct{}{}
		}
		if entry.Outcome == OutcomeBlocked {
			result.Blocked++
		}
		if entry.Event == EventIrregularDepth {
			result.Irregular++
		}

		prevLine = line
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: result.Lines, Error: fmt.Sprintf("scan: %v", err)}
	}

	result.Valid = true
	result.Sessions = len(sessions)
	return result
}
