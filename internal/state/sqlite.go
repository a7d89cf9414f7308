package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend persists engine state in a single SQLite file. WAL mode
// keeps hook-path writes cheap; SQLite supports a single writer, which
// matches the engine's serial execution model.
type SQLiteBackend struct {
	db        *sql.DB
	mu        sync.RWMutex
	closeOnce sync.Once

	saveCtxStmt   *sql.Stmt
	loadCtxStmt   *sql.Stmt
	saveRecStmt   *sql.Stmt
	listRecStmt   *sql.Stmt
	saveRulesStmt *sql.Stmt
	loadRulesStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file location.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteBackend opens (or creates) the state database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteBackendWithConfig opens the database with custom settings.
func NewSQLiteBackendWithConfig(cfg SQLiteConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state: db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("state: create directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}

	// Single writer: the engine serializes all mutations anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SQLiteBackend{db: db}

	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: initialize schema: %w", err)
	}
	if err := b.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: prepare statements: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS flow_context (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pattern BLOB NOT NULL,
		depth INTEGER NOT NULL,
		tx_id BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allow_records (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		permitted INTEGER NOT NULL,
		last_change INTEGER NOT NULL,
		PRIMARY KEY (kind, key)
	);

	CREATE TABLE IF NOT EXISTS rule_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		bits INTEGER NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) prepareStatements() error {
	var err error

	b.saveCtxStmt, err = b.db.Prepare(`
		INSERT INTO flow_context (id, pattern, depth, tx_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			pattern = excluded.pattern,
			depth = excluded.depth,
			tx_id = excluded.tx_id,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}

	b.loadCtxStmt, err = b.db.Prepare(`
		SELECT pattern, depth, tx_id FROM flow_context WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("load context: %w", err)
	}

	b.saveRecStmt, err = b.db.Prepare(`
		INSERT INTO allow_records (kind, key, permitted, last_change)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET
			permitted = excluded.permitted,
			last_change = excluded.last_change
	`)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	b.listRecStmt, err = b.db.Prepare(`
		SELECT kind, key, permitted, last_change FROM allow_records WHERE kind = ?
	`)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	b.saveRulesStmt, err = b.db.Prepare(`
		INSERT INTO rule_state (id, bits) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET bits = excluded.bits
	`)
	if err != nil {
		return fmt.Errorf("save rules: %w", err)
	}

	b.loadRulesStmt, err = b.db.Prepare(`
		SELECT bits FROM rule_state WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	return nil
}

// SaveContext upserts the single flow-context row.
func (b *SQLiteBackend) SaveContext(ctx context.Context, row ContextRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.saveCtxStmt.ExecContext(ctx,
		row.Fingerprint[:], int64(row.Depth), row.TxID[:], time.Now().Unix())
	if err != nil {
		return fmt.Errorf("state: save context: %w", err)
	}
	return nil
}

// LoadContext returns the persisted context, or nil if none exists.
func (b *SQLiteBackend) LoadContext(ctx context.Context) (*ContextRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		pattern []byte
		depth   int64
		txID    []byte
	)
	err := b.loadCtxStmt.QueryRowContext(ctx).Scan(&pattern, &depth, &txID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load context: %w", err)
	}

	row := &ContextRow{Depth: uint64(depth)}
	copy(row.Fingerprint[:], pattern)
	copy(row.TxID[:], txID)
	return row, nil
}

// SaveAllowRecord upserts one allow-list record.
func (b *SQLiteBackend) SaveAllowRecord(ctx context.Context, rec AllowRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	permitted := 0
	if rec.Permitted {
		permitted = 1
	}
	_, err := b.saveRecStmt.ExecContext(ctx, rec.Kind, rec.Key, permitted, rec.LastChange)
	if err != nil {
		return fmt.Errorf("state: save allow record: %w", err)
	}
	return nil
}

// ListAllowRecords returns all records of the given kind.
func (b *SQLiteBackend) ListAllowRecords(ctx context.Context, kind string) ([]AllowRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.listRecStmt.QueryContext(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("state: list allow records: %w", err)
	}
	defer rows.Close()

	var out []AllowRecord
	for rows.Next() {
		var (
			rec       AllowRecord
			permitted int
		)
		if err := rows.Scan(&rec.Kind, &rec.Key, &permitted, &rec.LastChange); err != nil {
			return nil, fmt.Errorf("state: scan allow record: %w", err)
		}
		rec.Permitted = permitted != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterate allow records: %w", err)
	}
	return out, nil
}

// SaveRules upserts the active rule bits.
func (b *SQLiteBackend) SaveRules(ctx context.Context, bits uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.saveRulesStmt.ExecContext(ctx, int64(bits)); err != nil {
		return fmt.Errorf("state: save rules: %w", err)
	}
	return nil
}

// LoadRules returns the persisted rule bits and whether any were stored.
func (b *SQLiteBackend) LoadRules(ctx context.Context) (uint8, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var bits int64
	err := b.loadRulesStmt.QueryRowContext(ctx).Scan(&bits)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("state: load rules: %w", err)
	}
	return uint8(bits), true, nil
}

// Close runs a final WAL checkpoint and closes the database.
// Safe to call multiple times.
func (b *SQLiteBackend) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{
			b.saveCtxStmt, b.loadCtxStmt, b.saveRecStmt,
			b.listRecStmt, b.saveRulesStmt, b.loadRulesStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}
		if b.db != nil {
			_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = b.db.Close()
		}
	})
	return closeErr
}
