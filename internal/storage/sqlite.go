package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/stepup/internal/elicitation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultQueueTTL = time.Hour

// Store keeps elicitation records and per-session queues in SQLite. It
// implements elicitation.Store, elicitation.Queue and elicitation.Reaper.
//
// SQLite has no key expiry, so every row carries a purge_after deadline.
// Rows past it are invisible to reads and are deleted by Reap.
type Store struct {
	db       *sql.DB
	now      func() time.Time
	queueTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for TTL bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithQueueTTL sets how long a session queue survives after its last enqueue.
func WithQueueTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queueTTL = d
		}
	}
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string, opts ...Option) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "stepup.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, now: time.Now, queueTTL: defaultQueueTTL}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// --- Elicitations ---

// Save inserts a new record. A row that outlived its purge deadline but has
// not been reaped yet counts as absent and is replaced; any other existing
// row yields elicitation.ErrDuplicate.
func (s *Store) Save(ctx context.Context, st elicitation.State, ttl time.Duration) error {
	r, err := toRecord(st)
	if err != nil {
		return err
	}
	purgeAfter := s.now().Add(ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO elicitations (id, tool_call_id, mcp_endpoint, user_id, session_id, room_name, status, schema_json, suspended_arguments, created_at, expires_at, purge_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tool_call_id = excluded.tool_call_id,
			mcp_endpoint = excluded.mcp_endpoint,
			user_id = excluded.user_id,
			session_id = excluded.session_id,
			room_name = excluded.room_name,
			status = excluded.status,
			schema_json = excluded.schema_json,
			suspended_arguments = excluded.suspended_arguments,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			purge_after = excluded.purge_after
		WHERE elicitations.purge_after <= ?`,
		r.ID, r.ToolCallID, r.Endpoint, r.UserID, r.SessionID, r.RoomName, r.Status,
		r.SchemaJSON, r.SuspendedArguments, r.CreatedAt, r.ExpiresAt, purgeAfter,
		s.nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("saving elicitation %s: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving elicitation %s: %w", st.ID, err)
	}
	if n == 0 {
		return elicitation.ErrDuplicate
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (elicitation.State, error) {
	var r record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tool_call_id, mcp_endpoint, user_id, session_id, room_name, status, schema_json, suspended_arguments, created_at, expires_at
		FROM elicitations WHERE id = ? AND purge_after > ?`, id, s.nowMillis(),
	).Scan(&r.ID, &r.ToolCallID, &r.Endpoint, &r.UserID, &r.SessionID, &r.RoomName, &r.Status,
		&r.SchemaJSON, &r.SuspendedArguments, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return elicitation.State{}, elicitation.ErrNotFound
	}
	if err != nil {
		return elicitation.State{}, fmt.Errorf("loading elicitation %s: %w", id, err)
	}
	return r.state()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status elicitation.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE elicitations SET status = ? WHERE id = ? AND purge_after > ?`,
		string(status), id, s.nowMillis(),
	)
	return affected(res, err)
}

// CompareAndSwapStatus is a single conditional UPDATE, so two callers racing
// on the same row see exactly one success.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id string, from, to elicitation.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE elicitations SET status = ? WHERE id = ? AND status = ? AND purge_after > ?`,
		string(to), id, string(from), s.nowMillis(),
	)
	return affected(res, err)
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM elicitations WHERE id = ? AND purge_after > ?`, id, s.nowMillis())
	return affected(res, err)
}

func (s *Store) FindExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expires_at FROM elicitations
		WHERE status = ? AND purge_after > ?
		ORDER BY created_at ASC`, string(elicitation.StatusPending), s.nowMillis(),
	)
	if err != nil {
		return nil, fmt.Errorf("scanning for expired elicitations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, expiresAt string
		if err := rows.Scan(&id, &expiresAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parsing expires_at for %s: %w", id, err)
		}
		if now.After(t) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// Reap deletes elicitation rows and session queues whose purge deadline has
// passed. It returns the number of elicitation rows removed.
func (s *Store) Reap(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning reap: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM elicitations WHERE purge_after <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reaping elicitations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM elicitation_queue WHERE session_id IN (
			SELECT session_id FROM elicitation_queues WHERE purge_after <= ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("reaping queue entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elicitation_queues WHERE purge_after <= ?`, cutoff); err != nil {
		return 0, fmt.Errorf("reaping queues: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reap: %w", err)
	}
	return int(n), nil
}

// --- Session queues ---

// Enqueue appends id to the session queue and pushes the queue's expiry out
// by the configured queue TTL. A queue that has already lapsed is emptied
// first so stale entries are not revived.
func (s *Store) Enqueue(ctx context.Context, sessionID, id string) error {
	now := s.nowMillis()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning enqueue: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM elicitation_queue WHERE session_id = ? AND session_id IN (
			SELECT session_id FROM elicitation_queues WHERE session_id = ? AND purge_after <= ?
		)`, sessionID, sessionID, now); err != nil {
		return fmt.Errorf("clearing lapsed queue: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO elicitation_queue (session_id, elicitation_id) VALUES (?, ?)`,
		sessionID, id); err != nil {
		return fmt.Errorf("enqueueing %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO elicitation_queues (session_id, purge_after) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET purge_after = excluded.purge_after`,
		sessionID, now+s.queueTTL.Milliseconds()); err != nil {
		return fmt.Errorf("refreshing queue ttl: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Peek(ctx context.Context, sessionID string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT q.elicitation_id FROM elicitation_queue q
		JOIN elicitation_queues m ON m.session_id = q.session_id
		WHERE q.session_id = ? AND m.purge_after > ?
		ORDER BY q.seq ASC LIMIT 1`, sessionID, s.nowMillis(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("peeking queue %s: %w", sessionID, err)
	}
	return id, true, nil
}

func (s *Store) Remove(ctx context.Context, sessionID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM elicitation_queue WHERE session_id = ? AND elicitation_id = ?`, sessionID, id)
	return affected(res, err)
}

func (s *Store) Len(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM elicitation_queue q
		JOIN elicitation_queues m ON m.session_id = q.session_id
		WHERE q.session_id = ? AND m.purge_after > ?`, sessionID, s.nowMillis(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queue %s: %w", sessionID, err)
	}
	return n, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var (
	_ elicitation.Store  = (*Store)(nil)
	_ elicitation.Queue  = (*Store)(nil)
	_ elicitation.Reaper = (*Store)(nil)
)
