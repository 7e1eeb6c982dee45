package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Schema version tracking:
// 1 - Initial schema: products, sales, sync_queue collections
const currentSchemaVersion = 1

var (
	// ErrNotFound is returned by Get when no record exists for the id.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownCollection is returned when a collection is not registered.
	ErrUnknownCollection = errors.New("unknown collection")
)

// timestampLayout is fixed-width so lexicographic ordering on the
// created_at column matches chronological ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one row of a collection: an id plus its JSON payload.
type Record struct {
	ID      string
	Payload []byte
}

// Store is the terminal-local durable record store. It survives process
// restarts and is the single source of truth for committed sales and the
// pending-sync queue.
//
// SQLite with WAL mode; a single writer connection avoids SQLITE_BUSY
// under the one-process-per-terminal model.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path. Safe to call repeatedly: the
// schema is created if absent and migrations are additive, so existing
// records are never touched.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping failed: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts a record by id. Re-putting the same id and payload is
// observably a no-op.
func (s *Store) Put(ctx context.Context, c models.Collection, id string, payload []byte) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	return put(ctx, s.db, table, id, payload)
}

// Get fetches a single record. Returns ErrNotFound when the id is absent.
func (s *Store) Get(ctx context.Context, c models.Collection, id string) (Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return Record{}, err
	}

	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, table)

	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	return Record{ID: id, Payload: payload}, nil
}

// GetAll returns a snapshot of the whole collection, ordered by insertion
// time. The snapshot is stable within one read; concurrent writes are not
// reflected in it.
func (s *Store) GetAll(ctx context.Context, c models.Collection) ([]Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, payload FROM %s ORDER BY created_at, id`, table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection %s: %w", table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan record in %s: %w", table, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collection scan interrupted for %s: %w", table, err)
	}
	return records, nil
}

// Delete removes a record by id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, c models.Collection, id string) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	return del(ctx, s.db, table, id)
}

// Count reports the number of records in a collection. Used to feed the
// queue backlog gauge.
func (s *Store) Count(ctx context.Context, c models.Collection) (int, error) {
	table, err := tableFor(c)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Tx exposes write operations inside a single store transaction.
type Tx struct {
	tx *sql.Tx
}

// Put upserts a record within the transaction.
func (t *Tx) Put(ctx context.Context, c models.Collection, id string, payload []byte) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	return put(ctx, t.tx, table, id, payload)
}

// Delete removes a record within the transaction.
func (t *Tx) Delete(ctx context.Context, c models.Collection, id string) error {
	table, err := tableFor(c)
	if err != nil {
		return err
	}
	return del(ctx, t.tx, table, id)
}

// Update runs fn inside one transaction spanning any number of
// collections. Either every write in fn lands or none does.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start store transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store commit failed: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, e execer, table, id string, payload []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, table)

	if _, err := e.ExecContext(ctx, query, id, payload, time.Now().UTC().Format(timestampLayout)); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", table, id, err)
	}
	return nil
}

func del(ctx context.Context, e execer, table, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)
	if _, err := e.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return nil
}

// tableFor maps a collection to its table, enforcing the registry
// whitelist so no caller can reach an arbitrary table name.
func tableFor(c models.Collection) (string, error) {
	if !models.CollectionRegistry[c] {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	return string(c), nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 creates the three collections. CREATE TABLE IF NOT EXISTS
// keeps the migration idempotent for stores created before version
// tracking existed.
func migrateToV1(db *sql.DB) error {
	for c := range models.CollectionRegistry {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				payload    BLOB NOT NULL,
				created_at TEXT NOT NULL
			)
		`, string(c))
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", c, err)
		}
	}
	return nil
}
