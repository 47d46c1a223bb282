// Package sqlite provides a ports.QueueStore backed by an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

const (
	dbFileName   = "queue.db"
	lockFileName = "queue.lock"
)

// Store implements ports.QueueStore with one row per queued operation.
type Store struct {
	db  *sql.DB
	dir string

	// closeMu guards lock, which Close clears. Queries racing Close get
	// database/sql's closed-database error.
	closeMu sync.Mutex
	lock    *flock.Flock

	now    func() time.Time
	newID  func() string
	logger ports.Logger
}

var _ ports.QueueStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (creating if needed) queue.db under dir.
// The database is opened with:
//   - a single connection, so statements are serialized
//   - WAL journal and synchronous=FULL, so a committed statement is durable
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, domain.NewStorageError("open", err)
	}

	s.lock = flock.New(filepath.Join(dir, lockFileName))
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, domain.NewStorageError("lock", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, domain.ErrStoreLocked)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		_ = s.lock.Unlock()
		return nil, domain.NewStorageError("open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	if err := s.init(); err != nil {
		db.Close()
		_ = s.lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=FULL`,
		`CREATE TABLE IF NOT EXISTS queued_operations (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			status        TEXT NOT NULL CHECK (status IN ('pending', 'syncing', 'failed')),
			error_message TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			payload       BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_operations_order ON queued_operations (status, created_at, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return domain.NewStorageError("migrate", err)
		}
	}

	res, err := s.db.Exec(
		`UPDATE queued_operations SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		domain.StatusFailed, domain.InterruptedMessage, s.stamp().UnixNano(), domain.StatusSyncing,
	)
	if err != nil {
		return domain.NewStorageError("recover", err)
	}
	recovered, _ := res.RowsAffected()
	if recovered > 0 {
		s.logger.Warn("queued operations were interrupted during submission",
			log.Int64("recovered", recovered),
		)
	}
	return nil
}

// Enqueue stores task as a new pending row.
func (s *Store) Enqueue(ctx context.Context, task domain.SyncTask) (domain.QueuedOperation, error) {
	if task == nil {
		return domain.QueuedOperation{}, fmt.Errorf("enqueue: %w: nil task", domain.ErrInvalidPayload)
	}
	kind, payload, err := domain.EncodeTask(task)
	if err != nil {
		return domain.QueuedOperation{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("enqueue", err)
	}
	defer tx.Rollback()

	created := s.stamp()
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM queued_operations`).Scan(&last); err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("enqueue", err)
	}
	if last.Valid && created.UnixNano() <= last.Int64 {
		created = time.Unix(0, last.Int64+1).UTC()
	}

	op := domain.QueuedOperation{
		ID:        s.newID(),
		CreatedAt: created,
		UpdatedAt: created,
		Status:    domain.StatusPending,
		Task:      task,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO queued_operations (id, kind, status, error_message, created_at, updated_at, payload)
		 VALUES (?, ?, ?, '', ?, ?, ?)`,
		op.ID, kind, op.Status, created.UnixNano(), created.UnixNano(), []byte(payload),
	)
	if err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("enqueue", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("enqueue", err)
	}
	return op, nil
}

// MarkStatus updates the status of id.
func (s *Store) MarkStatus(ctx context.Context, id string, status domain.Status, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("mark status: invalid status %q", status)
	}
	if status != domain.StatusFailed {
		errorMessage = ""
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE queued_operations SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errorMessage, s.stamp().UnixNano(), id,
	)
	if err != nil {
		return domain.NewStorageError("mark status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("mark status", err)
	}
	if n == 0 {
		return fmt.Errorf("mark status %s: %w", id, domain.ErrOperationNotFound)
	}
	return nil
}

// Remove deletes id. Absent ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_operations WHERE id = ?`, id); err != nil {
		return domain.NewStorageError("remove", err)
	}
	return nil
}

// NextPending returns the oldest pending row.
func (s *Store) NextPending(ctx context.Context) (*domain.QueuedOperation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, error_message, created_at, updated_at, payload
		 FROM queued_operations WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		domain.StatusPending,
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("next pending", err)
	}
	return &op, nil
}

// Get returns the row for id.
func (s *Store) Get(ctx context.Context, id string) (domain.QueuedOperation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, error_message, created_at, updated_at, payload
		 FROM queued_operations WHERE id = ?`,
		id,
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueuedOperation{}, fmt.Errorf("get %s: %w", id, domain.ErrOperationNotFound)
	}
	if err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("get", err)
	}
	return op, nil
}

// List returns all rows in replay order.
func (s *Store) List(ctx context.Context) ([]domain.QueuedOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, error_message, created_at, updated_at, payload
		 FROM queued_operations ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	defer rows.Close()

	var ops []domain.QueuedOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, domain.NewStorageError("list", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	return ops, nil
}

// Close closes the database and releases the directory lock. Safe to call twice.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.lock == nil {
		return nil
	}
	err := s.db.Close()
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	s.lock = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, dbFileName)
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(sc scanner) (domain.QueuedOperation, error) {
	var (
		rec              domain.Record
		created, updated int64
		payload          []byte
	)
	if err := sc.Scan(&rec.ID, &rec.Kind, &rec.Status, &rec.ErrorMessage, &created, &updated, &payload); err != nil {
		return domain.QueuedOperation{}, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	rec.Payload = payload
	return rec.ToOperation()
}
