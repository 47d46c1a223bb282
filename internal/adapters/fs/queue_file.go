package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

const (
	queueFileName = "queue.json"
	lockFileName  = "queue.lock"

	fileFormatVersion = 1
)

// queueDocument is the on-disk layout of queue.json.
type queueDocument struct {
	Version    int             `json:"version"`
	Operations []domain.Record `json:"operations"`
}

// QueueFile implements ports.QueueStore with a single JSON document.
// Every mutation rewrites the document atomically (temp file, fsync, rename)
// and only then replaces the in-memory copy, so a failed write leaves both
// unchanged. An exclusive flock on queue.lock keeps a second process out.
type QueueFile struct {
	mu   sync.Mutex
	dir  string
	lock *flock.Flock
	ops  []domain.QueuedOperation // replay order

	// lastCreated is the newest createdAt handed out; later entries are
	// stamped strictly after it even if the wall clock steps back.
	lastCreated time.Time

	now    func() time.Time
	newID  func() string
	logger ports.Logger
}

var _ ports.QueueStore = (*QueueFile)(nil)

// Option configures a QueueFile.
type Option func(*QueueFile)

// WithClock replaces time.Now for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(q *QueueFile) { q.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(q *QueueFile) { q.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(q *QueueFile) { q.logger = logger }
}

// Open locks dir and loads the queue document from it.
// Entries persisted as syncing are converted to failed: the process stopped
// between submitting and recording the outcome, so replaying could duplicate.
func Open(dir string, opts ...Option) (*QueueFile, error) {
	q := &QueueFile{
		dir:    dir,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, domain.NewStorageError("open", err)
	}

	q.lock = flock.New(filepath.Join(dir, lockFileName))
	locked, err := q.lock.TryLock()
	if err != nil {
		return nil, domain.NewStorageError("lock", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, domain.ErrStoreLocked)
	}

	if err := q.load(); err != nil {
		_ = q.lock.Unlock()
		return nil, err
	}
	return q, nil
}

func (q *QueueFile) load() error {
	data, err := os.ReadFile(q.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.NewStorageError("load", err)
	}

	var doc queueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.NewStorageError("load", fmt.Errorf("decode %s: %w", q.Path(), err))
	}
	if doc.Version > fileFormatVersion {
		return domain.NewStorageError("load", fmt.Errorf("%s has format version %d, newer than %d", q.Path(), doc.Version, fileFormatVersion))
	}

	ops := make([]domain.QueuedOperation, 0, len(doc.Operations))
	recovered := 0
	for _, rec := range doc.Operations {
		op, err := rec.ToOperation()
		if err != nil {
			return domain.NewStorageError("load", err)
		}
		if op.Status == domain.StatusSyncing {
			op.Status = domain.StatusFailed
			op.ErrorMessage = domain.InterruptedMessage
			op.UpdatedAt = q.stamp()
			recovered++
			q.logger.Warn("queued operation was interrupted during submission",
				log.OperationID(op.ID),
				log.Kind(string(op.Kind())),
			)
		}
		if op.CreatedAt.After(q.lastCreated) {
			q.lastCreated = op.CreatedAt
		}
		ops = append(ops, op)
	}
	sortOps(ops)

	if recovered > 0 {
		if err := q.write(ops); err != nil {
			return domain.NewStorageError("load", err)
		}
	}
	q.ops = ops

	q.logger.Info("queue loaded",
		log.String("path", q.Path()),
		log.Int("entries", len(ops)),
		log.Int("recovered", recovered),
	)
	return nil
}

// Enqueue stores a copy of task as a new pending entry. Later changes to
// the caller's slices do not reach the queued snapshot.
func (q *QueueFile) Enqueue(ctx context.Context, task domain.SyncTask) (domain.QueuedOperation, error) {
	if task == nil {
		return domain.QueuedOperation{}, fmt.Errorf("enqueue: %w: nil task", domain.ErrInvalidPayload)
	}
	if _, _, err := domain.EncodeTask(task); err != nil {
		return domain.QueuedOperation{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	created := q.stamp()
	if !created.After(q.lastCreated) {
		created = q.lastCreated.Add(time.Nanosecond)
	}

	op := domain.QueuedOperation{
		ID:        q.newID(),
		CreatedAt: created,
		UpdatedAt: created,
		Status:    domain.StatusPending,
		Task:      domain.CloneTask(task),
	}

	next := make([]domain.QueuedOperation, len(q.ops), len(q.ops)+1)
	copy(next, q.ops)
	next = append(next, op)
	if err := q.write(next); err != nil {
		return domain.QueuedOperation{}, domain.NewStorageError("enqueue", err)
	}
	q.ops = next
	q.lastCreated = created
	return op.Clone(), nil
}

// MarkStatus updates the status of id.
func (q *QueueFile) MarkStatus(ctx context.Context, id string, status domain.Status, errorMessage string) error {
	if !status.Valid() {
		return fmt.Errorf("mark status: invalid status %q", status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("mark status %s: %w", id, domain.ErrOperationNotFound)
	}

	next := make([]domain.QueuedOperation, len(q.ops))
	copy(next, q.ops)
	op := &next[idx]
	op.Status = status
	op.UpdatedAt = q.stamp()
	op.ErrorMessage = ""
	if status == domain.StatusFailed {
		op.ErrorMessage = errorMessage
	}

	if err := q.write(next); err != nil {
		return domain.NewStorageError("mark status", err)
	}
	q.ops = next
	return nil
}

// Remove deletes id. Absent ids are ignored.
func (q *QueueFile) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return nil
	}

	next := make([]domain.QueuedOperation, 0, len(q.ops)-1)
	next = append(next, q.ops[:idx]...)
	next = append(next, q.ops[idx+1:]...)
	if err := q.write(next); err != nil {
		return domain.NewStorageError("remove", err)
	}
	q.ops = next
	return nil
}

// NextPending returns the oldest pending entry.
func (q *QueueFile) NextPending(ctx context.Context) (*domain.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		if op.Status == domain.StatusPending {
			next := op.Clone()
			return &next, nil
		}
	}
	return nil, nil
}

// Get returns the entry for id.
func (q *QueueFile) Get(ctx context.Context, id string) (domain.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return domain.QueuedOperation{}, fmt.Errorf("get %s: %w", id, domain.ErrOperationNotFound)
	}
	return q.ops[idx].Clone(), nil
}

// List returns a copy of all entries in replay order.
func (q *QueueFile) List(ctx context.Context) ([]domain.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.QueuedOperation, len(q.ops))
	for i, op := range q.ops {
		out[i] = op.Clone()
	}
	return out, nil
}

// Close releases the directory lock.
func (q *QueueFile) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lock == nil {
		return nil
	}
	err := q.lock.Unlock()
	q.lock = nil
	return err
}

// Path returns the full path to the queue document.
func (q *QueueFile) Path() string {
	return filepath.Join(q.dir, queueFileName)
}

func (q *QueueFile) stamp() time.Time {
	return q.now().UTC()
}

func (q *QueueFile) indexOf(id string) int {
	for i, op := range q.ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// write persists ops as the whole queue document.
func (q *QueueFile) write(ops []domain.QueuedOperation) error {
	doc := queueDocument{
		Version:    fileFormatVersion,
		Operations: make([]domain.Record, 0, len(ops)),
	}
	for _, op := range ops {
		rec, err := op.ToRecord()
		if err != nil {
			return err
		}
		doc.Operations = append(doc.Operations, rec)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	return writeFileAtomic(q.Path(), data, 0o600)
}

// writeFileAtomic replaces path with data so readers see either the old or
// the new content, never a partial write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	// Sync the directory so the rename itself survives a power loss.
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		dir.Close()
	}
	return nil
}

func sortOps(ops []domain.QueuedOperation) {
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Before(ops[j]) })
}
