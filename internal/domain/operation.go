package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the persisted state of a queued operation.
// Absence from the store means the operation was synced and purged.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the three persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	}
	return false
}

// Kind discriminates the SyncTask variants on disk and on the wire.
type Kind string

const (
	KindRegularSale Kind = "regular_sale"
	KindResumeHeld  Kind = "resume_held_transaction"
)

// SyncTask is the closed sum of replayable work shapes.
// The unexported marker keeps the set closed to this package; dispatch sites
// switch over the value types RegularSale and ResumeHeld. Pointers to them
// satisfy the interface but are rejected by ValidateTask.
type SyncTask interface {
	Kind() Kind
	Validate() error
	syncTask()
}

// RegularSale submits a new sale.
type RegularSale struct {
	Sale SalePayload
}

func (RegularSale) Kind() Kind        { return KindRegularSale }
func (t RegularSale) Validate() error { return t.Sale.Validate() }
func (RegularSale) syncTask()         {}

// ResumeHeld completes a held transaction with the captured payments.
type ResumeHeld struct {
	Resume ResumeHeldPayload
}

func (ResumeHeld) Kind() Kind        { return KindResumeHeld }
func (t ResumeHeld) Validate() error { return t.Resume.Validate() }
func (ResumeHeld) syncTask()         {}

// ValidateTask checks task is one of the value variants and that its
// payload is replayable on its own.
func ValidateTask(task SyncTask) error {
	switch t := task.(type) {
	case RegularSale:
		return t.Validate()
	case ResumeHeld:
		return t.Validate()
	case nil:
		return fmt.Errorf("%w: nil task", ErrInvalidPayload)
	default:
		return fmt.Errorf("%w: unsupported task type %T", ErrInvalidPayload, task)
	}
}

// CloneTask returns a copy of task that shares no slices with it.
func CloneTask(task SyncTask) SyncTask {
	switch t := task.(type) {
	case RegularSale:
		return RegularSale{Sale: t.Sale.Clone()}
	case ResumeHeld:
		return ResumeHeld{Resume: t.Resume.Clone()}
	default:
		return task
	}
}

// QueuedOperation is the unit of deferred work.
type QueuedOperation struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Status       Status
	ErrorMessage string
	Task         SyncTask
}

// Kind returns the task discriminator, or "" for an empty operation.
func (op QueuedOperation) Kind() Kind {
	if op.Task == nil {
		return ""
	}
	return op.Task.Kind()
}

// Clone returns a copy of op whose task shares no memory with op.
func (op QueuedOperation) Clone() QueuedOperation {
	op.Task = CloneTask(op.Task)
	return op
}

// Before reports whether op replays before other (FIFO by CreatedAt, id as tiebreak).
func (op QueuedOperation) Before(other QueuedOperation) bool {
	if !op.CreatedAt.Equal(other.CreatedAt) {
		return op.CreatedAt.Before(other.CreatedAt)
	}
	return op.ID < other.ID
}

// Record is the flat, serializable form of a QueuedOperation.
// JSON uses snake_case field names; the file and sqlite stores share it.
type Record struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Payload      json.RawMessage `json:"payload"`
}

// ToRecord flattens the operation, encoding its task payload.
func (op QueuedOperation) ToRecord() (Record, error) {
	kind, payload, err := EncodeTask(op.Task)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:           op.ID,
		Kind:         kind,
		Status:       op.Status,
		ErrorMessage: op.ErrorMessage,
		CreatedAt:    op.CreatedAt,
		UpdatedAt:    op.UpdatedAt,
		Payload:      payload,
	}, nil
}

// ToOperation rebuilds the operation from its flat form.
func (r Record) ToOperation() (QueuedOperation, error) {
	task, err := DecodeTask(r.Kind, r.Payload)
	if err != nil {
		return QueuedOperation{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	if !r.Status.Valid() {
		return QueuedOperation{}, fmt.Errorf("record %s: invalid status %q", r.ID, r.Status)
	}
	return QueuedOperation{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Status:       r.Status,
		ErrorMessage: r.ErrorMessage,
		Task:         task,
	}, nil
}

// EncodeTask serializes the task payload and returns its kind.
func EncodeTask(task SyncTask) (Kind, json.RawMessage, error) {
	var (
		payload any
		kind    Kind
	)
	switch t := task.(type) {
	case RegularSale:
		kind, payload = KindRegularSale, t.Sale
	case ResumeHeld:
		kind, payload = KindResumeHeld, t.Resume
	case nil:
		return "", nil, errors.New("encode task: nil task")
	default:
		return "", nil, fmt.Errorf("encode task %T: %w", task, ErrUnknownKind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return kind, raw, nil
}

// DecodeTask rebuilds a task from its kind and JSON payload.
func DecodeTask(kind Kind, raw json.RawMessage) (SyncTask, error) {
	switch kind {
	case KindRegularSale:
		var p SalePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return RegularSale{Sale: p}, nil
	case KindResumeHeld:
		var p ResumeHeldPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return ResumeHeld{Resume: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// InterruptedMessage is recorded on entries found mid-submission at load time.
// Their server-side outcome is unknown, so they are parked rather than replayed.
const InterruptedMessage = "interrupted during submission; outcome unknown"

// Stats summarizes queue contents for the operator surface.
type Stats struct {
	Length  int `json:"length"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Failed  int `json:"failed"`
}

// Tally counts operations by status.
func Tally(ops []QueuedOperation) Stats {
	s := Stats{Length: len(ops)}
	for _, op := range ops {
		switch op.Status {
		case StatusPending:
			s.Pending++
		case StatusSyncing:
			s.Syncing++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
