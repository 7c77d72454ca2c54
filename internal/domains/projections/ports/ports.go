package ports

import (
	"context"
	"errors"
	"time"

	eventlog "github.com/Apurer/worktrack/internal/domains/eventlog/domain"
)

var (
	// ErrProjectorFailure wraps reducer and persistence failures. The runner
	// records it on the checkpoint and retries from the same position.
	ErrProjectorFailure = errors.New("projector failure")
	ErrUnknownProjector = errors.New("unknown projector")
	ErrNotRebuildable   = errors.New("projector does not support rebuild")
	// ErrCheckpointMoved is returned by Save when a rebuild reset the
	// checkpoint after it was loaded. The batch must not advance it.
	ErrCheckpointMoved = errors.New("checkpoint moved by rebuild")
)

// Status is the checkpoint state of a projector.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusError  Status = "error"
)

// Checkpoint is the durable cursor of one projector into the global stream.
// Generation counts completed rebuilds.
type Checkpoint struct {
	ProjectorName               string     `json:"projectorName"`
	LastProcessedGlobalSequence int64      `json:"lastProcessedGlobalSequence"`
	Status                      Status     `json:"status"`
	EventsProcessedCount        int64      `json:"eventsProcessedCount"`
	ErrorsCount                 int64      `json:"errorsCount"`
	LastError                   string     `json:"lastError,omitempty"`
	LastProcessedAt             *time.Time `json:"lastProcessedAt,omitempty"`
	Generation                  int64      `json:"generation"`
}

// NewCheckpoint is the state of a projector that never ran.
func NewCheckpoint(name string) Checkpoint {
	return Checkpoint{ProjectorName: name, Status: StatusActive}
}

// CheckpointStore persists checkpoints. Load returns nil when absent.
//
// Save writes cp only while the stored Generation still equals
// cp.Generation, otherwise ErrCheckpointMoved. Reset writes a rebuilt
// position whatever is stored, increments the stored Generation and keeps
// a paused status. Together they fence batches that straddle a rebuild in
// another process.
type CheckpointStore interface {
	Load(ctx context.Context, name string) (*Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
	Reset(ctx context.Context, cp Checkpoint) error
	List(ctx context.Context) ([]Checkpoint, error)
}

// Projector folds events into one read model. Project returns false when
// the event was skipped as a duplicate, as stale, or as irrelevant.
type Projector interface {
	Name() string
	Project(ctx context.Context, evt eventlog.Event) (bool, error)
}

// Shadow is a projector writing into a fresh read model that readers do
// not see until Promote swaps it in.
type Shadow interface {
	Projector
	Promote(ctx context.Context) error
	Discard(ctx context.Context) error
}

// Rebuildable projectors can replay the log into a shadow read model.
type Rebuildable interface {
	Projector
	Shadow(ctx context.Context) (Shadow, error)
}
