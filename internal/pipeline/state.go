package pipeline

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/courtside/internal/reconcile"
)

// ErrStateNotFound is returned when no persisted run state exists yet.
var ErrStateNotFound = errors.New("pipeline: state not found")

// Phase enumerates the controller's positions within one iteration.
type Phase string

const (
	PhaseScrape     Phase = "scrape"
	PhaseResearch   Phase = "research"
	PhaseModel      Phase = "model"
	PhasePick       Phase = "pick"
	PhaseSize       Phase = "size"
	PhaseCompliance Phase = "compliance"
	PhaseApprove    Phase = "approve"
	PhaseFinalize   Phase = "finalize"
)

// RunState is the snapshot persisted at every phase transition. The TUI
// renders it live; the state file is what a post-mortem reads after a
// crashed run.
type RunState struct {
	RunID      string                 `json:"run_id"`
	Date       string                 `json:"date"`
	Phase      Phase                  `json:"phase"`
	Iteration  int                    `json:"iteration"`
	Games      int                    `json:"games"`
	Picks      int                    `json:"picks"`
	Sized      int                    `json:"sized"`
	Unresolved []reconcile.Unresolved `json:"unresolved,omitempty"`
	Err        string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// StateStore persists run state snapshots.
type StateStore interface {
	Load() (RunState, error)
	Save(RunState) error
}

// Repository stores run state as a JSON file under the state directory.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to dir/state.json.
func NewRepository(dir string) *Repository {
	return &Repository{path: filepath.Join(dir, "state.json")}
}

// Load reads the persisted state if present.
func (r *Repository) Load() (RunState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RunState{}, ErrStateNotFound
		}
		return RunState{}, err
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, err
	}
	return state, nil
}

// Save writes the run state to disk with best-effort atomicity.
func (r *Repository) Save(state RunState) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, append(encoded, '\n'), 0o644)
}
