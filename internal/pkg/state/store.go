package state

import (
	"context"
	"errors"
	"time"
)

const SnapshotVersion = 1

// ErrCorruptSnapshot marks a stored snapshot that can never be decoded. The tracker starts
// empty on it and lets the next save replace it.
var ErrCorruptSnapshot = errors.New("state: corrupt snapshot")

// Entry is the persisted form of one device's state.
type Entry struct {
	State       string    `json:"state"`
	Brightness  *int      `json:"brightness,omitempty"`
	Position    *int      `json:"position,omitempty"`
	LastCommand string    `json:"last_command"`
	LastUpdate  time.Time `json:"last_update"`
	Confidence  int       `json:"confidence"`
	Inferred    bool      `json:"inferred,omitempty"`
}

// Snapshot is the whole state map keyed by device id.
type Snapshot struct {
	Version  int              `json:"version"`
	Devices  map[string]Entry `json:"devices"`
	LastSave time.Time        `json:"last_save"`
}

// Store persists snapshots. Load returns nil, nil when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}
