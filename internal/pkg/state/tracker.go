// Package state tracks the last known state of every device and how far it can be trusted.
//
// Most devices are one-way RF receivers, so the stored state is often an assumption.
// Confidence is derived from the age of the last update each time a state is read and is
// never stored as a fixed property.
package state

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"go.uber.org/zap"
)

const DefaultPersistEvery = 5

type entry struct {
	on          bool
	brightness  *int
	position    *int
	lastCommand string
	lastUpdate  time.Time
	inferred    bool
}

// Update is an optimistic write produced by a local command.
type Update struct {
	On         bool
	Brightness *int
	Position   *int
	Command    string
}

type Tracker struct {
	store        Store
	persistEvery int
	now          func() time.Time
	logger       *zap.Logger

	mu      sync.Mutex
	states  map[int64]*entry
	loaded  bool
	pending int

	saveMu sync.Mutex
}

type Option func(*Tracker)

func WithPersistEvery(n int) Option {
	return func(t *Tracker) {
		t.persistEvery = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New returns a tracker. store may be nil, in which case nothing is persisted.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		persistEvery: DefaultPersistEvery,
		now:          time.Now,
		logger:       zap.L(),
		states:       make(map[int64]*entry),
	}
	for _, o := range opts {
		o(t)
	}
	if t.persistEvery <= 0 {
		t.persistEvery = 1
	}
	return t
}

// Load reads the persisted snapshot once. Later calls are no-ops. A store error is
// returned and retried on the next call, an unreadable snapshot is dropped.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(ctx)
}

func (t *Tracker) loadLocked(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	if t.store == nil {
		t.loaded = true
		return nil
	}
	snapshot, err := t.store.Load(ctx)
	if errors.Is(err, ErrCorruptSnapshot) {
		t.logger.Error("discarding unreadable persisted state", zap.Error(err))
		t.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	t.loaded = true
	if snapshot == nil {
		return nil
	}
	restored := 0
	for key, e := range snapshot.Devices {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			t.logger.Warn("skipping persisted state with bad id", zap.String("id", key))
			continue
		}
		if _, exists := t.states[id]; exists {
			continue
		}
		t.states[id] = &entry{
			on:          e.State == "on",
			brightness:  e.Brightness,
			position:    e.Position,
			lastCommand: e.LastCommand,
			lastUpdate:  e.LastUpdate,
			inferred:    e.Inferred,
		}
		restored++
	}
	t.logger.Info("restored device states", zap.Int("count", restored), zap.Time("last_save", snapshot.LastSave))
	return nil
}

func (t *Tracker) ensureLoaded(ctx context.Context) {
	if err := t.loadLocked(ctx); err != nil {
		t.logger.Warn("failed to load persisted state", zap.Error(err))
	}
}

// Get returns the state of a device with confidence computed from its age.
func (t *Tracker) Get(ctx context.Context, id int64) (model.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLoaded(ctx)

	e, ok := t.states[id]
	if !ok {
		return model.State{Confidence: model.ConfidenceUncertain}, false
	}
	return t.view(e), true
}

func (t *Tracker) All(ctx context.Context) map[int64]model.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLoaded(ctx)

	out := make(map[int64]model.State, len(t.states))
	for id, e := range t.states {
		out[id] = t.view(e)
	}
	return out
}

// IDs returns the tracked device ids in ascending order.
func (t *Tracker) IDs(ctx context.Context) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLoaded(ctx)

	ids := make([]int64, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecordCommand stores an optimistic state at full confidence.
func (t *Tracker) RecordCommand(ctx context.Context, id int64, u Update) model.State {
	t.mu.Lock()
	t.ensureLoaded(ctx)

	e, ok := t.states[id]
	if !ok {
		e = &entry{}
		t.states[id] = e
	}
	e.on = u.On
	if u.Brightness != nil {
		e.brightness = copyInt(u.Brightness)
	}
	if u.Position != nil {
		e.position = copyInt(u.Position)
	}
	e.lastCommand = u.Command
	e.lastUpdate = t.now()
	e.inferred = false
	view := t.view(e)
	flush := t.markDirtyLocked()
	t.mu.Unlock()

	t.logger.Debug("optimistic state update", zap.Int64("device_id", id), zap.Bool("on", u.On), zap.String("command", u.Command))
	if flush {
		t.persist(ctx)
	}
	return view
}

// Reconcile applies a state read from the cloud. It only writes when the value differs
// from what is stored and reports whether it did.
func (t *Tracker) Reconcile(ctx context.Context, id int64, on bool) bool {
	t.mu.Lock()
	t.ensureLoaded(ctx)

	e, ok := t.states[id]
	if ok && e.on == on {
		t.mu.Unlock()
		return false
	}
	if !ok {
		e = &entry{}
		t.states[id] = e
	}
	previous := e.on
	e.on = on
	e.lastCommand = "cloud_sync"
	e.lastUpdate = t.now()
	e.inferred = false
	flush := t.markDirtyLocked()
	t.mu.Unlock()

	if ok {
		t.logger.Info("device state changed in cloud", zap.Int64("device_id", id), zap.Bool("from", previous), zap.Bool("to", on))
	} else {
		t.logger.Info("device state read from cloud", zap.Int64("device_id", id), zap.Bool("on", on))
	}
	if flush {
		t.persist(ctx)
	}
	return true
}

// Seed records an initial state for a device that has none. Existing state is left alone.
func (t *Tracker) Seed(ctx context.Context, id int64, on bool, brightness *int, inferred bool) bool {
	t.mu.Lock()
	t.ensureLoaded(ctx)

	if _, ok := t.states[id]; ok {
		t.mu.Unlock()
		return false
	}
	t.states[id] = &entry{
		on:          on,
		brightness:  copyInt(brightness),
		lastCommand: "discovered",
		lastUpdate:  t.now(),
		inferred:    inferred,
	}
	flush := t.markDirtyLocked()
	t.mu.Unlock()

	if flush {
		t.persist(ctx)
	}
	return true
}

// Reset forgets one device and persists immediately.
func (t *Tracker) Reset(ctx context.Context, id int64) error {
	t.mu.Lock()
	t.ensureLoaded(ctx)
	delete(t.states, id)
	t.mu.Unlock()

	t.logger.Info("reset device state", zap.Int64("device_id", id))
	return t.Flush(ctx)
}

// ResetAll forgets every device and persists immediately. Nothing stored is worth
// restoring afterwards, so it does not wait for a readable store.
func (t *Tracker) ResetAll(ctx context.Context) error {
	t.mu.Lock()
	t.states = make(map[int64]*entry)
	t.loaded = true
	t.mu.Unlock()

	t.logger.Info("reset all device states")
	return t.Flush(ctx)
}

// Flush writes the full map to the store.
func (t *Tracker) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	if err := t.loadLocked(ctx); err != nil {
		t.mu.Unlock()
		return err
	}
	snapshot := t.snapshotLocked()
	t.pending = 0
	t.mu.Unlock()

	if err := t.store.Save(ctx, snapshot); err != nil {
		t.logger.Error("failed to persist device states", zap.Error(err))
		return err
	}
	t.logger.Debug("persisted device states", zap.Int("count", len(snapshot.Devices)))
	return nil
}

func (t *Tracker) persist(ctx context.Context) {
	_ = t.Flush(context.WithoutCancel(ctx))
}

func (t *Tracker) markDirtyLocked() bool {
	t.pending++
	return t.pending >= t.persistEvery
}

func (t *Tracker) snapshotLocked() *Snapshot {
	now := t.now()
	devices := make(map[string]Entry, len(t.states))
	for id, e := range t.states {
		s := "off"
		if e.on {
			s = "on"
		}
		devices[strconv.FormatInt(id, 10)] = Entry{
			State:       s,
			Brightness:  copyInt(e.brightness),
			Position:    copyInt(e.position),
			LastCommand: e.lastCommand,
			LastUpdate:  e.lastUpdate.UTC(),
			Confidence:  int(confidenceAt(now, e.lastUpdate, e.inferred)),
			Inferred:    e.inferred,
		}
	}
	return &Snapshot{
		Version:  SnapshotVersion,
		Devices:  devices,
		LastSave: now.UTC(),
	}
}

func (t *Tracker) view(e *entry) model.State {
	return model.State{
		On:          e.on,
		Brightness:  copyInt(e.brightness),
		Position:    copyInt(e.position),
		LastCommand: e.lastCommand,
		LastUpdate:  e.lastUpdate,
		Confidence:  confidenceAt(t.now(), e.lastUpdate, e.inferred),
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
