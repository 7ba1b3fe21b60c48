package hub

import (
	"sort"
	"sync"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/samber/lo"
)

// Registry holds the device and scene descriptors of one gateway.
// A sync only replaces the entries it found; nothing is removed implicitly.
type Registry struct {
	mu      sync.RWMutex
	devices map[int64]model.Device
	scenes  map[int64]model.Scene
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[int64]model.Device),
		scenes:  make(map[int64]model.Scene),
	}
}

// Put stores d and reports whether the id was new.
func (r *Registry) Put(d model.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.devices[d.ID]
	d.State = model.State{}
	r.devices[d.ID] = d
	return !exists
}

func (r *Registry) Get(id int64) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// List returns the devices ordered by id.
func (r *Registry) List() []model.Device {
	r.mu.RLock()
	devices := lo.Values(r.devices)
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

func (r *Registry) IDs() []int64 {
	return lo.Map(r.List(), func(d model.Device, _ int) int64 { return d.ID })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *Registry) PutScenes(scenes []model.Scene) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range scenes {
		r.scenes[s.ID] = s
	}
}

func (r *Registry) Scene(id int64) (model.Scene, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenes[id]
	return s, ok
}

func (r *Registry) Scenes() []model.Scene {
	r.mu.RLock()
	scenes := lo.Values(r.scenes)
	r.mu.RUnlock()

	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes
}
