package hub

import (
	"context"
	"fmt"

	"github.com/anicoll/ics2000-integration/internal/pkg/classifier"
	"github.com/anicoll/ics2000-integration/internal/pkg/codec"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DiscoverDevices syncs the module list from the cloud and merges it into the registry.
// Overlapping calls share one sync. A failed sync leaves the registry untouched.
// The shared sync outlives any single caller, each caller only stops waiting when its
// own ctx is done.
func (h *Hub) DiscoverDevices(ctx context.Context) ([]model.Device, error) {
	ch := h.syncGroup.DoChan("sync", func() (any, error) {
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()
		return nil, h.sync(syncCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			h.logger.Debug("joined running sync")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return h.Devices(ctx), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh runs an immediate sync.
func (h *Hub) Refresh(ctx context.Context) error {
	_, err := h.DiscoverDevices(ctx)
	return err
}

func (h *Hub) sync(ctx context.Context) error {
	session := h.cloud.Session()
	if session == nil {
		s, err := h.cloud.Authenticate(ctx)
		if err != nil {
			return err
		}
		session = s
	}

	records, err := h.cloud.Sync(ctx, session)
	if err != nil {
		h.logger.Warn("cloud sync failed, keeping existing devices", zap.Error(err))
		return err
	}

	var payloads []*classifier.Payload
	found, added := 0, 0
	for _, rec := range records {
		id := int64(rec.ID)
		if id <= 0 {
			continue
		}
		if _, skip := h.blacklist[id]; skip {
			h.logger.Debug("skipping blacklisted module", zap.Int64("module_id", id))
			continue
		}

		data := h.decode(id, "data", rec.Data, session.Key)
		status := h.decode(id, "status", rec.Status, session.Key)
		payloads = append(payloads, data, status)

		desc := h.classifier.Classify(rec, data, status)
		h.applyOverride(&desc)
		desc.Device.WireID = h.transport.WireID(id)
		desc.Device.CloudOnly = h.cfg.CloudOnlyAbove > 0 && id > h.cfg.CloudOnlyAbove

		isNew, changed := h.merge(ctx, desc)
		found++
		if isNew {
			added++
			h.logger.Info("discovered device",
				zap.Int64("device_id", id),
				zap.String("name", desc.Device.Name),
				zap.Stringer("type", desc.Device.Type),
				zap.Bool("dimmable", desc.Device.Dimmable),
				zap.Bool("cloud_only", desc.Device.CloudOnly))
		}
		if isNew || changed {
			d, _ := h.device(ctx, id)
			h.notify(ctx, d)
		}
		if changed && !isNew {
			e := h.newEvent(model.EventDeviceUpdated)
			e.DeviceID = id
			e.Command = "cloud_sync"
			e.Success = true
			h.emit(ctx, e)
		}
	}

	h.registry.PutScenes(classifier.Scenes(payloads...))
	h.reportCollisions()

	h.mu.Lock()
	h.lastSync = h.now()
	h.mu.Unlock()

	e := h.newEvent(model.EventDeviceDiscovered)
	e.DeviceCount = h.registry.Len()
	e.Success = true
	h.emit(ctx, e)

	h.logger.Info("synced devices", zap.Int("modules", len(records)), zap.Int("found", found), zap.Int("new", added), zap.Int("total", e.DeviceCount))
	return nil
}

// merge stores the descriptor and applies its state. Cloud-read state wins when it differs;
// inferred state only fills in devices that have none.
func (h *Hub) merge(ctx context.Context, desc classifier.Descriptor) (isNew, changed bool) {
	id := desc.Device.ID
	unlock := h.lockDevice(id)
	defer unlock()

	isNew = h.registry.Put(desc.Device)
	if desc.Inferred {
		return isNew, h.tracker.Seed(ctx, id, desc.On, desc.Brightness, true)
	}
	if h.tracker.Seed(ctx, id, desc.On, desc.Brightness, false) {
		return isNew, true
	}
	return isNew, h.tracker.Reconcile(ctx, id, desc.On)
}

func (h *Hub) decode(id int64, field, blob string, key []byte) *classifier.Payload {
	if blob == "" {
		return nil
	}
	var p classifier.Payload
	if err := codec.Decode(blob, key, &p); err != nil {
		h.logger.Debug("could not decode module blob", zap.Int64("module_id", id), zap.String("field", field), zap.Error(err))
		return nil
	}
	return &p
}

func (h *Hub) applyOverride(desc *classifier.Descriptor) {
	o, ok := h.cfg.Overrides[desc.Device.ID]
	if !ok {
		return
	}
	if o.Name != "" {
		desc.Device.Name = o.Name
	}
	if o.Type != "" {
		desc.Device.Type = o.Type
		desc.Device.Dimmable = classifier.Dimmable(desc.Device.Name, o.Type)
		if !desc.Device.Dimmable {
			desc.Brightness = nil
		} else if desc.Brightness == nil {
			desc.Brightness = lo.ToPtr(classifier.DefaultBrightness)
		}
	}
}

// reportCollisions warns once for every set of local device ids that share a wire byte.
func (h *Hub) reportCollisions() {
	local := lo.Filter(h.registry.List(), func(d model.Device, _ int) bool { return !d.CloudOnly })
	ids := lo.Map(local, func(d model.Device, _ int) int64 { return d.ID })

	for wire, colliding := range transport.Collisions(ids, h.transport.Mapper()) {
		key := fmt.Sprint(colliding)
		h.mu.Lock()
		_, seen := h.reported[key]
		h.reported[key] = struct{}{}
		h.mu.Unlock()
		if seen {
			continue
		}
		h.logger.Warn("device ids share a wire id, commands reach all of them",
			zap.Uint8("wire_id", wire),
			zap.Int64s("device_ids", colliding))
	}
}
