package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultBrightness is assigned to dimmable devices before any brightness is known.
const DefaultBrightness = 50

// Payload is the decoded shape of both the data and status blobs.
type Payload struct {
	Module *Module      `json:"module"`
	Scenes []SceneEntry `json:"scenes"`
}

type Module struct {
	Name      string          `json:"name"`
	Device    json.RawMessage `json:"device"`
	Entities  []Entity        `json:"entities"`
	Functions []model.FlexInt `json:"functions"`
}

type Entity struct {
	Name string `json:"name"`
}

type SceneEntry struct {
	ID       model.FlexInt   `json:"id"`
	EntityID model.FlexInt   `json:"entityId"`
	Name     string          `json:"name"`
	Devices  []model.FlexInt `json:"devices"`
}

// Descriptor is the classifier's verdict on a module.
type Descriptor struct {
	Device     model.Device
	On         bool
	Brightness *int
	// Inferred is set when the initial state is a guess rather than read from the status blob.
	Inferred bool
}

type Classifier struct {
	rules  []Rule
	codes  map[int64]model.DeviceType
	logger *zap.Logger
}

type Option func(*Classifier)

func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

func WithCodes(codes map[int64]model.DeviceType) Option {
	return func(c *Classifier) {
		c.codes = codes
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:  DefaultRules,
		codes:  DefaultCodes,
		logger: zap.L(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify never fails. data and status are nil when their blob could not be decoded.
func (c *Classifier) Classify(rec model.ModuleRecord, data, status *Payload) Descriptor {
	id := int64(rec.ID)
	name := ExtractName(data, status)
	if name == "" {
		name = fmt.Sprintf("Device %d", id)
		c.logger.Debug("no name found for module, using fallback", zap.Int64("module_id", id))
	}

	code := deviceCode(rec, data, status)
	deviceType := c.Type(name, code)
	dimmable := Dimmable(name, deviceType)

	d := Descriptor{
		Device: model.Device{
			ID:            id,
			Name:          name,
			Type:          deviceType,
			Dimmable:      dimmable,
			DeviceCode:    code,
			VersionData:   int64(rec.VersionData),
			VersionStatus: int64(rec.VersionStatus),
		},
	}
	if dimmable {
		d.Brightness = lo.ToPtr(DefaultBrightness)
	}

	if on, ok := FunctionState(status); ok {
		d.On = on
		return d
	}
	d.Device.AssumedState = true
	d.Inferred = true
	d.On = rec.VersionStatus > 0 && rec.VersionStatus%2 == 1
	return d
}

// Type applies the name rules, then the numeric code table, then defaults to a switch.
func (c *Classifier) Type(name string, code int64) model.DeviceType {
	lowerName := strings.ToLower(name)
	for _, r := range c.rules {
		if r.matches(lowerName) {
			return r.Type
		}
	}
	if t, ok := c.codes[code]; ok {
		c.logger.Debug("classified by device code", zap.String("name", name), zap.Int64("code", code))
		return t
	}
	c.logger.Debug("unable to classify, defaulting to switch", zap.String("name", name), zap.Int64("code", code))
	return model.DeviceTypeSwitch
}

func Dimmable(name string, deviceType model.DeviceType) bool {
	if deviceType == model.DeviceTypeDimmer || deviceType == model.DeviceTypeCover {
		return true
	}
	lowerName := strings.ToLower(name)
	return lo.SomeBy(dimmerKeywords, func(k string) bool {
		return strings.Contains(lowerName, k)
	})
}

// ExtractName returns "" when neither payload carries a usable name.
func ExtractName(data, status *Payload) string {
	for _, p := range []*Payload{data, status} {
		if p == nil || p.Module == nil {
			continue
		}
		if n := strings.TrimSpace(p.Module.Name); n != "" {
			return n
		}
		for _, e := range p.Module.Entities {
			if n := strings.TrimSpace(e.Name); n != "" {
				return n
			}
		}
		if s, ok := textDevice(p.Module.Device); ok {
			return s
		}
	}
	return ""
}

// FunctionState reads functions[0] from the status payload.
func FunctionState(status *Payload) (bool, bool) {
	if status == nil || status.Module == nil || len(status.Module.Functions) == 0 {
		return false, false
	}
	return status.Module.Functions[0] == 1, true
}

// Scenes collects scene entries from any payload that carries a scenes array.
func Scenes(payloads ...*Payload) []model.Scene {
	var scenes []model.Scene
	for _, p := range payloads {
		if p == nil {
			continue
		}
		for _, s := range p.Scenes {
			id := int64(s.EntityID)
			if id == 0 {
				id = int64(s.ID)
			}
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("Scene %d", id)
			}
			scenes = append(scenes, model.Scene{
				ID:   id,
				Name: name,
				Devices: lo.Map(s.Devices, func(d model.FlexInt, _ int) int64 {
					return int64(d)
				}),
			})
		}
	}
	return scenes
}

func deviceCode(rec model.ModuleRecord, payloads ...*Payload) int64 {
	if rec.Device != 0 {
		return int64(rec.Device)
	}
	for _, p := range payloads {
		if p == nil || p.Module == nil {
			continue
		}
		if v, ok := numericDevice(p.Module.Device); ok {
			return v
		}
	}
	return 0
}

// textDevice returns the device field when it is a non-numeric string.
func textDevice(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return "", false
	}
	return s, true
}

func numericDevice(raw json.RawMessage) (int64, bool) {
	var v model.FlexInt
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == 0 {
		return 0, false
	}
	return int64(v), true
}
