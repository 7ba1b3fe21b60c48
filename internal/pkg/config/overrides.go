package config

import (
	"fmt"
	"os"

	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"gopkg.in/yaml.v3"
)

// Overrides is the optional YAML file of per-installation corrections.
type Overrides struct {
	IDMapping string                   `yaml:"id_mapping"`
	Blacklist []int64                  `yaml:"blacklist"`
	Devices   map[int64]DeviceOverride `yaml:"devices"`
}

type DeviceOverride struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return o, nil
}

// Apply merges the overrides into cfg. The file wins over the environment.
func (c *Config) Apply(o Overrides) {
	c.Overrides = o
	if o.IDMapping != "" {
		c.GatewayCfg.Mapper = o.IDMapping
	}
}

// HubOverrides converts the device overrides for the hub. Call after Validate.
func (o Overrides) HubOverrides() map[int64]hub.Override {
	out := make(map[int64]hub.Override, len(o.Devices))
	for id, d := range o.Devices {
		t, _ := model.ParseDeviceType(d.Type)
		out[id] = hub.Override{Name: d.Name, Type: t}
	}
	return out
}
