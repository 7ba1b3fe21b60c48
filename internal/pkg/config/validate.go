package config

import (
	"errors"
	"fmt"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
)

var (
	ErrMissingCredentials = errors.New("config: email and password are required")
	ErrUnknownBackend     = errors.New("config: unknown state backend")
	ErrMissingDatabaseURL = errors.New("config: database url is required for the postgres backend")
	ErrUnknownDeviceType  = errors.New("config: unknown device type in overrides")
	ErrMissingJWTSecret   = errors.New("config: a jwt secret is required when api auth is enabled")
)

// Validate normalises the MAC and rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.CloudCfg.Email == "" || c.CloudCfg.Password == "" {
		return ErrMissingCredentials
	}

	mac, err := transport.NormalizeMAC(c.GatewayCfg.MAC)
	if err != nil {
		return err
	}
	c.GatewayCfg.MAC = mac

	if _, err := transport.MapperByName(c.GatewayCfg.Mapper); err != nil {
		return err
	}

	switch c.StateCfg.Backend {
	case StateBackendFile, StateBackendSQLite:
	case StateBackendPostgres:
		if c.DatabaseCfg.URL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.StateCfg.Backend)
	}

	for id, d := range c.Overrides.Devices {
		if d.Type == "" {
			continue
		}
		if _, ok := model.ParseDeviceType(d.Type); !ok {
			return fmt.Errorf("%w: device %d has type %q", ErrUnknownDeviceType, id, d.Type)
		}
	}

	if c.HTTPCfg.TokenHash != "" && c.HTTPCfg.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
