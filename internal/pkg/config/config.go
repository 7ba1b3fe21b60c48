package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StateBackendFile     = "file"
	StateBackendSQLite   = "sqlite"
	StateBackendPostgres = "postgres"
)

type Config struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"INFO"`
	OverridesFile string `env:"OVERRIDES_FILE"`
	EventLogPath  string `env:"EVENT_LOG_PATH"`

	CloudCfg    CloudConfig   `envPrefix:"ICS_"`
	GatewayCfg  GatewayConfig `envPrefix:"ICS_"`
	StateCfg    StateConfig   `envPrefix:"STATE_"`
	DatabaseCfg DatabaseConfig
	MqttCfg     MqttConfig   `envPrefix:"MQTT_"`
	InfluxCfg   InfluxConfig `envPrefix:"INFLUX_"`
	HTTPCfg     HTTPConfig   `envPrefix:"HTTP_"`

	// Overrides is filled from OverridesFile, not the environment.
	Overrides Overrides
}

type CloudConfig struct {
	Email              string        `env:"EMAIL"`
	Password           string        `env:"PASSWORD"`
	AuthURL            string        `env:"AUTH_URL"`
	SyncURL            string        `env:"SYNC_URL"`
	Timeout            time.Duration `env:"CLOUD_TIMEOUT" envDefault:"10s"`
	InsecureSkipVerify bool          `env:"CLOUD_INSECURE"`
}

type GatewayConfig struct {
	MAC              string        `env:"MAC"`
	IP               string        `env:"IP"`
	ControlPort      int           `env:"CONTROL_PORT" envDefault:"9760"`
	DiscoveryPort    int           `env:"DISCOVERY_PORT" envDefault:"2012"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"5s"`
	DiscoverLocal    bool          `env:"DISCOVER_LOCAL" envDefault:"true"`
	Tries            int           `env:"TRIES" envDefault:"3"`
	Sleep            time.Duration `env:"SLEEP" envDefault:"100ms"`
	Mapper           string        `env:"ID_MAPPING" envDefault:"modulo"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	ResyncDelay      time.Duration `env:"RESYNC_DELAY" envDefault:"2s"`
	IdentifyDelay    time.Duration `env:"IDENTIFY_DELAY" envDefault:"500ms"`
	ReauthSchedule   string        `env:"REAUTH_SCHEDULE" envDefault:"0 0 * * *"`
	CloudOnlyAbove   int64         `env:"CLOUD_ONLY_ABOVE" envDefault:"100000"`
}

type StateConfig struct {
	Backend      string `env:"BACKEND" envDefault:"file"`
	Path         string `env:"PATH" envDefault:"ics2000_state.json"`
	PersistEvery int    `env:"PERSIST_EVERY" envDefault:"5"`
}

type DatabaseConfig struct {
	URL              string `env:"DATABASE_URL"`
	MigrationsFolder string `env:"MIGRATIONS_FOLDER" envDefault:"migrations/postgres"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"ics2000.db"`
	CleanupSchedule  string `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
}

type MqttConfig struct {
	Host            string `env:"HOST"`
	Username        string `env:"USER"`
	Password        string `env:"PASS"`
	ClientID        string `env:"CLIENT_ID" envDefault:"ics2000-integration"`
	BaseTopic       string `env:"BASE_TOPIC" envDefault:"ics2000"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
}

type InfluxConfig struct {
	URL    string `env:"URL"`
	Token  string `env:"TOKEN"`
	Org    string `env:"ORG"`
	Bucket string `env:"BUCKET" envDefault:"ics2000"`
}

type HTTPConfig struct {
	Addr      string        `env:"ADDR" envDefault:"0.0.0.0:8000"`
	TokenHash string        `env:"TOKEN_HASH"`
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the configuration from the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, err
	}
	return cfg, nil
}
