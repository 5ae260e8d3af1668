package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Engine        EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Bridge        BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Sidecar       SidecarConfig   `mapstructure:"sidecar" yaml:"sidecar"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
	Skills        SkillsConfig    `mapstructure:"skills" yaml:"skills"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig selects and configures the engine backend.
type EngineConfig struct {
	Kind            string    `mapstructure:"kind" yaml:"kind"`
	OSC             OSCConfig `mapstructure:"osc" yaml:"osc"`
	ClockIntervalMS int       `mapstructure:"clock_interval_ms" yaml:"clock_interval_ms"`
	// Params lists the custom parameters the mock engine exposes. Empty
	// keeps its built-in set.
	Params []EngineParamConfig `mapstructure:"params" yaml:"params,omitempty"`
}

// EngineParamConfig declares one custom engine parameter.
type EngineParamConfig struct {
	ID    string  `mapstructure:"id" yaml:"id"`
	Label string  `mapstructure:"label" yaml:"label"`
	Min   float64 `mapstructure:"min" yaml:"min"`
	Max   float64 `mapstructure:"max" yaml:"max"`
}

// OSCConfig configures the AbletonOSC endpoints.
type OSCConfig struct {
	SendAddr   string `mapstructure:"send_addr" yaml:"send_addr"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// BridgeConfig configures the out-of-process engine bridge.
type BridgeConfig struct {
	Transport             string `mapstructure:"transport" yaml:"transport"`
	URL                   string `mapstructure:"url" yaml:"url"`
	GRPCAddr              string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	ReconnectSeconds      int    `mapstructure:"reconnect_seconds" yaml:"reconnect_seconds"`
	HealthIntervalSeconds int    `mapstructure:"health_interval_seconds" yaml:"health_interval_seconds"`
}

// SidecarConfig configures the semantic search sidecar.
type SidecarConfig struct {
	Enabled               bool   `mapstructure:"enabled" yaml:"enabled"`
	URL                   string `mapstructure:"url" yaml:"url"`
	HealthIntervalSeconds int    `mapstructure:"health_interval_seconds" yaml:"health_interval_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
	History  int    `mapstructure:"history" yaml:"history"`
}

// SSHConfig configures the SSH console. Without authorized keys only
// loopback clients are admitted.
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	Theme              string `mapstructure:"theme" yaml:"theme"`
}

// SkillsConfig overrides skill metadata.
type SkillsConfig struct {
	Shortcuts []ShortcutOverride `mapstructure:"shortcuts" yaml:"shortcuts"`
}

// ShortcutOverride rebinds the keyboard shortcut of one skill. An empty key
// removes the shortcut.
type ShortcutOverride struct {
	Skill string `mapstructure:"skill" yaml:"skill"`
	Key   string `mapstructure:"key" yaml:"key"`
}

// ShortcutMap returns the overrides keyed by skill id.
func (c SkillsConfig) ShortcutMap() map[string]string {
	out := make(map[string]string, len(c.Shortcuts))
	for _, entry := range c.Shortcuts {
		out[entry.Skill] = entry.Key
	}
	return out
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// TelemetryConfig configures OpenTelemetry tracing. An empty endpoint keeps
// tracing off.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Bridge transports.
const (
	BridgeWebSocket = "websocket"
	BridgeGRPC      = "grpc"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Engine: EngineConfig{
			Kind: "mock",
			OSC: OSCConfig{
				SendAddr:   "127.0.0.1:11000",
				ListenAddr: "127.0.0.1:11001",
			},
			ClockIntervalMS: 50,
		},
		Bridge: BridgeConfig{
			Transport:             BridgeWebSocket,
			URL:                   "ws://127.0.0.1:27490/bridge",
			GRPCAddr:              "127.0.0.1:27491",
			ReconnectSeconds:      2,
			HealthIntervalSeconds: 5,
		},
		Sidecar: SidecarConfig{
			Enabled:               true,
			URL:                   "http://127.0.0.1:9400",
			HealthIntervalSeconds: 5,
			RequestTimeoutSeconds: 30,
		},
		HTTP: HTTPConfig{
			Addr:    "127.0.0.1:27480",
			History: 256,
		},
		SSH: SSHConfig{
			Enabled:     false,
			Addr:        "127.0.0.1:27422",
			HostKeyPath: filepath.Join(home, ".maestro", "ssh_host_key"),
			Theme:       "outrun",
		},
		Skills: SkillsConfig{
			Shortcuts: []ShortcutOverride{},
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "maestro",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".maestro", "config.yaml"), nil
}
