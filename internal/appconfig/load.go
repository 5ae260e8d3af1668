package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/noamisr/maestro/schema"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvEngine overrides engine.kind.
const EnvEngine = "MAESTRO_ENGINE"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAESTRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("engine.kind", cfg.Engine.Kind)
	v.SetDefault("engine.osc.send_addr", cfg.Engine.OSC.SendAddr)
	v.SetDefault("engine.osc.listen_addr", cfg.Engine.OSC.ListenAddr)
	v.SetDefault("engine.clock_interval_ms", cfg.Engine.ClockIntervalMS)
	v.SetDefault("bridge.transport", cfg.Bridge.Transport)
	v.SetDefault("bridge.url", cfg.Bridge.URL)
	v.SetDefault("bridge.grpc_addr", cfg.Bridge.GRPCAddr)
	v.SetDefault("bridge.reconnect_seconds", cfg.Bridge.ReconnectSeconds)
	v.SetDefault("bridge.health_interval_seconds", cfg.Bridge.HealthIntervalSeconds)
	v.SetDefault("sidecar.enabled", cfg.Sidecar.Enabled)
	v.SetDefault("sidecar.url", cfg.Sidecar.URL)
	v.SetDefault("sidecar.health_interval_seconds", cfg.Sidecar.HealthIntervalSeconds)
	v.SetDefault("sidecar.request_timeout_seconds", cfg.Sidecar.RequestTimeoutSeconds)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.history", cfg.HTTP.History)
	v.SetDefault("ssh.enabled", cfg.SSH.Enabled)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.theme", cfg.SSH.Theme)
	v.SetDefault("skills.shortcuts", cfg.Skills.Shortcuts)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)
	v.SetDefault("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.SetDefault("telemetry.service_name", cfg.Telemetry.ServiceName)

	// Every key gets its MAESTRO_* variable bound explicitly. AutomaticEnv
	// would let MAESTRO_ENGINE shadow the whole engine section.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if kind := strings.TrimSpace(os.Getenv(EnvEngine)); kind != "" {
		cfg.Engine.Kind = kind
	}
	expandConfigEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	kind, err := schema.NormalizeEngineKind(cfg.Engine.Kind)
	if err != nil {
		return fmt.Errorf("engine.kind: %w", err)
	}
	cfg.Engine.Kind = string(kind)
	if cfg.Engine.ClockIntervalMS < 0 {
		return fmt.Errorf("engine.clock_interval_ms must not be negative")
	}
	if err := validateParams(cfg.Engine.Params); err != nil {
		return err
	}
	if kind == schema.EngineBridge {
		switch strings.ToLower(strings.TrimSpace(cfg.Bridge.Transport)) {
		case BridgeWebSocket:
			cfg.Bridge.Transport = BridgeWebSocket
			if err := validateURL("bridge.url", cfg.Bridge.URL, "ws", "wss"); err != nil {
				return err
			}
		case BridgeGRPC:
			cfg.Bridge.Transport = BridgeGRPC
			if strings.TrimSpace(cfg.Bridge.GRPCAddr) == "" {
				return fmt.Errorf("bridge.grpc_addr is required for the grpc bridge")
			}
		default:
			return fmt.Errorf("unsupported bridge.transport %q", cfg.Bridge.Transport)
		}
	}
	if cfg.Sidecar.Enabled {
		if err := validateURL("sidecar.url", cfg.Sidecar.URL, "http", "https"); err != nil {
			return err
		}
	}
	if cfg.HTTP.History < 0 {
		return fmt.Errorf("http.history must not be negative")
	}
	if cfg.SSH.Enabled {
		if strings.TrimSpace(cfg.SSH.Addr) == "" {
			return fmt.Errorf("ssh.addr is required when ssh is enabled")
		}
		if strings.TrimSpace(cfg.SSH.HostKeyPath) == "" {
			return fmt.Errorf("ssh.host_key_path is required when ssh is enabled")
		}
	}
	for _, entry := range cfg.Skills.Shortcuts {
		if strings.TrimSpace(entry.Skill) == "" {
			return fmt.Errorf("skills.shortcuts entries require a skill id")
		}
	}
	if cfg.Telemetry.Endpoint != "" {
		if err := validateURL("telemetry.endpoint", cfg.Telemetry.Endpoint, "http", "https"); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "maestro"
	}
	return nil
}

func validateParams(params []EngineParamConfig) error {
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("engine.params[%d].id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("engine.params: duplicate id %q", id)
		}
		seen[id] = true
		if p.Max <= p.Min {
			return fmt.Errorf("engine.params %q: max must be greater than min", id)
		}
		params[i].ID = id
		if strings.TrimSpace(p.Label) == "" {
			params[i].Label = id
		}
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. %s://127.0.0.1:9400)", key, schemes[0])
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", key, strings.Join(schemes, ", "))
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Engine.OSC.SendAddr = expandEnv(cfg.Engine.OSC.SendAddr)
	cfg.Engine.OSC.ListenAddr = expandEnv(cfg.Engine.OSC.ListenAddr)
	cfg.Bridge.URL = expandEnv(cfg.Bridge.URL)
	cfg.Bridge.GRPCAddr = expandEnv(cfg.Bridge.GRPCAddr)
	cfg.Sidecar.URL = expandEnv(cfg.Sidecar.URL)
	cfg.HTTP.Addr = expandEnv(cfg.HTTP.Addr)
	cfg.SSH.Addr = expandEnv(cfg.SSH.Addr)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
