package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for topicrelay.
type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Audit    AuditConfig    `json:"audit" yaml:"audit"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type TelegramConfig struct {
	Token          string `json:"token" yaml:"token"`
	PollTimeout    int    `json:"pollTimeoutSeconds" yaml:"pollTimeoutSeconds"`
	RequestTimeout int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// RelayConfig describes which thread is watched and where markers route to.
type RelayConfig struct {
	GroupID           int64    `json:"groupId" yaml:"groupId"`
	SourceThreadID    int      `json:"sourceThreadId" yaml:"sourceThreadId"`
	ContextWindow     Duration `json:"contextWindow" yaml:"contextWindow"`
	Routes            []Route  `json:"routes" yaml:"routes"`
	Workers           int      `json:"workers" yaml:"workers"`
	AttributionPrefix string   `json:"attributionPrefix" yaml:"attributionPrefix"`
}

// Route maps a keyword marker to a destination thread. Routes are matched
// in the order they are listed.
type Route struct {
	Marker   string `json:"marker" yaml:"marker"`
	ThreadID int    `json:"threadId" yaml:"threadId"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// AuditConfig configures the SQLite delivery log.
type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
	PruneSchedule string `json:"pruneSchedule" yaml:"pruneSchedule"` // standard 5-field cron expression
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("5m", "90s") or a plain number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds: %s", string(data))
	}
	*d = Duration(time.Duration(n * float64(time.Second)))
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	switch node.ShortTag() {
	case "!!int", "!!float":
		n, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfigDir returns the default config directory (~/.topicrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".topicrelay"
	}
	return filepath.Join(home, ".topicrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	// Routes decode into a fresh slice so omitted fields never inherit
	// values from the default routes.
	cfg := Defaults()
	cfg.Relay.Routes = nil
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if cfg.Relay.Routes == nil {
		cfg.Relay.Routes = defaultRoutes()
	}

	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Log.File = ExpandPath(cfg.Log.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		def, hasDefault := "", len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			def = groups[2]
		}

		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			if hasDefault {
				return def
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Relay.GroupID == 0 {
		errs = append(errs, "relay.groupId is required")
	}
	if cfg.Relay.SourceThreadID < 0 {
		errs = append(errs, "relay.sourceThreadId must be >= 0")
	}
	if cfg.Relay.ContextWindow < 0 {
		errs = append(errs, "relay.contextWindow must not be negative")
	}
	if cfg.Relay.Workers < 1 || cfg.Relay.Workers > 100 {
		errs = append(errs, "relay.workers must be between 1 and 100")
	}
	if len(cfg.Relay.Routes) == 0 {
		errs = append(errs, "relay.routes must contain at least one route")
	}
	for i, r := range cfg.Relay.Routes {
		if strings.TrimSpace(r.Marker) == "" {
			errs = append(errs, fmt.Sprintf("relay.routes[%d].marker is empty", i))
		}
		if r.ThreadID <= 0 {
			errs = append(errs, fmt.Sprintf("relay.routes[%d].threadId must be > 0", i))
		}
		if r.ThreadID == cfg.Relay.SourceThreadID {
			errs = append(errs, fmt.Sprintf("relay.routes[%d] routes back into the source thread", i))
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.pollTimeoutSeconds must be >= 0")
	}
	if cfg.Telegram.RequestTimeout < 1 {
		errs = append(errs, "telegram.requestTimeoutSeconds must be >= 1")
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.DBPath == "" {
			errs = append(errs, "audit.dbPath is required when audit is enabled")
		}
		if cfg.Audit.RetentionDays < 1 {
			errs = append(errs, "audit.retentionDays must be >= 1")
		}
		if _, err := cron.ParseStandard(cfg.Audit.PruneSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("audit.pruneSchedule is invalid: %v", err))
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
