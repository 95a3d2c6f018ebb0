package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// Config holds the application configuration.
type Config struct {
	Sim         SimConfig          `yaml:"sim"`
	Dispatch    DispatchConfig     `yaml:"dispatch"`
	Tracker     TrackerConfig      `yaml:"tracker"`
	Recorder    RecorderConfig     `yaml:"recorder"`
	Server      ServerConfig       `yaml:"server"`
	Log         LogConfig          `yaml:"log"`
	Definitions []DefinitionConfig `yaml:"definitions"`
}

// SimConfig holds settings for the host connection.
type SimConfig struct {
	Provider string        `yaml:"provider"` // "simconnect", "mock", "replay"
	AppName  string        `yaml:"app_name"`
	DLLPath  string        `yaml:"dll_path"`
	Mock     MockSimConfig `yaml:"mock"`
	Replay   ReplayConfig  `yaml:"replay"`
}

// MockSimConfig holds settings for the in-memory host.
type MockSimConfig struct {
	Title        string   `yaml:"title"`
	StartLat     float64  `yaml:"start_lat"`
	StartLon     float64  `yaml:"start_lon"`
	StartAlt     float64  `yaml:"start_alt"`
	StartHeading float64  `yaml:"start_heading"`
	GroundSpeed  float64  `yaml:"ground_speed_kts"`
	Tick         Duration `yaml:"tick"`
	QuitAfter    Duration `yaml:"quit_after"`
}

// ReplayConfig selects a recorded session to play back.
type ReplayConfig struct {
	Path     string `yaml:"path"`
	Session  string `yaml:"session"` // empty means the latest
	Realtime bool   `yaml:"realtime"`
}

// DispatchConfig holds settings for the message loop.
type DispatchConfig struct {
	Mode         string   `yaml:"mode"` // "pull", "push"
	PollInterval Duration `yaml:"poll_interval"`
	PushInterval Duration `yaml:"push_interval"`
	Buffer       int      `yaml:"buffer"`
}

// TrackerConfig bounds the outbound request tracker.
type TrackerConfig struct {
	Capacity int `yaml:"capacity"` // 0 keeps every record
}

// RecorderConfig holds settings for recording sessions to SQLite.
type RecorderConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // 0 keeps every session
	Queue     int      `yaml:"queue"`     // pending writes before messages are dropped
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
	Trace  bool        `yaml:"trace"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefinitionConfig declares a data definition and optionally a request for it.
type DefinitionConfig struct {
	ID      uint32         `yaml:"id"`
	Name    string         `yaml:"name"`
	Fields  []FieldConfig  `yaml:"fields"`
	Request *RequestConfig `yaml:"request,omitempty"`
}

// FieldConfig declares one datum. Tag is omitted for untagged fields.
type FieldConfig struct {
	Name    string          `yaml:"name"`
	Unit    string          `yaml:"unit,omitempty"`
	Type    schema.DataType `yaml:"type"`
	Epsilon float32         `yaml:"epsilon,omitempty"`
	Tag     *uint32         `yaml:"tag,omitempty"`
}

// Field converts the config entry to a schema field.
func (f FieldConfig) Field() schema.Field {
	tag := schema.Unused
	if f.Tag != nil {
		tag = *f.Tag
	}
	return schema.Field{Name: f.Name, Unit: f.Unit, Type: f.Type, Epsilon: f.Epsilon, Tag: tag}
}

// RequestConfig declares a data request issued at startup.
type RequestConfig struct {
	ID       uint32   `yaml:"id"`
	Period   string   `yaml:"period"` // "once", "visual_frame", "sim_frame", "second"
	Changed  bool     `yaml:"changed"`
	Tagged   bool     `yaml:"tagged"`
	ByType   bool     `yaml:"by_type"`
	Radius   Distance `yaml:"radius,omitempty"`
	ObjectID uint32   `yaml:"object_id"` // 0 is the user aircraft
}

// Flags returns the data request flags.
func (r RequestConfig) Flags() sim.DataRequestFlag {
	f := sim.DataRequestFlagDefault
	if r.Changed {
		f |= sim.DataRequestFlagChanged
	}
	if r.Tagged {
		f |= sim.DataRequestFlagTagged
	}
	return f
}

func tagPtr(v uint32) *uint32 { return &v }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sim: SimConfig{
			Provider: "simconnect",
			AppName:  "simlink",
			Mock: MockSimConfig{
				Title:        "Cessna Skyhawk G1000",
				StartLat:     47.4502,
				StartLon:     -122.3088,
				StartAlt:     1500.0,
				StartHeading: 340.0,
				GroundSpeed:  110.0,
				Tick:         Duration(100 * time.Millisecond),
			},
			Replay: ReplayConfig{
				Path: "./data/simlink.db",
			},
		},
		Dispatch: DispatchConfig{
			Mode:         "pull",
			PollInterval: Duration(10 * time.Millisecond),
			PushInterval: Duration(10 * time.Millisecond),
			Buffer:       64,
		},
		Tracker: TrackerConfig{
			Capacity: 1024,
		},
		Recorder: RecorderConfig{
			Enabled:   false,
			Path:      "./data/simlink.db",
			Retention: Duration(30 * 24 * time.Hour),
			Queue:     4096,
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Definitions: []DefinitionConfig{
			{
				ID:   1,
				Name: "position",
				Fields: []FieldConfig{
					{Name: "TITLE", Type: schema.String256},
					{Name: "PLANE LATITUDE", Unit: "degrees", Type: schema.Float64},
					{Name: "PLANE LONGITUDE", Unit: "degrees", Type: schema.Float64},
					{Name: "PLANE ALTITUDE", Unit: "feet", Type: schema.Float64},
				},
				Request: &RequestConfig{ID: 1, Period: "second"},
			},
			{
				ID:   2,
				Name: "controls",
				Fields: []FieldConfig{
					{Name: "VERTICAL SPEED", Unit: "feet per second", Type: schema.Float32, Epsilon: 0.1, Tag: tagPtr(1)},
					{Name: "PITOT HEAT", Unit: "bool", Type: schema.Float32, Tag: tagPtr(2)},
				},
				Request: &RequestConfig{ID: 2, Period: "sim_frame", Changed: true, Tagged: true},
			},
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Env fallbacks (SIMCONNECT_DLL, SIMLINK_PROVIDER) are applied but never saved.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Definitions from the file replace the defaults rather than merge.
		cfg.Definitions = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if cfg.Sim.DLLPath == "" {
		cfg.Sim.DLLPath = os.Getenv("SIMCONNECT_DLL")
	}
	if p := os.Getenv("SIMLINK_PROVIDER"); p != "" {
		cfg.Sim.Provider = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var providers = map[string]bool{"simconnect": true, "mock": true, "replay": true}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	var errs []error
	if !providers[c.Sim.Provider] {
		errs = append(errs, fmt.Errorf("sim.provider %q: must be simconnect, mock or replay", c.Sim.Provider))
	}
	if c.Dispatch.Mode != "" && c.Dispatch.Mode != "pull" && c.Dispatch.Mode != "push" {
		errs = append(errs, fmt.Errorf("dispatch.mode %q: must be pull or push", c.Dispatch.Mode))
	}
	if c.Tracker.Capacity < 0 {
		errs = append(errs, fmt.Errorf("tracker.capacity %d: must not be negative", c.Tracker.Capacity))
	}

	ids := make(map[uint32]bool)
	requests := make(map[uint32]bool)
	for _, d := range c.Definitions {
		if ids[d.ID] {
			errs = append(errs, fmt.Errorf("definition %d: duplicate id", d.ID))
		}
		ids[d.ID] = true
		if len(d.Fields) == 0 {
			errs = append(errs, fmt.Errorf("definition %d: no fields", d.ID))
		}
		if d.Request == nil {
			continue
		}
		if requests[d.Request.ID] {
			errs = append(errs, fmt.Errorf("definition %d: duplicate request id %d", d.ID, d.Request.ID))
		}
		requests[d.Request.ID] = true
		if _, ok := sim.ParsePeriod(d.Request.Period); !ok && !d.Request.ByType {
			errs = append(errs, fmt.Errorf("definition %d: unknown period %q", d.ID, d.Request.Period))
		}
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# simlink configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)
# Field types: int32, int64, float32, float64, string8 ... string260,
#   initposition, markerstate, waypoint, latlonalt, xyz

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: simconnect, mock, replay\n${1}provider:"))

	reMode := regexp.MustCompile(`(?m)^(\s+)mode:`)
	data = reMode.ReplaceAll(data, []byte("${1}# Options: pull, push\n${1}mode:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
