package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		validate  func(*testing.T, *Config)
		checkFile func(*testing.T, string)
		wantErr   bool
	}{
		{
			name: "NewFile_Defaults",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Provider != "simconnect" {
					t.Errorf("expected default provider 'simconnect', got '%s'", cfg.Sim.Provider)
				}
				if len(cfg.Definitions) != 2 {
					t.Fatalf("expected 2 default definitions, got %d", len(cfg.Definitions))
				}
				if cfg.Dispatch.PollInterval.Std() != 10*time.Millisecond {
					t.Errorf("expected poll interval 10ms, got %v", cfg.Dispatch.PollInterval.Std())
				}
			},
			checkFile: func(t *testing.T, path string) {
				content, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				s := string(content)
				for _, want := range []string{"provider: simconnect", "# Options: pull, push", "type: float64", "tag: 2"} {
					if !strings.Contains(s, want) {
						t.Errorf("config file missing %q", want)
					}
				}
			},
		},
		{
			name: "ExistingFile_Override",
			content: `sim:
  provider: mock
dispatch:
  mode: push
  push_interval: 50ms
definitions:
  - id: 7
    fields:
      - name: AIRSPEED INDICATED
        unit: knots
        type: float64
      - name: ATC ID
        type: string32
        tag: 3
    request:
      id: 70
      period: second
      changed: true
`,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Sim.Provider != "mock" {
					t.Errorf("expected provider 'mock', got '%s'", cfg.Sim.Provider)
				}
				if cfg.Sim.AppName != "simlink" {
					t.Errorf("expected default app name to survive, got '%s'", cfg.Sim.AppName)
				}
				if cfg.Dispatch.PushInterval.Std() != 50*time.Millisecond {
					t.Errorf("expected push interval 50ms, got %v", cfg.Dispatch.PushInterval.Std())
				}
				if len(cfg.Definitions) != 1 {
					t.Fatalf("expected file definitions to replace defaults, got %d", len(cfg.Definitions))
				}
				d := cfg.Definitions[0]
				if d.Fields[0].Field().Tag != schema.Unused {
					t.Error("field without tag should be unused")
				}
				if f := d.Fields[1].Field(); f.Tag != 3 || f.Type != schema.String32 {
					t.Errorf("unexpected second field %+v", f)
				}
				if d.Request.Flags() != sim.DataRequestFlagChanged {
					t.Errorf("unexpected flags %v", d.Request.Flags())
				}
			},
		},
		{
			name:    "InvalidType",
			content: "definitions:\n  - id: 1\n    fields:\n      - name: X\n        type: double\n",
			wantErr: true,
		},
		{
			name:    "InvalidProvider",
			content: "sim:\n  provider: xplane\n",
			wantErr: true,
		},
		{
			name:    "DuplicateDefinition",
			content: "definitions:\n  - id: 1\n    fields: [{name: A, unit: feet, type: float64}]\n  - id: 1\n    fields: [{name: B, unit: feet, type: float64}]\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "configs", "simlink.yaml")
			if tt.content != "" {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			}

			cfg, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t, path)
			}
		})
	}
}

func TestLoad_EnvFallbacks(t *testing.T) {
	t.Setenv("SIMCONNECT_DLL", `D:\sdk\SimConnect.dll`)
	t.Setenv("SIMLINK_PROVIDER", "mock")

	cfg, err := Load(filepath.Join(t.TempDir(), "simlink.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sim.DLLPath != `D:\sdk\SimConnect.dll` {
		t.Errorf("expected dll path from env, got %q", cfg.Sim.DLLPath)
	}
	if cfg.Sim.Provider != "mock" {
		t.Errorf("expected provider from env, got %q", cfg.Sim.Provider)
	}
}

func TestDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simlink.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tagged := cfg.Definitions[1]
	if !tagged.Request.Tagged || tagged.Fields[0].Field().Tag != 1 {
		t.Errorf("tagged definition lost in round trip: %+v", tagged)
	}
	if tagged.Fields[0].Epsilon != 0.1 {
		t.Errorf("epsilon lost in round trip: %v", tagged.Fields[0].Epsilon)
	}
}
