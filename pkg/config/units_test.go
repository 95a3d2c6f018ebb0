package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10ms", 10 * time.Millisecond, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"", 0, false},
		{"invalid", 0, true},
		{"3x1d", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"250m", 250, false},
		{"10km", 10000, false},
		{"1nm", 1852, false},
		{"1000ft", 304.8, false},
		{"42", 42, false},
		{"far", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestUnitsYAML(t *testing.T) {
	var v struct {
		Radius   Distance `yaml:"radius"`
		Bare     Distance `yaml:"bare"`
		Interval Duration `yaml:"interval"`
	}
	if err := yaml.Unmarshal([]byte("radius: 10km\nbare: 500\ninterval: 1d\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Radius.Meters() != 10000 {
		t.Errorf("radius = %d, want 10000", v.Radius.Meters())
	}
	if v.Bare != 500 {
		t.Errorf("bare = %v, want 500", v.Bare)
	}
	if v.Interval.Std() != Day {
		t.Errorf("interval = %v, want 24h", v.Interval.Std())
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "radius: 10km\nbare: 500m\ninterval: 24h0m0s\n" {
		t.Errorf("unexpected yaml:\n%s", out)
	}
}
