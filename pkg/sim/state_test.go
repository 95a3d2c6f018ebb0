package sim

import "testing"

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name   string
		want   Period
		wantOK bool
	}{
		{"once", PeriodOnce, true},
		{"second", PeriodSecond, true},
		{"visual_frame", PeriodVisualFrame, true},
		{"hourly", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePeriod(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("ParsePeriod(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParsePeriod(%q) = %v, want %v", tt.name, got, tt.want)
			}
			if ok && got.String() != tt.name {
				t.Errorf("String() = %q, want %q", got.String(), tt.name)
			}
		})
	}
}

func TestDataRequestFlag_Has(t *testing.T) {
	f := DataRequestFlagChanged | DataRequestFlagTagged
	if !f.Has(DataRequestFlagTagged) {
		t.Error("expected tagged bit")
	}
	if DataRequestFlagChanged.Has(DataRequestFlagTagged) {
		t.Error("changed-only flag must not report tagged")
	}
}
