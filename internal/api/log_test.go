package api

import (
	"testing"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ExceptionLine",
			input: `time=2026-01-18T06:50:46.074+01:00 level=WARN msg="Host exception" component=dispatch code=NAME_UNRECOGNIZED send_id=2 index=3 call="AddToDataDefinition(1, \"NOT A VARIABLE\")"`,
			want:  "06:50:46 Host exception (code=NAME_UNRECOGNIZED, component=dispatch, index=3, send_id=2)",
		},
		{
			name:  "NoMessage",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine(tt.input); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}
