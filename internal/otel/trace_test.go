package otel

import "testing"

func TestTraceEnabledToggle(t *testing.T) {
	orig := TraceEnabled()
	defer setTraceEnabled(orig)

	setTraceEnabled(true)
	if !TraceEnabled() {
		t.Error("TraceEnabled() should be true after setTraceEnabled(true)")
	}

	setTraceEnabled(false)
	if TraceEnabled() {
		t.Error("TraceEnabled() should be false after setTraceEnabled(false)")
	}
}

func TestLevelAtLeast(t *testing.T) {
	tests := []struct {
		l, min Level
		want   bool
	}{
		{LevelError, LevelWarn, true},
		{LevelWarn, LevelWarn, true},
		{LevelInfo, LevelWarn, false},
		{LevelDebug, LevelDebug, true},
		{"", LevelInfo, false},
	}
	for _, tt := range tests {
		if got := tt.l.AtLeast(tt.min); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.l, tt.min, got, tt.want)
		}
	}
}
