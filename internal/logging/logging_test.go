package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		verbose bool
		debug   bool
	}{
		{false, false},
		{true, true},
	}

	for _, tt := range tests {
		l, err := New(tt.verbose)
		if err != nil {
			t.Fatal(err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != tt.debug {
			t.Errorf("verbose=%v: expected debug enabled %v, got %v", tt.verbose, tt.debug, got)
		}
		if !l.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("verbose=%v: info should always be enabled", tt.verbose)
		}
	}
}

func TestWithRun(t *testing.T) {
	l, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	if WithRun(l, "abc", "rwalk") == l {
		t.Error("expected a derived logger")
	}
}
