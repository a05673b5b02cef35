package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		verbose   bool
		wantDebug bool
	}{
		{verbose: false, wantDebug: false},
		{verbose: true, wantDebug: true},
	}
	for _, tt := range tests {
		logger, err := New(tt.verbose)
		if err != nil {
			t.Fatalf("New(%v) failed: %v", tt.verbose, err)
		}
		if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
			t.Errorf("New(%v): debug enabled = %v, want %v", tt.verbose, got, tt.wantDebug)
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("New(%v): info must be enabled", tt.verbose)
		}
	}
}
