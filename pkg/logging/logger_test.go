package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		wantLevel  zapcore.Level
		wantErr    bool
	}{
		{"local", "", zapcore.InfoLevel, false},
		{"production", "debug", zapcore.DebugLevel, false},
		{"production", "warn", zapcore.WarnLevel, false},
		{"production", "loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !logger.Core().Enabled(tt.wantLevel) {
				t.Errorf("expected %s to be enabled", tt.wantLevel)
			}
			if tt.wantLevel > zapcore.DebugLevel && logger.Core().Enabled(tt.wantLevel-1) {
				t.Errorf("expected %s to be disabled", tt.wantLevel-1)
			}
		})
	}
}
