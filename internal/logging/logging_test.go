package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"trace", logrus.TraceLevel},
		{"Warning", logrus.WarnLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew_Formatter(t *testing.T) {
	if _, ok := New("info", "json").Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("expected JSON formatter")
	}
	if _, ok := New("info", "text").Formatter.(*logrus.TextFormatter); !ok {
		t.Error("expected text formatter")
	}
	if New("debug", "").GetLevel() != logrus.DebugLevel {
		t.Error("expected debug level")
	}
}
