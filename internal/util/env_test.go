package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("RECOMMENDY_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("RECOMMENDY_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("RECOMMENDY_TEST_INT", " 3 ")
	if got := ParseIntEnv("RECOMMENDY_TEST_INT", 1); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	t.Setenv("RECOMMENDY_TEST_INT", "three")
	if got := ParseIntEnv("RECOMMENDY_TEST_INT", 1); got != 1 {
		t.Errorf("got %d, want default 1", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Hour},
		{"30m", 30 * time.Minute},
		{"soon", time.Hour},
		{"-5m", time.Hour},
	}
	for _, tt := range tests {
		t.Setenv("RECOMMENDY_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("RECOMMENDY_TEST_DURATION", time.Hour); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestStringEnv(t *testing.T) {
	t.Setenv("RECOMMENDY_TEST_STRING", "  ")
	if got := StringEnv("RECOMMENDY_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("blank value should use default, got %q", got)
	}
	t.Setenv("RECOMMENDY_TEST_STRING", " :9090 ")
	if got := StringEnv("RECOMMENDY_TEST_STRING", "fallback"); got != ":9090" {
		t.Errorf("got %q", got)
	}
}
