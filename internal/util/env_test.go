package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !ParseBoolEnv("TEST_BOOL", false) {
		t.Error("expected yes to parse as true")
	}
	t.Setenv("TEST_BOOL", "off")
	if ParseBoolEnv("TEST_BOOL", true) {
		t.Error("expected off to parse as false")
	}
	t.Setenv("TEST_BOOL", "banana")
	if !ParseBoolEnv("TEST_BOOL", true) {
		t.Error("expected invalid value to return default")
	}
	if ParseBoolEnv("TEST_BOOL_UNSET", false) {
		t.Error("expected unset variable to return default")
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "45m")
	if got := ParseDurationEnv("TEST_DUR", time.Hour); got != 45*time.Minute {
		t.Errorf("expected 45m, got %v", got)
	}
	t.Setenv("TEST_DUR", "not-a-duration")
	if got := ParseDurationEnv("TEST_DUR", time.Hour); got != time.Hour {
		t.Errorf("expected default on invalid value, got %v", got)
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "25")
	if got := ParseIntEnv("TEST_INT", 5); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
	t.Setenv("TEST_INT", "x")
	if got := ParseIntEnv("TEST_INT", 5); got != 5 {
		t.Errorf("expected default on invalid value, got %d", got)
	}
}
