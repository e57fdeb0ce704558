package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_COMPARAHOLIC_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestSafeEnvDuration(t *testing.T) {
	const key = "_COMPARAHOLIC_TEST_DURATION"
	t.Setenv(key, "90s")
	if got := SafeEnvDuration(key, time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv(key, "soon")
	if got := SafeEnvDuration(key, time.Second); got != time.Second {
		t.Fatalf("malformed value should fall back, got %v", got)
	}
}

func TestSafeEnvIntAndList(t *testing.T) {
	t.Setenv("_COMPARAHOLIC_TEST_INT", "12")
	if got := SafeEnvInt("_COMPARAHOLIC_TEST_INT", 3); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	t.Setenv("_COMPARAHOLIC_TEST_LIST", " a@x.io, ,b@x.io ")
	got := SafeEnvList("_COMPARAHOLIC_TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a@x.io" || got[1] != "b@x.io" {
		t.Fatalf("unexpected list %v", got)
	}
}
