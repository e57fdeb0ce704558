package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("de", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
}

func TestT_French(t *testing.T) {
	if got := T("fr", "results.anonymous"); got != "Anonyme" {
		t.Fatalf("want Anonyme, got %s", got)
	}
}

func TestT_UnknownKey(t *testing.T) {
	if got := T("en", "nope.missing"); got != "nope.missing" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestT_EveryKeyTranslated(t *testing.T) {
	for key := range translations["en"] {
		if _, ok := translations["fr"][key]; !ok {
			t.Fatalf("fr missing key %s", key)
		}
	}
}
