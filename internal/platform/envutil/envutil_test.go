package envutil

import (
	"testing"
	"time"
)

func TestEnvReaders(t *testing.T) {
	t.Setenv("EU_INT", " 42 ")
	t.Setenv("EU_BAD_INT", "forty")
	t.Setenv("EU_FLOAT", "0.25")
	t.Setenv("EU_BOOL", "off")
	t.Setenv("EU_SECS", "0")
	t.Setenv("EU_MS", "0")
	t.Setenv("EU_STR", "  value ")

	if got := Int("EU_INT", 1); got != 42 {
		t.Fatalf("Int: got=%d", got)
	}
	if got := Int("EU_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got=%d", got)
	}
	if got := Float("EU_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: got=%v", got)
	}
	if got := Bool("EU_BOOL", true); got {
		t.Fatalf("Bool: want false")
	}
	if got := Bool("EU_MISSING", true); !got {
		t.Fatalf("Bool default: want true")
	}
	if got := Seconds("EU_SECS", 3*time.Second); got != 3*time.Second {
		t.Fatalf("Seconds: got=%v", got)
	}
	if got := Millis("EU_MS", 25*time.Millisecond); got != 0 {
		t.Fatalf("Millis: got=%v", got)
	}
	if got := String("EU_STR", "d"); got != "value" {
		t.Fatalf("String: got=%q", got)
	}
}
