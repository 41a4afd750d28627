package envutil

import (
	"testing"
	"time"
)

func TestEnvParsing(t *testing.T) {
	t.Setenv("ENVUTIL_INT", "42")
	t.Setenv("ENVUTIL_BAD_INT", "x")
	t.Setenv("ENVUTIL_FLOAT", "0.75")
	t.Setenv("ENVUTIL_BOOL", "on")
	t.Setenv("ENVUTIL_STR", "  v  ")

	if got := Int("ENVUTIL_INT", 1); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	if got := Int("ENVUTIL_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: want=7 got=%d", got)
	}
	if got := Float("ENVUTIL_FLOAT", 0); got != 0.75 {
		t.Fatalf("Float: want=0.75 got=%v", got)
	}
	if !Bool("ENVUTIL_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	if got := String("ENVUTIL_STR", "d"); got != "v" {
		t.Fatalf("String: want=v got=%q", got)
	}
	if got := Seconds("ENVUTIL_MISSING", 3); got != 3*time.Second {
		t.Fatalf("Seconds: want=3s got=%v", got)
	}
}
