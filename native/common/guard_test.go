package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursStaticPauses(t *testing.T) {
	pauses := NewStaticPauses("Kiosk")
	if err := Guard(pauses, "kiosk"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	pauses.Set("kiosk", false)
	if err := Guard(pauses, "kiosk"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
	if err := Guard(nil, "kiosk"); err != nil {
		t.Fatalf("nil view must never pause: %v", err)
	}
	var empty *StaticPauses
	if empty.IsPaused("kiosk") {
		t.Fatalf("nil static pauses must report unpaused")
	}
}
