package karakuri_test

import (
	"testing"

	"github.com/karakuri-ecs/karakuri"
)

// go test -run ^TestTickIsNewerThan$ . -count 1
func TestTickIsNewerThan(t *testing.T) {
	// A stamp written after the last run is newer.
	if !karakuri.Tick(2).IsNewerThan(1, 3) {
		t.Error("Stamp 2 should be newer than last run 1 at tick 3")
	}
	// A stamp written at the last run itself is not.
	if karakuri.Tick(1).IsNewerThan(1, 3) {
		t.Error("Stamp 1 should not be newer than last run 1")
	}
	// Nor is an older stamp.
	if karakuri.Tick(0).IsNewerThan(1, 3) {
		t.Error("Stamp 0 should not be newer than last run 1")
	}
}

// go test -run ^TestTickIsNewerThanSurvivesWraparound$ . -count 1
func TestTickIsNewerThanSurvivesWraparound(t *testing.T) {
	max := ^karakuri.Tick(0)
	// The counter wrapped between the last run and now; a stamp just
	// before the wrap is still newer than a last run further back.
	if !(max - 2).IsNewerThan(max-10, 5) {
		t.Error("Stamp before the wrap should be newer than an older last run")
	}
	// A stamp written right after the wrap is newer too.
	if !karakuri.Tick(1).IsNewerThan(max-10, 5) {
		t.Error("Stamp after the wrap should be newer than a pre-wrap last run")
	}
	// Naive comparison would get this backwards.
	if (max - 20).IsNewerThan(max-10, 5) {
		t.Error("Stamp older than the last run must not appear newer after a wrap")
	}
}

// go test -run ^TestTickRelativeToClamps$ . -count 1
func TestTickRelativeToClamps(t *testing.T) {
	if got := karakuri.Tick(10).RelativeTo(4); got != 6 {
		t.Errorf("Expected distance 6, got %d", got)
	}
	huge := karakuri.Tick(0).RelativeTo(1) // wraps to a distance near 2^32
	if huge != karakuri.MaxChangeAge {
		t.Errorf("Expected distance clamped to MaxChangeAge, got %d", huge)
	}
}

// go test -run ^TestCheckTickClampsOldStamps$ . -count 1
func TestCheckTickClampsOldStamps(t *testing.T) {
	stamp := karakuri.Tick(0)
	thisRun := karakuri.MaxChangeAge + 5
	if !stamp.CheckTick(thisRun) {
		t.Fatal("Expected an ancient stamp to be adjusted")
	}
	if stamp != 5 {
		t.Errorf("Expected stamp clamped to %d, got %d", 5, stamp)
	}
	// A fresh stamp is left alone.
	fresh := thisRun - 1
	if fresh.CheckTick(thisRun) {
		t.Error("A recent stamp must not be adjusted")
	}
}
