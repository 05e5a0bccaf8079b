package karakuri_test

import (
	"strings"
	"testing"

	"github.com/karakuri-ecs/karakuri"
)

func noop(*karakuri.SystemContext) {}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

// go test -run ^TestScheduleOrdering$ . -count 1
func TestScheduleOrdering(t *testing.T) {
	w := karakuri.NewWorld(4)
	var order []string
	record := func(name string) *karakuri.SystemConfig {
		return karakuri.NewSystem(name, func(*karakuri.SystemContext) {
			order = append(order, name)
		})
	}

	s := karakuri.NewSchedule("main",
		karakuri.WithExecutor(karakuri.ExecutorSingleThreaded),
		karakuri.WithAmbiguityPolicy(karakuri.AmbiguityIgnore))
	s.AddSystems(
		record("render").After("update"),
		record("update").After("input"),
		record("input"),
		record("audio").Before("render"),
	)
	if err := s.Run(w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(order) != 4 {
		t.Fatalf("Expected 4 systems to run, got %v", order)
	}
	if indexOf(order, "input") > indexOf(order, "update") {
		t.Errorf("input must run before update: %v", order)
	}
	if indexOf(order, "update") > indexOf(order, "render") {
		t.Errorf("update must run before render: %v", order)
	}
	if indexOf(order, "audio") > indexOf(order, "render") {
		t.Errorf("audio must run before render: %v", order)
	}
}

// go test -run ^TestScheduleSetOrderingAndGating$ . -count 1
func TestScheduleSetOrderingAndGating(t *testing.T) {
	type paused struct{ On bool }
	w := karakuri.NewWorld(4)
	karakuri.InsertResource(w, paused{On: true})

	var order []string
	record := func(name string) *karakuri.SystemConfig {
		return karakuri.NewSystem(name, func(*karakuri.SystemContext) {
			order = append(order, name)
		})
	}

	s := karakuri.NewSchedule("main",
		karakuri.WithExecutor(karakuri.ExecutorSingleThreaded),
		karakuri.WithAmbiguityPolicy(karakuri.AmbiguityIgnore))
	s.ConfigureSets(
		karakuri.NewSet("simulation").After("prep").RunIf(
			karakuri.RunIfResource(func(p *paused) bool { return !p.On })),
	)
	s.AddSystems(
		record("prep"),
		record("physics").InSet("simulation"),
		record("collisions").InSet("simulation"),
		record("render").After("simulation"),
	)

	// Paused: the whole set is gated, surrounding systems still run.
	if err := s.Run(w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if indexOf(order, "physics") >= 0 || indexOf(order, "collisions") >= 0 {
		t.Errorf("Gated set members ran: %v", order)
	}
	if indexOf(order, "prep") < 0 || indexOf(order, "render") < 0 {
		t.Errorf("Ungated systems skipped: %v", order)
	}

	// Unpaused: members run between prep and render.
	order = nil
	karakuri.MustResource[paused](w).On = false
	if err := s.Run(w); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("Expected all 4 systems, got %v", order)
	}
	for _, member := range []string{"physics", "collisions"} {
		if indexOf(order, "prep") > indexOf(order, member) {
			t.Errorf("prep must run before %s: %v", member, order)
		}
		if indexOf(order, member) > indexOf(order, "render") {
			t.Errorf("%s must run before render: %v", member, order)
		}
	}
}

// go test -run ^TestScheduleCycleError$ . -count 1
func TestScheduleCycleError(t *testing.T) {
	w := karakuri.NewWorld(4)
	s := karakuri.NewSchedule("main")
	s.AddSystems(
		karakuri.NewSystem("a", noop).After("b"),
		karakuri.NewSystem("b", noop).After("a"),
	)
	err := s.Build(w)
	if err == nil {
		t.Fatal("Expected a cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Error should name the cycle: %v", err)
	}
}

// go test -run ^TestScheduleUnknownTargetError$ . -count 1
func TestScheduleUnknownTargetError(t *testing.T) {
	w := karakuri.NewWorld(4)
	s := karakuri.NewSchedule("main")
	s.AddSystems(karakuri.NewSystem("a", noop).After("missing"))
	err := s.Build(w)
	if err == nil {
		t.Fatal("Expected an unknown-target error")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("Error should name the unknown target: %v", err)
	}
}

// go test -run ^TestScheduleDuplicateNameError$ . -count 1
func TestScheduleDuplicateNameError(t *testing.T) {
	w := karakuri.NewWorld(4)
	s := karakuri.NewSchedule("main")
	s.AddSystems(
		karakuri.NewSystem("a", noop),
		karakuri.NewSystem("a", noop),
	)
	if err := s.Build(w); err == nil {
		t.Fatal("Expected a duplicate-name error")
	}
}

// go test -run ^TestScheduleAmbiguityPolicies$ . -count 1
func TestScheduleAmbiguityPolicies(t *testing.T) {
	w := karakuri.NewWorld(4)
	posID := karakuri.RegisterComponent[Position](w.Components())

	build := func(policy karakuri.AmbiguityPolicy) error {
		s := karakuri.NewSchedule("main", karakuri.WithAmbiguityPolicy(policy))
		s.AddSystems(
			karakuri.NewSystem("a", noop).Writes(posID),
			karakuri.NewSystem("b", noop).Writes(posID),
		)
		return s.Build(w)
	}

	if err := build(karakuri.AmbiguityError); err == nil {
		t.Error("Conflicting unordered systems should fail under AmbiguityError")
	}
	if err := build(karakuri.AmbiguityIgnore); err != nil {
		t.Errorf("AmbiguityIgnore should build: %v", err)
	}
	if err := build(karakuri.AmbiguityWarn); err != nil {
		t.Errorf("AmbiguityWarn should build (and only log): %v", err)
	}

	// An explicit ordering resolves the ambiguity.
	s := karakuri.NewSchedule("main", karakuri.WithAmbiguityPolicy(karakuri.AmbiguityError))
	s.AddSystems(
		karakuri.NewSystem("a", noop).Writes(posID),
		karakuri.NewSystem("b", noop).Writes(posID).After("a"),
	)
	if err := s.Build(w); err != nil {
		t.Errorf("Ordered conflicting systems should build: %v", err)
	}
}

// go test -run ^TestScheduleDeferredSyncPoint$ . -count 1
func TestScheduleDeferredSyncPoint(t *testing.T) {
	w := karakuri.NewWorld(4)
	karakuri.RegisterComponent[Position](w.Components())

	var seen int
	s := karakuri.NewSchedule("main",
		karakuri.WithExecutor(karakuri.ExecutorSingleThreaded),
		karakuri.WithAmbiguityPolicy(karakuri.AmbiguityIgnore))
	s.AddSystems(
		karakuri.NewSystem("spawner", func(ctx *karakuri.SystemContext) {
			e := ctx.Commands.Spawn()
			karakuri.Insert(ctx.Commands, e, Position{X: 1})
		}).Deferred(),
		karakuri.NewSystem("observer", func(ctx *karakuri.SystemContext) {
			seen = karakuri.NewQuery[Position](ctx.World).Count()
		}).After("spawner"),
	)
	if err := s.Run(w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if seen != 1 {
		t.Errorf("Observer should see the spawned entity after the sync point, saw %d", seen)
	}
}

// go test -run ^TestScheduleRecompilesAfterAdd$ . -count 1
func TestScheduleRecompilesAfterAdd(t *testing.T) {
	w := karakuri.NewWorld(4)
	ran := map[string]bool{}
	mk := func(name string) *karakuri.SystemConfig {
		return karakuri.NewSystem(name, func(*karakuri.SystemContext) { ran[name] = true })
	}

	s := karakuri.NewSchedule("main", karakuri.WithExecutor(karakuri.ExecutorSingleThreaded))
	s.AddSystems(mk("first"))
	if err := s.Run(w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s.AddSystems(mk("second").After("first"))
	if err := s.Run(w); err != nil {
		t.Fatalf("Run after adding a system failed: %v", err)
	}
	if !ran["second"] {
		t.Error("System added after the first run never executed")
	}
}
