package karakuri_test

import (
	"sync"
	"testing"

	"github.com/karakuri-ecs/karakuri"
)

type Position struct{ X, Y float32 }
type Velocity struct{ VX, VY float32 }
type Health struct{ Current, Max int32 }
type Tag struct{}

// go test -run ^TestRegisterComponentIsIdempotent$ . -count 1
func TestRegisterComponentIsIdempotent(t *testing.T) {
	c := karakuri.NewComponents()
	first := karakuri.RegisterComponent[Position](c)
	second := karakuri.RegisterComponent[Position](c)
	if first != second {
		t.Errorf("Registering the same type twice returned different IDs: %d and %d", first, second)
	}
	other := karakuri.RegisterComponent[Velocity](c)
	if other == first {
		t.Errorf("Two distinct types received the same ID %d", first)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 registered types, got %d", c.Len())
	}
}

// go test -run ^TestGetIDPanicsOnUnregistered$ . -count 1
func TestGetIDPanicsOnUnregistered(t *testing.T) {
	c := karakuri.NewComponents()
	if _, ok := karakuri.TryGetID[Health](c); ok {
		t.Fatal("TryGetID reported an unregistered type as registered")
	}
	defer func() {
		if recover() == nil {
			t.Error("Expected GetID to panic for an unregistered type")
		}
	}()
	karakuri.GetID[Health](c)
}

// go test -run ^TestForeignRegistryIDIsRejected$ . -count 1
func TestForeignRegistryIDIsRejected(t *testing.T) {
	a := karakuri.NewComponents()
	b := karakuri.NewComponents()
	posID := karakuri.RegisterComponent[Position](a)
	velID := karakuri.RegisterComponent[Velocity](b)

	if posID.RegistryToken() != a.RegistryID() {
		t.Errorf("ID carries token %d, registry identity is %d", posID.RegistryToken(), a.RegistryID())
	}
	if posID.RegistryToken() == velID.RegistryToken() {
		t.Fatal("Two registries minted IDs with the same identity token")
	}

	// Both registries hand out the same dense index, so without the token
	// check b would silently resolve Velocity's descriptor for posID.
	if info, ok := b.Info(velID); !ok || info.ID() != velID {
		t.Fatal("Registry failed to resolve its own ID")
	}
	if _, ok := b.Info(posID); ok {
		t.Error("Registry resolved a descriptor for a foreign ID")
	}
}

// go test -run ^TestRegisterResource$ . -count 1
func TestRegisterResource(t *testing.T) {
	c := karakuri.NewComponents()
	id := karakuri.RegisterResource[Health](c)
	info, ok := c.Info(id)
	if !ok {
		t.Fatal("Resource descriptor missing after registration")
	}
	if info.Storage() != karakuri.StorageResource {
		t.Errorf("Expected resource storage kind, got %v", info.Storage())
	}
}

// go test -run ^TestIncompatibleStorageReregistrationPanics$ . -count 1
func TestIncompatibleStorageReregistrationPanics(t *testing.T) {
	c := karakuri.NewComponents()
	karakuri.RegisterComponent[Tag](c)
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic when re-registering with a different storage kind")
		}
	}()
	karakuri.RegisterComponent[Tag](c, karakuri.WithSparseStorage())
}

type armor struct{ Rating int32 }
type soldier struct{ Rank int32 }

// go test -run ^TestRequiredComponents$ . -count 1
func TestRequiredComponents(t *testing.T) {
	w := karakuri.NewWorld(8)
	karakuri.RegisterComponent[soldier](w.Components(),
		karakuri.Requires(armor{Rating: 5}))

	e := karakuri.Spawn1(w, soldier{Rank: 1})
	a, ok := karakuri.GetComponent[armor](w, e)
	if !ok {
		t.Fatal("Inserting soldier should have pulled in its required armor")
	}
	if a.Rating != 5 {
		t.Errorf("Required component default not applied: got rating %d, want 5", a.Rating)
	}

	// An explicitly provided value wins over the default.
	e2 := karakuri.Spawn2(w, armor{Rating: 9}, soldier{})
	a2, _ := karakuri.GetComponent[armor](w, e2)
	if a2.Rating != 9 {
		t.Errorf("Required default overwrote an existing value: got rating %d, want 9", a2.Rating)
	}
}

type cycleA struct{ V int32 }
type cycleB struct{ V int32 }

// go test -run ^TestRequiresCyclePanics$ . -count 1
func TestRequiresCyclePanics(t *testing.T) {
	c := karakuri.NewComponents()
	karakuri.RegisterComponent[cycleA](c, karakuri.Requires(cycleB{}))
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic when closing a requires cycle")
		}
	}()
	karakuri.RegisterComponent[cycleB](c, karakuri.Requires(cycleA{}))
}

// go test -run ^TestStagedRegistrationIsInvisibleUntilApply$ . -count 1
func TestStagedRegistrationIsInvisibleUntilApply(t *testing.T) {
	base := karakuri.NewComponents()
	stage := karakuri.NewStageOnWrite(base)

	var id karakuri.ComponentID
	stage.StageScopeLocked(func(st *karakuri.ComponentStage) {
		id = karakuri.RegisterComponentStaged[Position](st)
	})

	// The ID is minted, but the descriptor is still buffered.
	if got, ok := karakuri.TryGetID[Position](base); !ok || got != id {
		t.Fatalf("Expected the stage to mint ID %d in the canonical registry, got %d (ok=%v)", id, got, ok)
	}
	if _, ok := base.Info(id); ok {
		t.Error("Descriptor should not be visible before Apply")
	}

	stage.Apply()
	info, ok := base.Info(id)
	if !ok {
		t.Fatal("Descriptor missing after Apply")
	}
	if info.ID() != id {
		t.Errorf("Applied descriptor has ID %d, want %d", info.ID(), id)
	}

	// Applying again is a no-op.
	stage.Apply()
	if base.Len() != 1 {
		t.Errorf("Expected 1 registered type after double Apply, got %d", base.Len())
	}
}

// go test -run ^TestAtomicStageAppliesEagerly$ . -count 1
func TestAtomicStageAppliesEagerly(t *testing.T) {
	base := karakuri.NewComponents()
	stage := karakuri.NewAtomicStageOnWrite(base)

	var id karakuri.ComponentID
	stage.StageScopeLocked(func(st *karakuri.ComponentStage) {
		id = karakuri.RegisterComponentStaged[Velocity](st)
	})
	if _, ok := base.Info(id); !ok {
		t.Error("Atomic stage should publish the descriptor when the scope returns")
	}
}

// go test -run ^TestConcurrentStagingAssignsConsistentIDs$ . -count 1
func TestConcurrentStagingAssignsConsistentIDs(t *testing.T) {
	base := karakuri.NewComponents()

	const goroutines = 8
	results := make([][4]karakuri.ComponentID, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			stage := karakuri.NewStageOnWrite(base)
			stage.StageScopeLocked(func(st *karakuri.ComponentStage) {
				results[g][0] = karakuri.RegisterComponentStaged[Position](st)
				results[g][1] = karakuri.RegisterComponentStaged[Velocity](st)
				results[g][2] = karakuri.RegisterComponentStaged[Health](st)
				results[g][3] = karakuri.RegisterComponentStaged[Tag](st)
			})
			stage.Apply()
		}(g)
	}
	wg.Wait()

	for g := 1; g < goroutines; g++ {
		if results[g] != results[0] {
			t.Fatalf("Goroutine %d saw IDs %v, goroutine 0 saw %v", g, results[g], results[0])
		}
	}
	seen := map[karakuri.ComponentID]bool{}
	for _, id := range results[0] {
		if seen[id] {
			t.Fatalf("ID %d assigned to two different types", id)
		}
		seen[id] = true
	}
	if base.Len() != 4 {
		t.Errorf("Expected 4 registered types, got %d", base.Len())
	}
}
