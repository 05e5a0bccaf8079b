package karakuri_test

import (
	"testing"
	"unsafe"

	"github.com/karakuri-ecs/karakuri"
)

func setupWorld(_ *testing.T) (*karakuri.World, karakuri.ComponentID, karakuri.ComponentID, karakuri.ComponentID) {
	w := karakuri.NewWorld(16)
	posID := karakuri.RegisterComponent[Position](w.Components())
	velID := karakuri.RegisterComponent[Velocity](w.Components())
	healthID := karakuri.RegisterComponent[Health](w.Components())
	return w, posID, velID, healthID
}

// go test -run ^TestSpawnAndDespawn$ . -count 1
func TestSpawnAndDespawn(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	e1 := w.Spawn()
	e2 := w.Spawn()

	if e1.ID == e2.ID {
		t.Errorf("Two live entities share index %d", e1.ID)
	}
	if !w.IsValid(e1) || !w.IsValid(e2) {
		t.Fatal("Freshly spawned entities should be valid")
	}
	if w.Len() != 2 {
		t.Errorf("Expected 2 live entities, got %d", w.Len())
	}

	if !w.Despawn(e1) {
		t.Fatal("Despawn of a live entity failed")
	}
	if w.IsValid(e1) {
		t.Error("Despawned entity should be invalid")
	}
	if w.Despawn(e1) {
		t.Error("Second despawn of the same handle should fail")
	}
	if w.Len() != 1 {
		t.Errorf("Expected 1 live entity, got %d", w.Len())
	}
}

// go test -run ^TestRecycledIndexBumpsGeneration$ . -count 1
func TestRecycledIndexBumpsGeneration(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	e1 := w.Spawn()
	gen1 := e1.Generation()
	w.Despawn(e1)

	// Drain the free list until the index comes back.
	var e2 karakuri.Entity
	for i := 0; i < 32; i++ {
		e2 = w.Spawn()
		if e2.ID == e1.ID {
			break
		}
	}
	if e2.ID != e1.ID {
		t.Fatal("Recycled index never came back; cannot test generation bump")
	}
	if e2.Generation() == gen1 {
		t.Error("Recycled index kept its old generation")
	}
	if w.IsValid(e1) {
		t.Error("Stale handle to a recycled index should be invalid")
	}
	if !w.IsValid(e2) {
		t.Error("New handle to a recycled index should be valid")
	}
}

// go test -run ^TestAddRemoveComponentPreservesOthers$ . -count 1
func TestAddRemoveComponentPreservesOthers(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	e := karakuri.Spawn3(w, Position{X: 1, Y: 2}, Velocity{VX: 3, VY: 4}, Health{Current: 10, Max: 10})

	if !karakuri.RemoveComponent[Velocity](w, e) {
		t.Fatal("RemoveComponent failed on a live entity")
	}
	if karakuri.HasComponent[Velocity](w, e) {
		t.Error("Velocity still present after removal")
	}
	p, ok := karakuri.GetComponent[Position](w, e)
	if !ok || p.X != 1 || p.Y != 2 {
		t.Errorf("Position lost or corrupted by the archetype move: %+v (ok=%v)", p, ok)
	}
	h, ok := karakuri.GetComponent[Health](w, e)
	if !ok || h.Current != 10 {
		t.Errorf("Health lost or corrupted by the archetype move: %+v (ok=%v)", h, ok)
	}

	// Removing an absent component succeeds quietly.
	if !karakuri.RemoveComponent[Velocity](w, e) {
		t.Error("Removing an absent component should succeed")
	}
}

// go test -run ^TestSwapRemoveKeepsSiblingsAddressable$ . -count 1
func TestSwapRemoveKeepsSiblingsAddressable(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	var entities []karakuri.Entity
	for i := 0; i < 10; i++ {
		entities = append(entities, karakuri.Spawn1(w, Position{X: float32(i)}))
	}
	// Despawn from the middle; the tail row is swapped into the hole.
	w.Despawn(entities[3])
	for i, e := range entities {
		if i == 3 {
			continue
		}
		p, ok := karakuri.GetComponent[Position](w, e)
		if !ok {
			t.Fatalf("Entity %v lost its component after an unrelated despawn", e)
		}
		if p.X != float32(i) {
			t.Errorf("Entity %v reads value %v, want %v", e, p.X, float32(i))
		}
	}
}

// go test -run ^TestAddComponentKeepsExistingValue$ . -count 1
func TestAddComponentKeepsExistingValue(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	e := karakuri.Spawn1(w, Position{X: 7})

	p, ok := karakuri.AddComponent[Position](w, e)
	if !ok {
		t.Fatal("AddComponent failed on a live entity")
	}
	if p.X != 7 {
		t.Errorf("AddComponent overwrote an existing value: got %v, want 7", p.X)
	}

	// SetComponent does overwrite.
	karakuri.SetComponent(w, e, Position{X: 8})
	p, _ = karakuri.GetComponent[Position](w, e)
	if p.X != 8 {
		t.Errorf("SetComponent did not overwrite: got %v, want 8", p.X)
	}
}

// go test -run ^TestSparseStorage$ . -count 1
func TestSparseStorage(t *testing.T) {
	type marker struct{ N int32 }
	w := karakuri.NewWorld(8)
	karakuri.RegisterComponent[marker](w.Components(), karakuri.WithSparseStorage())
	karakuri.RegisterComponent[Position](w.Components())

	e := karakuri.Spawn1(w, Position{X: 1})
	karakuri.SetComponent(w, e, marker{N: 42})

	m, ok := karakuri.GetComponent[marker](w, e)
	if !ok || m.N != 42 {
		t.Fatalf("Sparse component not readable: %+v (ok=%v)", m, ok)
	}
	if !karakuri.HasComponent[marker](w, e) {
		t.Error("HasComponent missed a sparse component")
	}

	// The table value must survive the sparse insert and removal.
	if !karakuri.RemoveComponent[marker](w, e) {
		t.Fatal("Removing the sparse component failed")
	}
	if karakuri.HasComponent[marker](w, e) {
		t.Error("Sparse component still present after removal")
	}
	p, _ := karakuri.GetComponent[Position](w, e)
	if p == nil || p.X != 1 {
		t.Errorf("Table component corrupted around sparse operations: %+v", p)
	}
}

// go test -run ^TestDropAndRemoveHooks$ . -count 1
func TestDropAndRemoveHooks(t *testing.T) {
	type handle struct{ FD int64 }
	w := karakuri.NewWorld(8)

	var dropped []int64
	var removed int
	karakuri.RegisterComponent[handle](w.Components(),
		karakuri.WithDrop(func(ptr unsafe.Pointer) {
			dropped = append(dropped, (*handle)(ptr).FD)
		}),
		karakuri.WithOnRemove(func(w *karakuri.World, e karakuri.Entity) {
			removed++
		}),
	)

	e := karakuri.Spawn1(w, handle{FD: 9})
	karakuri.RemoveComponent[handle](w, e)
	if removed != 1 {
		t.Errorf("Expected 1 remove hook call, got %d", removed)
	}
	if len(dropped) != 1 || dropped[0] != 9 {
		t.Errorf("Expected drop of FD 9, got %v", dropped)
	}

	// Despawn fires both for components still present.
	e2 := karakuri.Spawn1(w, handle{FD: 11})
	w.Despawn(e2)
	if removed != 2 {
		t.Errorf("Expected remove hook on despawn, got %d calls", removed)
	}
	if len(dropped) != 2 || dropped[1] != 11 {
		t.Errorf("Expected drop of FD 11 on despawn, got %v", dropped)
	}
}

// go test -run ^TestInsertHookSeesValue$ . -count 1
func TestInsertHookSeesValue(t *testing.T) {
	w := karakuri.NewWorld(8)
	var seen []float32
	karakuri.RegisterComponent[Position](w.Components(),
		karakuri.WithOnInsert(func(w *karakuri.World, e karakuri.Entity) {
			if p, ok := karakuri.GetComponent[Position](w, e); ok {
				seen = append(seen, p.X)
			}
		}),
	)
	karakuri.Spawn1(w, Position{X: 5})
	if len(seen) != 1 || seen[0] != 5 {
		t.Errorf("Insert hook did not observe the inserted value: %v", seen)
	}
}

// go test -run ^TestReserveAndFlush$ . -count 1
func TestReserveAndFlush(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	e := w.ReserveEntity()
	if !e.IsPlaceholder() {
		t.Error("Reserved identifier should carry the placeholder flag")
	}
	if w.IsValid(e) {
		t.Error("Reserved identifier should not be valid before the flush")
	}

	w.Flush()
	if !w.IsValid(e) {
		t.Error("Reserved identifier should be valid after the flush")
	}
	if !karakuri.SetComponent(w, e, Position{X: 3}) {
		t.Error("A materialized reservation should accept components")
	}
}

// go test -run ^TestClearEntities$ . -count 1
func TestClearEntities(t *testing.T) {
	w, _, _, _ := setupWorld(t)
	for i := 0; i < 5; i++ {
		karakuri.Spawn1(w, Position{X: float32(i)})
	}
	w.ClearEntities()
	if w.Len() != 0 {
		t.Errorf("Expected 0 live entities after ClearEntities, got %d", w.Len())
	}
}

// go test -run ^TestResources$ . -count 1
func TestResources(t *testing.T) {
	type frameCount struct{ N int }
	w := karakuri.NewWorld(4)

	if karakuri.HasResource[frameCount](w) {
		t.Fatal("Resource present before insertion")
	}
	karakuri.InsertResource(w, frameCount{N: 1})
	fc, ok := karakuri.GetResource[frameCount](w)
	if !ok || fc.N != 1 {
		t.Fatalf("Resource not readable after insert: %+v (ok=%v)", fc, ok)
	}
	fc.N = 2
	if karakuri.MustResource[frameCount](w).N != 2 {
		t.Error("Resource pointer does not alias the stored value")
	}
	if !karakuri.RemoveResource[frameCount](w) {
		t.Error("RemoveResource failed for a present resource")
	}
	if karakuri.HasResource[frameCount](w) {
		t.Error("Resource still present after removal")
	}
}
