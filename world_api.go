package karakuri

import "unsafe"

// AddComponent adds a component of type T to an entity, pulling in any
// required components' defaults. It returns a pointer to the (zeroed)
// component and whether the entity was valid. If the entity already has
// the component, the existing value is returned untouched.
func AddComponent[T any](w *World, e Entity) (*T, bool) {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return nil, false
	}
	ptr, ok := w.insertBytes(e, id, nil, false)
	if !ok {
		return nil, false
	}
	return (*T)(ptr), true
}

// SetComponent sets the component data for an entity, adding the component
// if absent. The write is stamped on the change-detection clock. Returns
// false for invalid entities.
func SetComponent[T any](w *World, e Entity, value T) bool {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return false
	}
	_, ok = w.insertBytes(e, id, unsafe.Pointer(&value), true)
	return ok
}

// GetComponent retrieves a pointer to the component of type T for the
// given entity, or nil if the entity is invalid or lacks the component.
// Writing through the pointer bypasses change detection; use
// GetComponentMut when Changed filters should observe the write.
func GetComponent[T any](w *World, e Entity) (*T, bool) {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return nil, false
	}
	ptr, _ := w.componentPtr(e, id)
	if ptr == nil {
		return nil, false
	}
	return (*T)(ptr), true
}

// GetComponentMut is GetComponent plus a Changed stamp at the current
// tick.
func GetComponentMut[T any](w *World, e Entity) (*T, bool) {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return nil, false
	}
	ptr, ticks := w.componentPtr(e, id)
	if ptr == nil {
		return nil, false
	}
	ticks.Changed = w.ChangeTick()
	return (*T)(ptr), true
}

// HasComponent reports whether the entity currently has component T.
func HasComponent[T any](w *World, e Entity) bool {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return false
	}
	return w.hasComponentID(e, id)
}

// ComponentTicksOf returns the change-detection stamps of one component,
// or false if the entity is invalid or lacks it.
func ComponentTicksOf[T any](w *World, e Entity) (ComponentTicks, bool) {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return ComponentTicks{}, false
	}
	_, ticks := w.componentPtr(e, id)
	if ticks == nil {
		return ComponentTicks{}, false
	}
	return *ticks, true
}

// RemoveComponent removes a component of type T from an entity. Removing
// an absent component succeeds; only an invalid entity returns false.
func RemoveComponent[T any](w *World, e Entity) bool {
	id, ok := TryGetID[T](w.components)
	if !ok {
		return false
	}
	return w.removeComponentID(e, id)
}

// Spawn1 creates an entity with a single component. The component type
// must be registered first.
func Spawn1[A any](w *World, a A) Entity {
	e := w.Spawn()
	mustSet(w, e, a)
	return e
}

// Spawn2 creates an entity with two components.
func Spawn2[A, B any](w *World, a A, b B) Entity {
	e := w.Spawn()
	mustSet(w, e, a)
	mustSet(w, e, b)
	return e
}

// Spawn3 creates an entity with three components.
func Spawn3[A, B, C any](w *World, a A, b B, c C) Entity {
	e := w.Spawn()
	mustSet(w, e, a)
	mustSet(w, e, b)
	mustSet(w, e, c)
	return e
}

// Spawn4 creates an entity with four components.
func Spawn4[A, B, C, D any](w *World, a A, b B, c C, d D) Entity {
	e := w.Spawn()
	mustSet(w, e, a)
	mustSet(w, e, b)
	mustSet(w, e, c)
	mustSet(w, e, d)
	return e
}

func mustSet[T any](w *World, e Entity, value T) {
	// Registration is idempotent, so spawning doubles as registration.
	id := RegisterComponent[T](w.components)
	if _, ok := w.insertBytes(e, id, unsafe.Pointer(&value), true); !ok {
		panic("karakuri: spawned entity rejected its own component insert")
	}
}
