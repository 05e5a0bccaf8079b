package karakuri

import (
	"fmt"
	"reflect"
	"sync"
)

// Resources is a typed singleton store: one value per Go type. Reads are
// safe from concurrently running systems; inserts and removals are
// structural and belong in exclusive sections or Commands.
type Resources struct {
	mu    sync.RWMutex
	items map[reflect.Type]any
}

func newResources() *Resources {
	return &Resources{items: make(map[reflect.Type]any, 8)}
}

func (r *Resources) get(t reflect.Type) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[t]
	return v, ok
}

func (r *Resources) set(t reflect.Type, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t] = v
}

func (r *Resources) remove(t reflect.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t]; !ok {
		return false
	}
	delete(r.items, t)
	return true
}

// Clear removes all resources.
func (r *Resources) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
}

// InsertResource stores the singleton value for type T, replacing any
// previous value.
func InsertResource[T any](w *World, value T) {
	w.resources.set(reflect.TypeOf((*T)(nil)).Elem(), &value)
}

// GetResource retrieves the resource of type T, or false if absent.
func GetResource[T any](w *World) (*T, bool) {
	v, ok := w.resources.get(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

// HasResource checks if a resource of type T exists.
func HasResource[T any](w *World) bool {
	_, ok := w.resources.get(reflect.TypeOf((*T)(nil)).Elem())
	return ok
}

// MustResource retrieves the resource of type T and panics if it is
// absent. Systems that cannot tolerate a missing resource should instead
// declare it with RequiresResource and let the executor skip them.
func MustResource[T any](w *World) *T {
	v, ok := GetResource[T](w)
	if !ok {
		panic(fmt.Sprintf("karakuri: resource %s does not exist", reflect.TypeOf((*T)(nil)).Elem()))
	}
	return v
}

// RemoveResource deletes the resource of type T, reporting whether it was
// present.
func RemoveResource[T any](w *World) bool {
	return w.resources.remove(reflect.TypeOf((*T)(nil)).Elem())
}
