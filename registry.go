package karakuri

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

var nextRegistryID atomic.Uint32

// mintRegistryID hands out a nonzero token that fits in the bits a
// ComponentID reserves for it. Token zero is kept for index-only IDs.
func mintRegistryID() uint32 {
	for {
		if id := nextRegistryID.Add(1) & componentTokenMask; id != 0 {
			return id
		}
	}
}

// Components is the canonical component registry. It assigns stable numeric
// IDs to component and resource types and owns the type-erased descriptor
// for each. IDs are minted under a short lock so that staged registration
// from multiple goroutines can never assign two different IDs to the same
// type, or the same ID to two different types.
type Components struct {
	mu     sync.RWMutex
	claims map[reflect.Type]ComponentID
	infos  []*ComponentInfo
	nextID ComponentID
	id     uint32
}

// NewComponents creates an empty registry.
func NewComponents() *Components {
	return &Components{
		claims: make(map[reflect.Type]ComponentID, 16),
		infos:  make([]*ComponentInfo, 0, 16),
		id:     mintRegistryID(),
	}
}

// RegistryID returns an identity token distinguishing this registry from
// any other in the process. Every minted ComponentID carries it in its high
// bits; worlds compare it to reject IDs from foreign registries.
func (c *Components) RegistryID() uint32 {
	return c.id
}

// Len returns the number of IDs minted so far, applied or staged.
func (c *Components) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.nextID)
}

// Info returns the descriptor for id, or false if the ID was minted by a
// different registry, was never minted, or its registration is still staged
// and unapplied.
func (c *Components) Info(id ComponentID) (*ComponentInfo, bool) {
	if tok := id.RegistryToken(); tok != 0 && tok != c.id {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := id.index()
	if int(idx) >= len(c.infos) || c.infos[idx] == nil {
		return nil, false
	}
	return c.infos[idx], true
}

// claim mints or returns the ID for a type. The descriptor may not exist
// yet; staged registrations apply it later.
func (c *Components) claim(t reflect.Type) (ComponentID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.claims[t]; ok {
		return id, false
	}
	if int(c.nextID) >= MaxComponentTypes {
		panic(fmt.Sprintf("karakuri: cannot register %s: maximum number of component types (%d) reached", t, MaxComponentTypes))
	}
	id := c.nextID | ComponentID(c.id)<<componentTokenShift
	c.nextID++
	c.claims[t] = id
	return id, true
}

func (c *Components) registry() *Components { return c }

func (c *Components) lookupInfo(id ComponentID) *ComponentInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := id.index()
	if int(idx) >= len(c.infos) {
		return nil
	}
	return c.infos[idx]
}

func (c *Components) storeInfo(info *ComponentInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := info.id.index()
	for int(idx) >= len(c.infos) {
		c.infos = append(c.infos, nil)
	}
	if c.infos[idx] == nil {
		c.infos[idx] = info
	}
}

// registrar is the target of a registration: either the canonical registry
// or a thread-confined staging buffer. IDs always come from the canonical
// registry; where the descriptor lands differs.
type registrar interface {
	registry() *Components
	lookupInfo(id ComponentID) *ComponentInfo
	storeInfo(info *ComponentInfo)
}

// RegisterComponent registers a component type in the canonical registry
// and returns its unique ID. Registering the same type twice returns the
// same ID; a second registration may add requires-edges or hooks but must
// not change the storage kind.
func RegisterComponent[T any](c *Components, opts ...ComponentOption) ComponentID {
	var o componentOptions
	for _, opt := range opts {
		opt(&o)
	}
	return registerType(c, reflect.TypeOf((*T)(nil)).Elem(), &o)
}

// RegisterResource mints an ID for a resource type so that systems can
// declare read/write access on it. Resource IDs own no entity storage.
func RegisterResource[T any](c *Components) ComponentID {
	o := componentOptions{storage: StorageResource, storageSet: true}
	return registerType(c, reflect.TypeOf((*T)(nil)).Elem(), &o)
}

// GetID returns the ComponentID for a registered component type. It panics
// if the type has not been registered.
func GetID[T any](c *Components) ComponentID {
	id, ok := TryGetID[T](c)
	if !ok {
		panic(fmt.Sprintf("karakuri: component type %s not registered", reflect.TypeOf((*T)(nil)).Elem()))
	}
	return id
}

// TryGetID returns the ComponentID for a component type and whether it was
// registered.
func TryGetID[T any](c *Components) (ComponentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.claims[reflect.TypeOf((*T)(nil)).Elem()]
	return id, ok
}

// registerType is the shared registration path for the direct and staged
// registrars. It mints the ID, builds or merges the descriptor, resolves
// requires-edges recursively, and validates the requires-graph.
func registerType(target registrar, t reflect.Type, o *componentOptions) ComponentID {
	if o == nil {
		o = &componentOptions{}
	}
	id, _ := target.registry().claim(t)

	info := target.lookupInfo(id)
	if info == nil {
		info = &ComponentInfo{
			id:      id,
			typ:     t,
			size:    t.Size(),
			storage: o.storage,
		}
		target.storeInfo(info)
		// storeInfo keeps the first descriptor under concurrent
		// registration; merge into whichever won.
		info = target.lookupInfo(id)
	}
	if o.storageSet && info.storage != o.storage {
		panic(fmt.Sprintf("karakuri: duplicate incompatible registration of %s: storage kind %d vs %d", t, info.storage, o.storage))
	}
	if info.drop == nil {
		info.drop = o.drop
	}
	if info.onInsert == nil {
		info.onInsert = o.onInsert
	}
	if info.onRemove == nil {
		info.onRemove = o.onRemove
	}

	for _, pr := range o.requires {
		rid := pr.register(target)
		exists := false
		for _, r := range info.requires {
			if r.id == rid {
				exists = true
				break
			}
		}
		if !exists {
			info.requires = append(info.requires, requiredComponent{id: rid, defaultBytes: pr.defaultBytes})
		}
	}
	if len(o.requires) > 0 {
		if cycle := findRequiresCycle(target, id); cycle != nil {
			panic(fmt.Sprintf("karakuri: cyclic required components: %s", cycleString(target, cycle)))
		}
	}
	return id
}

// findRequiresCycle walks the requires-graph from start and returns the
// member IDs of a cycle, or nil.
func findRequiresCycle(target registrar, start ComponentID) []ComponentID {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[ComponentID]int)
	var stack []ComponentID

	var visit func(id ComponentID) []ComponentID
	visit = func(id ComponentID) []ComponentID {
		state[id] = inStack
		stack = append(stack, id)
		if info := target.lookupInfo(id); info != nil {
			for _, r := range info.requires {
				switch state[r.id] {
				case unvisited:
					if cycle := visit(r.id); cycle != nil {
						return cycle
					}
				case inStack:
					for i, sid := range stack {
						if sid == r.id {
							return append([]ComponentID(nil), stack[i:]...)
						}
					}
				}
			}
		}
		state[id] = done
		stack = stack[:len(stack)-1]
		return nil
	}
	return visit(start)
}

func cycleString(target registrar, cycle []ComponentID) string {
	s := ""
	for i, id := range cycle {
		if i > 0 {
			s += " -> "
		}
		if info := target.lookupInfo(id); info != nil {
			s += info.typ.String()
		} else {
			s += fmt.Sprintf("#%d", id)
		}
	}
	if len(cycle) > 0 {
		if info := target.lookupInfo(cycle[0]); info != nil {
			s += " -> " + info.typ.String()
		}
	}
	return s
}
