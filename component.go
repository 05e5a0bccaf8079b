package karakuri

import (
	"reflect"
	"unsafe"
)

// ComponentID is a unique identifier for a component or resource type. IDs
// are dense, allocated once and never reused. A ComponentID is only
// meaningful for the Components registry that minted it: the low bits are
// the dense per-registry index, the high bits carry the minting registry's
// identity token, and worlds panic when handed an ID whose token belongs to
// another registry.
type ComponentID uint32

const (
	componentTokenShift = 8 // the index occupies the bits below
	componentIndexMask  = MaxComponentTypes - 1
	componentTokenMask  = 1<<(32-componentTokenShift) - 1
)

// index returns the dense per-registry slot of the id. Masks, archetype
// columns and sparse sets are keyed by it.
func (id ComponentID) index() ComponentID { return id & componentIndexMask }

// RegistryToken returns the identity token of the registry that minted the
// id. Index-only IDs reconstructed from archetype masks carry token zero.
func (id ComponentID) RegistryToken() uint32 { return uint32(id >> componentTokenShift) }

// StorageKind selects where component values of a type live.
type StorageKind uint8

const (
	// StorageTable stores values in the dense columnar tables of the
	// archetypes. Best for components present on most entities.
	StorageTable StorageKind = iota
	// StorageSparseSet stores values in a per-component sparse set. Best
	// for components that are rarely present or frequently added and
	// removed, since they do not force archetype moves of table data.
	StorageSparseSet
	// StorageResource marks a registration made for a singleton resource
	// type. Resource IDs exist so systems can declare resource access;
	// they own no entity storage.
	StorageResource
)

// HookFn is invoked after a component is inserted on, or before it is
// removed from, an entity. Hooks may mutate the world, but must not hold
// query iterators across the call.
type HookFn func(w *World, e Entity)

// DropFn is invoked with a pointer to a component value that is about to be
// discarded, before its bytes are reused or released.
type DropFn func(ptr unsafe.Pointer)

// requiredComponent is one edge of the requires-graph, together with the
// default value inserted when the requiring component arrives alone.
type requiredComponent struct {
	id           ComponentID
	defaultBytes []byte
}

// ComponentInfo is the type-erased descriptor the storage layer operates
// on: byte layout, drop behavior, storage kind, lifecycle hooks and the
// required-components edges. One exists per minted ComponentID.
type ComponentInfo struct {
	typ      reflect.Type
	size     uintptr
	requires []requiredComponent
	drop     DropFn
	onInsert HookFn
	onRemove HookFn
	id       ComponentID
	storage  StorageKind
}

// ID returns the component's registry-assigned identifier.
func (info *ComponentInfo) ID() ComponentID { return info.id }

// Type returns the Go type this descriptor was registered for.
func (info *ComponentInfo) Type() reflect.Type { return info.typ }

// Size returns the byte size of one component value.
func (info *ComponentInfo) Size() uintptr { return info.size }

// Storage returns where values of this component live.
func (info *ComponentInfo) Storage() StorageKind { return info.storage }

// Requires returns the IDs of the directly required components.
func (info *ComponentInfo) Requires() []ComponentID {
	ids := make([]ComponentID, len(info.requires))
	for i, r := range info.requires {
		ids[i] = r.id
	}
	return ids
}

// componentOptions accumulates registration options before the descriptor
// is built.
type componentOptions struct {
	storage    StorageKind
	storageSet bool
	drop       DropFn
	onInsert   HookFn
	onRemove   HookFn
	requires   []pendingRequire
}

// pendingRequire defers registration of a required component type until the
// target registry (canonical or staged) is known.
type pendingRequire struct {
	typ          reflect.Type
	defaultBytes []byte
	register     func(target registrar) ComponentID
}

// ComponentOption configures a component registration.
type ComponentOption func(*componentOptions)

// WithSparseStorage stores the component in a sparse set instead of the
// archetype tables.
func WithSparseStorage() ComponentOption {
	return func(o *componentOptions) {
		o.storage = StorageSparseSet
		o.storageSet = true
	}
}

// WithDrop installs a drop function called before a component value's bytes
// are discarded (on despawn or component removal).
func WithDrop(fn DropFn) ComponentOption {
	return func(o *componentOptions) { o.drop = fn }
}

// WithOnInsert installs a hook called after the component is inserted on an
// entity.
func WithOnInsert(h HookFn) ComponentOption {
	return func(o *componentOptions) { o.onInsert = h }
}

// WithOnRemove installs a hook called before the component is removed from
// an entity (including despawn).
func WithOnRemove(h HookFn) ComponentOption {
	return func(o *componentOptions) { o.onRemove = h }
}

// Requires declares that inserting the registered component also inserts R
// with the given default, unless the entity already has R. The required
// component is registered transitively. Cycles in the requires-graph are a
// configuration error and panic at registration time.
func Requires[R any](def R) ComponentOption {
	return func(o *componentOptions) {
		o.requires = append(o.requires, pendingRequire{
			typ:          reflect.TypeOf((*R)(nil)).Elem(),
			defaultBytes: valueBytes(&def),
			register: func(target registrar) ComponentID {
				return registerType(target, reflect.TypeOf((*R)(nil)).Elem(), nil)
			},
		})
	}
}

// valueBytes copies the raw bytes of the value v points at.
func valueBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	if size == 0 {
		return nil
	}
	b := make([]byte, size)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(v)), size))
	return b
}
