package karakuri

import "fmt"

// Parent links an entity to its parent. Insert and removal maintain the
// world's child index through component hooks, so always go through
// SetParent/RemoveParent rather than writing the component directly.
type Parent struct {
	Entity Entity
}

// childIndex is the reverse mapping of Parent, kept as a resource because
// component storage holds plain data only.
type childIndex struct {
	children map[uint64][]Entity
}

// RegisterHierarchy registers the Parent component with the hooks that
// maintain the child index, and installs the index resource. Call it once
// per world before using SetParent.
func RegisterHierarchy(w *World) ComponentID {
	if !HasResource[childIndex](w) {
		InsertResource(w, childIndex{children: make(map[uint64][]Entity)})
	}
	return RegisterComponent[Parent](w.components,
		WithOnInsert(func(w *World, e Entity) {
			p, ok := GetComponent[Parent](w, e)
			if !ok {
				return
			}
			idx := MustResource[childIndex](w)
			key := p.Entity.Bits()
			idx.children[key] = append(idx.children[key], e)
		}),
		WithOnRemove(func(w *World, e Entity) {
			p, ok := GetComponent[Parent](w, e)
			if !ok {
				return
			}
			idx := MustResource[childIndex](w)
			key := p.Entity.Bits()
			kids := idx.children[key]
			for i, kid := range kids {
				if kid == e {
					kids[i] = kids[len(kids)-1]
					idx.children[key] = kids[:len(kids)-1]
					break
				}
			}
			if len(idx.children[key]) == 0 {
				delete(idx.children, key)
			}
		}),
	)
}

// SetParent makes parent the parent of e, replacing any previous parent.
// It panics when the link would make the hierarchy cyclic (parenting an
// entity to itself included).
func SetParent(w *World, e, parent Entity) {
	if !w.IsValid(e) || !w.IsValid(parent) {
		panic(fmt.Sprintf("karakuri: SetParent on dead entity (%v -> %v)", e, parent))
	}
	for a, ok := parent, true; ok; {
		if a.ID == e.ID && a.Version == e.Version {
			panic(fmt.Sprintf("karakuri: parenting %v under %v would create a cycle", e, parent))
		}
		var p *Parent
		p, ok = GetComponent[Parent](w, a)
		if ok {
			a = p.Entity
		}
	}
	if p, ok := GetComponent[Parent](w, e); ok {
		if p.Entity == parent {
			return
		}
		RemoveComponent[Parent](w, e)
	}
	SetComponent(w, e, Parent{Entity: parent})
}

// RemoveParent detaches e from its parent, reporting whether it had one.
func RemoveParent(w *World, e Entity) bool {
	return RemoveComponent[Parent](w, e)
}

// ParentOf returns e's parent, if any.
func ParentOf(w *World, e Entity) (Entity, bool) {
	p, ok := GetComponent[Parent](w, e)
	if !ok {
		return Entity{}, false
	}
	return p.Entity, true
}

// ChildrenOf returns a copy of e's direct children.
func ChildrenOf(w *World, e Entity) []Entity {
	idx, ok := GetResource[childIndex](w)
	if !ok {
		return nil
	}
	kids := idx.children[e.Bits()]
	if len(kids) == 0 {
		return nil
	}
	out := make([]Entity, len(kids))
	copy(out, kids)
	return out
}

// DespawnRecursive despawns e and its whole subtree, children first. Each
// child's removal hook unlinks it from the index as it goes.
func DespawnRecursive(w *World, e Entity) {
	for _, kid := range ChildrenOf(w, e) {
		if w.IsValid(kid) {
			DespawnRecursive(w, kid)
		}
	}
	if w.IsValid(e) {
		w.Despawn(e)
	}
}
