package karakuri

// Access is the set of (ComponentID, read|write) pairs a system or query
// requires, plus the coarse "reads everything" / "writes everything"
// flags used by entity-reflection style access and exclusive systems. The
// scheduler treats access sets as capability tokens: two systems may only
// run concurrently if their sets are proven compatible.
type Access struct {
	readsAndWrites maskType
	writes         maskType
	readsAll       bool
	writesAll      bool
}

// AddRead declares shared access to a component ID.
func (a *Access) AddRead(id ComponentID) *Access {
	a.readsAndWrites = setMask(a.readsAndWrites, id)
	return a
}

// AddWrite declares exclusive access to a component ID.
func (a *Access) AddWrite(id ComponentID) *Access {
	a.readsAndWrites = setMask(a.readsAndWrites, id)
	a.writes = setMask(a.writes, id)
	return a
}

// SetReadsAll declares shared access to every component.
func (a *Access) SetReadsAll() *Access {
	a.readsAll = true
	return a
}

// SetWritesAll declares exclusive access to the whole world. Systems with
// this access never run concurrently with anything.
func (a *Access) SetWritesAll() *Access {
	a.readsAll = true
	a.writesAll = true
	return a
}

// HasWrite reports whether the set claims exclusive access to id.
func (a *Access) HasWrite(id ComponentID) bool {
	return a.writesAll || a.writes.has(id)
}

// HasRead reports whether the set claims at least shared access to id.
func (a *Access) HasRead(id ComponentID) bool {
	return a.readsAll || a.readsAndWrites.has(id)
}

// IsEmpty reports whether the set claims no access at all.
func (a *Access) IsEmpty() bool {
	return !a.readsAll && !a.writesAll && a.readsAndWrites.isEmpty()
}

// CompatibleWith reports whether two access sets can be held
// simultaneously: no component is written by one side while the other
// touches it, and all-access is only compatible with an empty set (or
// read-all with read-only sets).
func (a *Access) CompatibleWith(b *Access) bool {
	if a.writesAll {
		return b.IsEmpty()
	}
	if b.writesAll {
		return a.IsEmpty()
	}
	if a.readsAll && (b.writesAll || !b.writes.isEmpty()) {
		return false
	}
	if b.readsAll && !a.writes.isEmpty() {
		return false
	}
	return !intersects(a.writes, b.readsAndWrites) && !intersects(b.writes, a.readsAndWrites)
}

// ConflictsWith lists the component IDs over which two access sets
// conflict. A conflict caused purely by an all-access flag yields an empty
// list with all=true.
func (a *Access) ConflictsWith(b *Access) (ids []ComponentID, all bool) {
	if a.CompatibleWith(b) {
		return nil, false
	}
	conflict := orMask(andMask(a.writes, b.readsAndWrites), andMask(b.writes, a.readsAndWrites))
	ids = conflict.componentIDs()
	return ids, len(ids) == 0
}

// Extend merges another access set into this one.
func (a *Access) Extend(b *Access) {
	a.readsAndWrites = orMask(a.readsAndWrites, b.readsAndWrites)
	a.writes = orMask(a.writes, b.writes)
	a.readsAll = a.readsAll || b.readsAll
	a.writesAll = a.writesAll || b.writesAll
}

// Clone returns an independent copy.
func (a *Access) Clone() *Access {
	c := *a
	return &c
}
