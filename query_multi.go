package karakuri

import "github.com/rotisserie/eris"

// Query2 iterates entities that have both T1 and T2.
type Query2[T1, T2 any] struct {
	queryCache
	t1, t2  term
	archIdx int
	row     int
	curArch *archetype
	curEnt  Entity
}

// NewQuery2 creates a query over component pair (T1, T2). The two terms
// must be distinct component types.
func NewQuery2[T1, T2 any](w *World, opts ...QueryOption) *Query2[T1, T2] {
	id1 := RegisterComponent[T1](w.components)
	id2 := RegisterComponent[T2](w.components)
	checkAliasing(id1, id2)
	q := &Query2[T1, T2]{t1: makeTerm(w, id1), t2: makeTerm(w, id2)}
	q.include = makeMask([]ComponentID{id1, id2})
	q.init(w, opts)
	q.Reset()
	return q
}

// Reset rewinds the iterator and picks up newly created archetypes.
func (q *Query2[T1, T2]) Reset() {
	q.refresh()
	q.archIdx = 0
	q.row = -1
	q.curArch = nil
}

// Next advances to the next matching entity.
func (q *Query2[T1, T2]) Next() bool {
	for {
		if q.curArch != nil {
			for q.row++; q.row < q.curArch.len(); q.row++ {
				if q.rowPasses(q.curArch, q.row) {
					q.curEnt = q.curArch.entities[q.row]
					return true
				}
			}
		}
		if q.archIdx >= len(q.matching) {
			return false
		}
		a := q.matching[q.archIdx]
		q.archIdx++
		if a.len() == 0 {
			continue
		}
		q.curArch = a
		q.t1.enter(a)
		q.t2.enter(a)
		q.row = -1
	}
}

// Entity returns the current entity.
func (q *Query2[T1, T2]) Entity() Entity {
	return q.curEnt
}

// Get returns both components for the current entity without stamping
// change ticks.
func (q *Query2[T1, T2]) Get() (*T1, *T2) {
	return (*T1)(q.t1.ptr(q.curArch, q.row)), (*T2)(q.t2.ptr(q.curArch, q.row))
}

// GetMut returns both components and stamps them changed.
func (q *Query2[T1, T2]) GetMut() (*T1, *T2) {
	now := q.world.ChangeTick()
	q.t1.ticks(q.curArch, q.row).Changed = now
	q.t2.ticks(q.curArch, q.row).Changed = now
	return q.Get()
}

// Fetch looks up both components for a specific entity.
func (q *Query2[T1, T2]) Fetch(e Entity) (*T1, *T2, error) {
	meta := q.world.metaFor(e)
	if meta == nil {
		return nil, nil, eris.Wrapf(ErrEntityDoesNotExist, "entity %v", e)
	}
	a := q.world.archetypes[meta.archetypeIndex]
	q.refresh()
	if !includesAll(a.mask, q.include) || intersects(a.mask, q.exclude) || !q.rowPasses(a, int(meta.row)) {
		return nil, nil, eris.Wrapf(ErrEntityMismatch, "entity %v", e)
	}
	q.t1.enter(a)
	q.t2.enter(a)
	return (*T1)(q.t1.ptr(a, int(meta.row))), (*T2)(q.t2.ptr(a, int(meta.row))), nil
}

// Count returns the number of matching entities.
func (q *Query2[T1, T2]) Count() int {
	n := 0
	for q.Reset(); q.Next(); {
		n++
	}
	return n
}

// Access returns the query's access set for conflict detection.
func (q *Query2[T1, T2]) Access() *Access {
	return q.access([]ComponentID{q.t1.id, q.t2.id})
}

// Query3 iterates entities that have T1, T2 and T3.
type Query3[T1, T2, T3 any] struct {
	queryCache
	t1, t2, t3 term
	archIdx    int
	row        int
	curArch    *archetype
	curEnt     Entity
}

// NewQuery3 creates a query over component triple (T1, T2, T3).
func NewQuery3[T1, T2, T3 any](w *World, opts ...QueryOption) *Query3[T1, T2, T3] {
	id1 := RegisterComponent[T1](w.components)
	id2 := RegisterComponent[T2](w.components)
	id3 := RegisterComponent[T3](w.components)
	checkAliasing(id1, id2, id3)
	q := &Query3[T1, T2, T3]{t1: makeTerm(w, id1), t2: makeTerm(w, id2), t3: makeTerm(w, id3)}
	q.include = makeMask([]ComponentID{id1, id2, id3})
	q.init(w, opts)
	q.Reset()
	return q
}

func (q *Query3[T1, T2, T3]) Reset() {
	q.refresh()
	q.archIdx = 0
	q.row = -1
	q.curArch = nil
}

func (q *Query3[T1, T2, T3]) Next() bool {
	for {
		if q.curArch != nil {
			for q.row++; q.row < q.curArch.len(); q.row++ {
				if q.rowPasses(q.curArch, q.row) {
					q.curEnt = q.curArch.entities[q.row]
					return true
				}
			}
		}
		if q.archIdx >= len(q.matching) {
			return false
		}
		a := q.matching[q.archIdx]
		q.archIdx++
		if a.len() == 0 {
			continue
		}
		q.curArch = a
		q.t1.enter(a)
		q.t2.enter(a)
		q.t3.enter(a)
		q.row = -1
	}
}

func (q *Query3[T1, T2, T3]) Entity() Entity {
	return q.curEnt
}

func (q *Query3[T1, T2, T3]) Get() (*T1, *T2, *T3) {
	return (*T1)(q.t1.ptr(q.curArch, q.row)),
		(*T2)(q.t2.ptr(q.curArch, q.row)),
		(*T3)(q.t3.ptr(q.curArch, q.row))
}

func (q *Query3[T1, T2, T3]) GetMut() (*T1, *T2, *T3) {
	now := q.world.ChangeTick()
	q.t1.ticks(q.curArch, q.row).Changed = now
	q.t2.ticks(q.curArch, q.row).Changed = now
	q.t3.ticks(q.curArch, q.row).Changed = now
	return q.Get()
}

func (q *Query3[T1, T2, T3]) Count() int {
	n := 0
	for q.Reset(); q.Next(); {
		n++
	}
	return n
}

func (q *Query3[T1, T2, T3]) Access() *Access {
	return q.access([]ComponentID{q.t1.id, q.t2.id, q.t3.id})
}

// Query4 iterates entities that have T1, T2, T3 and T4.
type Query4[T1, T2, T3, T4 any] struct {
	queryCache
	t1, t2, t3, t4 term
	archIdx        int
	row            int
	curArch        *archetype
	curEnt         Entity
}

// NewQuery4 creates a query over component quadruple (T1, T2, T3, T4).
func NewQuery4[T1, T2, T3, T4 any](w *World, opts ...QueryOption) *Query4[T1, T2, T3, T4] {
	id1 := RegisterComponent[T1](w.components)
	id2 := RegisterComponent[T2](w.components)
	id3 := RegisterComponent[T3](w.components)
	id4 := RegisterComponent[T4](w.components)
	checkAliasing(id1, id2, id3, id4)
	q := &Query4[T1, T2, T3, T4]{
		t1: makeTerm(w, id1), t2: makeTerm(w, id2),
		t3: makeTerm(w, id3), t4: makeTerm(w, id4),
	}
	q.include = makeMask([]ComponentID{id1, id2, id3, id4})
	q.init(w, opts)
	q.Reset()
	return q
}

func (q *Query4[T1, T2, T3, T4]) Reset() {
	q.refresh()
	q.archIdx = 0
	q.row = -1
	q.curArch = nil
}

func (q *Query4[T1, T2, T3, T4]) Next() bool {
	for {
		if q.curArch != nil {
			for q.row++; q.row < q.curArch.len(); q.row++ {
				if q.rowPasses(q.curArch, q.row) {
					q.curEnt = q.curArch.entities[q.row]
					return true
				}
			}
		}
		if q.archIdx >= len(q.matching) {
			return false
		}
		a := q.matching[q.archIdx]
		q.archIdx++
		if a.len() == 0 {
			continue
		}
		q.curArch = a
		q.t1.enter(a)
		q.t2.enter(a)
		q.t3.enter(a)
		q.t4.enter(a)
		q.row = -1
	}
}

func (q *Query4[T1, T2, T3, T4]) Entity() Entity {
	return q.curEnt
}

func (q *Query4[T1, T2, T3, T4]) Get() (*T1, *T2, *T3, *T4) {
	return (*T1)(q.t1.ptr(q.curArch, q.row)),
		(*T2)(q.t2.ptr(q.curArch, q.row)),
		(*T3)(q.t3.ptr(q.curArch, q.row)),
		(*T4)(q.t4.ptr(q.curArch, q.row))
}

func (q *Query4[T1, T2, T3, T4]) GetMut() (*T1, *T2, *T3, *T4) {
	now := q.world.ChangeTick()
	q.t1.ticks(q.curArch, q.row).Changed = now
	q.t2.ticks(q.curArch, q.row).Changed = now
	q.t3.ticks(q.curArch, q.row).Changed = now
	q.t4.ticks(q.curArch, q.row).Changed = now
	return q.Get()
}

func (q *Query4[T1, T2, T3, T4]) Count() int {
	n := 0
	for q.Reset(); q.Next(); {
		n++
	}
	return n
}

func (q *Query4[T1, T2, T3, T4]) Access() *Access {
	return q.access([]ComponentID{q.t1.id, q.t2.id, q.t3.id, q.t4.id})
}
