package karakuri

import (
	"fmt"
	"unsafe"

	"github.com/rotisserie/eris"
)

var (
	// ErrEntityDoesNotExist is returned when a looked-up entity is dead,
	// stale, or from another world.
	ErrEntityDoesNotExist = eris.New("entity does not exist")
	// ErrEntityMismatch is returned when a live entity does not match the
	// query's component set or filters.
	ErrEntityMismatch = eris.New("entity does not match the query")
	// ErrNoEntities is returned by Single when the query matches nothing.
	ErrNoEntities = eris.New("no entities match the query")
	// ErrMultipleEntities is returned by Single when the query matches
	// more than one entity.
	ErrMultipleEntities = eris.New("multiple entities match the query")
)

// queryCache is the shared archetype-matching state of all query arities:
// the include/exclude masks, the tick filters, and the cached list of
// matching archetypes, refreshed whenever new archetypes appear.
type queryCache struct {
	world       *World
	include     maskType
	exclude     maskType
	changed     []ComponentID
	added       []ComponentID
	matching    []*archetype
	archVersion uint32
	lastRun     Tick
	now         Tick
}

// QueryOption adds a filter term to a query.
type QueryOption func(w *World, qc *queryCache)

// With restricts a query to entities that have component C without
// fetching it.
func With[C any]() QueryOption {
	return func(w *World, qc *queryCache) {
		qc.include = setMask(qc.include, RegisterComponent[C](w.components))
	}
}

// Without restricts a query to entities that lack component C.
func Without[C any]() QueryOption {
	return func(w *World, qc *queryCache) {
		qc.exclude = setMask(qc.exclude, RegisterComponent[C](w.components))
	}
}

// Changed restricts a query to entities whose C was written since the
// querying system last ran. Implies With[C].
func Changed[C any]() QueryOption {
	return func(w *World, qc *queryCache) {
		id := RegisterComponent[C](w.components)
		qc.include = setMask(qc.include, id)
		qc.changed = append(qc.changed, id)
	}
}

// Added restricts a query to entities whose C was inserted since the
// querying system last ran. Implies With[C].
func Added[C any]() QueryOption {
	return func(w *World, qc *queryCache) {
		id := RegisterComponent[C](w.components)
		qc.include = setMask(qc.include, id)
		qc.added = append(qc.added, id)
	}
}

// Since sets the tick the query's Changed/Added filters compare against.
// Queries built from a SystemContext inherit the system's last-run tick
// automatically.
func Since(t Tick) QueryOption {
	return func(_ *World, qc *queryCache) {
		qc.lastRun = t
	}
}

func (qc *queryCache) init(w *World, opts []QueryOption) {
	qc.world = w
	for _, opt := range opts {
		opt(w, qc)
	}
	if intersects(qc.include, qc.exclude) {
		panic("karakuri: query includes and excludes the same component")
	}
}

// refresh rebuilds the matching-archetype list if archetypes were created
// since the last iteration, and samples the clock for tick filters.
func (qc *queryCache) refresh() {
	qc.now = qc.world.ChangeTick()
	if qc.archVersion == qc.world.archetypeVersion && qc.matching != nil {
		return
	}
	qc.matching = qc.matching[:0]
	for _, a := range qc.world.archetypes {
		if includesAll(a.mask, qc.include) && !intersects(a.mask, qc.exclude) {
			qc.matching = append(qc.matching, a)
		}
	}
	qc.archVersion = qc.world.archetypeVersion
}

// rowPasses applies the Changed/Added tick filters to one table row.
func (qc *queryCache) rowPasses(a *archetype, row int) bool {
	for _, id := range qc.added {
		ticks := qc.ticksAt(a, row, id)
		if ticks == nil || !ticks.Added.IsNewerThan(qc.lastRun, qc.now) {
			return false
		}
	}
	for _, id := range qc.changed {
		ticks := qc.ticksAt(a, row, id)
		if ticks == nil || !ticks.Changed.IsNewerThan(qc.lastRun, qc.now) {
			return false
		}
	}
	return true
}

func (qc *queryCache) ticksAt(a *archetype, row int, id ComponentID) *ComponentTicks {
	if slot := a.getSlot(id); slot >= 0 {
		return &a.ticks[slot][row]
	}
	if col, ok := qc.world.sparse[id.index()]; ok {
		return col.ticksOf(a.entities[row].ID)
	}
	return nil
}

// access reports the (ComponentID, read|write) pairs the query requires:
// data terms are writes (iteration hands out mutable pointers), filter
// terms are reads.
func (qc *queryCache) access(dataIDs []ComponentID) *Access {
	a := &Access{}
	for _, id := range dataIDs {
		a.AddWrite(id)
	}
	for _, id := range qc.include.componentIDs() {
		if !a.readsAndWrites.has(id) {
			a.AddRead(id)
		}
	}
	return a
}

// checkAliasing rejects a query whose data terms alias a mutable
// reference to the same component.
func checkAliasing(ids ...ComponentID) {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				panic(fmt.Sprintf("karakuri: query term %d and %d alias mutable access to component %d", i, j, ids[i]))
			}
		}
	}
}

// term is the per-data-term fetch state of a query: either a table column
// base pointer refreshed per archetype, or a sparse column looked up per
// entity. Sparse columns are resolved lazily and read-only so building a
// query is safe from concurrently running systems.
type term struct {
	world    *World
	sparse   *sparseColumn
	base     unsafe.Pointer
	size     uintptr
	slot     int
	id       ComponentID
	isSparse bool
}

func makeTerm(w *World, id ComponentID) term {
	info := w.infoOf(id)
	t := term{world: w, id: id, size: info.size, slot: -1}
	if info.storage == StorageSparseSet {
		t.isSparse = true
		t.sparse = w.sparse[id.index()]
	}
	return t
}

// enter repositions the term at the start of an archetype.
func (t *term) enter(a *archetype) {
	if t.isSparse {
		if t.sparse == nil {
			// The column appears once the first value is inserted;
			// a matching archetype implies it exists now.
			t.sparse = t.world.sparse[t.id.index()]
		}
		return
	}
	t.slot = a.getSlot(t.id)
	if t.slot < 0 {
		panic(fmt.Sprintf("karakuri: matching archetype lacks table column for component %d", t.id))
	}
	if len(a.componentData[t.slot]) > 0 {
		t.base = unsafe.Pointer(&a.componentData[t.slot][0])
	} else {
		t.base = nil
	}
}

// ptr fetches the term's value for a row.
func (t *term) ptr(a *archetype, row int) unsafe.Pointer {
	if t.isSparse {
		return t.sparse.get(a.entities[row].ID)
	}
	if t.size == 0 {
		return unsafe.Pointer(&zeroSizedBase)
	}
	return unsafe.Pointer(uintptr(t.base) + uintptr(row)*t.size)
}

func (t *term) ticks(a *archetype, row int) *ComponentTicks {
	if t.isSparse {
		return t.sparse.ticksOf(a.entities[row].ID)
	}
	return &a.ticks[t.slot][row]
}

// Query is an iterator over entities that have a specific component,
// walking the matching archetypes' tables in insertion order. Iteration
// order follows table order, not entity-ID order.
type Query[T any] struct {
	queryCache
	t1      term
	archIdx int
	row     int
	curArch *archetype
	curEnt  Entity
}

// NewQuery creates a query for entities with component T, optionally
// narrowed by filter terms.
func NewQuery[T any](w *World, opts ...QueryOption) *Query[T] {
	id1 := RegisterComponent[T](w.components)
	q := &Query[T]{t1: makeTerm(w, id1)}
	q.include = makeMask1(id1)
	q.init(w, opts)
	q.Reset()
	return q
}

// Reset rewinds the iterator. Call it to iterate the same query again; it
// also picks up archetypes created since the last iteration.
func (q *Query[T]) Reset() {
	q.refresh()
	q.archIdx = 0
	q.row = -1
	q.curArch = nil
}

// Next advances to the next matching entity. It must be called before
// Entity or Get, and returns false when iteration is complete.
func (q *Query[T]) Next() bool {
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
		q.row = -1
	}
}

// Entity returns the current entity.
func (q *Query[T]) Entity() Entity {
	return q.curEnt
}

// Get returns a pointer to the component for the current entity. Writes
// through it bypass change detection; use GetMut for stamped writes.
func (q *Query[T]) Get() *T {
	return (*T)(q.t1.ptr(q.curArch, q.row))
}

// GetMut returns the component for the current entity and stamps it
// changed at the current tick.
func (q *Query[T]) GetMut() *T {
	q.t1.ticks(q.curArch, q.row).Changed = q.world.ChangeTick()
	return q.Get()
}

// Fetch looks up the component for a specific entity. It distinguishes a
// dead or foreign entity (ErrEntityDoesNotExist) from a live one that does
// not match the query (ErrEntityMismatch).
func (q *Query[T]) Fetch(e Entity) (*T, error) {
	meta := q.world.metaFor(e)
	if meta == nil {
		return nil, eris.Wrapf(ErrEntityDoesNotExist, "entity %v", e)
	}
	a := q.world.archetypes[meta.archetypeIndex]
	q.refresh()
	if !includesAll(a.mask, q.include) || intersects(a.mask, q.exclude) || !q.rowPasses(a, int(meta.row)) {
		return nil, eris.Wrapf(ErrEntityMismatch, "entity %v", e)
	}
	q.t1.enter(a)
	return (*T)(q.t1.ptr(a, int(meta.row))), nil
}

// Single returns the only matching entity and its component. Zero matches
// and more than one match are distinct errors.
func (q *Query[T]) Single() (Entity, *T, error) {
	q.Reset()
	if !q.Next() {
		return Entity{}, nil, ErrNoEntities
	}
	e, v := q.Entity(), q.Get()
	if q.Next() {
		return Entity{}, nil, ErrMultipleEntities
	}
	return e, v, nil
}

// Count returns the number of matching entities.
func (q *Query[T]) Count() int {
	n := 0
	for q.Reset(); q.Next(); {
		n++
	}
	return n
}

// Access returns the query's access set for conflict detection.
func (q *Query[T]) Access() *Access {
	return q.access([]ComponentID{q.t1.id})
}
