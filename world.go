package karakuri

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// World owns the archetype storage, the sparse columns, the resources and
// the change-detection clock. Structural mutation (spawn, despawn, insert,
// remove) requires exclusive access; during a schedule run it goes through
// Commands and is applied at sync points. Reserving entity IDs is the one
// operation that is safe from concurrently running systems.
type World struct {
	components *Components
	resources  *Resources

	metas   []entityMeta
	freeIDs []uint32

	archetypes        []*archetype
	maskToArch        map[maskType]int
	addTransitions    []map[maskType]*transition
	removeTransitions []map[maskType]*transition
	archetypeVersion  uint32

	sparse map[ComponentID]*sparseColumn // keyed by ComponentID.index()

	changeTick    atomic.Uint32
	lastCheckTick Tick

	idMu            sync.Mutex
	reservedPending []Entity
	pendingFresh    uint32

	liveCount int
}

// NewWorld creates a World with its own component registry and memory
// pre-allocated for initialCapacity entities.
func NewWorld(initialCapacity int) *World {
	return NewWorldWithComponents(initialCapacity, NewComponents())
}

// NewWorldWithComponents creates a World over an existing registry, so that
// several worlds (or staged registrars) can share one ID space.
func NewWorldWithComponents(initialCapacity int, components *Components) *World {
	w := &World{
		components: components,
		resources:  newResources(),
		metas:      make([]entityMeta, initialCapacity),
		freeIDs:    make([]uint32, initialCapacity),
		maskToArch: make(map[maskType]int),
		sparse:     make(map[ComponentID]*sparseColumn),
	}
	for i := range w.metas {
		w.metas[i] = entityMeta{archetypeIndex: -1, row: -1, version: MinGeneration}
	}
	for i := range w.freeIDs {
		w.freeIDs[i] = uint32(initialCapacity - 1 - i)
	}
	// Pre-create the empty archetype.
	w.getOrCreateArchetype(maskType{})
	// The clock starts at one so every live stamp is newer than a zero
	// last-run tick.
	w.changeTick.Store(1)
	return w
}

// Components returns the registry this world's ComponentIDs belong to.
func (w *World) Components() *Components {
	return w.components
}

// ChangeTick returns the current value of the change-detection clock.
func (w *World) ChangeTick() Tick {
	return Tick(w.changeTick.Load())
}

// incrementChangeTick advances the clock by one and returns the new value.
// Called once per system run and per flush.
func (w *World) incrementChangeTick() Tick {
	return Tick(w.changeTick.Add(1))
}

// ArchetypeVersion increments whenever a new archetype is created. Queries
// use it to detect stale archetype caches.
func (w *World) ArchetypeVersion() uint32 {
	return w.archetypeVersion
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.liveCount
}

// IsValid checks if the entity is currently alive in the world. Flag bits
// on the handle are ignored, so a reserved identifier becomes valid once
// the world has been flushed.
func (w *World) IsValid(e Entity) bool {
	if int(e.ID) >= len(w.metas) {
		return false
	}
	m := &w.metas[e.ID]
	return m.alive() && m.version == ExtractValueFromHigh(e.Version)
}

// metaFor returns the location record for a valid entity, or nil.
func (w *World) metaFor(e Entity) *entityMeta {
	if int(e.ID) >= len(w.metas) {
		return nil
	}
	m := &w.metas[e.ID]
	if !m.alive() || m.version != ExtractValueFromHigh(e.Version) {
		return nil
	}
	return m
}

// infoOf resolves a ComponentID against this world's registry. IDs from a
// different registry, or IDs whose staged registration was never applied,
// are a programming error.
func (w *World) infoOf(id ComponentID) *ComponentInfo {
	if tok := id.RegistryToken(); tok != 0 && tok != w.components.RegistryID() {
		panic(fmt.Sprintf("karakuri: ComponentID %d was minted by registry %d, not this world's registry %d", id, tok, w.components.RegistryID()))
	}
	info, ok := w.components.Info(id)
	if !ok {
		panic(fmt.Sprintf("karakuri: ComponentID %d is unknown to this world's registry (unapplied stage?)", id))
	}
	return info
}

// sparseColumnFor returns (creating if needed) the sparse column of a
// sparse-set component.
func (w *World) sparseColumnFor(id ComponentID) *sparseColumn {
	col, ok := w.sparse[id.index()]
	if !ok {
		col = newSparseColumn(w.infoOf(id))
		w.sparse[id.index()] = col
	}
	return col
}

// getOrCreateArchetype returns the archetype for the given mask, creating
// it on first use. Table columns are derived from the mask; sparse-set
// components contribute to the mask only.
func (w *World) getOrCreateArchetype(mask maskType) *archetype {
	if idx, ok := w.maskToArch[mask]; ok {
		return w.archetypes[idx]
	}
	var tableIDs []ComponentID
	var sizes []int
	for _, id := range mask.componentIDs() {
		info := w.infoOf(id)
		if info.storage == StorageTable {
			tableIDs = append(tableIDs, id)
			sizes = append(sizes, int(info.size))
		}
	}
	a := newArchetype(len(w.archetypes), mask, tableIDs, sizes)
	w.archetypes = append(w.archetypes, a)
	w.addTransitions = append(w.addTransitions, nil)
	w.removeTransitions = append(w.removeTransitions, nil)
	w.maskToArch[mask] = a.index
	w.archetypeVersion++
	return a
}

// computeCopies builds the column move plan for a transition between two
// archetypes: every table component present in both keeps its value.
func computeCopies(from, to *archetype) []copyOp {
	copies := make([]copyOp, 0, len(from.componentIDs))
	for slot, id := range from.componentIDs {
		if t := to.getSlot(id); t >= 0 {
			copies = append(copies, copyOp{from: slot, to: t, size: from.sizes[slot]})
		}
	}
	return copies
}

func (w *World) addTransitionFor(from *archetype, add maskType) *transition {
	m := w.addTransitions[from.index]
	if tr, ok := m[add]; ok {
		return tr
	}
	target := w.getOrCreateArchetype(orMask(from.mask, add))
	tr := &transition{target: target, copies: computeCopies(from, target)}
	if w.addTransitions[from.index] == nil {
		w.addTransitions[from.index] = make(map[maskType]*transition)
	}
	w.addTransitions[from.index][add] = tr
	return tr
}

func (w *World) removeTransitionFor(from *archetype, remove maskType) *transition {
	m := w.removeTransitions[from.index]
	if tr, ok := m[remove]; ok {
		return tr
	}
	target := w.getOrCreateArchetype(andNotMask(from.mask, remove))
	tr := &transition{target: target, copies: computeCopies(from, target)}
	if w.removeTransitions[from.index] == nil {
		w.removeTransitions[from.index] = make(map[maskType]*transition)
	}
	w.removeTransitions[from.index][remove] = tr
	return tr
}

// moveRow migrates the entity's table row into target, preserving the
// values and tick stamps of every component both archetypes share. The
// location record is updated before the old row is reclaimed, so a
// half-completed move is never observable.
func (w *World) moveRow(e Entity, meta *entityMeta, target *archetype, copies []copyOp) {
	old := w.archetypes[meta.archetypeIndex]
	if old == target {
		return
	}
	oldRow := int(meta.row)
	newRow := target.pushRow(e, w.ChangeTick())
	for _, cp := range copies {
		dst := target.componentData[cp.to][newRow*cp.size : (newRow+1)*cp.size]
		src := old.componentData[cp.from][oldRow*cp.size : (oldRow+1)*cp.size]
		copy(dst, src)
		target.ticks[cp.to][newRow] = old.ticks[cp.from][oldRow]
	}
	meta.archetypeIndex = int32(target.index)
	meta.row = int32(newRow)
	if moved, ok := old.swapRemoveRow(oldRow); ok {
		w.metas[moved.ID].row = int32(oldRow)
	}
}

// allocateID pops a recycled entity index or grows the meta table. Pending
// reservations are flushed first so fresh indices cannot collide with
// reserved ones.
func (w *World) allocateID() uint32 {
	w.idMu.Lock()
	defer w.idMu.Unlock()
	if w.pendingFresh > 0 || len(w.reservedPending) > 0 {
		w.flushReservedLocked()
	}
	if n := len(w.freeIDs); n > 0 {
		id := w.freeIDs[n-1]
		w.freeIDs = w.freeIDs[:n-1]
		return id
	}
	w.metas = append(w.metas, entityMeta{archetypeIndex: -1, row: -1, version: MinGeneration})
	return uint32(len(w.metas) - 1)
}

// Spawn creates a new entity with no components.
func (w *World) Spawn() Entity {
	return w.spawnInArchetype(w.archetypes[w.maskToArch[maskType{}]])
}

func (w *World) spawnInArchetype(a *archetype) Entity {
	id := w.allocateID()
	meta := &w.metas[id]
	e := Entity{ID: id, Version: meta.version}
	row := a.pushRow(e, w.ChangeTick())
	meta.archetypeIndex = int32(a.index)
	meta.row = int32(row)
	w.liveCount++
	return e
}

// ReserveEntity hands out a placeholder identifier whose storage row will
// be materialized at the next flush. Unlike every other structural
// operation, reservation is safe to call from concurrently running
// systems; Commands uses it to spawn.
func (w *World) ReserveEntity() Entity {
	w.idMu.Lock()
	defer w.idMu.Unlock()
	var e Entity
	if n := len(w.freeIDs); n > 0 {
		id := w.freeIDs[n-1]
		w.freeIDs = w.freeIDs[:n-1]
		e = Entity{ID: id, Version: w.metas[id].version | PlaceholderFlag}
	} else {
		// Do not touch the meta table here; growing it would race
		// with running systems. The flush grows it.
		id := uint32(len(w.metas)) + w.pendingFresh
		w.pendingFresh++
		e = Entity{ID: id, Version: MinGeneration | PlaceholderFlag}
	}
	w.reservedPending = append(w.reservedPending, e)
	return e
}

// Flush materializes every reserved entity into the empty archetype and
// advances the change tick. Requires exclusive world access.
func (w *World) Flush() {
	w.idMu.Lock()
	w.flushReservedLocked()
	w.idMu.Unlock()
	w.incrementChangeTick()
}

func (w *World) flushReservedLocked() {
	for w.pendingFresh > 0 {
		w.metas = append(w.metas, entityMeta{archetypeIndex: -1, row: -1, version: MinGeneration})
		w.pendingFresh--
	}
	empty := w.archetypes[w.maskToArch[maskType{}]]
	for _, e := range w.reservedPending {
		meta := &w.metas[e.ID]
		if meta.alive() {
			continue
		}
		meta.version = ExtractValueFromHigh(e.Version)
		row := empty.pushRow(Entity{ID: e.ID, Version: meta.version}, w.ChangeTick())
		meta.archetypeIndex = int32(empty.index)
		meta.row = int32(row)
		w.liveCount++
	}
	w.reservedPending = w.reservedPending[:0]
}

// Despawn removes the entity, recycles its index and bumps the generation
// so stale handles are rejected. Remove hooks and drop functions run for
// every component the entity still has. Returns false for invalid handles.
func (w *World) Despawn(e Entity) bool {
	meta := w.metaFor(e)
	if meta == nil {
		return false
	}
	arch := w.archetypes[meta.archetypeIndex]
	for _, id := range arch.mask.componentIDs() {
		if hook := w.infoOf(id).onRemove; hook != nil {
			hook(w, e)
		}
	}
	// Hooks may have moved rows around; re-read the location.
	meta = w.metaFor(e)
	if meta == nil {
		panic(fmt.Sprintf("karakuri: entity %v despawned by its own remove hook", e))
	}
	arch = w.archetypes[meta.archetypeIndex]
	row := int(meta.row)
	for _, id := range arch.mask.componentIDs() {
		info := w.infoOf(id)
		if info.storage == StorageSparseSet {
			col := w.sparse[id.index()]
			if info.drop != nil {
				if ptr := col.get(e.ID); ptr != nil {
					info.drop(ptr)
				}
			}
			col.remove(e.ID)
			continue
		}
		if info.drop != nil {
			info.drop(arch.columnPtr(arch.getSlot(id), row))
		}
	}
	if moved, ok := arch.swapRemoveRow(row); ok {
		w.metas[moved.ID].row = int32(row)
	}
	meta.clearLocation()
	meta.version = IncrementGenerationBy(meta.version, 1)
	w.idMu.Lock()
	w.freeIDs = append(w.freeIDs, e.ID)
	w.idMu.Unlock()
	w.liveCount--
	return true
}

// ClearEntities despawns every live entity. Hooks and drop functions run
// as they would for individual despawns.
func (w *World) ClearEntities() {
	var all []Entity
	for _, a := range w.archetypes {
		all = append(all, a.entities...)
	}
	for _, e := range all {
		w.Despawn(e)
	}
}

// hasComponentID reports whether the entity's archetype mask contains id.
func (w *World) hasComponentID(e Entity, id ComponentID) bool {
	meta := w.metaFor(e)
	if meta == nil {
		return false
	}
	return w.archetypes[meta.archetypeIndex].mask.has(id)
}

// componentPtr returns the storage pointer and tick stamps for one
// component of a valid entity, or nil if absent.
func (w *World) componentPtr(e Entity, id ComponentID) (unsafe.Pointer, *ComponentTicks) {
	meta := w.metaFor(e)
	if meta == nil {
		return nil, nil
	}
	info := w.infoOf(id)
	arch := w.archetypes[meta.archetypeIndex]
	if !arch.mask.has(id) {
		return nil, nil
	}
	if info.storage == StorageSparseSet {
		col := w.sparse[id.index()]
		return col.get(e.ID), col.ticksOf(e.ID)
	}
	slot := arch.getSlot(id)
	if slot < 0 {
		panic(fmt.Sprintf("karakuri: archetype mask lists component %d but the table has no column for it", id))
	}
	return arch.columnPtr(slot, int(meta.row)), &arch.ticks[slot][meta.row]
}

// insertBytes adds or overwrites one component on an entity. src may be nil
// to insert a zeroed value. When overwrite is false an existing value is
// kept and only its pointer returned. Newly introduced components pull in
// their required components' defaults and fire insert hooks. The returned
// pointer is re-resolved after hooks, so it is valid even if hooks caused
// storage to grow.
func (w *World) insertBytes(e Entity, id ComponentID, src unsafe.Pointer, overwrite bool) (unsafe.Pointer, bool) {
	meta := w.metaFor(e)
	if meta == nil {
		return nil, false
	}
	info := w.infoOf(id)
	if info.storage == StorageResource {
		panic(fmt.Sprintf("karakuri: %s is registered as a resource, not a component", info.typ))
	}
	now := w.ChangeTick()
	arch := w.archetypes[meta.archetypeIndex]
	had := arch.mask.has(id)

	if info.storage == StorageSparseSet {
		col := w.sparseColumnFor(id)
		if had {
			if overwrite {
				col.insert(e, src, now)
			}
			return col.get(e.ID), true
		}
		col.insert(e, src, now)
		tr := w.addTransitionFor(arch, makeMask1(id))
		w.moveRow(e, meta, tr.target, tr.copies)
	} else {
		if had {
			slot := arch.getSlot(id)
			ptr := arch.columnPtr(slot, int(meta.row))
			if overwrite {
				if src != nil {
					memCopy(ptr, src, info.size)
				}
				arch.ticks[slot][meta.row].Changed = now
			}
			return ptr, true
		}
		tr := w.addTransitionFor(arch, makeMask1(id))
		w.moveRow(e, meta, tr.target, tr.copies)
		if src != nil {
			slot := tr.target.getSlot(id)
			memCopy(tr.target.columnPtr(slot, int(meta.row)), src, info.size)
		}
	}

	w.applyRequired(e, info)
	if info.onInsert != nil {
		info.onInsert(w, e)
	}
	ptr, _ := w.componentPtr(e, id)
	if ptr == nil && info.size > 0 {
		panic(fmt.Sprintf("karakuri: component %s vanished during insert hooks on %v", info.typ, e))
	}
	return ptr, true
}

// applyRequired inserts the defaults of every required component the
// entity does not have yet. Nested requirements resolve through the same
// insert path; cycles were rejected at registration.
func (w *World) applyRequired(e Entity, info *ComponentInfo) {
	for _, r := range info.requires {
		if w.hasComponentID(e, r.id) {
			continue
		}
		var src unsafe.Pointer
		if len(r.defaultBytes) > 0 {
			src = unsafe.Pointer(&r.defaultBytes[0])
		}
		w.insertBytes(e, r.id, src, true)
	}
}

// removeComponentID removes one component, firing the remove hook and drop
// function before the data disappears. Removing an absent component is a
// no-op reported as success.
func (w *World) removeComponentID(e Entity, id ComponentID) bool {
	meta := w.metaFor(e)
	if meta == nil {
		return false
	}
	info := w.infoOf(id)
	if !w.archetypes[meta.archetypeIndex].mask.has(id) {
		return true
	}
	if info.onRemove != nil {
		info.onRemove(w, e)
		meta = w.metaFor(e)
		if meta == nil {
			panic(fmt.Sprintf("karakuri: entity %v despawned by remove hook of %s", e, info.typ))
		}
	}
	arch := w.archetypes[meta.archetypeIndex]
	if info.storage == StorageSparseSet {
		col := w.sparse[id.index()]
		if info.drop != nil {
			if ptr := col.get(e.ID); ptr != nil {
				info.drop(ptr)
			}
		}
		col.remove(e.ID)
	} else if info.drop != nil {
		info.drop(arch.columnPtr(arch.getSlot(id), int(meta.row)))
	}
	tr := w.removeTransitionFor(arch, makeMask1(id))
	w.moveRow(e, meta, tr.target, tr.copies)
	return true
}

// CheckChangeTicks clamps every stored tick stamp so that wrap-safe
// comparisons stay sound. Schedules call this periodically; it only scans
// once per checkTickThreshold ticks unless forced.
func (w *World) CheckChangeTicks() {
	now := w.ChangeTick()
	if now.RelativeTo(w.lastCheckTick) < checkTickThreshold {
		return
	}
	for _, a := range w.archetypes {
		for slot := range a.ticks {
			for i := range a.ticks[slot] {
				a.ticks[slot][i].Added.CheckTick(now)
				a.ticks[slot][i].Changed.CheckTick(now)
			}
		}
	}
	for _, col := range w.sparse {
		for i := range col.ticks {
			col.ticks[i].Added.CheckTick(now)
			col.ticks[i].Changed.CheckTick(now)
		}
	}
	w.lastCheckTick = now
}
