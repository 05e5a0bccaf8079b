package karakuri

import "unsafe"

// sparseColumn is the storage for one sparse-set component: a dense byte
// slab plus a sparse entity-index lookup with swap-remove. Sparse
// components never move when their entity migrates between archetypes,
// which keeps add/remove of heavy archetypes cheap.
type sparseColumn struct {
	info     *ComponentInfo
	dense    []byte
	ticks    []ComponentTicks
	entities []Entity
	sparse   []int32 // entity ID -> dense row, -1 if absent
}

func newSparseColumn(info *ComponentInfo) *sparseColumn {
	return &sparseColumn{info: info}
}

func (s *sparseColumn) rowOf(id uint32) int {
	if int(id) >= len(s.sparse) {
		return -1
	}
	return int(s.sparse[id])
}

func (s *sparseColumn) has(id uint32) bool {
	return s.rowOf(id) >= 0
}

// get returns a pointer to the value for the entity ID, or nil.
func (s *sparseColumn) get(id uint32) unsafe.Pointer {
	row := s.rowOf(id)
	if row < 0 {
		return nil
	}
	if s.info.size == 0 {
		return unsafe.Pointer(&zeroSizedBase)
	}
	return unsafe.Pointer(&s.dense[row*int(s.info.size)])
}

func (s *sparseColumn) ticksOf(id uint32) *ComponentTicks {
	row := s.rowOf(id)
	if row < 0 {
		return nil
	}
	return &s.ticks[row]
}

// insert stores a value for the entity, stamping Added on first insert and
// Changed always. src may be nil to insert a zeroed value. It returns the
// destination pointer.
func (s *sparseColumn) insert(e Entity, src unsafe.Pointer, now Tick) unsafe.Pointer {
	size := int(s.info.size)
	if row := s.rowOf(e.ID); row >= 0 {
		dst := s.get(e.ID)
		if src != nil {
			memCopy(dst, src, s.info.size)
		}
		s.ticks[row].Changed = now
		return dst
	}
	for int(e.ID) >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
	row := len(s.entities)
	s.entities = append(s.entities, e)
	s.dense = extendByteSlice(s.dense, size)
	s.ticks = append(s.ticks, newComponentTicks(now))
	s.sparse[e.ID] = int32(row)
	dst := s.get(e.ID)
	if src != nil {
		memCopy(dst, src, s.info.size)
	}
	return dst
}

// remove discards the value for the entity ID via swap-remove. The caller
// runs drop hooks first; this only reclaims storage.
func (s *sparseColumn) remove(id uint32) bool {
	row := s.rowOf(id)
	if row < 0 {
		return false
	}
	size := int(s.info.size)
	last := len(s.entities) - 1
	if row < last {
		lastEnt := s.entities[last]
		s.entities[row] = lastEnt
		copy(s.dense[row*size:(row+1)*size], s.dense[last*size:])
		s.ticks[row] = s.ticks[last]
		s.sparse[lastEnt.ID] = int32(row)
	}
	s.entities = s.entities[:last]
	s.dense = s.dense[:last*size]
	s.ticks = s.ticks[:last]
	s.sparse[id] = -1
	return true
}
