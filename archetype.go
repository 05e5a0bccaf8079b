package karakuri

import "unsafe"

// archetype owns the dense storage for one unique component-set mask. Table
// components live in columnar byte slabs with parallel tick columns;
// sparse-set components contribute to the mask but their data lives in the
// world's sparse columns. Every live entity belongs to exactly one
// archetype at a time.
type archetype struct {
	mask          maskType
	componentData [][]byte           // one byte slab per table column
	ticks         [][]ComponentTicks // change-detection stamps, parallel to componentData
	componentIDs  []ComponentID      // table component IDs, ascending
	sizes         []int              // byte size per table column
	entities      []Entity           // table row -> entity
	slots         [MaxComponentTypes]int16
	index         int // position in world.archetypes
}

// copyOp describes moving one column value between two archetypes' tables.
type copyOp struct {
	from, to, size int
}

// transition is a cached edge between two archetypes for a given
// added/removed component mask.
type transition struct {
	target *archetype
	copies []copyOp
}

func newArchetype(index int, mask maskType, tableIDs []ComponentID, sizes []int) *archetype {
	a := &archetype{
		mask:          mask,
		componentData: make([][]byte, len(tableIDs)),
		ticks:         make([][]ComponentTicks, len(tableIDs)),
		componentIDs:  tableIDs,
		sizes:         sizes,
		index:         index,
	}
	for i := range a.slots {
		a.slots[i] = -1
	}
	for slot, id := range tableIDs {
		a.slots[id.index()] = int16(slot)
	}
	return a
}

// getSlot finds the table column of a component ID, or -1 if the component
// is not table-stored here.
func (self *archetype) getSlot(id ComponentID) int {
	return int(self.slots[id.index()])
}

func (self *archetype) len() int {
	return len(self.entities)
}

// columnPtr returns a pointer to the value at row in the given column.
func (self *archetype) columnPtr(slot, row int) unsafe.Pointer {
	if self.sizes[slot] == 0 {
		return unsafe.Pointer(&zeroSizedBase)
	}
	return unsafe.Pointer(&self.componentData[slot][row*self.sizes[slot]])
}

// pushRow appends a zeroed row for e to every column and returns its index.
func (self *archetype) pushRow(e Entity, now Tick) int {
	row := len(self.entities)
	self.entities = append(self.entities, e)
	for slot := range self.componentData {
		self.componentData[slot] = extendByteSlice(self.componentData[slot], self.sizes[slot])
		self.ticks[slot] = extendSlice(self.ticks[slot], 1)
		self.ticks[slot][row] = newComponentTicks(now)
	}
	return row
}

// swapRemoveRow removes the row by swapping the last row into its place.
// It returns the entity that was moved into the vacated row, if any. The
// caller is responsible for fixing that entity's location record.
func (self *archetype) swapRemoveRow(row int) (moved Entity, ok bool) {
	last := len(self.entities) - 1
	if row < last {
		moved = self.entities[last]
		self.entities[row] = moved
		for slot := range self.componentData {
			size := self.sizes[slot]
			copy(self.componentData[slot][row*size:(row+1)*size], self.componentData[slot][last*size:])
			self.ticks[slot][row] = self.ticks[slot][last]
		}
		ok = true
	}
	self.entities = self.entities[:last]
	for slot := range self.componentData {
		self.componentData[slot] = self.componentData[slot][:last*self.sizes[slot]]
		self.ticks[slot] = self.ticks[slot][:last]
	}
	return moved, ok
}
