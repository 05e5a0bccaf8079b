package karakuri

import "math/bits"

const (
	bitsPerWord = 64
	maskWords   = 4
	// MaxComponentTypes defines the maximum number of unique component
	// types a registry can mint. This value is fixed at 256.
	MaxComponentTypes = maskWords * bitsPerWord
)

// maskType is a bitmask over component IDs, used to identify the exact,
// order-independent component set of an archetype. It is comparable and is
// used directly as a map key.
type maskType [maskWords]uint64

// has checks if the mask has a specific component ID.
func (self maskType) has(id ComponentID) bool {
	idx := id.index()
	return (self[idx/bitsPerWord] & (1 << (idx % bitsPerWord))) != 0
}

// componentIDs returns the IDs present in the mask in ascending order. The
// returned IDs are index-only; resolve them against the owning world's
// registry.
func (self maskType) componentIDs() []ComponentID {
	ids := make([]ComponentID, 0, self.count())
	for w := 0; w < maskWords; w++ {
		word := self[w]
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			ids = append(ids, ComponentID(w*bitsPerWord+bit))
			word &= word - 1
		}
	}
	return ids
}

// count returns the number of IDs present in the mask.
func (self maskType) count() int {
	n := 0
	for w := 0; w < maskWords; w++ {
		n += bits.OnesCount64(self[w])
	}
	return n
}

func (self maskType) isEmpty() bool {
	return self == maskType{}
}

// setMask adds a component ID to the mask.
func setMask(m maskType, id ComponentID) maskType {
	idx := id.index()
	nm := m
	nm[idx/bitsPerWord] |= 1 << (idx % bitsPerWord)
	return nm
}

// unsetMask removes a component ID from the mask.
func unsetMask(m maskType, id ComponentID) maskType {
	idx := id.index()
	nm := m
	nm[idx/bitsPerWord] &^= 1 << (idx % bitsPerWord)
	return nm
}

// orMask performs a bitwise OR between two masks.
func orMask(m1, m2 maskType) maskType {
	var nm maskType
	for i := 0; i < maskWords; i++ {
		nm[i] = m1[i] | m2[i]
	}
	return nm
}

// andMask performs a bitwise AND between two masks.
func andMask(m1, m2 maskType) maskType {
	var nm maskType
	for i := 0; i < maskWords; i++ {
		nm[i] = m1[i] & m2[i]
	}
	return nm
}

// andNotMask performs a bitwise AND NOT (m1 &^ m2) between two masks.
func andNotMask(m1, m2 maskType) maskType {
	var nm maskType
	for i := 0; i < maskWords; i++ {
		nm[i] = m1[i] &^ m2[i]
	}
	return nm
}

// makeMask creates a mask from a slice of component IDs.
func makeMask(ids []ComponentID) maskType {
	var m maskType
	for _, id := range ids {
		m = setMask(m, id)
	}
	return m
}

// makeMask1 creates a mask for a single component ID.
func makeMask1(id ComponentID) maskType {
	return setMask(maskType{}, id)
}

// includesAll checks if a mask contains all the bits of another mask.
func includesAll(m, include maskType) bool {
	for i := 0; i < maskWords; i++ {
		if (m[i] & include[i]) != include[i] {
			return false
		}
	}
	return true
}

// intersects checks if a mask has any bits in common with another mask.
func intersects(m, other maskType) bool {
	for i := 0; i < maskWords; i++ {
		if (m[i] & other[i]) != 0 {
			return true
		}
	}
	return false
}
