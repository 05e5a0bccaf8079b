// Package karakuri implements an archetype-based Entity-Component-System
// core: columnar component storage, change-detection ticks, and a
// dependency-aware system scheduler with single-threaded, simple and
// multi-threaded executors.
package karakuri

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// An entity identifier packs into a single 64-bit value:
//
//	(high: flags + generation) << 32 | (low: index)
//
// The high word reserves its two top bits for flags. Bit 31 marks a
// placeholder identifier that has been reserved ahead of its storage row;
// bit 30 is an auxiliary flag callers may toggle freely. The remaining 30
// bits hold the generation, which is never zero for a live identifier.
const (
	// GenerationMask selects the generation bits of an identifier's high word.
	GenerationMask uint32 = 0x3FFF_FFFF
	// FlagsMask selects the flag bits of an identifier's high word.
	FlagsMask uint32 = ^GenerationMask
	// PlaceholderFlag marks an identifier that was reserved before its
	// backing storage row exists.
	PlaceholderFlag uint32 = 1 << 31
	// TogglableFlag is an auxiliary flag bit that carries caller-defined
	// state without disturbing the generation.
	TogglableFlag uint32 = 1 << 30
	// MinGeneration is the smallest generation a live identifier can carry.
	MinGeneration uint32 = 1
)

// ErrInvalidIdentifier is returned when reconstructing an Entity from bits
// that do not describe a live identifier.
var ErrInvalidIdentifier = eris.New("invalid identifier bits")

// Entity represents a unique entity in the ECS world. The zero value is not
// a valid entity; live entities always carry a non-zero generation.
type Entity struct {
	// ID is the unique, recyclable index of the entity.
	ID uint32
	// Version is the identifier's high word: flag bits plus a generation
	// counter that protects against stale references to recycled IDs.
	Version uint32
}

// PlaceholderEntity is an entity identifier with a placeholder value. It may
// or may not correspond to an actual entity and should be overwritten before
// use, e.g. when pre-sizing entity arrays.
var PlaceholderEntity = Entity{ID: math.MaxUint32, Version: PlaceholderFlag | MinGeneration}

// PackIdentifier packs a low and high word into identifier bits.
func PackIdentifier(low, high uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

// IdentifierLow extracts the low word (the index) from identifier bits.
func IdentifierLow(bits uint64) uint32 {
	return uint32(bits)
}

// IdentifierHigh extracts the high word (flags + generation) from
// identifier bits.
func IdentifierHigh(bits uint64) uint32 {
	return uint32(bits >> 32)
}

// ExtractValueFromHigh returns the generation stored in a high word, with
// the flag bits masked off.
func ExtractValueFromHigh(high uint32) uint32 {
	return high & GenerationMask
}

// ExtractFlagsFromHigh returns only the flag bits of a high word.
func ExtractFlagsFromHigh(high uint32) uint32 {
	return high & FlagsMask
}

// PackFlagsIntoHigh replaces the flag bits of a high word with the given
// flags, leaving the generation untouched. Any previously set flags are
// cleared first.
func PackFlagsIntoHigh(high, flags uint32) uint32 {
	return (high & GenerationMask) | (flags & FlagsMask)
}

// SetTogglableFlag sets or clears the auxiliary flag bit of a high word.
func SetTogglableFlag(high uint32, on bool) uint32 {
	if on {
		return high | TogglableFlag
	}
	return high &^ TogglableFlag
}

// IncrementGenerationBy adds amount to the generation held in a high word,
// wrapping within the generation range while preserving the flag bits. The
// addend is masked to the generation range first. For any valid input
// (generation >= MinGeneration) the result is never zero: a wrap lands on
// MinGeneration, not on the reserved zero value. Incrementing the full mask
// value by the full mask value is a fixed point.
func IncrementGenerationBy(high, amount uint32) uint32 {
	lo := (high & GenerationMask) + (amount & GenerationMask)
	// The sum of two 30-bit values fits in 31 bits, so bit 30 is the
	// carry. Folding it back in skips the reserved zero generation.
	carry := lo >> 30
	return ((lo + carry) & GenerationMask) | (high & FlagsMask)
}

// Bits packs the entity into its 64-bit identifier representation. The
// result round-trips through EntityFromBits within the same process.
func (e Entity) Bits() uint64 {
	return PackIdentifier(e.ID, e.Version)
}

// EntityFromBits reconstructs an Entity previously destructured with Bits.
// It fails if the bits carry a zero generation, which no live or placeholder
// identifier ever does.
func EntityFromBits(bits uint64) (Entity, error) {
	high := IdentifierHigh(bits)
	if ExtractValueFromHigh(high) == 0 {
		return Entity{}, eris.Wrapf(ErrInvalidIdentifier, "bits %#x", bits)
	}
	return Entity{ID: IdentifierLow(bits), Version: high}, nil
}

// Generation returns the entity's generation with the flag bits masked off.
func (e Entity) Generation() uint32 {
	return ExtractValueFromHigh(e.Version)
}

// IsPlaceholder reports whether the identifier was reserved ahead of its
// storage row and has not been materialized yet.
func (e Entity) IsPlaceholder() bool {
	return e.Version&PlaceholderFlag != 0
}

// String formats the entity as index v generation, e.g. "3v1".
func (e Entity) String() string {
	if e.IsPlaceholder() {
		return fmt.Sprintf("%dvPLACEHOLDER", e.ID)
	}
	return fmt.Sprintf("%dv%d", e.ID, e.Generation())
}

// entityMeta holds the authoritative location record of an entity. It is
// updated transactionally whenever the entity moves between archetypes.
type entityMeta struct {
	archetypeIndex int32  // index in World.archetypes, -1 if dead or reserved
	row            int32  // position inside the archetype's table
	version        uint32 // current high word, flags included
}

func (m *entityMeta) clearLocation() {
	m.archetypeIndex = -1
	m.row = -1
}

func (m *entityMeta) alive() bool {
	return m.archetypeIndex >= 0
}
