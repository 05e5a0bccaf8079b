package karakuri

import (
	"reflect"
	"sync"
)

// ComponentStage is a thread-confined buffer of pending component
// registrations. IDs are minted by the canonical registry immediately, so
// concurrent stages can never collide, but the descriptors stay private to
// the stage until it is merged. Access a stage only through the
// StageScopeLocked method of its owner.
type ComponentStage struct {
	base    *Components
	staged  map[ComponentID]*ComponentInfo
	pending []*ComponentInfo
}

func newComponentStage(base *Components) *ComponentStage {
	return &ComponentStage{
		base:   base,
		staged: make(map[ComponentID]*ComponentInfo, 8),
	}
}

func (st *ComponentStage) registry() *Components { return st.base }

// lookupInfo prefers the staged descriptor so that repeated registration
// inside one scope merges into the buffered copy, and falls back to the
// canonical registry.
func (st *ComponentStage) lookupInfo(id ComponentID) *ComponentInfo {
	if info, ok := st.staged[id]; ok {
		return info
	}
	return st.base.lookupInfo(id)
}

func (st *ComponentStage) storeInfo(info *ComponentInfo) {
	st.staged[info.id] = info
	st.pending = append(st.pending, info)
}

// merge publishes every buffered descriptor to the canonical registry.
// Descriptors already applied (for example by another stage registering the
// same type) are left alone; the canonical copy wins.
func (st *ComponentStage) merge() {
	for _, info := range st.pending {
		st.base.storeInfo(info)
	}
	st.pending = st.pending[:0]
	clear(st.staged)
}

// RegisterComponentStaged registers a component type against a stage. The
// returned ID is final, but the registration only becomes visible to worlds
// once the stage is applied.
func RegisterComponentStaged[T any](st *ComponentStage, opts ...ComponentOption) ComponentID {
	var o componentOptions
	for _, opt := range opts {
		opt(&o)
	}
	return registerType(st, reflect.TypeOf((*T)(nil)).Elem(), &o)
}

// StageOnWrite buffers staged registrations until an explicit Apply call.
// Systems that discover new component types mid-run can register them
// without serializing on the canonical registry for anything beyond the ID
// mint, and the world observes the batch atomically at the apply point.
type StageOnWrite struct {
	base  *Components
	stage *ComponentStage
	mu    sync.Mutex
}

// NewStageOnWrite creates a lazily applied staging buffer over base.
func NewStageOnWrite(base *Components) *StageOnWrite {
	return &StageOnWrite{base: base, stage: newComponentStage(base)}
}

// StageScopeLocked runs fn against the staging buffer. The buffer is
// confined to fn for the duration of the call; concurrent scopes serialize
// on the stage, not on the canonical registry.
func (s *StageOnWrite) StageScopeLocked(fn func(st *ComponentStage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.stage)
}

// Apply merges every registration staged since the last Apply into the
// canonical registry. Each staged registration becomes visible exactly
// once.
func (s *StageOnWrite) Apply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage.merge()
}

// AtomicStageOnWrite merges every staged scope into the canonical registry
// eagerly, before StageScopeLocked returns. Scopes are serialized, so the
// merge of one scope is fully visible to the next.
type AtomicStageOnWrite struct {
	base *Components
	mu   sync.Mutex
}

// NewAtomicStageOnWrite creates an eagerly applied staging buffer over
// base.
func NewAtomicStageOnWrite(base *Components) *AtomicStageOnWrite {
	return &AtomicStageOnWrite{base: base}
}

// StageScopeLocked runs fn against a fresh staging buffer and merges it
// into the canonical registry before returning.
func (s *AtomicStageOnWrite) StageScopeLocked(fn func(st *ComponentStage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := newComponentStage(s.base)
	fn(st)
	st.merge()
}

