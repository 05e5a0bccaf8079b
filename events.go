package karakuri

// Events is a double-buffered event queue. Events sent during one update
// survive through the next, so readers running anywhere in a two-update
// window observe every event exactly once. Call Update once per frame;
// events older than two updates are dropped.
//
// Store an Events value as a resource and hand each reading system its
// own EventReader.
type Events[T any] struct {
	front      []T
	back       []T
	frontStart uint
	backStart  uint
}

// NewEvents creates an empty event queue.
func NewEvents[T any]() *Events[T] {
	return &Events[T]{}
}

// Send queues one event.
func (e *Events[T]) Send(event T) {
	e.front = append(e.front, event)
}

// Update swaps the buffers, dropping events sent before the previous
// Update. Readers that have not caught up past the dropped range are
// clamped forward.
func (e *Events[T]) Update() {
	e.back, e.front = e.front, e.back[:0]
	e.backStart = e.frontStart
	e.frontStart += uint(len(e.back))
}

// Clear drops all buffered events without advancing the buffers.
func (e *Events[T]) Clear() {
	e.frontStart += uint(len(e.front))
	e.back = e.back[:0]
	e.front = e.front[:0]
	e.backStart = e.frontStart
}

// Len returns the number of buffered events.
func (e *Events[T]) Len() int {
	return len(e.back) + len(e.front)
}

// oldest returns the absolute index of the oldest buffered event.
func (e *Events[T]) oldest() uint {
	return e.backStart
}

// head returns the absolute index one past the newest buffered event.
func (e *Events[T]) head() uint {
	return e.frontStart + uint(len(e.front))
}

// at returns the buffered event at absolute index i.
func (e *Events[T]) at(i uint) *T {
	if i < e.frontStart {
		return &e.back[i-e.backStart]
	}
	return &e.front[i-e.frontStart]
}

// EventReader is a per-consumer cursor into an Events queue. The zero
// value reads from the start of the buffered window.
type EventReader[T any] struct {
	cursor uint
}

// Read returns the events sent since this reader last read, oldest first.
// Events the reader slept past (older than the two-update window) are
// skipped. The returned slice is freshly allocated; nil means nothing new.
func (r *EventReader[T]) Read(e *Events[T]) []T {
	if r.cursor < e.oldest() {
		r.cursor = e.oldest()
	}
	head := e.head()
	if r.cursor >= head {
		return nil
	}
	out := make([]T, 0, head-r.cursor)
	for ; r.cursor < head; r.cursor++ {
		out = append(out, *e.at(r.cursor))
	}
	return out
}

// IsEmpty reports whether Read would return nothing.
func (r *EventReader[T]) IsEmpty(e *Events[T]) bool {
	c := r.cursor
	if c < e.oldest() {
		c = e.oldest()
	}
	return c >= e.head()
}

// ClearSeen advances the cursor past everything buffered.
func (r *EventReader[T]) ClearSeen(e *Events[T]) {
	r.cursor = e.head()
}

// SendEvent queues an event on the world's Events[T] resource, creating
// the resource on first use.
func SendEvent[T any](w *World, event T) {
	EventsOf[T](w).Send(event)
}

// EventsOf returns the world's Events[T] resource, creating it on first
// use.
func EventsOf[T any](w *World) *Events[T] {
	if ev, ok := GetResource[Events[T]](w); ok {
		return ev
	}
	InsertResource(w, Events[T]{})
	ev, _ := GetResource[Events[T]](w)
	return ev
}
