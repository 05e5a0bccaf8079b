package karakuri

// Commands is a deferred structural-mutation buffer. Systems running
// concurrently cannot mutate the world's archetypes directly; they record
// operations on their Commands instead, and the executor applies buffers
// at the next sync point, in system order.
//
// Spawn hands out a real entity identifier immediately (the identifier is
// reserved from the world's thread-safe allocator and carries the
// placeholder flag until applied), so commands recorded in the same
// buffer can target it.
//
// A Commands buffer belongs to a single system; it is not safe for
// concurrent use by itself.
type Commands struct {
	world *World
	ops   []func(*World)
}

// NewCommands creates a command buffer that reserves identifiers from w.
func NewCommands(w *World) *Commands {
	return &Commands{world: w}
}

// Spawn reserves a fresh entity. The entity materializes (empty) when the
// buffer is applied; until then it is a placeholder that component and
// despawn commands may target.
func (c *Commands) Spawn() Entity {
	return c.world.ReserveEntity()
}

// Despawn queues a despawn. Applying it against an entity that is already
// dead is a no-op.
func (c *Commands) Despawn(e Entity) {
	c.ops = append(c.ops, func(w *World) {
		if w.IsValid(e) {
			w.Despawn(e)
		}
	})
}

// Queue records an arbitrary operation to run with exclusive world access
// at the next sync point.
func (c *Commands) Queue(fn func(*World)) {
	c.ops = append(c.ops, fn)
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	return len(c.ops)
}

// Apply materializes reserved entities, then runs the queued operations
// in recording order and empties the buffer. It must be called with
// exclusive access to the world.
func (c *Commands) Apply(w *World) {
	w.Flush()
	ops := c.ops
	c.ops = c.ops[:0]
	for _, op := range ops {
		op(w)
	}
}

// Discard drops the queued operations without running them. Entities
// already reserved through Spawn still materialize (empty) at the world's
// next flush.
func (c *Commands) Discard() {
	c.ops = c.ops[:0]
}

// Insert queues a component write. Against a despawned target the write
// is dropped.
func Insert[T any](c *Commands, e Entity, value T) {
	c.ops = append(c.ops, func(w *World) {
		if w.IsValid(e) {
			SetComponent(w, e, value)
		}
	})
}

// Remove queues a component removal. Against a despawned target it is a
// no-op.
func Remove[T any](c *Commands, e Entity) {
	c.ops = append(c.ops, func(w *World) {
		if w.IsValid(e) {
			RemoveComponent[T](w, e)
		}
	})
}

// InsertResourceCmd queues a resource insert.
func InsertResourceCmd[T any](c *Commands, value T) {
	c.ops = append(c.ops, func(w *World) {
		InsertResource(w, value)
	})
}

// RemoveResourceCmd queues a resource removal.
func RemoveResourceCmd[T any](c *Commands) {
	c.ops = append(c.ops, func(w *World) {
		RemoveResource[T](w)
	})
}

// SendEventCmd queues an event send.
func SendEventCmd[T any](c *Commands, event T) {
	c.ops = append(c.ops, func(w *World) {
		SendEvent(w, event)
	})
}
