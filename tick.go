package karakuri

// Tick is a wrapping logical clock, incremented once per system run and per
// world flush. Every component write is stamped with the tick it happened
// at; queries compare stamps against a system's last-run tick to answer
// "changed since I last looked". Comparisons use wrap-safe arithmetic,
// never a naive less-than.
type Tick uint32

const (
	// checkTickThreshold is how many ticks may pass before stored stamps
	// must be re-clamped to keep wrap-safe comparisons sound.
	checkTickThreshold = 518_400_000
	// MaxChangeAge is the oldest age a component stamp can report. Stamps
	// older than this are clamped during tick maintenance.
	MaxChangeAge = ^Tick(0) - (2*checkTickThreshold - 1)
)

// IsNewerThan reports whether the stamp t is newer than the lastRun tick,
// relative to the current thisRun tick. Both distances are clamped to
// MaxChangeAge so the comparison survives counter wraparound.
func (t Tick) IsNewerThan(lastRun, thisRun Tick) bool {
	sinceStamp := thisRun.RelativeTo(t)
	sinceLast := thisRun.RelativeTo(lastRun)
	return sinceLast > sinceStamp
}

// RelativeTo returns the age of other as seen from t, clamped to
// MaxChangeAge.
func (t Tick) RelativeTo(other Tick) Tick {
	d := Tick(uint32(t) - uint32(other))
	if d > MaxChangeAge {
		return MaxChangeAge
	}
	return d
}

// CheckTick clamps the stamp so its age never exceeds MaxChangeAge. It
// returns true if the stamp was adjusted. Worlds run this over all stored
// stamps every checkTickThreshold ticks.
func (t *Tick) CheckTick(thisRun Tick) bool {
	if thisRun.RelativeTo(*t) == MaxChangeAge {
		*t = thisRun - MaxChangeAge
		return true
	}
	return false
}

// ComponentTicks carries the change-detection stamps of one component
// value.
type ComponentTicks struct {
	// Added is the tick the component was inserted on its entity.
	Added Tick
	// Changed is the tick of the most recent write.
	Changed Tick
}

func newComponentTicks(now Tick) ComponentTicks {
	return ComponentTicks{Added: now, Changed: now}
}
