package karakuri

import (
	"fmt"
	"reflect"

	"github.com/rotisserie/eris"
)

// SystemContext is what a system function receives each run: the world,
// the system's private deferred-command buffer, and the tick pair its
// change-detection filters compare against.
type SystemContext struct {
	World    *World
	Commands *Commands
	// LastRun is the tick this system last completed at; Changed/Added
	// filters report writes newer than it.
	LastRun Tick
	// This is the tick the current run writes at.
	This Tick
}

// SystemQuery builds a single-component query whose Changed/Added filters
// are relative to this system's previous run.
func SystemQuery[T any](ctx *SystemContext, opts ...QueryOption) *Query[T] {
	return NewQuery[T](ctx.World, append(opts, Since(ctx.LastRun))...)
}

// SystemQuery2 is the two-component variant of SystemQuery.
func SystemQuery2[T1, T2 any](ctx *SystemContext, opts ...QueryOption) *Query2[T1, T2] {
	return NewQuery2[T1, T2](ctx.World, append(opts, Since(ctx.LastRun))...)
}

// SystemFn is the body of a system.
type SystemFn func(*SystemContext)

// Condition gates a system or set. A false result skips the gated
// systems silently; an error means the condition could not be evaluated
// and is logged before skipping.
type Condition func(w *World) (bool, error)

// SystemConfig describes one system: its function, its declared access,
// its ordering constraints and its run conditions. Configure it with the
// chained methods, then hand it to Schedule.AddSystems.
type SystemConfig struct {
	name       string
	fn         SystemFn
	access     *Access
	after      []string
	before     []string
	sets       []string
	conditions []Condition
	validators []func(*World) error
	deferred   bool
}

// NewSystem wraps fn as a system. Names must be unique within a schedule;
// ordering constraints refer to them.
func NewSystem(name string, fn SystemFn) *SystemConfig {
	return &SystemConfig{name: name, fn: fn, access: &Access{}}
}

// Name returns the system's name.
func (s *SystemConfig) Name() string {
	return s.name
}

// Reads declares shared access to components.
func (s *SystemConfig) Reads(ids ...ComponentID) *SystemConfig {
	for _, id := range ids {
		s.access.AddRead(id)
	}
	return s
}

// Writes declares exclusive access to components.
func (s *SystemConfig) Writes(ids ...ComponentID) *SystemConfig {
	for _, id := range ids {
		s.access.AddWrite(id)
	}
	return s
}

// ReadsAll declares shared access to every component.
func (s *SystemConfig) ReadsAll() *SystemConfig {
	s.access.SetReadsAll()
	return s
}

// WritesAll declares exclusive access to the whole world. The executors
// run such a system alone.
func (s *SystemConfig) WritesAll() *SystemConfig {
	s.access.SetWritesAll()
	return s
}

// WithAccess merges an access set into the system's declared access,
// typically a query's Access().
func (s *SystemConfig) WithAccess(a *Access) *SystemConfig {
	s.access.Extend(a)
	return s
}

// After orders this system after the named systems or sets.
func (s *SystemConfig) After(names ...string) *SystemConfig {
	s.after = append(s.after, names...)
	return s
}

// Before orders this system before the named systems or sets.
func (s *SystemConfig) Before(names ...string) *SystemConfig {
	s.before = append(s.before, names...)
	return s
}

// InSet places the system in the named sets, inheriting their ordering
// edges and run conditions.
func (s *SystemConfig) InSet(names ...string) *SystemConfig {
	s.sets = append(s.sets, names...)
	return s
}

// RunIf gates the system on a condition, evaluated each run.
func (s *SystemConfig) RunIf(cond Condition) *SystemConfig {
	s.conditions = append(s.conditions, cond)
	return s
}

// Deferred requests a sync point right after this system, so its queued
// commands apply before any dependent runs. Without it, command buffers
// apply when the schedule finishes.
func (s *SystemConfig) Deferred() *SystemConfig {
	s.deferred = true
	return s
}

// RequiresResource declares that the system needs resource T to run. A
// missing resource is a parameter-validation failure: the executor logs
// it and skips the system instead of running it against a nil resource.
func RequiresResource[T any](s *SystemConfig) *SystemConfig {
	s.validators = append(s.validators, func(w *World) error {
		if !HasResource[T](w) {
			return eris.Errorf("required resource %s does not exist", reflect.TypeOf((*T)(nil)).Elem())
		}
		return nil
	})
	return s
}

// ResourceExists is a run condition that passes while resource T exists.
func ResourceExists[T any]() Condition {
	return func(w *World) (bool, error) {
		return HasResource[T](w), nil
	}
}

// RunIfResource gates on a predicate over resource T. A missing resource
// is a condition error, not a silent skip.
func RunIfResource[T any](pred func(*T) bool) Condition {
	return func(w *World) (bool, error) {
		v, ok := GetResource[T](w)
		if !ok {
			return false, eris.Errorf("condition resource %s does not exist", reflect.TypeOf((*T)(nil)).Elem())
		}
		return pred(v), nil
	}
}

// Not inverts a condition.
func Not(cond Condition) Condition {
	return func(w *World) (bool, error) {
		ok, err := cond(w)
		return !ok, err
	}
}

// AndCondition passes when every condition passes, short-circuiting.
func AndCondition(conds ...Condition) Condition {
	return func(w *World) (bool, error) {
		for _, c := range conds {
			ok, err := c(w)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func (s *SystemConfig) validate() error {
	if s.name == "" {
		return eris.New("system has no name")
	}
	if s.fn == nil {
		return eris.Errorf("system %q has no function", s.name)
	}
	return nil
}

func (s *SystemConfig) String() string {
	return fmt.Sprintf("system %q", s.name)
}
