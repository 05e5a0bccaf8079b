package karakuri

import "go.uber.org/zap"

// ExecutorKind selects how a schedule's compiled graph is driven.
type ExecutorKind int

const (
	// ExecutorSingleThreaded runs systems one at a time in topological
	// order, applying command buffers at sync points and at the end.
	ExecutorSingleThreaded ExecutorKind = iota
	// ExecutorSimple runs systems one at a time and applies every
	// pending command buffer after each system.
	ExecutorSimple
	// ExecutorMultiThreaded runs non-conflicting systems concurrently.
	ExecutorMultiThreaded
)

func (k ExecutorKind) String() string {
	switch k {
	case ExecutorSingleThreaded:
		return "single-threaded"
	case ExecutorSimple:
		return "simple"
	case ExecutorMultiThreaded:
		return "multi-threaded"
	default:
		return "unknown"
	}
}

type systemExecutor interface {
	run(sched *SystemSchedule, w *World, logger *zap.Logger) error
}

func newExecutor(kind ExecutorKind) systemExecutor {
	switch kind {
	case ExecutorSimple:
		return &simpleExecutor{}
	case ExecutorMultiThreaded:
		return &multiThreadedExecutor{}
	default:
		return &singleThreadedExecutor{}
	}
}

// evalSetConditions evaluates each set's conditions once for this run.
// An error counts as a failed condition and is logged.
func evalSetConditions(sched *SystemSchedule, w *World, logger *zap.Logger) []bool {
	pass := make([]bool, len(sched.sets))
	for i, set := range sched.sets {
		pass[i] = true
		for _, cond := range set.conditions {
			ok, err := cond(w)
			if err != nil {
				logger.Warn("set condition failed to evaluate",
					zap.String("schedule", sched.label),
					zap.String("set", set.name),
					zap.Error(err))
				ok = false
			}
			if !ok {
				pass[i] = false
				break
			}
		}
	}
	return pass
}

// shouldRun decides whether a system runs this tick. Skipping is not an
// error: a skipped system still releases its dependents. Validation
// failures and condition errors are logged; plain false conditions are
// silent.
func shouldRun(ps *preparedSystem, sched *SystemSchedule, w *World, setPass []bool, logger *zap.Logger) bool {
	if ps.sync {
		return true
	}
	for _, idx := range ps.setIdx {
		if !setPass[idx] {
			return false
		}
	}
	for _, validate := range ps.config.validators {
		if err := validate(w); err != nil {
			logger.Warn("system skipped: invalid parameters",
				zap.String("schedule", sched.label),
				zap.String("system", ps.config.name),
				zap.Error(err))
			return false
		}
	}
	for _, cond := range ps.config.conditions {
		ok, err := cond(w)
		if err != nil {
			logger.Warn("system skipped: condition failed to evaluate",
				zap.String("schedule", sched.label),
				zap.String("system", ps.config.name),
				zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// runSystem executes one node. Sync nodes flush every command buffer;
// system nodes run at a fresh change tick and remember it for their
// change-detection filters. Panics propagate to the caller of Run.
func runSystem(ps *preparedSystem, sched *SystemSchedule, w *World) {
	if ps.sync {
		applyAllDeferred(sched, w)
		return
	}
	this := w.incrementChangeTick()
	ps.config.fn(&SystemContext{
		World:    w,
		Commands: ps.commands,
		LastRun:  ps.lastRun,
		This:     this,
	})
	ps.lastRun = this
}
