package karakuri

import "go.uber.org/zap"

// simpleExecutor runs the compiled graph in topological order and applies
// every pending command buffer after each system, so structural changes
// are visible to the very next system without sync points.
type simpleExecutor struct{}

func (e *simpleExecutor) run(sched *SystemSchedule, w *World, logger *zap.Logger) error {
	setPass := evalSetConditions(sched, w, logger)
	for _, ps := range sched.systems {
		if !shouldRun(ps, sched, w, setPass, logger) {
			continue
		}
		runSystem(ps, sched, w)
		if !ps.sync {
			applyAllDeferred(sched, w)
		}
	}
	return nil
}
