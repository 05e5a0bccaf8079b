package karakuri

import "go.uber.org/zap"

// singleThreadedExecutor runs the compiled graph in topological order on
// the calling goroutine. Command buffers apply at sync points and when
// the schedule finishes.
type singleThreadedExecutor struct{}

func (e *singleThreadedExecutor) run(sched *SystemSchedule, w *World, logger *zap.Logger) error {
	setPass := evalSetConditions(sched, w, logger)
	for _, ps := range sched.systems {
		if !shouldRun(ps, sched, w, setPass, logger) {
			continue
		}
		runSystem(ps, sched, w)
	}
	return nil
}
