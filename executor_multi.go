package karakuri

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// multiThreadedExecutor drives the compiled graph with a worker pool.
// A system becomes ready when its dependencies finish; a ready system is
// dispatched once its declared access is compatible with everything
// currently running, and is parked otherwise. Skipped systems (failed
// conditions or validation) still release their dependents, so a skip
// never deadlocks the graph. A panic in any system aborts the run and is
// re-raised on the caller's goroutine.
type multiThreadedExecutor struct{}

type mtRun struct {
	sched   *SystemSchedule
	world   *World
	logger  *zap.Logger
	setPass []bool

	mu        sync.Mutex
	remaining []int
	running   map[int]*Access
	parked    []int
	done      int
	closed    bool
	panicked  any
	ready     chan int
}

func (e *multiThreadedExecutor) run(sched *SystemSchedule, w *World, logger *zap.Logger) error {
	n := len(sched.systems)
	if n == 0 {
		return nil
	}
	st := &mtRun{
		sched:     sched,
		world:     w,
		logger:    logger,
		setPass:   evalSetConditions(sched, w, logger),
		remaining: make([]int, n),
		running:   make(map[int]*Access, n),
		// Buffered to the node count so dispatching under the lock
		// never blocks.
		ready: make(chan int, n),
	}
	for i, ps := range sched.systems {
		st.remaining[i] = ps.numDependencies
	}
	st.mu.Lock()
	for i := range sched.systems {
		if st.remaining[i] == 0 {
			st.admitLocked(i)
		}
	}
	st.mu.Unlock()

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for idx := range st.ready {
				st.execute(idx)
			}
			return nil
		})
	}
	err := g.Wait()
	if st.panicked != nil {
		panic(st.panicked)
	}
	return err
}

func (st *mtRun) execute(idx int) {
	defer func() {
		if r := recover(); r != nil {
			st.mu.Lock()
			if st.panicked == nil {
				st.panicked = r
			}
			st.closeLocked()
			st.mu.Unlock()
		}
	}()
	ps := st.sched.systems[idx]
	if shouldRun(ps, st.sched, st.world, st.setPass, st.logger) {
		runSystem(ps, st.sched, st.world)
	}
	st.finish(idx)
}

// admitLocked dispatches a dependency-free node if its access is
// compatible with everything running, and parks it otherwise.
func (st *mtRun) admitLocked(idx int) {
	access := st.sched.systems[idx].access
	for _, held := range st.running {
		if !access.CompatibleWith(held) {
			st.parked = append(st.parked, idx)
			return
		}
	}
	st.running[idx] = access
	if !st.closed {
		st.ready <- idx
	}
}

// finish releases a completed node: its access is dropped, its dependents
// lose a dependency, and parked nodes get another chance now that the
// running set shrank.
func (st *mtRun) finish(idx int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.running, idx)
	st.done++
	for _, d := range st.sched.systems[idx].dependents {
		st.remaining[d]--
		if st.remaining[d] == 0 {
			st.admitLocked(d)
		}
	}
	parked := st.parked
	st.parked = st.parked[:0]
	for _, p := range parked {
		st.admitLocked(p)
	}
	if st.done == len(st.sched.systems) {
		st.closeLocked()
	}
}

func (st *mtRun) closeLocked() {
	if !st.closed {
		st.closed = true
		close(st.ready)
	}
}
