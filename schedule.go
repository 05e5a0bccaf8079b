package karakuri

import (
	"fmt"

	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AmbiguityPolicy controls what a schedule does about pairs of systems
// that conflict on access but have no ordering between them.
type AmbiguityPolicy int

const (
	// AmbiguityWarn logs each ambiguous pair once at build time.
	AmbiguityWarn AmbiguityPolicy = iota
	// AmbiguityIgnore silences ambiguity reporting.
	AmbiguityIgnore
	// AmbiguityError fails the build on any ambiguous pair.
	AmbiguityError
)

// Schedule collects systems and sets, compiles them into an ordered graph
// and runs them through an executor. Adding systems after a run marks the
// schedule dirty; the graph recompiles on the next run.
type Schedule struct {
	label     string
	systems   []*SystemConfig
	sets      map[string]*SystemSet
	setOrder  []string
	kind      ExecutorKind
	ambiguity AmbiguityPolicy
	logger    *zap.Logger
	compiled  *SystemSchedule
	executor  systemExecutor
	dirty     bool
}

// ScheduleOption configures a schedule at construction.
type ScheduleOption func(*Schedule)

// WithExecutor selects the executor kind.
func WithExecutor(kind ExecutorKind) ScheduleOption {
	return func(s *Schedule) {
		s.kind = kind
	}
}

// WithAmbiguityPolicy selects the ambiguity policy.
func WithAmbiguityPolicy(p AmbiguityPolicy) ScheduleOption {
	return func(s *Schedule) {
		s.ambiguity = p
	}
}

// WithLogger sets the logger used for build diagnostics and skipped
// systems.
func WithLogger(l *zap.Logger) ScheduleOption {
	return func(s *Schedule) {
		s.logger = l
	}
}

// NewSchedule creates an empty schedule. The default executor is
// multi-threaded and the default ambiguity policy is AmbiguityWarn.
func NewSchedule(label string, opts ...ScheduleOption) *Schedule {
	s := &Schedule{
		label:  label,
		sets:   make(map[string]*SystemSet),
		kind:   ExecutorMultiThreaded,
		logger: zap.NewNop(),
		dirty:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Label returns the schedule's label.
func (s *Schedule) Label() string {
	return s.label
}

// AddSystems registers systems with the schedule.
func (s *Schedule) AddSystems(configs ...*SystemConfig) *Schedule {
	s.systems = append(s.systems, configs...)
	s.dirty = true
	return s
}

// ConfigureSets registers sets with the schedule. Configuring a name
// twice replaces the earlier set.
func (s *Schedule) ConfigureSets(sets ...*SystemSet) *Schedule {
	for _, set := range sets {
		if _, ok := s.sets[set.name]; !ok {
			s.setOrder = append(s.setOrder, set.name)
		}
		s.sets[set.name] = set
	}
	s.dirty = true
	return s
}

// SetExecutorKind switches the executor kind; it takes effect on the next
// run.
func (s *Schedule) SetExecutorKind(kind ExecutorKind) {
	if kind != s.kind {
		s.kind = kind
		s.executor = nil
	}
}

// Run compiles the schedule if needed, executes it against the world, and
// applies every remaining command buffer. It also gives the world's
// change-detection clock its periodic wrap maintenance.
func (s *Schedule) Run(w *World) error {
	if s.dirty || s.compiled == nil {
		compiled, err := s.build(w)
		if err != nil {
			return err
		}
		s.compiled = compiled
		s.dirty = false
	}
	if s.executor == nil {
		s.executor = newExecutor(s.kind)
	}
	if err := s.executor.run(s.compiled, w, s.logger); err != nil {
		return err
	}
	applyAllDeferred(s.compiled, w)
	w.CheckChangeTicks()
	return nil
}

// Build compiles the schedule without running it, surfacing graph errors
// early.
func (s *Schedule) Build(w *World) error {
	compiled, err := s.build(w)
	if err != nil {
		return err
	}
	s.compiled = compiled
	s.dirty = false
	return nil
}

// graphNode is a system or sync point during compilation.
type graphNode struct {
	config *SystemConfig
	sync   bool
	setIdx []int
}

// preparedSystem is one node of the compiled graph, in topological order.
type preparedSystem struct {
	config          *SystemConfig
	commands        *Commands
	access          *Access
	setIdx          []int
	dependencies    []int
	dependents      []int
	numDependencies int
	lastRun         Tick
	sync            bool
}

func (p *preparedSystem) name() string {
	if p.sync {
		return "apply-deferred"
	}
	return p.config.name
}

// preparedSet carries a set's run conditions, evaluated once per run.
type preparedSet struct {
	name       string
	conditions []Condition
}

// SystemSchedule is the compiled, executable form of a Schedule.
type SystemSchedule struct {
	label   string
	systems []*preparedSystem
	sets    []preparedSet
}

// Len returns the number of nodes, sync points included.
func (s *SystemSchedule) Len() int {
	return len(s.systems)
}

// Order returns the system names in execution order, sync points
// included.
func (s *SystemSchedule) Order() []string {
	names := make([]string, len(s.systems))
	for i, ps := range s.systems {
		names[i] = ps.name()
	}
	return names
}

func (s *Schedule) build(w *World) (*SystemSchedule, error) {
	var errs error

	byName := make(map[string]int, len(s.systems))
	for i, cfg := range s.systems {
		if err := cfg.validate(); err != nil {
			errs = multierr.Append(errs, eris.Wrapf(err, "schedule %q", s.label))
			continue
		}
		if prev, ok := byName[cfg.name]; ok {
			errs = multierr.Append(errs, eris.Errorf(
				"schedule %q: duplicate system name %q (positions %d and %d)",
				s.label, cfg.name, prev, i))
			continue
		}
		if _, ok := s.sets[cfg.name]; ok {
			errs = multierr.Append(errs, eris.Errorf(
				"schedule %q: system %q shares its name with a set", s.label, cfg.name))
			continue
		}
		byName[cfg.name] = i
	}
	if errs != nil {
		return nil, errs
	}

	setIndex := make(map[string]int, len(s.setOrder))
	sets := make([]preparedSet, 0, len(s.setOrder))
	members := make(map[string][]int, len(s.setOrder))
	for _, name := range s.setOrder {
		setIndex[name] = len(sets)
		sets = append(sets, preparedSet{name: name, conditions: s.sets[name].conditions})
	}

	nodes := make([]*graphNode, len(s.systems))
	for i, cfg := range s.systems {
		node := &graphNode{config: cfg}
		for _, setName := range cfg.sets {
			idx, ok := setIndex[setName]
			if !ok {
				errs = multierr.Append(errs, eris.Errorf(
					"schedule %q: system %q joins unknown set %q", s.label, cfg.name, setName))
				continue
			}
			node.setIdx = append(node.setIdx, idx)
			members[setName] = append(members[setName], i)
		}
		nodes[i] = node
	}
	if errs != nil {
		return nil, errs
	}

	// resolve returns the node indexes a name stands for: the system
	// itself, or every member of the set.
	resolve := func(owner, target string) ([]int, error) {
		if idx, ok := byName[target]; ok {
			return []int{idx}, nil
		}
		if _, ok := s.sets[target]; ok {
			return members[target], nil
		}
		return nil, eris.Errorf(
			"schedule %q: %q orders against unknown system or set %q", s.label, owner, target)
	}

	n := len(nodes)
	edges := make([]map[int]struct{}, n)
	addEdge := func(from, to int) {
		if from == to {
			return
		}
		if edges[from] == nil {
			edges[from] = make(map[int]struct{})
		}
		edges[from][to] = struct{}{}
	}

	for i, cfg := range s.systems {
		for _, target := range cfg.after {
			deps, err := resolve(cfg.name, target)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, d := range deps {
				addEdge(d, i)
			}
		}
		for _, target := range cfg.before {
			deps, err := resolve(cfg.name, target)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, d := range deps {
				addEdge(i, d)
			}
		}
	}
	for _, name := range s.setOrder {
		set := s.sets[name]
		for _, target := range set.after {
			deps, err := resolve(name, target)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, d := range deps {
				for _, m := range members[name] {
					addEdge(d, m)
				}
			}
		}
		for _, target := range set.before {
			deps, err := resolve(name, target)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, d := range deps {
				for _, m := range members[name] {
					addEdge(m, d)
				}
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	// Insert a sync point after each system that asked for one, ordered
	// between the system and its current dependents.
	for i, cfg := range s.systems {
		if !cfg.deferred {
			continue
		}
		syncIdx := len(nodes)
		nodes = append(nodes, &graphNode{sync: true})
		edges = append(edges, nil)
		for d := range edges[i] {
			addEdge(syncIdx, d)
		}
		addEdge(i, syncIdx)
	}
	n = len(nodes)

	order, err := topoSort(s.label, nodes, edges)
	if err != nil {
		return nil, err
	}

	// Compile into topological index space.
	topoIdx := make([]int, n)
	for pos, node := range order {
		topoIdx[node] = pos
	}
	compiled := &SystemSchedule{label: s.label, systems: make([]*preparedSystem, n), sets: sets}
	for pos, node := range order {
		gn := nodes[node]
		ps := &preparedSystem{
			config: gn.config,
			setIdx: gn.setIdx,
			sync:   gn.sync,
		}
		if gn.sync {
			ps.access = (&Access{}).SetWritesAll()
		} else {
			ps.access = gn.config.access
			ps.commands = NewCommands(w)
		}
		compiled.systems[pos] = ps
	}
	for node, targets := range edges {
		from := topoIdx[node]
		for t := range targets {
			to := topoIdx[t]
			compiled.systems[to].dependencies = append(compiled.systems[to].dependencies, from)
			compiled.systems[from].dependents = append(compiled.systems[from].dependents, to)
		}
	}
	for _, ps := range compiled.systems {
		ps.numDependencies = len(ps.dependencies)
	}

	if s.ambiguity != AmbiguityIgnore {
		if err := s.reportAmbiguities(compiled); err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

// topoSort orders the nodes so every edge points forward, or reports the
// systems caught in a cycle.
func topoSort(label string, nodes []*graphNode, edges []map[int]struct{}) ([]int, error) {
	n := len(nodes)
	indegree := make([]int, n)
	for _, targets := range edges {
		for t := range targets {
			indegree[t]++
		}
	}
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for t := range edges[node] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	if len(order) < n {
		var cyclic []string
		for i := 0; i < n; i++ {
			if indegree[i] > 0 {
				if nodes[i].sync {
					cyclic = append(cyclic, "apply-deferred")
				} else {
					cyclic = append(cyclic, nodes[i].config.name)
				}
			}
		}
		return nil, eris.Errorf("schedule %q: dependency cycle involving systems %v", label, cyclic)
	}
	return order, nil
}

// reportAmbiguities finds pairs of systems with conflicting access and no
// ordering between them, then warns or errors per the policy.
func (s *Schedule) reportAmbiguities(compiled *SystemSchedule) error {
	n := len(compiled.systems)
	reach := make([]bitmap.Bitmap, n)
	for i := n - 1; i >= 0; i-- {
		var b bitmap.Bitmap
		for _, d := range compiled.systems[i].dependents {
			b.Set(uint32(d))
			// kelindar/bitmap's accelerated Or panics on an empty argument.
			if len(reach[d]) > 0 {
				b.Or(reach[d])
			}
		}
		reach[i] = b
	}
	var errs error
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if reach[i].Contains(uint32(j)) || reach[j].Contains(uint32(i)) {
				continue
			}
			a, b := compiled.systems[i], compiled.systems[j]
			if a.sync || b.sync {
				continue
			}
			ids, all := a.access.ConflictsWith(b.access)
			if ids == nil && !all {
				continue
			}
			detail := fmt.Sprintf("components %v", ids)
			if all {
				detail = "whole-world access"
			}
			if s.ambiguity == AmbiguityError {
				errs = multierr.Append(errs, eris.Errorf(
					"schedule %q: systems %q and %q conflict on %s but have no ordering",
					s.label, a.name(), b.name(), detail))
			} else {
				s.logger.Warn("ambiguous system pair",
					zap.String("schedule", s.label),
					zap.String("system_a", a.name()),
					zap.String("system_b", b.name()),
					zap.String("conflict", detail))
			}
		}
	}
	return errs
}

// applyAllDeferred flushes every system's command buffer in schedule
// order.
func applyAllDeferred(sched *SystemSchedule, w *World) {
	w.Flush()
	for _, ps := range sched.systems {
		if ps.commands != nil && ps.commands.Len() > 0 {
			ps.commands.Apply(w)
		}
	}
}
