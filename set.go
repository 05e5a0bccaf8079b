package karakuri

// SystemSet is a named group of systems that share ordering edges and run
// conditions. Ordering a set orders every member; gating a set gates every
// member, with each set's conditions evaluated once per schedule run.
type SystemSet struct {
	name       string
	after      []string
	before     []string
	conditions []Condition
}

// NewSet creates an empty set. Systems join it with InSet.
func NewSet(name string) *SystemSet {
	return &SystemSet{name: name}
}

// Name returns the set's name.
func (s *SystemSet) Name() string {
	return s.name
}

// After orders every member of this set after the named systems or sets.
func (s *SystemSet) After(names ...string) *SystemSet {
	s.after = append(s.after, names...)
	return s
}

// Before orders every member of this set before the named systems or
// sets.
func (s *SystemSet) Before(names ...string) *SystemSet {
	s.before = append(s.before, names...)
	return s
}

// RunIf gates every member of this set on a condition.
func (s *SystemSet) RunIf(cond Condition) *SystemSet {
	s.conditions = append(s.conditions, cond)
	return s
}
