// Package state provides the generic state objects used as short-lived work
// items while manipulating the ACPI object graph, together with a pooled
// allocator that bounds the memory retained for them.
package state

// Kind identifies the payload carried by a State.
type Kind uint8

// The list of State payload kinds.
const (
	KindUpdate Kind = iota + 1
	KindControl
	KindPackage
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindControl:
		return "control"
	case KindPackage:
		return "package"
	default:
		return "invalid"
	}
}

// UpdateAction describes how an object reference count is adjusted.
type UpdateAction uint8

// The list of supported update actions.
const (
	Increment UpdateAction = iota
	Decrement
	Force
)

// Update records a pending reference count adjustment for an object.
type Update struct {
	Object interface{}
	Action UpdateAction
	Value  uint16
}

// ControlBranch tracks the state of a nested conditional.
type ControlBranch uint8

// The list of supported control branches.
const (
	Executing ControlBranch = iota
	ConditionalFalse
)

// Control marks a nested conditional while a block executes.
type Control struct {
	Predicate      bool
	Branch         ControlBranch
	PredicateStart uint32
}

// PackageCursor tracks the position of a walk over the elements of a
// container object.
type PackageCursor struct {
	Source interface{}
	Dest   interface{}
	Index  uint32
	Count  uint32
}

// State is a tagged union of the Update, Control and PackageCursor payloads.
// Only the payload matching Kind is meaningful; the accessors enforce this.
// States are linked into a Stack through an intrusive next pointer so that
// pushing and popping never allocates.
type State struct {
	next *State
	kind Kind

	update  Update
	control Control
	pkg     PackageCursor
}

// Kind returns the payload kind of the state.
func (s *State) Kind() Kind {
	return s.kind
}

// Update returns the Update payload if s is a KindUpdate state.
func (s *State) Update() (*Update, bool) {
	if s.kind != KindUpdate {
		return nil, false
	}
	return &s.update, true
}

// Control returns the Control payload if s is a KindControl state.
func (s *State) Control() (*Control, bool) {
	if s.kind != KindControl {
		return nil, false
	}
	return &s.control, true
}

// Package returns the PackageCursor payload if s is a KindPackage state.
func (s *State) Package() (*PackageCursor, bool) {
	if s.kind != KindPackage {
		return nil, false
	}
	return &s.pkg, true
}

// reset zero-fills the state and tags it with kind.
func (s *State) reset(kind Kind) {
	*s = State{kind: kind}
}

// Stack is a LIFO list of states linked through their next pointers. A state
// must belong to at most one Stack at a time.
type Stack struct {
	head  *State
	depth int
}

// Push places s on top of the stack.
func (st *Stack) Push(s *State) {
	s.next = st.head
	st.head = s
	st.depth++
}

// Pop removes and returns the state on top of the stack or nil if the stack
// is empty.
func (st *Stack) Pop() *State {
	s := st.head
	if s == nil {
		return nil
	}

	st.head = s.next
	s.next = nil
	st.depth--
	return s
}

// Peek returns the state on top of the stack without removing it.
func (st *Stack) Peek() *State {
	return st.head
}

// Len returns the number of states on the stack.
func (st *Stack) Len() int {
	return st.depth
}
