package hierarchy

// Ops describes how to treat message type M as one level of a hierarchy
// whose children are of type C. A leaf level (no children) instantiates C
// with a type that carries no data, e.g. struct{}, and returns nil/true
// from Children/WithChildren and the "empty" helpers.
//
// Equal must compare a and b ignoring Action and Children -- i.e. ignore
// exactly the two fields Diff itself manages (spec.md §4.7, "strip action
// and children ... compare structural equality").
type Ops[M any, C any] struct {
	Key          func(M) string
	Action       func(M) Action
	SetAction    func(M, Action) M
	Equal        func(a, b M) bool
	Children     func(M) []C
	WithChildren func(M, []C) M
}

// MarkCreate stamps msg and its entire subtree with ActionCreate, using
// markChild to do the same for one child (typically a closure wrapping
// another call to MarkCreate at the child's own level). This is what lets
// a CREATE emitted by Diff recurse correctly when Apply later walks into
// its children (spec.md §4.7: "emit CREATE(c with its full subtree)").
func MarkCreate[M any, C any](msg M, ops Ops[M, C], markChild func(C) C) M {
	children := ops.Children(msg)
	marked := make([]C, len(children))
	for i, c := range children {
		marked[i] = markChild(c)
	}
	return ops.WithChildren(ops.SetAction(msg, ActionCreate), marked)
}
