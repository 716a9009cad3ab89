package hierarchy

// Diff computes the minimal set of update messages transforming previous
// into current at one hierarchy level (spec.md §4.7, "Diff algorithm").
//
// markCreate stamps a brand-new message (and its whole subtree) with
// ActionCreate; diffChildren recurses into the next level down and
// childrenEmpty reports whether that recursion produced nothing. Leaf
// levels pass trivial implementations (no children, always empty).
func Diff[M any, C any](
	previous, current []M,
	ops Ops[M, C],
	markCreate func(M) M,
	diffChildren func(prevChildren, currChildren []C) []C,
	childrenEmpty func([]C) bool,
) []M {
	if len(previous) == 0 && len(current) == 0 {
		return nil
	}

	prevIndex := make(map[string]M, len(previous))
	order := make([]string, 0, len(previous))
	for _, p := range previous {
		k := ops.Key(p)
		if _, exists := prevIndex[k]; !exists {
			order = append(order, k)
		}
		prevIndex[k] = p
	}

	var out []M
	for _, c := range current {
		k := ops.Key(c)

		prev, existed := prevIndex[k]
		if !existed {
			out = append(out, markCreate(c))
			continue
		}
		delete(prevIndex, k)

		prevStripped := ops.SetAction(prev, ActionUnspecified)
		currStripped := ops.SetAction(c, ActionUnspecified)
		equal := ops.Equal(prevStripped, currStripped)

		childUpdates := diffChildren(ops.Children(prev), ops.Children(c))
		if childrenEmpty(childUpdates) {
			childUpdates = nil
		}

		if equal {
			// Empty-unchanged rule: an UNCHANGED with no child updates
			// carries no information and is suppressed entirely.
			if len(childUpdates) == 0 {
				continue
			}
			out = append(out, ops.WithChildren(ops.SetAction(c, ActionUnchanged), childUpdates))
			continue
		}

		out = append(out, ops.WithChildren(ops.SetAction(c, ActionUpdate), childUpdates))
	}

	for _, k := range order {
		prev, stillPresent := prevIndex[k]
		if !stillPresent {
			continue
		}
		deleted := ops.WithChildren(ops.SetAction(prev, ActionDelete), nil)
		out = append(out, deleted)
	}

	return out
}
