package hierarchy

// Action is the per-message mutation kind produced by Diff and consumed
// by Apply (spec.md §6, wire "update message" action enum).
type Action uint8

const (
	ActionUnspecified Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionUnchanged
	// ActionReplace deletes the target, then recreates it if the message
	// carries children; an empty REPLACE is a pure deletion. Only ever
	// produced by legacy-compatibility sends, never by Diff itself
	// (spec.md §4.8, "Legacy mode").
	ActionReplace
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "Create"
	case ActionUpdate:
		return "Update"
	case ActionDelete:
		return "Delete"
	case ActionUnchanged:
		return "Unchanged"
	case ActionReplace:
		return "Replace"
	default:
		return "Unspecified"
	}
}
