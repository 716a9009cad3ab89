package hierarchy

// Sink applies one level's update messages to a concrete store (spec.md
// §4.7, "Apply algorithm"). Create and Update return the key the store
// actually used -- the platform may rewrite it -- so Apply can pass the
// post-apply key down to the children closure; implementations that
// never rewrite keys can just return the key they were given.
type Sink[M any] interface {
	Create(msg M) (key string, err error)
	Update(msg M) (key string, err error)
	Delete(key string) error
	// Replace deletes the target and, if msg carries children, recreates
	// it from them; an empty msg signals pure deletion. Only meaningful
	// at levels that actually receive REPLACE messages (calendars).
	Replace(msg M) error
}

// Apply walks msgs, invoking sink for each message's own action and then
// -- for Create, Update and Unchanged only -- recursing into its children
// via applyChildren (spec.md §4.7: "Ordering. Applied in the order
// received; siblings at the same level are independent. The engine never
// reorders."). Delete and Replace do not recurse: the sink is responsible
// for whatever happens to descendants in those cases.
//
// applyChildren receives the parent's key (post-rewrite for Create and
// Update) alongside its children, so a caller managing several parents
// at once -- e.g. one shadow sub-store per calendar -- knows which one
// the children belong to.
func Apply[M any, C any](
	msgs []M,
	ops Ops[M, C],
	sink Sink[M],
	applyChildren func(parentKey string, children []C) error,
) error {
	for _, msg := range msgs {
		switch ops.Action(msg) {
		case ActionCreate:
			key, err := sink.Create(msg)
			if err != nil {
				return err
			}
			if err := applyChildren(key, ops.Children(msg)); err != nil {
				return err
			}
		case ActionUpdate:
			key, err := sink.Update(msg)
			if err != nil {
				return err
			}
			if err := applyChildren(key, ops.Children(msg)); err != nil {
				return err
			}
		case ActionUnchanged:
			if err := applyChildren(ops.Key(msg), ops.Children(msg)); err != nil {
				return err
			}
		case ActionDelete:
			if err := sink.Delete(ops.Key(msg)); err != nil {
				return err
			}
		case ActionReplace, ActionUnspecified:
			// Unknown/unspecified actions are treated as REPLACE for
			// forward compatibility (spec.md §7: "Unknown wire enum
			// values are logged and treated as the default").
			if err := sink.Replace(msg); err != nil {
				return err
			}
		}
	}
	return nil
}
