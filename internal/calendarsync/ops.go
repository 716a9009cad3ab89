package calendarsync

import (
	"github.com/carlinkd/cartrustd/internal/hierarchy"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// attendeeOps treats wire.Attendee as a leaf level (spec.md §4.7,
// "Leaves have no children").
var attendeeOps = hierarchy.Ops[wire.Attendee, struct{}]{
	Key:    func(a wire.Attendee) string { return a.Email },
	Action: func(a wire.Attendee) hierarchy.Action { return syncToHierarchyAction(a.Action) },
	SetAction: func(a wire.Attendee, act hierarchy.Action) wire.Attendee {
		a.Action = hierarchyToSyncAction(act)
		return a
	},
	Equal: func(a, b wire.Attendee) bool {
		return a.Email == b.Email && a.Name == b.Name && a.Type == b.Type && a.Status == b.Status
	},
	Children:     func(wire.Attendee) []struct{} { return nil },
	WithChildren: func(a wire.Attendee, _ []struct{}) wire.Attendee { return a },
}

func attendeeMarkCreate(a wire.Attendee) wire.Attendee {
	return hierarchy.MarkCreate(a, attendeeOps, func(c struct{}) struct{} { return c })
}

func diffAttendees(previous, current []wire.Attendee) []wire.Attendee {
	return hierarchy.Diff(previous, current, attendeeOps, attendeeMarkCreate,
		func([]struct{}, []struct{}) []struct{} { return nil },
		func([]struct{}) bool { return true },
	)
}

// eventOps treats wire.Event as the middle level, with attendees as children.
var eventOps = hierarchy.Ops[wire.Event, wire.Attendee]{
	Key:    func(e wire.Event) string { return e.Key },
	Action: func(e wire.Event) hierarchy.Action { return syncToHierarchyAction(e.Action) },
	SetAction: func(e wire.Event, act hierarchy.Action) wire.Event {
		e.Action = hierarchyToSyncAction(act)
		return e
	},
	Equal: func(a, b wire.Event) bool {
		return a.Key == b.Key &&
			a.Title == b.Title &&
			a.Description == b.Description &&
			a.Location == b.Location &&
			a.Organizer == b.Organizer &&
			a.Timezone == b.Timezone &&
			a.StartSeconds == b.StartSeconds &&
			a.EndSeconds == b.EndSeconds &&
			a.IsAllDay == b.IsAllDay
	},
	Children: func(e wire.Event) []wire.Attendee { return e.Attendees },
	WithChildren: func(e wire.Event, children []wire.Attendee) wire.Event {
		e.Attendees = children
		return e
	},
}

func eventMarkCreate(e wire.Event) wire.Event {
	return hierarchy.MarkCreate(e, eventOps, attendeeMarkCreate)
}

func diffEvents(previous, current []wire.Event) []wire.Event {
	return hierarchy.Diff(previous, current, eventOps, eventMarkCreate,
		diffAttendees,
		func(u []wire.Attendee) bool { return len(u) == 0 },
	)
}

// calendarOps treats wire.Calendar as the top level, with events as
// children. Equal compares only Range: Key equality is already the diff
// index's join condition, and Events/Action are excluded per Ops.Equal's
// contract (spec.md §4.7: "strip action and children... compare
// structural equality"). A Range change (from a time-window refresh) is
// therefore enough on its own to mark a calendar UPDATE even with no
// event-level changes.
var calendarOps = hierarchy.Ops[wire.Calendar, wire.Event]{
	Key:    func(c wire.Calendar) string { return c.Key },
	Action: func(c wire.Calendar) hierarchy.Action { return syncToHierarchyAction(c.Action) },
	SetAction: func(c wire.Calendar, act hierarchy.Action) wire.Calendar {
		c.Action = hierarchyToSyncAction(act)
		return c
	},
	Equal: func(a, b wire.Calendar) bool {
		return a.Range == b.Range
	},
	Children: func(c wire.Calendar) []wire.Event { return c.Events },
	WithChildren: func(c wire.Calendar, children []wire.Event) wire.Calendar {
		c.Events = children
		return c
	},
}

func calendarMarkCreate(c wire.Calendar) wire.Calendar {
	return hierarchy.MarkCreate(c, calendarOps, eventMarkCreate)
}

// DiffCalendars computes the minimal UPDATE message set transforming
// previous into current (spec.md §4.7, top level of the three-level
// hierarchy).
func DiffCalendars(previous, current []wire.Calendar) []wire.Calendar {
	return hierarchy.Diff(previous, current, calendarOps, calendarMarkCreate,
		diffEvents,
		func(u []wire.Event) bool { return len(u) == 0 },
	)
}

// syncToHierarchyAction and hierarchyToSyncAction translate between the
// wire's SyncAction (which has a documented UNSPECIFIED decode default,
// spec.md §9) and hierarchy.Action (the diff/apply engine's pure-algorithm
// enum, which never needs that default since Diff only ever produces its
// own well-defined values).
func syncToHierarchyAction(a wire.SyncAction) hierarchy.Action {
	switch a {
	case wire.SyncActionCreate:
		return hierarchy.ActionCreate
	case wire.SyncActionUpdate:
		return hierarchy.ActionUpdate
	case wire.SyncActionDelete:
		return hierarchy.ActionDelete
	case wire.SyncActionUnchanged:
		return hierarchy.ActionUnchanged
	case wire.SyncActionReplace:
		return hierarchy.ActionReplace
	default:
		return hierarchy.ActionUnspecified
	}
}

func hierarchyToSyncAction(a hierarchy.Action) wire.SyncAction {
	switch a {
	case hierarchy.ActionCreate:
		return wire.SyncActionCreate
	case hierarchy.ActionUpdate:
		return wire.SyncActionUpdate
	case hierarchy.ActionDelete:
		return wire.SyncActionDelete
	case hierarchy.ActionUnchanged:
		return wire.SyncActionUnchanged
	case hierarchy.ActionReplace:
		return wire.SyncActionReplace
	default:
		return wire.SyncActionUnspecified
	}
}
