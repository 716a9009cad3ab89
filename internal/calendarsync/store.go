package calendarsync

import (
	"fmt"

	"github.com/carlinkd/cartrustd/internal/hierarchy"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// ReplicaStore is the host application's calendar backing store, driven
// by the replica controller's apply algorithm (spec.md §4.7, "Apply
// algorithm"). Create/Update return the key the store actually used --
// most implementations simply echo the key they were given, but a real
// platform calendar provider may rewrite it.
type ReplicaStore interface {
	CreateCalendar(cal wire.Calendar) (key string, err error)
	UpdateCalendar(cal wire.Calendar) (key string, err error)
	DeleteCalendar(key string) error
	// ReplaceCalendar deletes the target and, if cal carries any events,
	// recreates it from them (spec.md §4.8, "Legacy mode").
	ReplaceCalendar(cal wire.Calendar) error

	CreateEvent(calendarKey string, e wire.Event) (key string, err error)
	UpdateEvent(calendarKey string, e wire.Event) (key string, err error)
	DeleteEvent(calendarKey, key string) error
	ReplaceEvent(calendarKey string, e wire.Event) error

	CreateAttendee(calendarKey, eventKey string, a wire.Attendee) (key string, err error)
	UpdateAttendee(calendarKey, eventKey string, a wire.Attendee) (key string, err error)
	DeleteAttendee(calendarKey, eventKey, key string) error
	ReplaceAttendee(calendarKey, eventKey string, a wire.Attendee) error

	// PurgePeer deletes all persistent calendar state held for peerID
	// (spec.md §4.8, "On DISABLE, purge all persistent and transient
	// state for that peer").
	PurgePeer(peerID string) error
}

// calendarSink adapts a ReplicaStore to hierarchy.Sink[wire.Calendar].
type calendarSink struct {
	store ReplicaStore
}

func (s calendarSink) Create(cal wire.Calendar) (string, error) {
	key, err := s.store.CreateCalendar(cal)
	return key, wrapStoreErr(err)
}

func (s calendarSink) Update(cal wire.Calendar) (string, error) {
	key, err := s.store.UpdateCalendar(cal)
	return key, wrapStoreErr(err)
}

func (s calendarSink) Delete(key string) error {
	return wrapStoreErr(s.store.DeleteCalendar(key))
}

func (s calendarSink) Replace(cal wire.Calendar) error {
	return wrapStoreErr(s.store.ReplaceCalendar(cal))
}

// eventSink adapts a ReplicaStore to hierarchy.Sink[wire.Event] for one
// specific calendar (the parent key fixed at construction, passed down by
// Apply's applyChildren closure).
type eventSink struct {
	store       ReplicaStore
	calendarKey string
}

func (s eventSink) Create(e wire.Event) (string, error) {
	key, err := s.store.CreateEvent(s.calendarKey, e)
	return key, wrapStoreErr(err)
}

func (s eventSink) Update(e wire.Event) (string, error) {
	key, err := s.store.UpdateEvent(s.calendarKey, e)
	return key, wrapStoreErr(err)
}

func (s eventSink) Delete(key string) error {
	return wrapStoreErr(s.store.DeleteEvent(s.calendarKey, key))
}

func (s eventSink) Replace(e wire.Event) error {
	return wrapStoreErr(s.store.ReplaceEvent(s.calendarKey, e))
}

// attendeeSink adapts a ReplicaStore to hierarchy.Sink[wire.Attendee] for
// one specific (calendar, event) pair.
type attendeeSink struct {
	store       ReplicaStore
	calendarKey string
	eventKey    string
}

func (s attendeeSink) Create(a wire.Attendee) (string, error) {
	key, err := s.store.CreateAttendee(s.calendarKey, s.eventKey, a)
	return key, wrapStoreErr(err)
}

func (s attendeeSink) Update(a wire.Attendee) (string, error) {
	key, err := s.store.UpdateAttendee(s.calendarKey, s.eventKey, a)
	return key, wrapStoreErr(err)
}

func (s attendeeSink) Delete(key string) error {
	return wrapStoreErr(s.store.DeleteAttendee(s.calendarKey, s.eventKey, key))
}

func (s attendeeSink) Replace(a wire.Attendee) error {
	return wrapStoreErr(s.store.ReplaceAttendee(s.calendarKey, s.eventKey, a))
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

// ApplyCalendars runs the three-level apply algorithm against store
// (spec.md §4.7, "Apply algorithm"; §4.8 "Replica... apply the updates
// via §4.7's apply algorithm").
func ApplyCalendars(msgs []wire.Calendar, store ReplicaStore) error {
	return hierarchy.Apply(msgs, calendarOps, calendarSink{store}, func(calendarKey string, events []wire.Event) error {
		return applyEvents(calendarKey, events, store)
	})
}

func applyEvents(calendarKey string, events []wire.Event, store ReplicaStore) error {
	return hierarchy.Apply(events, eventOps, eventSink{store, calendarKey}, func(eventKey string, attendees []wire.Attendee) error {
		return applyAttendees(calendarKey, eventKey, attendees, store)
	})
}

func applyAttendees(calendarKey, eventKey string, attendees []wire.Attendee, store ReplicaStore) error {
	return hierarchy.Apply(attendees, attendeeOps, attendeeSink{store, calendarKey, eventKey}, func(string, []struct{}) error {
		return nil
	})
}
