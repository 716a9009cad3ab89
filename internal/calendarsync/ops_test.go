package calendarsync_test

import (
	"reflect"
	"testing"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
	"github.com/carlinkd/cartrustd/internal/wire"
)

func TestDiffCalendarsEventModified(t *testing.T) {
	t.Parallel()

	previous := []wire.Calendar{
		{
			Key:    "C1",
			Events: []wire.Event{{Key: "E1", Title: "Lunch"}},
		},
	}
	current := []wire.Calendar{
		{
			Key:    "C1",
			Events: []wire.Event{{Key: "E1", Title: "Brunch"}},
		},
	}

	got := calendarsync.DiffCalendars(previous, current)
	want := []wire.Calendar{
		{
			Key:    "C1",
			Action: wire.SyncActionUnchanged,
			Events: []wire.Event{{Key: "E1", Title: "Brunch", Action: wire.SyncActionUpdate}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DiffCalendars() = %+v, want %+v", got, want)
	}
}

func TestDiffCalendarsAttendeeRemoved(t *testing.T) {
	t.Parallel()

	previous := []wire.Calendar{
		{
			Key: "C1",
			Events: []wire.Event{{
				Key:       "E1",
				Attendees: []wire.Attendee{{Email: "a@x"}, {Email: "b@x"}},
			}},
		},
	}
	current := []wire.Calendar{
		{
			Key: "C1",
			Events: []wire.Event{{
				Key:       "E1",
				Attendees: []wire.Attendee{{Email: "a@x"}},
			}},
		},
	}

	got := calendarsync.DiffCalendars(previous, current)
	want := []wire.Calendar{
		{
			Key:    "C1",
			Action: wire.SyncActionUnchanged,
			Events: []wire.Event{{
				Key:    "E1",
				Action: wire.SyncActionUnchanged,
				Attendees: []wire.Attendee{
					{Email: "b@x", Action: wire.SyncActionDelete},
				},
			}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DiffCalendars() = %+v, want %+v", got, want)
	}
}

func TestDiffCalendarsEmptyWhenIdentical(t *testing.T) {
	t.Parallel()

	snapshot := []wire.Calendar{
		{Key: "C1", Events: []wire.Event{{Key: "E1", Title: "Standup"}}},
	}

	got := calendarsync.DiffCalendars(snapshot, snapshot)
	if got != nil {
		t.Fatalf("DiffCalendars(S, S) = %+v, want nil", got)
	}
}

func TestDiffCalendarsNewCalendarEmitsCreateWithFullSubtree(t *testing.T) {
	t.Parallel()

	current := []wire.Calendar{
		{
			Key: "C1",
			Events: []wire.Event{{
				Key:       "E1",
				Attendees: []wire.Attendee{{Email: "a@x"}},
			}},
		},
	}

	got := calendarsync.DiffCalendars(nil, current)
	if len(got) != 1 || got[0].Action != wire.SyncActionCreate {
		t.Fatalf("DiffCalendars(nil, current) = %+v, want single CREATE", got)
	}
	if len(got[0].Events) != 1 || got[0].Events[0].Action != wire.SyncActionCreate {
		t.Fatalf("nested event not marked CREATE: %+v", got[0].Events)
	}
	if len(got[0].Events[0].Attendees) != 1 || got[0].Events[0].Attendees[0].Action != wire.SyncActionCreate {
		t.Fatalf("nested attendee not marked CREATE: %+v", got[0].Events[0].Attendees)
	}
}

func TestDiffCalendarsRemovedCalendarEmitsDelete(t *testing.T) {
	t.Parallel()

	previous := []wire.Calendar{{Key: "C1"}}

	got := calendarsync.DiffCalendars(previous, nil)
	want := []wire.Calendar{{Key: "C1", Action: wire.SyncActionDelete}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DiffCalendars(previous, nil) = %+v, want %+v", got, want)
	}
}

func TestApplyCalendarsLegacyReplaceEmptyMeansDeletion(t *testing.T) {
	t.Parallel()

	store := newFakeReplicaStore()
	store.calendars["C1"] = wire.Calendar{Key: "C1", Events: []wire.Event{{Key: "E1"}}}

	msgs := []wire.Calendar{{Key: "C1", Action: wire.SyncActionReplace}}
	if err := calendarsync.ApplyCalendars(msgs, store); err != nil {
		t.Fatalf("ApplyCalendars: %v", err)
	}
	if _, ok := store.calendars["C1"]; ok {
		t.Fatal("empty REPLACE should have deleted C1")
	}
}

func TestApplyCalendarsLegacyReplaceWithEventsRecreates(t *testing.T) {
	t.Parallel()

	store := newFakeReplicaStore()
	store.calendars["C1"] = wire.Calendar{Key: "C1", Events: []wire.Event{{Key: "stale"}}}

	msgs := []wire.Calendar{{
		Key:    "C1",
		Action: wire.SyncActionReplace,
		Events: []wire.Event{{Key: "E1", Title: "Fresh"}},
	}}
	if err := calendarsync.ApplyCalendars(msgs, store); err != nil {
		t.Fatalf("ApplyCalendars: %v", err)
	}
	got, ok := store.calendars["C1"]
	if !ok {
		t.Fatal("C1 should have been recreated")
	}
	if len(got.Events) != 1 || got.Events[0].Key != "E1" {
		t.Fatalf("recreated calendar events = %+v, want [E1]", got.Events)
	}
}

func TestApplyCalendarsCreateAndDelete(t *testing.T) {
	t.Parallel()

	store := newFakeReplicaStore()
	store.calendars["old"] = wire.Calendar{Key: "old"}

	msgs := []wire.Calendar{
		{Key: "new", Action: wire.SyncActionCreate, Events: []wire.Event{{Key: "E1", Action: wire.SyncActionCreate}}},
		{Key: "old", Action: wire.SyncActionDelete},
	}
	if err := calendarsync.ApplyCalendars(msgs, store); err != nil {
		t.Fatalf("ApplyCalendars: %v", err)
	}
	if _, ok := store.calendars["old"]; ok {
		t.Fatal("old calendar should have been deleted")
	}
	got, ok := store.calendars["new"]
	if !ok {
		t.Fatal("new calendar should have been created")
	}
	if len(got.Events) != 1 || got.Events[0].Key != "E1" {
		t.Fatalf("created calendar events = %+v, want [E1]", got.Events)
	}
}
