package calendarsync_test

import (
	"sync"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// fakeReplicaStore is an in-memory ReplicaStore used across this
// package's tests. Calendar/Event/Attendee bodies are split the way a
// real nested calendar-provider store would be: CreateCalendar only
// installs the calendar shell, events and attendees arrive through their
// own Create/Update/Delete calls from the hierarchy apply recursion.
type fakeReplicaStore struct {
	mu        sync.Mutex
	calendars map[string]wire.Calendar
	purged    []string
}

func newFakeReplicaStore() *fakeReplicaStore {
	return &fakeReplicaStore{calendars: make(map[string]wire.Calendar)}
}

func (s *fakeReplicaStore) CreateCalendar(cal wire.Calendar) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[cal.Key] = wire.Calendar{Key: cal.Key, Range: cal.Range}
	return cal.Key, nil
}

func (s *fakeReplicaStore) UpdateCalendar(cal wire.Calendar) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.calendars[cal.Key]
	existing.Key = cal.Key
	existing.Range = cal.Range
	s.calendars[cal.Key] = existing
	return cal.Key, nil
}

func (s *fakeReplicaStore) DeleteCalendar(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calendars, key)
	return nil
}

func (s *fakeReplicaStore) ReplaceCalendar(cal wire.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calendars, cal.Key)
	if len(cal.Events) == 0 {
		return nil
	}
	events := make([]wire.Event, len(cal.Events))
	for i, e := range cal.Events {
		e.Action = wire.SyncActionUnspecified
		attendees := make([]wire.Attendee, len(e.Attendees))
		for j, a := range e.Attendees {
			a.Action = wire.SyncActionUnspecified
			attendees[j] = a
		}
		e.Attendees = attendees
		events[i] = e
	}
	s.calendars[cal.Key] = wire.Calendar{Key: cal.Key, Range: cal.Range, Events: events}
	return nil
}

func (s *fakeReplicaStore) CreateEvent(calendarKey string, e wire.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	e.Action = wire.SyncActionUnspecified
	e.Attendees = nil
	cal.Events = append(cal.Events, e)
	s.calendars[calendarKey] = cal
	return e.Key, nil
}

func (s *fakeReplicaStore) UpdateEvent(calendarKey string, e wire.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	for i := range cal.Events {
		if cal.Events[i].Key == e.Key {
			e.Action = wire.SyncActionUnspecified
			e.Attendees = cal.Events[i].Attendees
			cal.Events[i] = e
			s.calendars[calendarKey] = cal
			return e.Key, nil
		}
	}
	e.Action = wire.SyncActionUnspecified
	e.Attendees = nil
	cal.Events = append(cal.Events, e)
	s.calendars[calendarKey] = cal
	return e.Key, nil
}

func (s *fakeReplicaStore) DeleteEvent(calendarKey, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	out := cal.Events[:0]
	for _, e := range cal.Events {
		if e.Key != key {
			out = append(out, e)
		}
	}
	cal.Events = out
	s.calendars[calendarKey] = cal
	return nil
}

func (s *fakeReplicaStore) ReplaceEvent(calendarKey string, e wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	filtered := cal.Events[:0]
	for _, ex := range cal.Events {
		if ex.Key != e.Key {
			filtered = append(filtered, ex)
		}
	}
	cal.Events = filtered
	if len(e.Attendees) > 0 || e.Title != "" {
		e.Action = wire.SyncActionUnspecified
		cal.Events = append(cal.Events, e)
	}
	s.calendars[calendarKey] = cal
	return nil
}

func (s *fakeReplicaStore) CreateAttendee(calendarKey, eventKey string, a wire.Attendee) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	for i := range cal.Events {
		if cal.Events[i].Key == eventKey {
			a.Action = wire.SyncActionUnspecified
			cal.Events[i].Attendees = append(cal.Events[i].Attendees, a)
			s.calendars[calendarKey] = cal
			break
		}
	}
	return a.Email, nil
}

func (s *fakeReplicaStore) UpdateAttendee(calendarKey, eventKey string, a wire.Attendee) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	for i := range cal.Events {
		if cal.Events[i].Key != eventKey {
			continue
		}
		a.Action = wire.SyncActionUnspecified
		for j := range cal.Events[i].Attendees {
			if cal.Events[i].Attendees[j].Email == a.Email {
				cal.Events[i].Attendees[j] = a
				s.calendars[calendarKey] = cal
				return a.Email, nil
			}
		}
		cal.Events[i].Attendees = append(cal.Events[i].Attendees, a)
		s.calendars[calendarKey] = cal
	}
	return a.Email, nil
}

func (s *fakeReplicaStore) DeleteAttendee(calendarKey, eventKey, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := s.calendars[calendarKey]
	for i := range cal.Events {
		if cal.Events[i].Key != eventKey {
			continue
		}
		out := cal.Events[i].Attendees[:0]
		for _, a := range cal.Events[i].Attendees {
			if a.Email != key {
				out = append(out, a)
			}
		}
		cal.Events[i].Attendees = out
	}
	s.calendars[calendarKey] = cal
	return nil
}

// ReplaceAttendee is never produced by the wire protocol -- REPLACE is
// calendar-only -- so this only handles the UNSPECIFIED decode-default
// fallback at the attendee level; it behaves as a delete-then-recreate.
func (s *fakeReplicaStore) ReplaceAttendee(calendarKey, eventKey string, a wire.Attendee) error {
	if err := s.DeleteAttendee(calendarKey, eventKey, a.Email); err != nil {
		return err
	}
	_, err := s.CreateAttendee(calendarKey, eventKey, a)
	return err
}

func (s *fakeReplicaStore) PurgePeer(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, peerID)
	s.calendars = make(map[string]wire.Calendar)
	return nil
}
