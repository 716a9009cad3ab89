package stack

import (
	"sync"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// MemoryReplicaStore is an in-memory calendarsync.ReplicaStore, standing
// in for the vehicle's real calendar database the way peerstore.Memory
// stands in for the associated-peer persistence layer (spec.md §1 names
// "persistent key storage" as an out-of-scope external collaborator).
// Keys are assigned with uuid.NewString() when the caller doesn't supply
// one of its own.
type MemoryReplicaStore struct {
	mu        sync.Mutex
	calendars map[string]*memCalendar
}

type memCalendar struct {
	cal    wire.Calendar
	events map[string]*memEvent
}

type memEvent struct {
	event     wire.Event
	attendees map[string]wire.Attendee
}

// NewMemoryReplicaStore returns an empty MemoryReplicaStore.
func NewMemoryReplicaStore() *MemoryReplicaStore {
	return &MemoryReplicaStore{calendars: make(map[string]*memCalendar)}
}

func (s *MemoryReplicaStore) CreateCalendar(cal wire.Calendar) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cal.Key
	if key == "" {
		key = uuid.NewString()
	}
	s.calendars[key] = &memCalendar{cal: cal, events: make(map[string]*memEvent)}
	return key, nil
}

func (s *MemoryReplicaStore) UpdateCalendar(cal wire.Calendar) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[cal.Key]
	if !ok {
		c = &memCalendar{events: make(map[string]*memEvent)}
		s.calendars[cal.Key] = c
	}
	c.cal = cal
	return cal.Key, nil
}

func (s *MemoryReplicaStore) DeleteCalendar(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calendars, key)
	return nil
}

func (s *MemoryReplicaStore) ReplaceCalendar(cal wire.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calendars, cal.Key)
	if len(cal.Events) == 0 {
		return nil
	}
	c := &memCalendar{cal: cal, events: make(map[string]*memEvent)}
	for _, e := range cal.Events {
		key := e.Key
		if key == "" {
			key = uuid.NewString()
		}
		c.events[key] = &memEvent{event: e, attendees: make(map[string]wire.Attendee)}
		for _, a := range e.Attendees {
			c.events[key].attendees[a.Email] = a
		}
	}
	s.calendars[cal.Key] = c
	return nil
}

func (s *MemoryReplicaStore) calendar(key string) *memCalendar {
	c, ok := s.calendars[key]
	if !ok {
		c = &memCalendar{events: make(map[string]*memEvent)}
		s.calendars[key] = c
	}
	return c
}

func (s *MemoryReplicaStore) CreateEvent(calendarKey string, e wire.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Key
	if key == "" {
		key = uuid.NewString()
	}
	s.calendar(calendarKey).events[key] = &memEvent{event: e, attendees: make(map[string]wire.Attendee)}
	return key, nil
}

func (s *MemoryReplicaStore) UpdateEvent(calendarKey string, e wire.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calendar(calendarKey)
	ev, ok := c.events[e.Key]
	if !ok {
		ev = &memEvent{attendees: make(map[string]wire.Attendee)}
		c.events[e.Key] = ev
	}
	ev.event = e
	return e.Key, nil
}

func (s *MemoryReplicaStore) DeleteEvent(calendarKey, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calendar(calendarKey).events, key)
	return nil
}

func (s *MemoryReplicaStore) ReplaceEvent(calendarKey string, e wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attendees := make(map[string]wire.Attendee, len(e.Attendees))
	for _, a := range e.Attendees {
		attendees[a.Email] = a
	}
	s.calendar(calendarKey).events[e.Key] = &memEvent{event: e, attendees: attendees}
	return nil
}

func (s *MemoryReplicaStore) CreateAttendee(calendarKey, eventKey string, a wire.Attendee) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.calendar(calendarKey).events[eventKey]
	if ev == nil {
		ev = &memEvent{attendees: make(map[string]wire.Attendee)}
		s.calendar(calendarKey).events[eventKey] = ev
	}
	ev.attendees[a.Email] = a
	return a.Email, nil
}

func (s *MemoryReplicaStore) UpdateAttendee(calendarKey, eventKey string, a wire.Attendee) (string, error) {
	return s.CreateAttendee(calendarKey, eventKey, a)
}

func (s *MemoryReplicaStore) DeleteAttendee(calendarKey, eventKey, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.calendar(calendarKey).events[eventKey]
	if ev != nil {
		delete(ev.attendees, key)
	}
	return nil
}

func (s *MemoryReplicaStore) ReplaceAttendee(calendarKey, eventKey string, a wire.Attendee) error {
	_, err := s.CreateAttendee(calendarKey, eventKey, a)
	return err
}

// PurgePeer removes every calendar this store holds. A real platform
// store would scope calendars by peerID; this reference store is shared
// by a single replica per process, so purging means clearing everything.
func (s *MemoryReplicaStore) PurgePeer(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars = make(map[string]*memCalendar)
	return nil
}
