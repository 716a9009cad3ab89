package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// UpdateType enumerates the calendar-sync payload's top-level purpose
// (spec.md §4.8, §6 "Wire -- update message (calendar)").
type UpdateType uint32

const (
	UpdateTypeUnspecified UpdateType = 0
	UpdateTypeReceive     UpdateType = 1
	UpdateTypeAcknowledge UpdateType = 2
	UpdateTypeDisable     UpdateType = 3
)

func (t UpdateType) String() string {
	switch t {
	case UpdateTypeReceive:
		return "RECEIVE"
	case UpdateTypeAcknowledge:
		return "ACKNOWLEDGE"
	case UpdateTypeDisable:
		return "DISABLE"
	default:
		return "UNSPECIFIED"
	}
}

func decodeUpdateType(v uint64) UpdateType {
	switch UpdateType(v) {
	case UpdateTypeReceive, UpdateTypeAcknowledge, UpdateTypeDisable:
		return UpdateType(v)
	default:
		return UpdateTypeUnspecified
	}
}

// SyncAction enumerates the per-entry mutation kind carried on the wire
// for calendars, events and attendees alike (spec.md §6, "action enum").
// It mirrors internal/hierarchy.Action one-for-one; the two types are
// kept distinct because this one is a wire concern (unrecognized values
// decode to REPLACE) while hierarchy.Action is a pure algorithm concern.
type SyncAction uint32

const (
	SyncActionUnspecified SyncAction = 0
	SyncActionCreate      SyncAction = 1
	SyncActionUpdate      SyncAction = 2
	SyncActionDelete      SyncAction = 3
	SyncActionUnchanged   SyncAction = 4
	SyncActionReplace     SyncAction = 5
)

func (a SyncAction) String() string {
	switch a {
	case SyncActionCreate:
		return "CREATE"
	case SyncActionUpdate:
		return "UPDATE"
	case SyncActionDelete:
		return "DELETE"
	case SyncActionUnchanged:
		return "UNCHANGED"
	case SyncActionReplace:
		return "REPLACE"
	default:
		return "UNSPECIFIED"
	}
}

// decodeSyncAction maps an unrecognized wire value to REPLACE, the
// documented default for update-message actions (spec.md §7:
// "Unrecognized... treated as the default (REPLACE for update actions)").
func decodeSyncAction(v uint64) SyncAction {
	switch SyncAction(v) {
	case SyncActionCreate, SyncActionUpdate, SyncActionDelete, SyncActionUnchanged, SyncActionReplace:
		return SyncAction(v)
	default:
		return SyncActionReplace
	}
}

// AttendeeType and AttendeeStatus are opaque passthrough enums: this
// codec never interprets their values, it only carries them.
type AttendeeType uint32
type AttendeeStatus uint32

const (
	attendeeFieldEmail  protowire.Number = 1
	attendeeFieldName   protowire.Number = 2
	attendeeFieldType   protowire.Number = 3
	attendeeFieldStatus protowire.Number = 4
	attendeeFieldAction protowire.Number = 5
)

// Attendee is one calendar event attendee (spec.md §6).
type Attendee struct {
	Email  string
	Name   string
	Type   AttendeeType
	Status AttendeeStatus
	Action SyncAction
}

func (a Attendee) Marshal() []byte {
	var b []byte
	b = appendString(b, attendeeFieldEmail, a.Email)
	b = appendString(b, attendeeFieldName, a.Name)
	b = appendVarint(b, attendeeFieldType, uint64(a.Type))
	b = appendVarint(b, attendeeFieldStatus, uint64(a.Status))
	b = appendVarint(b, attendeeFieldAction, uint64(a.Action))
	return b
}

func UnmarshalAttendee(b []byte) (Attendee, error) {
	var a Attendee
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case attendeeFieldEmail:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: attendee.email", ErrTruncated)
			}
			a.Email = v
			return n, nil
		case attendeeFieldName:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: attendee.name", ErrTruncated)
			}
			a.Name = v
			return n, nil
		case attendeeFieldType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: attendee.type", ErrTruncated)
			}
			a.Type = AttendeeType(v)
			return n, nil
		case attendeeFieldStatus:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: attendee.status", ErrTruncated)
			}
			a.Status = AttendeeStatus(v)
			return n, nil
		case attendeeFieldAction:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: attendee.action", ErrTruncated)
			}
			a.Action = decodeSyncAction(v)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return Attendee{}, err
	}
	return a, nil
}

const (
	eventFieldKey         protowire.Number = 1
	eventFieldTitle       protowire.Number = 2
	eventFieldDescription protowire.Number = 3
	eventFieldLocation    protowire.Number = 4
	eventFieldOrganizer   protowire.Number = 5
	eventFieldTimezone    protowire.Number = 6
	eventFieldStartSecs   protowire.Number = 7
	eventFieldEndSecs     protowire.Number = 8
	eventFieldIsAllDay    protowire.Number = 9
	eventFieldAction      protowire.Number = 10
	eventFieldAttendees   protowire.Number = 11
)

// Event is one calendar event (spec.md §6). All times are whole seconds
// since the Unix epoch, matching the source platform's representation.
type Event struct {
	Key          string
	Title        string
	Description  string
	Location     string
	Organizer    string
	Timezone     string
	StartSeconds int64
	EndSeconds   int64
	IsAllDay     bool
	Action       SyncAction
	Attendees    []Attendee
}

func (e Event) Marshal() []byte {
	var b []byte
	b = appendString(b, eventFieldKey, e.Key)
	b = appendString(b, eventFieldTitle, e.Title)
	b = appendString(b, eventFieldDescription, e.Description)
	b = appendString(b, eventFieldLocation, e.Location)
	b = appendString(b, eventFieldOrganizer, e.Organizer)
	b = appendString(b, eventFieldTimezone, e.Timezone)
	b = appendVarint(b, eventFieldStartSecs, uint64(e.StartSeconds))
	b = appendVarint(b, eventFieldEndSecs, uint64(e.EndSeconds))
	b = appendBool(b, eventFieldIsAllDay, e.IsAllDay)
	b = appendVarint(b, eventFieldAction, uint64(e.Action))
	for _, a := range e.Attendees {
		b = appendMessage(b, eventFieldAttendees, a.Marshal())
	}
	return b
}

func UnmarshalEvent(b []byte) (Event, error) {
	var e Event
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case eventFieldKey:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.key", ErrTruncated)
			}
			e.Key = v
			return n, nil
		case eventFieldTitle:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.title", ErrTruncated)
			}
			e.Title = v
			return n, nil
		case eventFieldDescription:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.description", ErrTruncated)
			}
			e.Description = v
			return n, nil
		case eventFieldLocation:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.location", ErrTruncated)
			}
			e.Location = v
			return n, nil
		case eventFieldOrganizer:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.organizer", ErrTruncated)
			}
			e.Organizer = v
			return n, nil
		case eventFieldTimezone:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.timezone", ErrTruncated)
			}
			e.Timezone = v
			return n, nil
		case eventFieldStartSecs:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.start_seconds", ErrTruncated)
			}
			e.StartSeconds = int64(v)
			return n, nil
		case eventFieldEndSecs:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.end_seconds", ErrTruncated)
			}
			e.EndSeconds = int64(v)
			return n, nil
		case eventFieldIsAllDay:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.is_all_day", ErrTruncated)
			}
			e.IsAllDay = v != 0
			return n, nil
		case eventFieldAction:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.action", ErrTruncated)
			}
			e.Action = decodeSyncAction(v)
			return n, nil
		case eventFieldAttendees:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: event.attendees", ErrTruncated)
			}
			a, err := UnmarshalAttendee(v)
			if err != nil {
				return 0, err
			}
			e.Attendees = append(e.Attendees, a)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

const (
	rangeFieldFrom protowire.Number = 1
	rangeFieldTo   protowire.Number = 2
)

// TimeRange is a calendar's tracked [from, to) window in whole seconds
// since the Unix epoch (spec.md §4.8 "Time-window lifecycle").
type TimeRange struct {
	FromSeconds int64
	ToSeconds   int64
}

func (r TimeRange) marshal() []byte {
	var b []byte
	b = appendVarint(b, rangeFieldFrom, uint64(r.FromSeconds))
	b = appendVarint(b, rangeFieldTo, uint64(r.ToSeconds))
	return b
}

func unmarshalTimeRange(b []byte) (TimeRange, error) {
	var r TimeRange
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case rangeFieldFrom:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: range.from", ErrTruncated)
			}
			r.FromSeconds = int64(v)
			return n, nil
		case rangeFieldTo:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: range.to", ErrTruncated)
			}
			r.ToSeconds = int64(v)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

const (
	calendarFieldKey    protowire.Number = 1
	calendarFieldRange  protowire.Number = 2
	calendarFieldAction protowire.Number = 3
	calendarFieldEvents protowire.Number = 4
)

// Calendar is one tracked calendar (spec.md §6).
type Calendar struct {
	Key    string
	Range  TimeRange
	Action SyncAction
	Events []Event
}

func (c Calendar) Marshal() []byte {
	var b []byte
	b = appendString(b, calendarFieldKey, c.Key)
	b = appendMessage(b, calendarFieldRange, c.Range.marshal())
	b = appendVarint(b, calendarFieldAction, uint64(c.Action))
	for _, e := range c.Events {
		b = appendMessage(b, calendarFieldEvents, e.Marshal())
	}
	return b
}

func UnmarshalCalendar(b []byte) (Calendar, error) {
	var c Calendar
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case calendarFieldKey:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: calendar.key", ErrTruncated)
			}
			c.Key = v
			return n, nil
		case calendarFieldRange:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: calendar.range", ErrTruncated)
			}
			r, err := unmarshalTimeRange(v)
			if err != nil {
				return 0, err
			}
			c.Range = r
			return n, nil
		case calendarFieldAction:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: calendar.action", ErrTruncated)
			}
			c.Action = decodeSyncAction(v)
			return n, nil
		case calendarFieldEvents:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: calendar.events", ErrTruncated)
			}
			e, err := UnmarshalEvent(v)
			if err != nil {
				return 0, err
			}
			c.Events = append(c.Events, e)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return Calendar{}, err
	}
	return c, nil
}

const (
	updateCalendarsFieldVersion   protowire.Number = 1
	updateCalendarsFieldType      protowire.Number = 2
	updateCalendarsFieldCalendars protowire.Number = 3
)

// UpdateCalendars is the top-level calendar-sync payload (spec.md §6).
type UpdateCalendars struct {
	Version   uint32
	Type      UpdateType
	Calendars []Calendar
}

func (u UpdateCalendars) Marshal() []byte {
	var b []byte
	b = appendVarint(b, updateCalendarsFieldVersion, uint64(u.Version))
	b = appendVarint(b, updateCalendarsFieldType, uint64(u.Type))
	for _, c := range u.Calendars {
		b = appendMessage(b, updateCalendarsFieldCalendars, c.Marshal())
	}
	return b
}

func UnmarshalUpdateCalendars(b []byte) (UpdateCalendars, error) {
	var u UpdateCalendars
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case updateCalendarsFieldVersion:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: update_calendars.version", ErrTruncated)
			}
			u.Version = uint32(v)
			return n, nil
		case updateCalendarsFieldType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: update_calendars.type", ErrTruncated)
			}
			u.Type = decodeUpdateType(v)
			return n, nil
		case updateCalendarsFieldCalendars:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: update_calendars.calendars", ErrTruncated)
			}
			c, err := UnmarshalCalendar(v)
			if err != nil {
				return 0, err
			}
			u.Calendars = append(u.Calendars, c)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return UpdateCalendars{}, err
	}
	return u, nil
}
