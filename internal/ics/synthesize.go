package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gebetskalender/internal/model"
)

const (
	isoDateLayout     = "2006-01-02"
	clockLayout       = "15:04"
	compactDateLayout = "20060102"
)

// ErrInvalidRecord is returned when a DayRecord carries a date or clock
// value that cannot be interpreted.
var ErrInvalidRecord = errors.New("invalid day record")

// Status tags the result of a synthesis.
type Status int

const (
	// StatusReady means Document holds at least one event.
	StatusReady Status = iota
	// StatusNoObligatoryPrayers means nothing should be written. This is
	// not a failure.
	StatusNoObligatoryPrayers
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusNoObligatoryPrayers:
		return "no_obligatory_prayers"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Document is the complete calendar artifact.
type Document struct {
	Name      string
	ProductID string
	// Stamp is written as DTSTAMP on every event.
	Stamp  time.Time
	Events []model.CalendarEvent
}

// Synthesis is the tagged result of Synthesize.
type Synthesis struct {
	Status   Status
	Document Document
}

// UIDGenerator produces the UID for one prayer on one local date.
type UIDGenerator interface {
	UID(name string, date time.Time) string
}

// RandomUIDs appends a fresh random token, so UIDs change on every run
// even for the same prayer and day.
type RandomUIDs struct{}

func (RandomUIDs) UID(name string, date time.Time) string {
	return name + "-" + date.Format(compactDateLayout) + "-" + uuid.NewString()
}

// StableUIDs derives the UID from name and date only.
type StableUIDs struct {
	Domain string
}

func (g StableUIDs) UID(name string, date time.Time) string {
	uid := name + "-" + date.Format(compactDateLayout)
	if g.Domain != "" {
		uid += "@" + g.Domain
	}
	return uid
}

// Synthesizer converts a DayRecord into calendar events.
type Synthesizer struct {
	// Location is the zone the local prayer times are interpreted in.
	Location *time.Location
	// Obligatory names are matched exactly.
	Obligatory []string
	Duration   time.Duration
	Provenance string

	CalendarName string
	ProductID    string

	// UIDs defaults to RandomUIDs.
	UIDs UIDGenerator
	// Now supplies the document stamp and defaults to time.Now.
	Now func() time.Time
}

// Synthesize filters rec to the obligatory prayers and builds one event per
// prayer, in the order encountered. Unknown and repeated names are skipped.
func (s *Synthesizer) Synthesize(rec model.DayRecord) (Synthesis, error) {
	if s.Location == nil {
		return Synthesis{}, errors.New("synthesize: location is nil")
	}
	if s.Duration <= 0 {
		return Synthesis{}, fmt.Errorf("synthesize: non-positive duration %s", s.Duration)
	}

	prayers := s.filter(rec.Prayers)
	if len(prayers) == 0 {
		return Synthesis{Status: StatusNoObligatoryPrayers}, nil
	}

	day, err := time.ParseInLocation(isoDateLayout, rec.Date, s.Location)
	if err != nil {
		return Synthesis{}, fmt.Errorf("%w: date %q: %v", ErrInvalidRecord, rec.Date, err)
	}

	uids := s.UIDs
	if uids == nil {
		uids = RandomUIDs{}
	}

	events := make([]model.CalendarEvent, 0, len(prayers))
	for _, p := range prayers {
		local, err := LocalStart(day, p.Begins, s.Location)
		if err != nil {
			return Synthesis{}, err
		}
		start := local.UTC()

		events = append(events, model.CalendarEvent{
			UID:         uids.UID(p.Name, local),
			Name:        p.Name,
			Summary:     p.Name + " Gebet",
			Description: fmt.Sprintf("%s Gebetszeit automatisch aus %s", p.Name, s.Provenance),
			StartUTC:    start,
			EndUTC:      start.Add(s.Duration),
		})
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	return Synthesis{
		Status: StatusReady,
		Document: Document{
			Name:      s.CalendarName,
			ProductID: s.ProductID,
			Stamp:     now().UTC().Truncate(time.Second),
			Events:    events,
		},
	}, nil
}

func (s *Synthesizer) filter(prayers []model.PrayerObservation) []model.PrayerObservation {
	allowed := make(map[string]bool, len(s.Obligatory))
	for _, name := range s.Obligatory {
		allowed[name] = true
	}

	seen := make(map[string]bool, len(s.Obligatory))
	out := make([]model.PrayerObservation, 0, len(s.Obligatory))
	for _, p := range prayers {
		if !allowed[p.Name] || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

// LocalStart combines the calendar day with an "HH:mm" clock value as a
// wall-clock time in loc. time.Date applies the zone rules of that date,
// so the UTC offset is correct on either side of a DST switch.
func LocalStart(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: clock %q: %v", ErrInvalidRecord, clock, err)
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc), nil
}
