package ics

import (
	"errors"
	"io"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "gebetskalender/internal/log"
	"gebetskalender/internal/model"
)

// ParseEvents reads back a calendar produced by Render. VEVENTs that lack
// a UID or valid DTSTART/DTEND are logged and skipped.
func ParseEvents(r io.Reader) ([]model.CalendarEvent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	uid := strings.TrimSpace(propertyValue(ve.GetProperty(ical.ComponentPropertyUniqueId)))
	if uid == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid

	out.Summary = propertyValue(ve.GetProperty(ical.ComponentPropertySummary))
	out.Description = propertyValue(ve.GetProperty(ical.ComponentPropertyDescription))
	out.Name = strings.TrimSuffix(out.Summary, " Gebet")

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, err
	}
	out.StartUTC = start.UTC()
	out.EndUTC = end.UTC()

	return out, nil
}

func propertyValue(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return p.Value
}
