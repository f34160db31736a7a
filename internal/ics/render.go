package ics

import (
	ical "github.com/arran4/golang-ical"
)

// Render serializes doc as an iCalendar document with CRLF line endings on
// every platform. Equal documents render to equal bytes.
func Render(doc Document) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(doc.ProductID)
	if doc.Name != "" {
		cal.SetName(doc.Name)
	}

	for _, ev := range doc.Events {
		ve := cal.AddEvent(ev.UID)
		ve.SetDtStampTime(doc.Stamp)
		ve.SetStartAt(ev.StartUTC)
		ve.SetEndAt(ev.EndUTC)
		ve.SetSummary(ev.Summary)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}

	return []byte(cal.Serialize(ical.WithNewLineWindows))
}
