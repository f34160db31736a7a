package model

import "time"

// PrayerObservation is one named prayer and its local begin time for a
// single calendar day.
type PrayerObservation struct {
	Name string `json:"name"`
	// Begins is the wall-clock time in the target zone, formatted "15:04".
	Begins string `json:"begins"`
}

// DayRecord is the normalized set of prayer times for one calendar date.
// Date is derived from the same upstream timestamp used to select the
// record, formatted "2006-01-02" in the target zone.
type DayRecord struct {
	Date      string              `json:"date"`
	HijriDate string              `json:"hijri_date,omitempty"`
	Prayers   []PrayerObservation `json:"prayers"`
}

// CalendarEvent is one obligatory prayer occurrence as an absolute interval.
type CalendarEvent struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Summary     string `json:"summary"`
	Description string `json:"description"`

	// StartUTC / EndUTC are always in UTC.
	StartUTC time.Time `json:"start_utc"`
	EndUTC   time.Time `json:"end_utc"`
}
