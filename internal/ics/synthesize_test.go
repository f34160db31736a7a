package ics

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gebetskalender/internal/model"
)

var obligatory = []string{"Fajr", "Zuhr", "Asr", "Maghrib", "Isha"}

func newTestSynthesizer(t *testing.T) *Synthesizer {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return &Synthesizer{
		Location:     loc,
		Obligatory:   obligatory,
		Duration:     10 * time.Minute,
		Provenance:   "alislam.org",
		CalendarName: "Muslimische Gebetszeiten",
		ProductID:    "//alislam.org//Gebetszeiten//DE",
		Now:          func() time.Time { return time.Date(2025, time.June, 10, 6, 0, 0, 0, time.UTC) },
	}
}

func scenarioRecord(date string) model.DayRecord {
	return model.DayRecord{
		Date: date,
		Prayers: []model.PrayerObservation{
			{Name: "Fajr", Begins: "05:10"},
			{Name: "Sunrise", Begins: "06:02"},
			{Name: "Zuhr", Begins: "13:02"},
			{Name: "Asr", Begins: "16:40"},
			{Name: "Maghrib", Begins: "19:55"},
			{Name: "Isha", Begins: "21:30"},
		},
	}
}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestSynthesize_ObligatoryPrayersOnly(t *testing.T) {
	s := newTestSynthesizer(t)

	got, err := s.Synthesize(scenarioRecord("2025-06-10"))
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)

	doc := got.Document
	require.Equal(t, "Muslimische Gebetszeiten", doc.Name)
	require.Equal(t, "//alislam.org//Gebetszeiten//DE", doc.ProductID)
	require.Len(t, doc.Events, 5)

	// Berlin is UTC+2 in June.
	want := []struct {
		summary string
		start   time.Time
	}{
		{"Fajr Gebet", utc(2025, time.June, 10, 3, 10)},
		{"Zuhr Gebet", utc(2025, time.June, 10, 11, 2)},
		{"Asr Gebet", utc(2025, time.June, 10, 14, 40)},
		{"Maghrib Gebet", utc(2025, time.June, 10, 17, 55)},
		{"Isha Gebet", utc(2025, time.June, 10, 19, 30)},
	}
	for i, ev := range doc.Events {
		require.Equal(t, want[i].summary, ev.Summary)
		require.True(t, want[i].start.Equal(ev.StartUTC), "start of %s: %s", ev.Summary, ev.StartUTC)
		require.Equal(t, time.UTC, ev.StartUTC.Location())
		require.Equal(t, 10*time.Minute, ev.EndUTC.Sub(ev.StartUTC))
		require.Contains(t, ev.Description, "alislam.org")
		require.NotContains(t, ev.Summary, "Sunrise")
	}
}

func TestSynthesize_DaylightSavingBoundaries(t *testing.T) {
	s := newTestSynthesizer(t)

	tests := []struct {
		date string
		want time.Time
	}{
		// CET (UTC+1) until the last Sunday of March at 02:00.
		{"2025-03-29", utc(2025, time.March, 29, 4, 10)},
		{"2025-03-30", utc(2025, time.March, 30, 3, 10)},
		// CEST (UTC+2) until the last Sunday of October at 03:00.
		{"2025-10-25", utc(2025, time.October, 25, 3, 10)},
		{"2025-10-26", utc(2025, time.October, 26, 4, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := s.Synthesize(model.DayRecord{
				Date:    tt.date,
				Prayers: []model.PrayerObservation{{Name: "Fajr", Begins: "05:10"}},
			})
			require.NoError(t, err)
			require.Len(t, got.Document.Events, 1)
			ev := got.Document.Events[0]
			require.True(t, tt.want.Equal(ev.StartUTC), "got %s", ev.StartUTC)
			require.Equal(t, 10*time.Minute, ev.EndUTC.Sub(ev.StartUTC))
		})
	}
}

func TestSynthesize_SkipsUnknownAndDuplicateNames(t *testing.T) {
	s := newTestSynthesizer(t)

	got, err := s.Synthesize(model.DayRecord{
		Date: "2025-06-10",
		Prayers: []model.PrayerObservation{
			{Name: "fajr", Begins: "05:00"},
			{Name: "Fajr", Begins: "05:10"},
			{Name: "Fajr", Begins: "05:20"},
			{Name: "Tahajjud", Begins: "02:00"},
			{Name: "Isha", Begins: "21:30"},
		},
	})
	require.NoError(t, err)

	events := got.Document.Events
	require.Len(t, events, 2)
	require.Equal(t, "Fajr Gebet", events[0].Summary)
	require.True(t, utc(2025, time.June, 10, 3, 10).Equal(events[0].StartUTC))
	require.Equal(t, "Isha Gebet", events[1].Summary)
}

func TestSynthesize_NoObligatoryPrayers(t *testing.T) {
	s := newTestSynthesizer(t)

	got, err := s.Synthesize(model.DayRecord{
		Date:    "2025-06-10",
		Prayers: []model.PrayerObservation{{Name: "Sunrise", Begins: "06:02"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusNoObligatoryPrayers, got.Status)
	require.Empty(t, got.Document.Events)

	got, err = s.Synthesize(model.DayRecord{Date: "2025-06-10"})
	require.NoError(t, err)
	require.Equal(t, StatusNoObligatoryPrayers, got.Status)
}

func TestSynthesize_InvalidRecord(t *testing.T) {
	s := newTestSynthesizer(t)

	_, err := s.Synthesize(model.DayRecord{
		Date:    "10.06.2025",
		Prayers: []model.PrayerObservation{{Name: "Fajr", Begins: "05:10"}},
	})
	require.ErrorIs(t, err, ErrInvalidRecord)

	_, err = s.Synthesize(model.DayRecord{
		Date:    "2025-06-10",
		Prayers: []model.PrayerObservation{{Name: "Fajr", Begins: "5 Uhr"}},
	})
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSynthesize_RandomUIDsChurnButStructureIsStable(t *testing.T) {
	s := newTestSynthesizer(t)
	rec := scenarioRecord("2025-06-10")

	first, err := s.Synthesize(rec)
	require.NoError(t, err)
	second, err := s.Synthesize(rec)
	require.NoError(t, err)

	require.Len(t, second.Document.Events, len(first.Document.Events))
	for i := range first.Document.Events {
		a, b := first.Document.Events[i], second.Document.Events[i]
		require.Equal(t, a.Summary, b.Summary)
		require.True(t, a.StartUTC.Equal(b.StartUTC))
		require.True(t, a.EndUTC.Equal(b.EndUTC))
		require.NotEqual(t, a.UID, b.UID)

		prefix := a.Name + "-20250610-"
		require.True(t, strings.HasPrefix(a.UID, prefix), a.UID)
		_, err := uuid.Parse(strings.TrimPrefix(a.UID, prefix))
		require.NoError(t, err)
	}
}

func TestSynthesize_StableUIDs(t *testing.T) {
	s := newTestSynthesizer(t)
	s.UIDs = StableUIDs{Domain: "alislam.org"}

	got, err := s.Synthesize(scenarioRecord("2025-06-10"))
	require.NoError(t, err)
	require.Equal(t, "Fajr-20250610@alislam.org", got.Document.Events[0].UID)
	require.Equal(t, "Isha-20250610@alislam.org", got.Document.Events[4].UID)
}

func TestSynthesize_UIDUsesLocalDate(t *testing.T) {
	s := newTestSynthesizer(t)
	s.UIDs = StableUIDs{}

	// 00:30 in Berlin is still the previous day in UTC.
	got, err := s.Synthesize(model.DayRecord{
		Date:    "2025-06-10",
		Prayers: []model.PrayerObservation{{Name: "Isha", Begins: "00:30"}},
	})
	require.NoError(t, err)
	ev := got.Document.Events[0]
	require.Equal(t, "Isha-20250610", ev.UID)
	require.True(t, utc(2025, time.June, 9, 22, 30).Equal(ev.StartUTC))
}

func TestRender_DeterministicAndParsable(t *testing.T) {
	s := newTestSynthesizer(t)
	s.UIDs = StableUIDs{Domain: "alislam.org"}

	got, err := s.Synthesize(scenarioRecord("2025-06-10"))
	require.NoError(t, err)

	a := Render(got.Document)
	b := Render(got.Document)
	require.True(t, bytes.Equal(a, b))

	text := string(a)
	require.True(t, strings.HasPrefix(text, "BEGIN:VCALENDAR"))
	require.Contains(t, text, "//alislam.org//Gebetszeiten//DE")
	require.Contains(t, text, "Muslimische Gebetszeiten")
	require.Contains(t, text, "METHOD:PUBLISH")
	require.Equal(t, 5, strings.Count(text, "BEGIN:VEVENT"))
	require.True(t, strings.HasSuffix(text, "END:VCALENDAR\r\n"))
	for i, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		require.Truef(t, strings.HasSuffix(line, "\r\n"), "line %d lacks CRLF: %q", i+1, line)
	}

	parsed, err := ParseEvents(bytes.NewReader(a))
	require.NoError(t, err)
	require.Len(t, parsed, 5)
	for i, ev := range parsed {
		want := got.Document.Events[i]
		require.Equal(t, want.UID, ev.UID)
		require.Equal(t, want.Summary, ev.Summary)
		require.Equal(t, want.Name, ev.Name)
		require.True(t, want.StartUTC.Equal(ev.StartUTC))
		require.True(t, want.EndUTC.Equal(ev.EndUTC))
	}
}

func TestWriteFile_CreatesDirectoryAndOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")

	path, err := WriteFile(dir, "gebetszeiten.ics", []byte("first"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "gebetszeiten.ics"), path)

	path, err = WriteFile(dir, "gebetszeiten.ics", []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFile_ReportsWriteError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	_, err := WriteFile(blocker, "gebetszeiten.ics", []byte("data"))
	require.Error(t, err)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	require.Equal(t, filepath.Join(blocker, "gebetszeiten.ics"), we.Path)
}
