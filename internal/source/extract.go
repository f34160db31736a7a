package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"

	appLog "gebetskalender/internal/log"
	"gebetskalender/internal/model"
)

const (
	isoDateLayout = "2006-01-02"
	clockLayout   = "15:04"
)

// WarningKind classifies non-fatal diagnostics raised during extraction.
type WarningKind string

// WarnNoCurrentDayMatch means no record matched today and the first record
// of the collection was used instead.
const WarnNoCurrentDayMatch WarningKind = "no_current_day_match"

// Warning is a non-fatal diagnostic; the run continues.
type Warning struct {
	Kind WarningKind
	// Requested is today's date in the target zone.
	Requested string
	// Used is the date of the record actually returned.
	Used    string
	Message string
}

// Extraction is a successfully extracted day plus any warnings.
type Extraction struct {
	Record   model.DayRecord
	Warnings []Warning
}

// Fallback reports whether the record is not the one for today.
func (e Extraction) Fallback() bool {
	for _, w := range e.Warnings {
		if w.Kind == WarnNoCurrentDayMatch {
			return true
		}
	}
	return false
}

// Options configures an Extractor.
type Options struct {
	URL         string
	MarkerID    string
	TimingsPath []string
	// Location is the target zone for "today" and all conversions.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Extractor turns the upstream page into a normalized DayRecord.
type Extractor struct {
	fetcher Fetcher
	opts    Options
}

// NewExtractor creates an Extractor using fetcher for transport.
func NewExtractor(fetcher Fetcher, opts Options) *Extractor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Extractor{fetcher: fetcher, opts: opts}
}

// Extract fetches the page and selects today's record, falling back to the
// first record of the collection when today is absent. Errors are
// *FetchError or *MalformedSourceError.
func (e *Extractor) Extract(ctx context.Context) (Extraction, error) {
	body, err := e.fetcher.Fetch(ctx, e.opts.URL)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return Extraction{}, err
		}
		return Extraction{}, &FetchError{URL: e.opts.URL, Err: err}
	}

	blob, err := ExtractEmbeddedJSON(body, e.opts.MarkerID)
	if err != nil {
		return Extraction{}, err
	}

	days, err := timingsCollection(blob, e.opts.TimingsPath)
	if err != nil {
		return Extraction{}, err
	}

	today := e.opts.Now().In(e.opts.Location).Format(isoDateLayout)
	return SelectDay(days, today, e.opts.Location)
}

// ExtractEmbeddedJSON returns the text content of the first <script>
// element whose id equals markerID.
func ExtractEmbeddedJSON(page []byte, markerID string) ([]byte, error) {
	if markerID == "" {
		return nil, malformed("empty marker id")
	}

	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil, malformed("script#%s not found", markerID)
			}
			return nil, &MalformedSourceError{Reason: "tokenize html", Err: z.Err()}

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" || !hasAttr || !hasID(z, markerID) {
				continue
			}
			// Script bodies are raw text, so the payload is one token.
			if z.Next() != html.TextToken {
				return nil, malformed("script#%s is empty", markerID)
			}
			text := bytes.TrimSpace(z.Text())
			if len(text) == 0 {
				return nil, malformed("script#%s is empty", markerID)
			}
			return text, nil
		}
	}
}

func hasID(z *html.Tokenizer, id string) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "id" && string(val) == id {
			return true
		}
		if !more {
			return false
		}
	}
}

// timingsCollection parses blob and walks path down to the multi-day list.
func timingsCollection(blob []byte, path []string) ([]any, error) {
	var node any
	if err := json.Unmarshal(blob, &node); err != nil {
		return nil, &MalformedSourceError{Reason: "decode embedded json", Err: err}
	}

	for i, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, malformed("%s is not an object", strings.Join(path[:i], "."))
		}
		node, ok = obj[key]
		if !ok || node == nil {
			return nil, malformed("%s is missing", strings.Join(path[:i+1], "."))
		}
	}

	days, ok := node.([]any)
	if !ok {
		return nil, malformed("%s is not an array", strings.Join(path, "."))
	}
	if len(days) == 0 {
		return nil, malformed("%s is empty", strings.Join(path, "."))
	}
	return days, nil
}

type rawDay struct {
	date    time.Time
	hijri   string
	prayers []any
	// hasPrayers is false when "prayers" is missing or not an array.
	hasPrayers bool
}

func decodeDay(v any) (rawDay, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return rawDay{}, malformed("day record is not an object")
	}

	date, err := millis(obj["date"])
	if err != nil {
		return rawDay{}, malformed("day record date: %v", err)
	}

	out := rawDay{date: date}
	if s, ok := obj["hijriDate"].(string); ok {
		out.hijri = s
	}
	out.prayers, out.hasPrayers = obj["prayers"].([]any)
	return out, nil
}

// SelectDay picks the record dated today (in loc) and normalizes it. A
// match without a usable prayer list does not count. Without a match the
// first record is used and a WarnNoCurrentDayMatch warning is attached.
func SelectDay(days []any, today string, loc *time.Location) (Extraction, error) {
	if len(days) == 0 {
		return Extraction{}, malformed("no day records")
	}

	var (
		chosen  rawDay
		matched bool
	)
	for i, v := range days {
		day, err := decodeDay(v)
		if err != nil {
			appLog.Debug("skipping unreadable day record", "index", i, "reason", err.Error())
			continue
		}
		if day.date.In(loc).Format(isoDateLayout) == today && day.hasPrayers {
			chosen, matched = day, true
			break
		}
	}

	var result Extraction
	if !matched {
		first, err := decodeDay(days[0])
		if err != nil {
			return Extraction{}, err
		}
		chosen = first
		used := first.date.In(loc).Format(isoDateLayout)
		result.Warnings = append(result.Warnings, Warning{
			Kind:      WarnNoCurrentDayMatch,
			Requested: today,
			Used:      used,
			Message:   fmt.Sprintf("no prayer times for %s, falling back to first available day %s", today, used),
		})
	}

	if !chosen.hasPrayers {
		return Extraction{}, malformed("day record has no prayer list")
	}

	record, err := normalize(chosen, loc)
	if err != nil {
		return Extraction{}, err
	}
	result.Record = record
	return result, nil
}

func normalize(day rawDay, loc *time.Location) (model.DayRecord, error) {
	prayers := make([]model.PrayerObservation, 0, len(day.prayers))
	for i, v := range day.prayers {
		obj, ok := v.(map[string]any)
		if !ok {
			return model.DayRecord{}, malformed("prayer %d is not an object", i)
		}
		name, ok := obj["name"].(string)
		if !ok {
			return model.DayRecord{}, malformed("prayer %d has no name", i)
		}
		at, err := millis(obj["time"])
		if err != nil {
			return model.DayRecord{}, malformed("prayer %q time: %v", name, err)
		}
		prayers = append(prayers, model.PrayerObservation{
			Name:   name,
			Begins: LocalClock(at, loc),
		})
	}

	return model.DayRecord{
		Date:      day.date.In(loc).Format(isoDateLayout),
		HijriDate: day.hijri,
		Prayers:   prayers,
	}, nil
}

// LocalClock formats t as "15:04" in loc. Seconds are dropped, never
// rounded up, so 05:10:59 stays 05:10.
func LocalClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(clockLayout)
}

// millis converts an epoch-millisecond JSON number to a time.
func millis(v any) (time.Time, error) {
	f, ok := v.(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("expected epoch milliseconds, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, errors.New("non-finite timestamp")
	}
	return time.UnixMilli(int64(math.Floor(f))), nil
}
