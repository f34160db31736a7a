package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gebetskalender/internal/config"
	"gebetskalender/internal/ics"
	appLog "gebetskalender/internal/log"
	"gebetskalender/internal/model"
	"gebetskalender/internal/source"
)

// DaySource yields the day record to publish. *source.Extractor is the
// production implementation.
type DaySource interface {
	Extract(ctx context.Context) (source.Extraction, error)
}

// Synthesizer turns a day record into a calendar document.
type Synthesizer interface {
	Synthesize(rec model.DayRecord) (ics.Synthesis, error)
}

// Status tags a successful run.
type Status int

const (
	// StatusWritten means the calendar file was replaced.
	StatusWritten Status = iota
	// StatusNoObligatoryPrayers means the record was readable but held no
	// obligatory prayer, and the file was left untouched.
	StatusNoObligatoryPrayers
)

func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusNoObligatoryPrayers:
		return "no_obligatory_prayers"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes a successful run. Failures are returned as errors.
type Outcome struct {
	Status     Status
	Path       string
	Record     model.DayRecord
	Events     []model.CalendarEvent
	Warnings   []source.Warning
	FinishedAt time.Time
}

// Fallback reports whether the record used was not today's.
func (o Outcome) Fallback() bool {
	return source.Extraction{Warnings: o.Warnings}.Fallback()
}

// Runner executes one fetch, synthesize and write cycle at a time.
type Runner struct {
	source     DaySource
	synth      Synthesizer
	outputDir  string
	outputFile string

	// runMu serializes Run; the output file has a single writer.
	runMu sync.Mutex

	latestMu sync.RWMutex
	latest   *Outcome
}

// NewRunner wires a Runner from its parts.
func NewRunner(src DaySource, synth Synthesizer, outputDir, outputFile string) *Runner {
	return &Runner{
		source:     src,
		synth:      synth,
		outputDir:  outputDir,
		outputFile: outputFile,
	}
}

// FromConfig builds the production Runner. now may be nil.
func FromConfig(cfg *config.Config, now func() time.Time) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if now == nil {
		now = time.Now
	}

	var fetcher source.Fetcher
	switch cfg.Source.Fetcher {
	case config.FetcherChromium:
		fetcher = &source.ChromiumFetcher{Timeout: cfg.FetchTimeout()}
	default:
		fetcher = source.NewHTTPFetcher(cfg.FetchTimeout(), cfg.Source.UserAgent)
	}

	extractor := source.NewExtractor(fetcher, source.Options{
		URL:         cfg.Source.URL,
		MarkerID:    cfg.Source.MarkerID,
		TimingsPath: cfg.Source.TimingsPath,
		Location:    loc,
		Now:         now,
	})

	var uids ics.UIDGenerator = ics.RandomUIDs{}
	if cfg.StableUIDs {
		uids = ics.StableUIDs{Domain: cfg.Source.Provenance}
	}

	synth := &ics.Synthesizer{
		Location:     loc,
		Obligatory:   cfg.ObligatoryPrayers,
		Duration:     cfg.EventDuration(),
		Provenance:   cfg.Source.Provenance,
		CalendarName: cfg.CalendarName,
		ProductID:    cfg.ProductID,
		UIDs:         uids,
		Now:          now,
	}

	return NewRunner(extractor, synth, cfg.OutputDir, cfg.OutputFile), nil
}

// Run performs fetch, synthesize, render and write in sequence. Any error
// aborts the cycle before the file is touched.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	extraction, err := r.source.Extract(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract prayer times: %w", err)
	}
	for _, w := range extraction.Warnings {
		appLog.Warn(w.Message, "kind", string(w.Kind), "requested", w.Requested, "used", w.Used)
	}

	rec := extraction.Record
	appLog.Info("prayer times extracted", "date", rec.Date, "hijri_date", rec.HijriDate, "prayers", len(rec.Prayers))

	synthesis, err := r.synth.Synthesize(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("synthesize calendar: %w", err)
	}

	out := Outcome{
		Record:   rec,
		Warnings: extraction.Warnings,
	}

	if synthesis.Status == ics.StatusNoObligatoryPrayers {
		appLog.Warn("no obligatory prayers found, calendar file not written", "date", rec.Date)
		out.Status = StatusNoObligatoryPrayers
		out.FinishedAt = time.Now()
		r.setLatest(out)
		return out, nil
	}

	for _, ev := range synthesis.Document.Events {
		appLog.Info(fmt.Sprintf("%s: %s Uhr", ev.Name, beginsOf(rec, ev.Name)))
	}

	path, err := ics.WriteFile(r.outputDir, r.outputFile, ics.Render(synthesis.Document))
	if err != nil {
		return Outcome{}, fmt.Errorf("write calendar: %w", err)
	}
	appLog.Info("calendar written", "path", path, "events", len(synthesis.Document.Events))

	out.Status = StatusWritten
	out.Path = path
	out.Events = synthesis.Document.Events
	out.FinishedAt = time.Now()
	r.setLatest(out)
	return out, nil
}

// Latest returns the most recent successful outcome, if any.
func (r *Runner) Latest() (Outcome, bool) {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	if r.latest == nil {
		return Outcome{}, false
	}
	return *r.latest, true
}

// OutputPath is where Run writes the calendar.
func (r *Runner) OutputPath() string {
	return filepath.Join(r.outputDir, r.outputFile)
}

func (r *Runner) setLatest(o Outcome) {
	r.latestMu.Lock()
	r.latest = &o
	r.latestMu.Unlock()
}

func beginsOf(rec model.DayRecord, name string) string {
	for _, p := range rec.Prayers {
		if p.Name == name {
			return p.Begins
		}
	}
	return ""
}
