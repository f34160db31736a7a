package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"gebetskalender/internal/ics"
	appLog "gebetskalender/internal/log"
	"gebetskalender/internal/model"
	"gebetskalender/internal/pipeline"
)

// OutcomeSource exposes the last successful run. *pipeline.Runner
// implements it.
type OutcomeSource interface {
	Latest() (pipeline.Outcome, bool)
}

// Server publishes the generated calendar for subscribing clients.
type Server struct {
	outcomes     OutcomeSource
	calendarPath string
	router       chi.Router
}

// NewServer constructs a Server serving calendarPath under its base name.
func NewServer(outcomes OutcomeSource, calendarPath string) *Server {
	s := &Server{
		outcomes:     outcomes,
		calendarPath: calendarPath,
		router:       chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/day", s.handleDay)
	s.router.Get("/"+filepath.Base(s.calendarPath), s.handleCalendar)
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.calendarPath); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeFile(w, r, s.calendarPath)
}

// dayResponse is the JSON response shape for /api/day.
type dayResponse struct {
	Status     string                    `json:"status"`
	Date       string                    `json:"date,omitempty"`
	HijriDate  string                    `json:"hijri_date,omitempty"`
	Fallback   bool                      `json:"fallback"`
	Prayers    []model.PrayerObservation `json:"prayers,omitempty"`
	Events     []model.CalendarEvent     `json:"events"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
}

// handleDay reports the last run. Before the first run in this process it
// falls back to reading the calendar file left on disk.
func (s *Server) handleDay(w http.ResponseWriter, _ *http.Request) {
	if out, ok := s.outcomes.Latest(); ok {
		finished := out.FinishedAt
		events := out.Events
		if events == nil {
			events = []model.CalendarEvent{}
		}
		writeJSON(w, http.StatusOK, dayResponse{
			Status:     out.Status.String(),
			Date:       out.Record.Date,
			HijriDate:  out.Record.HijriDate,
			Fallback:   out.Fallback(),
			Prayers:    out.Record.Prayers,
			Events:     events,
			FinishedAt: &finished,
		})
		return
	}

	f, err := os.Open(s.calendarPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no calendar generated yet")
			return
		}
		appLog.Error("open calendar failed", err, "path", s.calendarPath)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	defer f.Close()

	events, err := ics.ParseEvents(f)
	if err != nil {
		appLog.Error("parse calendar failed", err, "path", s.calendarPath)
		writeError(w, http.StatusInternalServerError, "failed to parse calendar")
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{Status: "on_disk", Events: events})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(started).Round(time.Microsecond),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
