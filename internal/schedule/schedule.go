// Package schedule loads the class calendar from ICS files and keeps the
// pinned summary in the group up to date.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"

	"ourmate-bot/internal/models"
)

// DefaultHorizon bounds recurrence expansion.
const DefaultHorizon = 180 * 24 * time.Hour

// Calendar is an immutable, start-sorted set of events in one location.
type Calendar struct {
	loc    *time.Location
	events []models.ScheduleEvent
}

func NewCalendar(loc *time.Location, events []models.ScheduleEvent) *Calendar {
	out := make([]models.ScheduleEvent, len(events))
	for i, e := range events {
		e.Start = e.Start.In(loc)
		e.End = e.End.In(loc)
		out[i] = e
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return &Calendar{loc: loc, events: out}
}

// Load reads every file matching pattern. Broken files are skipped with a
// warning; no files at all is an empty calendar.
func Load(pattern string, loc *time.Location, until time.Time, log *slog.Logger) *Calendar {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		log.Warn("bad schedule pattern", "pattern", pattern, "error", err)
	}
	sort.Strings(paths)

	var events []models.ScheduleEvent
	for _, p := range paths {
		evs, err := parseFile(p, loc, until)
		if err != nil {
			log.Warn("skip schedule file", "path", p, "error", err)
			continue
		}
		events = append(events, evs...)
	}
	log.Info("schedule loaded", "files", len(paths), "events", len(events))
	return NewCalendar(loc, events)
}

func parseFile(path string, loc *time.Location, until time.Time) ([]models.ScheduleEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, loc, until)
}

// Parse decodes every VCALENDAR in r. Recurring events are expanded up to
// until; floating times are read in loc.
func Parse(r io.Reader, loc *time.Location, until time.Time) ([]models.ScheduleEvent, error) {
	dec := ical.NewDecoder(r)
	var out []models.ScheduleEvent
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		for _, ev := range cal.Events() {
			evs, err := expand(ev, loc, until)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
		}
	}
	return out, nil
}

func expand(ev ical.Event, loc *time.Location, until time.Time) ([]models.ScheduleEvent, error) {
	if ev.Props.Get(ical.PropDateTimeStart) == nil {
		return nil, nil
	}
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, fmt.Errorf("dtstart: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.IsZero() {
		end = start
	}
	summary, _ := ev.Props.Text(ical.PropSummary)
	location, _ := ev.Props.Text(ical.PropLocation)

	base := models.ScheduleEvent{
		Summary:  strings.TrimSpace(summary),
		Location: strings.TrimSpace(location),
		Start:    start.In(loc),
		End:      end.In(loc),
	}

	set, err := ev.RecurrenceSet(loc)
	if err != nil {
		return nil, fmt.Errorf("rrule %q: %w", base.Summary, err)
	}
	if set == nil {
		return []models.ScheduleEvent{base}, nil
	}

	dur := end.Sub(start)
	var out []models.ScheduleEvent
	for _, t := range set.Between(start.Add(-time.Second), until, true) {
		e := base
		e.Start = t.In(loc)
		e.End = t.Add(dur).In(loc)
		out = append(out, e)
	}
	return out, nil
}

// Events returns all events in start order.
func (c *Calendar) Events() []models.ScheduleEvent { return c.events }

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) day(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// EventsOn returns the events starting on day's calendar date.
func (c *Calendar) EventsOn(day time.Time) []models.ScheduleEvent {
	d := c.day(day)
	var out []models.ScheduleEvent
	for _, e := range c.events {
		if c.day(e.Start).Equal(d) {
			out = append(out, e)
		}
	}
	return out
}

// NextEventsAfter returns the first date strictly after day that has events.
// ok is false when nothing is scheduled after day.
func (c *Calendar) NextEventsAfter(day time.Time) (date time.Time, events []models.ScheduleEvent, ok bool) {
	d := c.day(day)
	for _, e := range c.events {
		if ed := c.day(e.Start); ed.After(d) {
			return ed, c.EventsOn(ed), true
		}
	}
	return time.Time{}, nil, false
}

// DayGroup is the events of one date.
type DayGroup struct {
	Date   time.Time
	Events []models.ScheduleEvent
}

// DaysFrom groups events by date, starting at day inclusive.
func (c *Calendar) DaysFrom(day time.Time) []DayGroup {
	d := c.day(day)
	var out []DayGroup
	for _, e := range c.events {
		ed := c.day(e.Start)
		if ed.Before(d) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Date.Equal(ed) {
			out[n-1].Events = append(out[n-1].Events, e)
			continue
		}
		out = append(out, DayGroup{Date: ed, Events: []models.ScheduleEvent{e}})
	}
	return out
}

// Source reloads the calendar from disk on demand.
type Source struct {
	pattern string
	loc     *time.Location
	horizon time.Duration
	log     *slog.Logger

	mu  sync.RWMutex
	cal *Calendar
}

func NewSource(pattern string, loc *time.Location, horizon time.Duration, log *slog.Logger) *Source {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Source{
		pattern: pattern,
		loc:     loc,
		horizon: horizon,
		log:     log.With("component", "schedule"),
		cal:     NewCalendar(loc, nil),
	}
}

// Reload re-reads the files, expanding recurrences up to now plus the horizon.
func (s *Source) Reload(now time.Time) {
	cal := Load(s.pattern, s.loc, now.Add(s.horizon), s.log)
	s.mu.Lock()
	s.cal = cal
	s.mu.Unlock()
}

func (s *Source) Calendar() *Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal
}
