package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status of a roster entry.
type Status string

const (
	StatusActive Status = "active"
	StatusFormer Status = "former"
)

// wire form of StatusFormer in the roster file
const formerMark = "-"

// leap year used to validate day/month pairs without a year
const validationYear = 2000

var ErrBadBirthday = errors.New("invalid birthday")

// DayMonth is a calendar day without a year.
type DayMonth struct {
	Day   int
	Month time.Month
}

// ParseDayMonth parses "D.M" or "DD.MM".
func ParseDayMonth(s string) (DayMonth, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return DayMonth{}, fmt.Errorf("%w: %q", ErrBadBirthday, s)
	}
	d, err := strconv.Atoi(parts[0])
	if err != nil {
		return DayMonth{}, fmt.Errorf("%w: %q", ErrBadBirthday, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return DayMonth{}, fmt.Errorf("%w: %q", ErrBadBirthday, s)
	}
	dm := DayMonth{Day: d, Month: time.Month(m)}
	if !dm.Valid() {
		return DayMonth{}, fmt.Errorf("%w: %q", ErrBadBirthday, s)
	}
	return dm, nil
}

// Valid reports whether the pair names a real calendar day. Feb 29 is valid.
func (dm DayMonth) Valid() bool {
	if dm.Month < time.January || dm.Month > time.December || dm.Day < 1 {
		return false
	}
	t := time.Date(validationYear, dm.Month, dm.Day, 0, 0, 0, 0, time.UTC)
	return t.Month() == dm.Month && t.Day() == dm.Day
}

func (dm DayMonth) String() string {
	return fmt.Sprintf("%d.%d", dm.Day, int(dm.Month))
}

// Occurs returns midnight of this day in the given year.
// Feb 29 falls on Mar 1 in non-leap years.
func (dm DayMonth) Occurs(year int, loc *time.Location) time.Time {
	return time.Date(year, dm.Month, dm.Day, 0, 0, 0, 0, loc)
}

// Of returns the DayMonth of t.
func Of(t time.Time) DayMonth {
	return DayMonth{Day: t.Day(), Month: t.Month()}
}

// RosterEntry is one person tracked for birthdays.
type RosterEntry struct {
	ID         int64 // 0 when the Telegram id is unknown
	Name       string
	LastName   string
	Birthday   DayMonth
	Status     Status
	Username   string // without leading @
	HasOptedIn bool
}

// FirstName is the first word of Name.
func (e RosterEntry) FirstName() string {
	if f := strings.Fields(e.Name); len(f) > 0 {
		return f[0]
	}
	return e.Name
}

// HasID reports whether the Telegram id is known.
func (e RosterEntry) HasID() bool { return e.ID != 0 }

// Record is the durable form of a RosterEntry.
type Record struct {
	UserID     *int64 `json:"user_id"`
	Name       string `json:"name"`
	LastName   string `json:"last_name"`
	Birthday   string `json:"birthday"`
	Status     string `json:"status"`
	Username   string `json:"username,omitempty"`
	Interacted bool   `json:"interacted_with_bot"`
}

// ToRecord converts the entry into its durable form.
func (e RosterEntry) ToRecord() Record {
	r := Record{
		Name:       e.Name,
		LastName:   e.LastName,
		Birthday:   e.Birthday.String(),
		Status:     string(StatusActive),
		Username:   e.Username,
		Interacted: e.HasOptedIn,
	}
	if e.Status == StatusFormer {
		r.Status = formerMark
	}
	if e.ID != 0 {
		id := e.ID
		r.UserID = &id
	}
	return r
}

// FromRecord validates a durable record and builds an entry.
func FromRecord(r Record) (RosterEntry, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return RosterEntry{}, errors.New("record without name")
	}
	bday, err := ParseDayMonth(r.Birthday)
	if err != nil {
		return RosterEntry{}, fmt.Errorf("%s: %w", name, err)
	}
	e := RosterEntry{
		Name:       name,
		LastName:   strings.TrimSpace(r.LastName),
		Birthday:   bday,
		Status:     StatusActive,
		Username:   strings.TrimPrefix(strings.TrimSpace(r.Username), "@"),
		HasOptedIn: r.Interacted,
	}
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case formerMark, string(StatusFormer):
		e.Status = StatusFormer
	}
	if r.UserID != nil {
		e.ID = *r.UserID
	}
	return e, nil
}

// OptInMember is one element of the stored opt-in snapshot.
type OptInMember struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// ScheduleEvent is one class from the calendar sources.
type ScheduleEvent struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
}
