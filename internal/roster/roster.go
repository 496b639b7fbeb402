// Package roster keeps the list of people the bot greets and recognises.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"ourmate-bot/internal/models"
)

// Persister is the durable side of the store.
type Persister interface {
	ReplaceRoster([]models.Record) error
	LoadRoster() ([]models.Record, error)
}

type seedFile struct {
	Users []models.Record `json:"users"`
}

// Store is the in-memory roster, written through to a Persister after every
// mutation. Persistence failures are logged; memory stays authoritative.
type Store struct {
	mu      sync.RWMutex
	entries []models.RosterEntry
	db      Persister
	log     *slog.Logger
}

// Open loads the roster from db, importing seedPath when the table is empty.
func Open(db Persister, seedPath string, log *slog.Logger) (*Store, error) {
	s := &Store{db: db, log: log}

	recs, err := db.LoadRoster()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if len(recs) > 0 {
		s.entries = s.fromRecords(recs)
		log.Info("roster loaded", "entries", len(s.entries))
		return s, nil
	}

	if seedPath == "" {
		return s, nil
	}
	entries, err := ReadSeed(seedPath, log)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("roster seed file not found", "path", seedPath)
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	s.entries = entries
	s.persist()
	log.Info("roster imported", "path", seedPath, "entries", len(entries))
	return s, nil
}

// ReadSeed parses a {"users":[...]} file. Malformed records are skipped with
// a warning.
func ReadSeed(path string, log *slog.Logger) ([]models.RosterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s := &Store{log: log}
	return s.fromRecords(f.Users), nil
}

func (s *Store) fromRecords(recs []models.Record) []models.RosterEntry {
	out := make([]models.RosterEntry, 0, len(recs))
	for i, r := range recs {
		e, err := models.FromRecord(r)
		if err != nil {
			s.log.Warn("skip roster record", "index", i, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) persist() {
	recs := make([]models.Record, len(s.entries))
	for i, e := range s.entries {
		recs[i] = e.ToRecord()
	}
	if err := s.db.ReplaceRoster(recs); err != nil {
		s.log.Error("persist roster", "error", err)
	}
}

// All returns a copy of every entry in file order.
func (s *Store) All() []models.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RosterEntry(nil), s.entries...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) ByID(id int64) (models.RosterEntry, bool) {
	if id == 0 {
		return models.RosterEntry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.RosterEntry{}, false
}

// ByUsername matches case-insensitively, with or without a leading @.
func (s *Store) ByUsername(username string) (models.RosterEntry, bool) {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if u == "" {
		return models.RosterEntry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Username != "" && strings.EqualFold(e.Username, u) {
			return e, true
		}
	}
	return models.RosterEntry{}, false
}

// IsMember reports whether id belongs to a roster entry.
func (s *Store) IsMember(id int64) bool {
	_, ok := s.ByID(id)
	return ok
}

// FirstName resolves the sender by id, then by username.
func (s *Store) FirstName(id int64, username string) string {
	if e, ok := s.ByID(id); ok {
		return e.FirstName()
	}
	if e, ok := s.ByUsername(username); ok {
		return e.FirstName()
	}
	return ""
}

// MarkInteracted records that id wrote to the bot privately: opt-in becomes
// true and a missing username is filled. Reports whether anything changed.
func (s *Store) MarkInteracted(id int64, username string) bool {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return s.Update(func(e *models.RosterEntry) bool {
		if e.ID != id {
			return false
		}
		changed := false
		if !e.HasOptedIn {
			e.HasOptedIn = true
			changed = true
		}
		if e.Username == "" && username != "" {
			e.Username = username
			changed = true
		}
		return changed
	})
}

// SetOptIn sets the opt-in flag of id. ok is false when id is not on the
// roster.
func (s *Store) SetOptIn(id int64, v bool) (ok bool) {
	if !s.IsMember(id) {
		return false
	}
	s.Update(func(e *models.RosterEntry) bool {
		if e.ID != id || e.HasOptedIn == v {
			return false
		}
		e.HasOptedIn = v
		return true
	})
	return true
}

// Update applies fn to every entry under the write lock and persists once if
// any call reported a change.
func (s *Store) Update(fn func(e *models.RosterEntry) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for i := range s.entries {
		if fn(&s.entries[i]) {
			changed = true
		}
	}
	if changed {
		s.persist()
	}
	return changed
}
