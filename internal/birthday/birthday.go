// Package birthday sends the daily greetings and answers "when is the next
// birthday" questions.
package birthday

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"ourmate-bot/internal/models"
	"ourmate-bot/internal/telegram"
	"ourmate-bot/internal/texts"
	"ourmate-bot/internal/utils"
)

const mentionsPlaceholder = "{mentions}"

// Generator writes greeting text; nil means static templates only.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

type Roster interface {
	All() []models.RosterEntry
	Update(fn func(e *models.RosterEntry) bool) bool
}

// State is the durable per-day bookkeeping.
type State interface {
	Ledger() (dm string, at time.Time, err error)
	SetLedger(dm string, at time.Time) error
	OptInSnapshot() ([]models.OptInMember, error)
	SetOptInSnapshot([]models.OptInMember) error
}

type Config struct {
	GroupID      int64
	OwnerID      int64
	Location     *time.Location
	PromptActive string
	PromptFormer string
	SystemPrompt string
}

type Engine struct {
	cfg    Config
	roster Roster
	state  State
	tg     telegram.Gateway
	gen    Generator
	tx     *texts.Texts
	log    *slog.Logger

	mu sync.Mutex
	// last greeted day and when it was recorded; authoritative when
	// persistence fails
	ledger       string
	ledgerAt     time.Time
	ledgerLoaded bool
}

func New(cfg Config, roster Roster, state State, tg telegram.Gateway, gen Generator, tx *texts.Texts, log *slog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		cfg:    cfg,
		roster: roster,
		state:  state,
		tg:     tg,
		gen:    gen,
		tx:     tx,
		log:    log.With("component", "birthday"),
	}
}

// Result of one greeting run.
type Result struct {
	Due         int
	Sent        int
	NotOptedIn  int
	AlreadyDone bool
}

func (e *Engine) today(now time.Time) time.Time {
	n := now.In(e.cfg.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, e.cfg.Location)
}

// Today returns the entries whose birthday falls on now's calendar day.
func (e *Engine) Today(now time.Time) []models.RosterEntry {
	day := e.today(now)
	var out []models.RosterEntry
	for _, r := range e.roster.All() {
		if r.Birthday.Occurs(day.Year(), e.cfg.Location).Equal(day) {
			out = append(out, r)
		}
	}
	return out
}

// GreetIfDue sends today's greetings unless the ledger was written today.
// The ledger is written only when at least one greeting went out.
func (e *Engine) GreetIfDue(ctx context.Context, now time.Time) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	due := e.Today(now)
	res := Result{Due: len(due)}
	if len(due) == 0 {
		return res, nil
	}

	day := e.today(now)
	dm := models.Of(day).String()
	if !e.ledgerLoaded {
		stored, at, err := e.state.Ledger()
		if err != nil {
			return res, fmt.Errorf("read ledger: %w", err)
		}
		e.ledger, e.ledgerAt, e.ledgerLoaded = stored, at, true
	}
	// "D.M" repeats every year; only a ledger written on this very day counts
	if e.ledger == dm && !e.ledgerAt.IsZero() && e.today(e.ledgerAt).Equal(day) {
		res.AlreadyDone = true
		e.log.Info("greetings already sent today", "day", dm)
		return res, nil
	}

	var opted []models.RosterEntry
	for _, r := range due {
		if r.HasOptedIn {
			opted = append(opted, r)
			continue
		}
		res.NotOptedIn++
		e.log.Info("birthday without opt-in, not greeted", "name", r.Name, "user_id", r.ID)
	}
	if len(opted) == 0 {
		return res, nil
	}

	for _, r := range opted {
		text := e.greeting(ctx, r)
		if _, err := e.tg.Send(ctx, telegram.Outgoing{ChatID: e.cfg.GroupID, Text: text}); err != nil {
			e.log.Error("send greeting", "name", r.Name, "error", err)
			continue
		}
		res.Sent++
		e.log.Info("greeting sent", "name", r.Name, "user_id", r.ID)
	}

	if res.Sent > 0 {
		e.ledger, e.ledgerAt = dm, now
		if err := e.state.SetLedger(dm, now); err != nil {
			e.log.Error("persist ledger", "day", dm, "error", err)
		}
	}
	return res, nil
}

// greeting builds the text for one person: generated when a prompt template
// is configured, the static template otherwise or on failure.
func (e *Engine) greeting(ctx context.Context, r models.RosterEntry) string {
	tmpl := e.cfg.PromptActive
	staticID := texts.GreetingActive
	if r.Status == models.StatusFormer {
		staticID = texts.GreetingFormer
		if e.cfg.PromptFormer != "" {
			tmpl = e.cfg.PromptFormer
		}
	}

	if tmpl != "" && e.gen != nil {
		prompt := strings.ReplaceAll(tmpl, mentionsPlaceholder, r.Name)
		msg, err := e.gen.Generate(ctx, e.cfg.SystemPrompt, prompt)
		if err == nil && strings.TrimSpace(msg) != "" {
			return Enrich(utils.EscapeHTML(msg), r)
		}
		e.log.Warn("generated greeting unavailable, using template", "name", r.Name, "error", err)
	}
	return e.tx.T(staticID, map[string]any{"Name": MentionHTML(r)})
}

// Next returns the earliest upcoming birthday date after now's day and every
// entry on it. The zero time means an empty roster.
func (e *Engine) Next(now time.Time) (time.Time, []models.RosterEntry) {
	today := e.today(now)
	var (
		best time.Time
		out  []models.RosterEntry
	)
	for _, r := range e.roster.All() {
		occ := nextOccurrence(r.Birthday, today, e.cfg.Location)
		switch {
		case best.IsZero() || occ.Before(best):
			best = occ
			out = []models.RosterEntry{r}
		case occ.Equal(best):
			out = append(out, r)
		}
	}
	return best, out
}

// nextOccurrence is this year's date when strictly after today, else next
// year's.
func nextOccurrence(dm models.DayMonth, today time.Time, loc *time.Location) time.Time {
	occ := dm.Occurs(today.Year(), loc)
	if !occ.After(today) {
		occ = dm.Occurs(today.Year()+1, loc)
	}
	return occ
}

// NextNotice renders the next-birthday message.
func (e *Engine) NextNotice(now time.Time) string {
	date, entries := e.Next(now)
	if date.IsZero() {
		return e.tx.Get(texts.NextBirthdayNone)
	}
	return e.tx.T(texts.NextBirthday, map[string]any{
		"Mentions": e.MentionList(entries),
		"Date":     e.tx.DayMonth(entries[0].Birthday.Day, entries[0].Birthday.Month),
	})
}

// DailyRun greets when due and then tells the owner who is next.
func (e *Engine) DailyRun(ctx context.Context, now time.Time) {
	res, err := e.GreetIfDue(ctx, now)
	if err != nil {
		e.log.Error("greeting run", "error", err)
	} else {
		e.log.Info("greeting run", "due", res.Due, "sent", res.Sent, "not_opted_in", res.NotOptedIn, "already_done", res.AlreadyDone)
	}
	if e.cfg.OwnerID == 0 {
		return
	}
	if _, err := e.tg.Send(ctx, telegram.Outgoing{ChatID: e.cfg.OwnerID, Text: e.NextNotice(now)}); err != nil {
		e.log.Error("send next birthday notice", "error", err)
	}
}

// Lookup finds an entry by username, then by first or last name prefix.
func (e *Engine) Lookup(target string) (models.RosterEntry, bool) {
	t := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(target), "@"))
	if t == "" {
		return models.RosterEntry{}, false
	}
	all := e.roster.All()
	for _, r := range all {
		if r.Username != "" && strings.EqualFold(r.Username, t) {
			return r, true
		}
	}
	for _, r := range all {
		full := strings.ToLower(r.Name + " " + r.LastName)
		if strings.HasPrefix(full, t) || strings.HasPrefix(strings.ToLower(r.LastName), t) {
			return r, true
		}
	}
	return models.RosterEntry{}, false
}

// BirthdayOf renders the answer to "др <target>".
func (e *Engine) BirthdayOf(target string) string {
	r, ok := e.Lookup(target)
	if !ok {
		return e.tx.T(texts.BirthdayOfUnknown, map[string]any{"Target": utils.EscapeHTML(target)})
	}
	return e.tx.T(texts.BirthdayOf, map[string]any{
		"Name": e.MentionList([]models.RosterEntry{r}),
		"Date": e.tx.DayMonth(r.Birthday.Day, r.Birthday.Month),
	})
}

// MentionList joins anchors as "A (@a), B и C".
func (e *Engine) MentionList(entries []models.RosterEntry) string {
	parts := make([]string, len(entries))
	for i, r := range entries {
		parts[i] = MentionHTML(r)
		if r.Username != "" {
			parts[i] += " (@" + r.Username + ")"
		}
	}
	return e.tx.JoinAnd(parts)
}

// MentionHTML is a tg://user anchor, or the escaped name when the id is
// unknown.
func MentionHTML(r models.RosterEntry) string {
	name := utils.EscapeHTML(strings.TrimPrefix(r.Name, "@"))
	if !r.HasID() {
		return name
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, r.ID, name)
}

// Enrich replaces the person's textual reference (@id<ID>, @Name or Name)
// in already-escaped text with a clickable anchor.
func Enrich(text string, r models.RosterEntry) string {
	if !r.HasID() {
		return text
	}
	anchor := MentionHTML(r)
	name := utils.EscapeHTML(r.Name)
	atID := fmt.Sprintf("@id%d", r.ID)

	switch {
	case strings.Contains(text, anchor):
		return text
	case strings.Contains(text, atID):
		text = strings.Replace(text, atID, anchor, 1)
		return strings.ReplaceAll(text, anchor+" "+name, anchor)
	case strings.Contains(text, "@"+name):
		return strings.ReplaceAll(text, "@"+name, anchor)
	case strings.Contains(text, name):
		return strings.Replace(text, name, anchor, 1)
	}
	return text
}

// sortMembers orders a snapshot by id for stable output.
func sortMembers(m []models.OptInMember) {
	sort.Slice(m, func(i, j int) bool { return m[i].ID < m[j].ID })
}
