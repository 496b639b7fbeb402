package birthday

import (
	"context"
	"strconv"

	"ourmate-bot/internal/models"
	"ourmate-bot/internal/telegram"
	"ourmate-bot/internal/texts"
)

// Delta is the change between two opt-in snapshots.
type Delta struct {
	Joined []models.OptInMember
	Left   []models.OptInMember
}

func (d Delta) Empty() bool { return len(d.Joined) == 0 && len(d.Left) == 0 }

// RefreshOptIn probes every entry with a known id. An unreachable user loses
// opt-in; a reachable one never gains it here. Usernames are refreshed from
// the probe. The new snapshot is diffed against the stored one and the owner
// is told about any change.
func (e *Engine) RefreshOptIn(ctx context.Context) Delta {
	type probe struct {
		ident telegram.Identity
		err   error
	}
	results := make(map[int64]probe)
	for _, r := range e.roster.All() {
		if !r.HasID() {
			continue
		}
		ident, err := e.tg.Probe(ctx, r.ID)
		results[r.ID] = probe{ident, err}
		if err != nil {
			e.log.Info("user unreachable", "user_id", r.ID, "name", r.Name, "error", err)
		}
	}

	e.roster.Update(func(r *models.RosterEntry) bool {
		p, ok := results[r.ID]
		if !ok {
			return false
		}
		if p.err != nil {
			if r.HasOptedIn {
				r.HasOptedIn = false
				return true
			}
			return false
		}
		if p.ident.Username != "" && p.ident.Username != r.Username {
			r.Username = p.ident.Username
			return true
		}
		return false
	})

	current := snapshot(e.roster.All())
	previous, err := e.state.OptInSnapshot()
	if err != nil {
		e.log.Error("read opt-in snapshot", "error", err)
	}

	var delta Delta
	if previous != nil {
		delta = diff(previous, current)
		for _, m := range delta.Joined {
			e.log.Info("opt-in joined", "user_id", m.ID, "username", m.Username)
		}
		for _, m := range delta.Left {
			e.log.Info("opt-in left", "user_id", m.ID, "username", m.Username)
		}
		if !delta.Empty() && e.cfg.OwnerID != 0 {
			if _, err := e.tg.Send(ctx, telegram.Outgoing{ChatID: e.cfg.OwnerID, Text: e.deltaText(delta)}); err != nil {
				e.log.Error("send opt-in delta", "error", err)
			}
		}
	} else if err == nil {
		e.log.Info("first opt-in snapshot", "members", len(current))
	}

	if err := e.state.SetOptInSnapshot(current); err != nil {
		e.log.Error("persist opt-in snapshot", "error", err)
	}
	return delta
}

func snapshot(entries []models.RosterEntry) []models.OptInMember {
	out := []models.OptInMember{}
	for _, r := range entries {
		if r.HasID() && r.HasOptedIn {
			out = append(out, models.OptInMember{ID: r.ID, Username: r.Username})
		}
	}
	sortMembers(out)
	return out
}

func diff(prev, cur []models.OptInMember) Delta {
	was := make(map[int64]bool, len(prev))
	for _, m := range prev {
		was[m.ID] = true
	}
	is := make(map[int64]bool, len(cur))
	var d Delta
	for _, m := range cur {
		is[m.ID] = true
		if !was[m.ID] {
			d.Joined = append(d.Joined, m)
		}
	}
	for _, m := range prev {
		if !is[m.ID] {
			d.Left = append(d.Left, m)
		}
	}
	return d
}

func (e *Engine) deltaText(d Delta) string {
	return e.tx.T(texts.OptInDelta, map[string]any{
		"Joined": e.memberNames(d.Joined),
		"Left":   e.memberNames(d.Left),
	})
}

func (e *Engine) memberNames(ms []models.OptInMember) string {
	if len(ms) == 0 {
		return e.tx.Get(texts.OptInDeltaEmpty)
	}
	byID := make(map[int64]models.RosterEntry)
	for _, r := range e.roster.All() {
		byID[r.ID] = r
	}
	var entries []models.RosterEntry
	for _, m := range ms {
		if r, ok := byID[m.ID]; ok {
			entries = append(entries, r)
			continue
		}
		name := m.Username
		if name == "" {
			name = strconv.FormatInt(m.ID, 10)
		}
		entries = append(entries, models.RosterEntry{ID: m.ID, Name: name})
	}
	return e.MentionList(entries)
}
