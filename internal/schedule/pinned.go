package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ourmate-bot/internal/telegram"
	"ourmate-bot/internal/texts"
)

// PointerStore persists the id of the pinned summary.
type PointerStore interface {
	PinnedMessageID() (int, error)
	SetPinnedMessageID(id int) error
	ClearPinnedMessageID() error
}

// Notifier owns the group-facing schedule messages: the daily notice and the
// pinned summary.
type Notifier struct {
	src    *Source
	format *Formatter
	store  PointerStore
	tg     telegram.Gateway
	chatID int64
	tx     *texts.Texts
	log    *slog.Logger

	mu      sync.Mutex
	loaded  bool
	pointer int
}

func NewNotifier(src *Source, f *Formatter, store PointerStore, tg telegram.Gateway, chatID int64, tx *texts.Texts, log *slog.Logger) *Notifier {
	return &Notifier{
		src:    src,
		format: f,
		store:  store,
		tg:     tg,
		chatID: chatID,
		tx:     tx,
		log:    log.With("component", "pinned"),
	}
}

// Pointer returns the current pinned message id, 0 when none.
func (n *Notifier) Pointer() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loadPointer()
	return n.pointer
}

func (n *Notifier) loadPointer() {
	if n.loaded {
		return
	}
	id, err := n.store.PinnedMessageID()
	if err != nil {
		n.log.Error("read pinned pointer", "error", err)
	}
	n.pointer = id
	n.loaded = true
}

func (n *Notifier) setPointer(id int) {
	n.pointer = id
	var err error
	if id == 0 {
		err = n.store.ClearPinnedMessageID()
	} else {
		err = n.store.SetPinnedMessageID(id)
	}
	if err != nil {
		n.log.Error("persist pinned pointer", "message_id", id, "error", err)
	}
}

// Maintain brings the pinned summary in line with today's schedule.
func (n *Notifier) Maintain(ctx context.Context, today time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loadPointer()

	text, ok := n.format.Pinned(n.src.Calendar(), today)
	if !ok {
		if n.pointer != 0 {
			if err := n.tg.Delete(ctx, n.chatID, n.pointer); err != nil {
				n.log.Warn("delete pinned summary", "message_id", n.pointer, "error", err)
			}
			n.setPointer(0)
			n.log.Info("pinned summary removed, no future classes")
		}
		return nil
	}

	if n.pointer == 0 {
		return n.sendAndPin(ctx, text)
	}

	err := n.tg.Edit(ctx, n.chatID, n.pointer, text)
	switch {
	case err == nil:
		n.log.Info("pinned summary updated", "message_id", n.pointer)
		return nil
	case errors.Is(err, telegram.ErrNotModified):
		return nil
	}
	n.log.Warn("edit pinned summary, sending a new one", "message_id", n.pointer, "error", err)
	return n.sendAndPin(ctx, text)
}

func (n *Notifier) sendAndPin(ctx context.Context, text string) error {
	id, err := n.tg.Send(ctx, telegram.Outgoing{ChatID: n.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("send pinned summary: %w", err)
	}
	if err := n.tg.Pin(ctx, n.chatID, id); err != nil {
		n.log.Warn("pin summary", "message_id", id, "error", err)
	}
	n.setPointer(id)
	n.log.Info("pinned summary sent", "message_id", id)
	return nil
}

// DailyNotice posts today's classes to the group when there are any.
func (n *Notifier) DailyNotice(ctx context.Context, today time.Time) error {
	events := n.src.Calendar().EventsOn(today)
	if len(events) == 0 {
		n.log.Info("no classes today, notice skipped")
		return nil
	}
	text := n.format.Classes(events, n.tx.Get(texts.ScheduleNotice), "", false)
	if _, err := n.tg.Send(ctx, telegram.Outgoing{ChatID: n.chatID, Text: text}); err != nil {
		return fmt.Errorf("send schedule notice: %w", err)
	}
	return nil
}

// Answer renders today's or tomorrow's classes for a chat command.
func (n *Notifier) Answer(now time.Time, tomorrow bool) string {
	return n.format.Day(n.src.Calendar(), now, tomorrow)
}

// Reload re-reads the calendar files.
func (n *Notifier) Reload(now time.Time) { n.src.Reload(now) }
