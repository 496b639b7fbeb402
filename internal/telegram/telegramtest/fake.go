// Package telegramtest provides an in-memory Gateway for tests.
package telegramtest

import (
	"context"
	"errors"
	"sync"

	"ourmate-bot/internal/telegram"
)

type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
}

type Ref struct {
	ChatID    int64
	MessageID int
}

// Fake records every call. Errors can be injected per operation.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Sent    []telegram.Outgoing
	Edits   []Edit
	Pins    []Ref
	Deletes []Ref
	Typings []int64
	Probes  []int64

	SendErr   func(m telegram.Outgoing) error
	EditErr   error
	PinErr    error
	DeleteErr error
	// Identities answers probes; a missing id is unreachable.
	Identities map[int64]telegram.Identity
}

func New() *Fake {
	return &Fake{nextID: 100, Identities: map[int64]telegram.Identity{}}
}

func (f *Fake) Send(_ context.Context, m telegram.Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		if err := f.SendErr(m); err != nil {
			return 0, err
		}
	}
	f.nextID++
	f.Sent = append(f.Sent, m)
	return f.nextID, nil
}

func (f *Fake) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, Edit{chatID, messageID, text})
	return f.EditErr
}

func (f *Fake) Pin(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pins = append(f.Pins, Ref{chatID, messageID})
	return f.PinErr
}

func (f *Fake) Delete(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, Ref{chatID, messageID})
	return f.DeleteErr
}

func (f *Fake) Typing(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Typings = append(f.Typings, chatID)
	return nil
}

func (f *Fake) Probe(_ context.Context, userID int64) (telegram.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Probes = append(f.Probes, userID)
	id, ok := f.Identities[userID]
	if !ok {
		return telegram.Identity{}, errUnreachable
	}
	return id, nil
}

// SentTo returns the texts sent to chatID, in order.
func (f *Fake) SentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.Sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// LastID is the id of the most recently sent message.
func (f *Fake) LastID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID
}

var errUnreachable = errors.New("chat not found")

var _ telegram.Gateway = (*Fake)(nil)
