package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"ourmate-bot/internal/history"
)

const reasoningEnd = "</think>"

// Completer is the remote side of the orchestrator.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Options struct {
	Workers           int
	HeartbeatInterval time.Duration
	Timeout           time.Duration
	Clock             clockwork.Clock
	Logger            *slog.Logger
}

// Orchestrator runs one remote completion per dialogue turn with a heartbeat
// alongside. At most Workers calls are in flight at once.
type Orchestrator struct {
	client   Completer
	sem      *semaphore.Weighted
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewOrchestrator(client Completer, o Options) *Orchestrator {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 4 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		sem:      semaphore.NewWeighted(int64(o.Workers)),
		interval: o.HeartbeatInterval,
		timeout:  o.Timeout,
		clock:    o.Clock,
		log:      o.Logger.With("component", "llm"),
	}
}

// Complete answers question in the context of pairs. signal is called while
// the call is outstanding and never after Complete returns.
func (o *Orchestrator) Complete(ctx context.Context, conversationID int64, systemPrompt string, pairs []history.Pair, question string, signal Signal) (string, error) {
	stop := startHeartbeat(ctx, o.clock, o.interval, signal, o.log.With("chat_id", conversationID))
	defer stop()

	started := o.clock.Now()
	raw, err := o.call(ctx, BuildMessages(systemPrompt, pairs, question))
	if err != nil {
		o.log.Warn("completion failed", "chat_id", conversationID, "error", err)
		return "", err
	}
	o.log.Info("completion done", "chat_id", conversationID, "took", o.clock.Since(started).String(), "chars", len(raw))
	return StripReasoning(raw), nil
}

// Generate is a single-turn call without heartbeat.
func (o *Orchestrator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	raw, err := o.call(ctx, BuildMessages(systemPrompt, nil, prompt))
	if err != nil {
		return "", err
	}
	return StripReasoning(raw), nil
}

func (o *Orchestrator) call(ctx context.Context, messages []Message) (string, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return "", &RemoteServiceError{Op: "queue", Err: err}
	}
	defer o.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return raw, nil
}

// BuildMessages lays out system, then each (user, assistant) pair, then the
// new question.
func BuildMessages(systemPrompt string, pairs []history.Pair, question string) []Message {
	msgs := make([]Message, 0, 2+2*len(pairs))
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	}
	for _, p := range pairs {
		msgs = append(msgs,
			Message{Role: "user", Content: p.Question},
			Message{Role: "assistant", Content: p.Answer},
		)
	}
	return append(msgs, Message{Role: "user", Content: question})
}

// StripReasoning drops everything up to the last reasoning end marker.
func StripReasoning(raw string) string {
	if i := strings.LastIndex(raw, reasoningEnd); i >= 0 {
		raw = raw[i+len(reasoningEnd):]
	}
	return strings.TrimSpace(raw)
}
