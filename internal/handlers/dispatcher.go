package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ourmate-bot/internal/models"
)

const (
	laneBuffer = 32
	laneIdle   = 10 * time.Minute
)

// Dispatcher runs one FIFO lane per chat: messages of a chat are handled in
// arrival order, different chats concurrently. Dispatch never blocks; a
// message for a chat whose lane is full is dropped.
type Dispatcher struct {
	handle func(context.Context, models.Incoming)
	log    *slog.Logger
	clock  clockwork.Clock
	idle   time.Duration

	mu     sync.Mutex
	lanes  map[int64]chan models.Incoming
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(handle func(context.Context, models.Incoming), log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handle: handle,
		log:    log.With("component", "dispatcher"),
		clock:  clockwork.NewRealClock(),
		idle:   laneIdle,
		lanes:  make(map[int64]chan models.Incoming),
	}
}

// Run consumes updates until the channel closes or ctx is done, then waits
// for the lanes to drain.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan models.Incoming) {
	defer d.close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			d.Dispatch(ctx, msg)
		}
	}
}

// Dispatch queues msg on its chat's lane, starting the lane when needed. It
// reports false when the message was dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Incoming) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	lane, ok := d.lanes[msg.ChatID]
	if !ok {
		lane = d.start(ctx, msg.ChatID)
	}
	select {
	case lane <- msg:
		return true
	default:
		d.log.Warn("chat lane full, message dropped", "chat_id", msg.ChatID, "message_id", msg.MessageID, "queued", len(lane))
		return false
	}
}

// start must be called with d.mu held.
func (d *Dispatcher) start(ctx context.Context, chatID int64) chan models.Incoming {
	lane := make(chan models.Incoming, laneBuffer)
	d.lanes[chatID] = lane
	idle := d.clock.NewTimer(d.idle)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer idle.Stop()
		for {
			select {
			case msg, ok := <-lane:
				if !ok {
					return
				}
				d.handle(ctx, msg)
				idle.Reset(d.idle)
			case <-idle.Chan():
				if d.retire(chatID, lane) {
					return
				}
				idle.Reset(d.idle)
			}
		}
	}()
	d.log.Debug("lane started", "chat_id", chatID)
	return lane
}

// retire removes an idle lane. Enqueueing happens under the same lock, so an
// empty lane here stays empty.
func (d *Dispatcher) retire(chatID int64, lane chan models.Incoming) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(lane) > 0 || d.lanes[chatID] != lane {
		return false
	}
	delete(d.lanes, chatID)
	d.log.Debug("lane retired", "chat_id", chatID)
	return true
}

func (d *Dispatcher) laneCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

func (d *Dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	for id, l := range d.lanes {
		close(l)
		delete(d.lanes, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
