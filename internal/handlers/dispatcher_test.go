package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourmate-bot/internal/logger"
	"ourmate-bot/internal/models"
)

func TestDispatcher_PerChatOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int64][]int{}
	)
	d := NewDispatcher(func(_ context.Context, m models.Incoming) {
		if m.MessageID%3 == 0 {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		seen[m.ChatID] = append(seen[m.ChatID], m.MessageID)
		mu.Unlock()
	}, logger.Discard())

	updates := make(chan models.Incoming)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), updates)
		close(done)
	}()

	for i := 1; i <= 100; i++ {
		updates <- models.Incoming{ChatID: int64(i % 4), MessageID: i}
	}
	close(updates)
	<-done

	require.Len(t, seen, 4)
	for chat, ids := range seen {
		assert.Len(t, ids, 25, "chat %d", chat)
		assert.IsIncreasing(t, ids, "chat %d", chat)
	}
}

func TestDispatcher_ChatsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	fast := make(chan struct{})
	d := NewDispatcher(func(_ context.Context, m models.Incoming) {
		if m.ChatID == 1 {
			<-release
			return
		}
		close(fast)
	}, logger.Discard())

	ctx := context.Background()
	d.Dispatch(ctx, models.Incoming{ChatID: 1})
	d.Dispatch(ctx, models.Incoming{ChatID: 2})

	select {
	case <-fast:
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 blocked behind chat 1")
	}
	close(release)
	d.close()
}

func TestDispatcher_BusyChatDoesNotStallOthers(t *testing.T) {
	release := make(chan struct{})
	served := make(chan struct{})
	var (
		mu    sync.Mutex
		first int
	)
	d := NewDispatcher(func(_ context.Context, m models.Incoming) {
		if m.ChatID == 1 {
			<-release
			mu.Lock()
			first++
			mu.Unlock()
			return
		}
		close(served)
	}, logger.Discard())

	updates := make(chan models.Incoming)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), updates)
		close(done)
	}()

	for i := 1; i <= 40; i++ {
		updates <- models.Incoming{ChatID: 1, MessageID: i}
	}
	updates <- models.Incoming{ChatID: 2, MessageID: 1}

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 not served while chat 1 is busy")
	}

	close(release)
	close(updates)
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, first, laneBuffer+1, "overflow dropped")
	assert.GreaterOrEqual(t, first, laneBuffer)
}

func TestDispatcher_IdleLaneRetires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	handled := make(chan int, 2)
	d := NewDispatcher(func(_ context.Context, m models.Incoming) {
		handled <- m.MessageID
	}, logger.Discard())
	d.clock = clock
	d.idle = time.Minute

	ctx := context.Background()
	require.True(t, d.Dispatch(ctx, models.Incoming{ChatID: 7, MessageID: 1}))
	assert.Equal(t, 1, <-handled)
	assert.Equal(t, 1, d.laneCount())

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return d.laneCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, d.Dispatch(ctx, models.Incoming{ChatID: 7, MessageID: 2}))
	assert.Equal(t, 2, <-handled)
	d.close()
	assert.False(t, d.Dispatch(ctx, models.Incoming{ChatID: 7, MessageID: 3}))
}
