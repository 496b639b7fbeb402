package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Signal tells the conversation that an answer is still being composed.
type Signal func(ctx context.Context) error

// startHeartbeat calls signal immediately and then every interval until the
// returned stop is called. stop blocks until the loop has exited and is safe
// to call more than once.
func startHeartbeat(ctx context.Context, clock clockwork.Clock, interval time.Duration, signal Signal, log *slog.Logger) (stop func()) {
	if signal == nil {
		return func() {}
	}
	ticker := clock.NewTicker(interval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	beat := func() {
		if err := signal(ctx); err != nil {
			log.Debug("heartbeat signal failed", "error", err)
		}
	}

	go func() {
		defer wg.Done()
		defer ticker.Stop()
		beat()
		for {
			select {
			case <-ticker.Chan():
				beat()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
