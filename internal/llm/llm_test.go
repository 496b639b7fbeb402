package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourmate-bot/internal/history"
	"ourmate-bot/internal/logger"
)

type completerFunc func(ctx context.Context, msgs []Message) (string, error)

func (f completerFunc) Complete(ctx context.Context, msgs []Message) (string, error) {
	return f(ctx, msgs)
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Привет"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "test-model", 5*time.Second)
	got, err := c.Complete(context.Background(), []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "Привет", got)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		op     string
	}{
		{"bad status", http.StatusBadGateway, "upstream down", "call"},
		{"malformed", http.StatusOK, "not json", "decode"},
		{"empty choices", http.StatusOK, `{"choices":[]}`, "decode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", "m", time.Second).Complete(context.Background(), nil)
			var rse *RemoteServiceError
			require.ErrorAs(t, err, &rse)
			assert.Equal(t, tc.op, rse.Op)
			assert.Equal(t, tc.status, rse.Status)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", "m", time.Second).Complete(context.Background(), nil)
	var rse *RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Zero(t, rse.Status)
	assert.Error(t, rse.Unwrap())
}

func TestStripReasoning(t *testing.T) {
	assert.Equal(t, "ответ", StripReasoning("<think>думаю\nещё</think>\n\n ответ "))
	assert.Equal(t, "ответ", StripReasoning("a</think>b</think>ответ"))
	assert.Equal(t, "просто текст", StripReasoning("  просто текст\n"))
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("sys", []history.Pair{{Question: "q1", Answer: "a1"}}, "q2")
	assert.Equal(t, []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}, msgs)
}

func TestOrchestrator_HeartbeatRunsWhileWaitingAndStops(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	comp := completerFunc(func(ctx context.Context, _ []Message) (string, error) {
		<-release
		return "<think>hmm</think> Ответ", nil
	})

	var beats atomic.Int32
	signal := func(context.Context) error { beats.Add(1); return errors.New("ignored") }

	o := NewOrchestrator(comp, Options{Workers: 1, HeartbeatInterval: 4 * time.Second, Clock: clock, Logger: logger.Discard()})

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := o.Complete(ctx, 1, "sys", nil, "q", signal)
		done <- result{text, err}
	}()

	assert.Eventually(t, func() bool { return beats.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(4 * time.Second)
	assert.Eventually(t, func() bool { return beats.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "Ответ", r.text)

	after := beats.Load()
	clock.Advance(20 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, beats.Load(), "no beats after return")
}

func TestOrchestrator_FailureSurfacesRemoteError(t *testing.T) {
	comp := completerFunc(func(context.Context, []Message) (string, error) {
		return "", &RemoteServiceError{Op: "call", Err: errors.New("connection refused")}
	})
	var beats atomic.Int32
	o := NewOrchestrator(comp, Options{Clock: clockwork.NewFakeClock(), Logger: logger.Discard()})

	_, err := o.Complete(context.Background(), 1, "", nil, "q", func(context.Context) error { beats.Add(1); return nil })
	var rse *RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, int32(1), beats.Load())
}

func TestOrchestrator_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	comp := completerFunc(func(context.Context, []Message) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})
	o := NewOrchestrator(comp, Options{Workers: 2, Logger: logger.Discard()})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := o.Generate(context.Background(), "", "q")
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestOrchestrator_Timeout(t *testing.T) {
	comp := completerFunc(func(ctx context.Context, _ []Message) (string, error) {
		<-ctx.Done()
		return "", &RemoteServiceError{Op: "call", Err: ctx.Err()}
	})
	o := NewOrchestrator(comp, Options{Timeout: 20 * time.Millisecond, Logger: logger.Discard()})

	_, err := o.Generate(context.Background(), "", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
