package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type outcome struct {
	fail        bool
	wantPrimary bool
	wantOpened  bool
	wantClosed  bool
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		outcomes  []outcome
		wantState State
	}{
		{
			name: "opens on the third consecutive failure",
			opts: []Option{WithFailureThreshold(3)},
			outcomes: []outcome{
				{fail: true},
				{fail: true},
				{fail: true, wantOpened: true},
			},
			wantState: StateOpen,
		},
		{
			name: "success between failures resets the count",
			opts: []Option{WithFailureThreshold(2)},
			outcomes: []outcome{
				{fail: true},
				{wantPrimary: true},
				{fail: true},
			},
			wantState: StateClosed,
		},
		{
			name: "closes after enough successes while open",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes: []outcome{
				{fail: true, wantOpened: true},
				{},
				{wantPrimary: true, wantClosed: true},
			},
			wantState: StateClosed,
		},
		{
			name: "failure while open restarts the recovery count",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes: []outcome{
				{fail: true, wantOpened: true},
				{},
				{fail: true},
				{},
			},
			wantState: StateOpen,
		},
		{
			name: "non-positive thresholds keep the defaults",
			opts: []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			outcomes: []outcome{
				{fail: true}, {fail: true}, {fail: true}, {fail: true},
				{fail: true, wantOpened: true},
			},
			wantState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("redis-ratelimit", tt.opts...)
			for i, o := range tt.outcomes {
				if o.fail {
					useFallback, change := b.RecordFailure()
					if b.State() == StateOpen {
						assert.True(t, useFallback, "outcome %d", i)
					}
					assert.Equal(t, o.wantOpened, change.Opened, "outcome %d", i)
					continue
				}
				usePrimary, change := b.RecordSuccess()
				assert.Equal(t, o.wantPrimary, usePrimary, "outcome %d", i)
				assert.Equal(t, o.wantClosed, change.Closed, "outcome %d", i)
			}
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantState == StateOpen, b.IsOpen())
		})
	}
}

func TestBreakerReset(t *testing.T) {
	b := New("redis-ratelimit", WithFailureThreshold(1))
	b.RecordFailure()
	assert.Equal(t, "open", b.State().String())

	b.Reset()

	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "redis-ratelimit", b.Name())
}

func TestBreakerRetriesWhileOpen(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := New("redis-ratelimit", WithFailureThreshold(1), WithRetryInterval(time.Second))
	assert.True(t, b.AllowPrimary(t0), "closed breaker always allows")

	b.RecordFailure()

	assert.False(t, b.AllowPrimary(t0), "no retry right after opening")
	assert.False(t, b.AllowPrimary(t0.Add(500*time.Millisecond)))
	assert.True(t, b.AllowPrimary(t0.Add(time.Second)))
	assert.False(t, b.AllowPrimary(t0.Add(1500*time.Millisecond)), "one retry per interval")
	assert.True(t, b.AllowPrimary(t0.Add(2*time.Second)))

	b.Reset()
	assert.True(t, b.AllowPrimary(t0.Add(2*time.Second)))
}

func TestBreakerConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("redis-ratelimit", WithFailureThreshold(10))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.True(t, b.IsOpen())
}
