package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/config"
	"github.com/me/supertask/internal/optimizer"
	"github.com/me/supertask/internal/task"
)

// orderRecorder registers tasks that append their name when dispatched.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) register(t *testing.T, e *Engine, names ...string) {
	t.Helper()
	for _, n := range names {
		name := n
		_, err := e.RegisterLocal(name, func(_ capability.Context, _ []any, done task.Callback) {
			r.mu.Lock()
			r.order = append(r.order, name)
			r.mu.Unlock()
			done(nil)
		})
		require.NoError(t, err)
	}
}

func (r *orderRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// prime fakes completed calls so that the task has the given mean.
func prime(t *testing.T, e *Engine, name string, mean time.Duration, rounds int) {
	t.Helper()
	m, ok := e.registry.Lookup(name)
	require.True(t, ok)
	for i := 0; i < rounds; i++ {
		m.Complete(time.Now().Add(-mean))
	}
}

func dispatchOrder(t *testing.T, level optimizer.Level, flags optimizer.Flag, setup func(*Engine)) []string {
	t.Helper()
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 1
		c.OptimizationLevel = int(level)
		c.OptimizationFlags = uint(flags)
	})
	rec := &orderRecorder{}
	rec.register(t, e, "slow", "fast", "new")
	prime(t, e, "slow", 50*time.Millisecond, 1)
	prime(t, e, "fast", time.Millisecond, 1)
	if setup != nil {
		setup(e)
	}

	release := hold(e)
	for _, n := range []string{"slow", "fast", "new"} {
		require.NoError(t, e.Invoke(n, task.Noop))
	}
	release()
	idle(t, e)
	return rec.get()
}

func TestOptimizer_O0KeepsFIFO(t *testing.T) {
	got := dispatchOrder(t, optimizer.LevelO0, 0, nil)
	if diff := cmp.Diff([]string{"slow", "fast", "new"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizer_O2AscendingAET(t *testing.T) {
	got := dispatchOrder(t, optimizer.LevelO2, 0, nil)
	if diff := cmp.Diff([]string{"new", "fast", "slow"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizer_O2DescendingAET(t *testing.T) {
	got := dispatchOrder(t, optimizer.LevelO2, optimizer.FlagAETDesc|optimizer.FlagRoundsDesc, nil)
	if diff := cmp.Diff([]string{"slow", "fast", "new"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizer_O3Priority(t *testing.T) {
	// A heavy priority weight lets priority dominate execution time.
	o := optimizer.New()
	o.Priority.Weight = 10
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 1
		c.OptimizationLevel = int(optimizer.LevelO3)
	}, WithOptimizer(o))
	rec := &orderRecorder{}
	rec.register(t, e, "a", "b", "c")
	e.Get("a").SetPriority(3)
	e.Get("b").SetPriority(1)
	e.Get("c").SetPriority(2)

	release := hold(e)
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, e.Invoke(n, task.Noop))
	}
	release()
	idle(t, e)
	if diff := cmp.Diff([]string{"b", "c", "a"}, rec.get()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizer_O1SkipsSingleBatch(t *testing.T) {
	var reordered []bool
	var mu sync.Mutex
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 10
		c.OptimizationLevel = int(optimizer.LevelO1)
	}, WithTickObserver(func(r TickReport) {
		mu.Lock()
		reordered = append(reordered, r.Reordered)
		mu.Unlock()
	}))
	_, _ = e.RegisterLocal("echo", echo)

	release := hold(e)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Invoke("echo", task.Noop))
	}
	release()
	idle(t, e)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false}, reordered)
}

func TestReclaim_HungTaskFreesSlot(t *testing.T) {
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 1
		c.Reclaim = true
		c.Timeout = 20 * time.Millisecond
	})
	unblock := make(chan struct{})
	_, _ = e.RegisterLocal("hung", func(_ capability.Context, _ []any, done task.Callback) {
		go func() {
			<-unblock
			done(nil, "finally")
		}()
	})
	_, _ = e.RegisterLocal("echo", echo)

	hungCb, hungCh := collect()
	require.NoError(t, e.Invoke("hung", hungCb))
	echoCb, echoCh := collect()
	require.NoError(t, e.Invoke("echo", "next", echoCb))

	// The second job only gets the single slot after the timeout.
	assert.Equal(t, []any{"next"}, await(t, echoCh).results)
	select {
	case <-hungCh:
		t.Fatal("timeout surfaced to the caller")
	default:
	}

	close(unblock)
	o := await(t, hungCh)
	require.NoError(t, o.err)
	assert.Equal(t, []any{"finally"}, o.results)
	assert.Equal(t, 1, e.Get("hung").Stats().ExecutionRounds)
	idle(t, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Zero(t, e.occupied)
}

func TestReclaim_FastCompletionStopsTimer(t *testing.T) {
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 2
		c.Reclaim = true
		c.Timeout = 10 * time.Millisecond
	})
	_, _ = e.RegisterLocal("echo", echo)

	for i := 0; i < 20; i++ {
		cb, ch := collect()
		require.NoError(t, e.Invoke("echo", i, cb))
		assert.Equal(t, []any{i}, await(t, ch).results)
	}
	// Let any stray timers fire; a double release would drive occupied negative.
	time.Sleep(30 * time.Millisecond)
	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Zero(t, e.occupied)
}

func TestReclaim_BlocksWhileSlotsBusy(t *testing.T) {
	e := newEngine(t, func(c *config.EngineConfig) {
		c.Concurrency = 1
		c.Reclaim = true
		c.Timeout = time.Hour
	})
	var mu sync.Mutex
	var pending []task.Callback
	_, _ = e.RegisterLocal("park", func(_ capability.Context, _ []any, done task.Callback) {
		mu.Lock()
		pending = append(pending, done)
		mu.Unlock()
	})

	require.NoError(t, e.Invoke("park", task.Noop))
	require.NoError(t, e.Invoke("park", task.Noop))
	parked := func(n int) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(pending) == n
		}
	}
	require.Eventually(t, parked(1), 5*time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Backlog())
	assert.Equal(t, 1, e.InFlight())

	mu.Lock()
	first := pending[0]
	mu.Unlock()
	first(nil)

	require.Eventually(t, parked(2), 5*time.Second, time.Millisecond)
	assert.Zero(t, e.Backlog())
	mu.Lock()
	second := pending[1]
	mu.Unlock()
	second(nil)
	idle(t, e)
}
