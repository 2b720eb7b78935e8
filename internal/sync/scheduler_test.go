package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passRecord struct {
	source string
	err    error
}

// newObservedScheduler returns a scheduler whose completed passes are
// delivered on the returned channel.
func newObservedScheduler(t *testing.T, pass PassFunc, interval time.Duration) (*Scheduler, <-chan passRecord) {
	t.Helper()

	s := NewScheduler(pass, interval, testLogger(t))
	ch := make(chan passRecord, 64)

	s.afterPass = func(source string, _ *PassReport, err error) {
		select {
		case ch <- passRecord{source: source, err: err}:
		default:
		}
	}

	t.Cleanup(s.Stop)

	return s, ch
}

func waitPass(t *testing.T, ch <-chan passRecord) passRecord {
	t.Helper()

	select {
	case rec := <-ch:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pass")
		return passRecord{}
	}
}

func noopPass(context.Context) (*PassReport, error) {
	return &PassReport{}, nil
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	t.Parallel()

	s := NewScheduler(noopPass, 0, testLogger(t))
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	t.Parallel()

	s, ch := newObservedScheduler(t, noopPass, time.Hour)
	s.Start(t.Context())

	rec := waitPass(t, ch)
	assert.Equal(t, passSourceStart, rec.source)
	assert.NoError(t, rec.err)
}

func TestScheduler_Ticks(t *testing.T) {
	t.Parallel()

	s, ch := newObservedScheduler(t, noopPass, 10*time.Millisecond)
	s.Start(t.Context())

	waitPass(t, ch)
	assert.Equal(t, passSourceTick, waitPass(t, ch).source)
}

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	s, ch := newObservedScheduler(t, noopPass, time.Hour)
	s.Start(t.Context())
	waitPass(t, ch)

	s.Trigger()
	assert.Equal(t, passSourceTrigger, waitPass(t, ch).source)
}

func TestScheduler_TriggerNeverBlocks(t *testing.T) {
	t.Parallel()

	s := NewScheduler(noopPass, time.Hour, testLogger(t))

	for range 10 {
		s.Trigger()
	}

	assert.Len(t, s.trigger, 1)
}

func TestScheduler_SetInterval(t *testing.T) {
	t.Parallel()

	s, ch := newObservedScheduler(t, noopPass, time.Hour)
	s.Start(t.Context())
	waitPass(t, ch)

	s.SetInterval(10 * time.Millisecond)
	assert.Equal(t, passSourceTick, waitPass(t, ch).source)

	s.SetInterval(0)
	s.mu.Lock()
	assert.Equal(t, 10*time.Millisecond, s.interval)
	s.mu.Unlock()
}

func TestScheduler_PassErrorAndPanicDoNotStopLoop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	pass := func(context.Context) (*PassReport, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("store unavailable")
		case 2:
			panic("bad pass")
		default:
			return &PassReport{}, nil
		}
	}

	s, ch := newObservedScheduler(t, pass, time.Hour)
	s.Start(t.Context())

	assert.ErrorContains(t, waitPass(t, ch).err, "store unavailable")

	s.Trigger()
	assert.ErrorContains(t, waitPass(t, ch).err, "panic")

	s.Trigger()
	assert.NoError(t, waitPass(t, ch).err)
}

func TestScheduler_StartAndStopIdempotent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	pass := func(context.Context) (*PassReport, error) {
		calls.Add(1)
		return &PassReport{}, nil
	}

	s, ch := newObservedScheduler(t, pass, time.Hour)
	s.Start(t.Context())
	s.Start(t.Context())
	waitPass(t, ch)

	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_StopWaitsForInFlightPass(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})

	var finished atomic.Bool

	pass := func(ctx context.Context) (*PassReport, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)

		return &PassReport{Interrupted: true}, nil
	}

	s := NewScheduler(pass, time.Hour, testLogger(t))
	s.Start(t.Context())

	<-started
	s.Stop()

	assert.True(t, finished.Load())
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	t.Parallel()

	s, ch := newObservedScheduler(t, noopPass, time.Hour)

	s.Start(t.Context())
	waitPass(t, ch)
	s.Stop()

	s.Start(t.Context())
	assert.Equal(t, passSourceStart, waitPass(t, ch).source)
}

func TestScheduler_DrivesEngine(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, acceptAll)
	ids := env.insertN(t, 2)

	s, ch := newObservedScheduler(t, env.engine.RunPass, time.Hour)
	s.Start(t.Context())
	require.NoError(t, waitPass(t, ch).err)

	for _, id := range ids {
		assert.True(t, env.get(t, id).Synced)
	}
}
