package framework

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkCoalesce(t *testing.T) {
	q := NewWorkQueue("test")
	var runs atomic.Int32
	w := q.NewWork(func(context.Context) { runs.Add(1) })
	require.True(t, w.Submit())
	require.False(t, w.Submit())
	require.True(t, w.Pending())

	q.Start()
	defer q.Stop()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	require.False(t, w.Pending())

	require.True(t, w.Submit())
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestWorkOrder(t *testing.T) {
	q := NewWorkQueue("test")
	resultCh := make(chan int, 3)
	for i := 0; i < 3; i++ {
		n := i
		q.NewWork(func(context.Context) { resultCh <- n }).Submit()
	}
	q.Start()
	defer q.Stop()
	for i := 0; i < 3; i++ {
		select {
		case n := <-resultCh:
			require.Equal(t, i, n)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestWorkCancel(t *testing.T) {
	q := NewWorkQueue("test")
	var runs atomic.Int32
	w := q.NewWork(func(context.Context) { runs.Add(1) })
	w.Submit()
	require.True(t, w.Cancel())
	require.False(t, w.Pending())
	require.False(t, w.Cancel())
	q.Start()
	marker := make(chan struct{})
	q.NewWork(func(context.Context) { close(marker) }).Submit()
	<-marker
	q.Stop()
	require.Equal(t, int32(0), runs.Load())
}

func TestResubmitWhileRunning(t *testing.T) {
	q := NewWorkQueue("test").Start()
	defer q.Stop()
	var runs atomic.Int32
	var w *Work
	w = q.NewWork(func(context.Context) {
		if runs.Add(1) == 1 {
			require.True(t, w.Submit())
		}
	})
	w.Submit()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestDelayableWork(t *testing.T) {
	q := NewWorkQueue("test").Start()
	defer q.Stop()
	firedCh := make(chan time.Time, 4)
	d := q.NewDelayableWork(func(context.Context) { firedCh <- time.Now() })

	start := time.Now()
	require.True(t, d.Schedule(20*time.Millisecond))
	require.True(t, d.Scheduled())
	require.False(t, d.Schedule(time.Millisecond))
	fired := <-firedCh
	require.GreaterOrEqual(t, fired.Sub(start), 20*time.Millisecond)
	require.False(t, d.Scheduled())

	d.Schedule(time.Hour)
	d.Reschedule(time.Millisecond)
	select {
	case <-firedCh:
	case <-time.After(time.Second):
		t.Fatal("rescheduled work not fired")
	}

	d.Schedule(10 * time.Millisecond)
	d.Cancel()
	require.False(t, d.Scheduled())
	select {
	case <-firedCh:
		t.Fatal("canceled work fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer(t *testing.T) {
	var ticks atomic.Int32
	tm := NewTimer(func() { ticks.Add(1) })
	require.False(t, tm.Running())
	tm.Start(time.Millisecond)
	require.True(t, tm.Running())
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	tm.Stop()
	require.False(t, tm.Running())
}
