package framework

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// WorkHandler is the body of a work item.
type WorkHandler func(context.Context)

// WorkQueue runs submitted work items one at a time on a single goroutine.
// A work item is never queued twice: submitting an item that is already
// pending is a no-op, while submitting it again during its own execution
// queues one more run.
type WorkQueue struct {
	name string

	items workList
	lock  sync.Mutex

	wakeUpCh chan struct{}
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

type workList struct {
	head *Work
	tail *Work
}

func (l *workList) append(w *Work) {
	if l.head == nil {
		l.head = w
	} else {
		l.tail.next = w
	}
	l.tail = w
}

func (l *workList) splice(src *workList) {
	l.head, l.tail = src.head, src.tail
	src.head, src.tail = nil, nil
}

func (l *workList) remove(w *Work) bool {
	var prev *Work
	for item := l.head; item != nil; prev, item = item, item.next {
		if item != w {
			continue
		}
		if prev == nil {
			l.head = item.next
		} else {
			prev.next = item.next
		}
		if l.tail == item {
			l.tail = prev
		}
		item.next = nil
		return true
	}
	return false
}

// NewWorkQueue creates a WorkQueue.
func NewWorkQueue(name string) *WorkQueue {
	return &WorkQueue{name: name, wakeUpCh: make(chan struct{}, 1)}
}

// Name implements Named.
func (q *WorkQueue) Name() string {
	return q.name
}

// Run implements Runnable.
func (q *WorkQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wakeUpCh:
			q.runPending(ctx)
		}
	}
}

// Start runs the queue in background until Stop.
func (q *WorkQueue) Start() *WorkQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel, q.doneCh = cancel, make(chan struct{})
	go func() {
		defer close(q.doneCh)
		q.Run(ctx)
	}()
	return q
}

// Stop terminates a queue started by Start and waits for the
// running item to finish.
func (q *WorkQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
		<-q.doneCh
		q.cancel = nil
	}
}

// NewWork creates a work item bound to this queue.
func (q *WorkQueue) NewWork(handler WorkHandler) *Work {
	return &Work{queue: q, handler: handler}
}

// NewDelayableWork creates a delayable work item bound to this queue.
func (q *WorkQueue) NewDelayableWork(handler WorkHandler) *DelayableWork {
	return &DelayableWork{work: q.NewWork(handler)}
}

func (q *WorkQueue) submit(w *Work) bool {
	if !w.pending.CompareAndSwap(false, true) {
		return false
	}
	q.lock.Lock()
	q.items.append(w)
	q.lock.Unlock()
	select {
	case q.wakeUpCh <- struct{}{}:
	default:
	}
	return true
}

func (q *WorkQueue) cancelWork(w *Work) bool {
	q.lock.Lock()
	removed := q.items.remove(w)
	q.lock.Unlock()
	if removed {
		w.pending.Store(false)
	}
	return removed
}

func (q *WorkQueue) runPending(ctx context.Context) {
	for {
		q.lock.Lock()
		w := q.items.head
		if w != nil {
			q.items.head = w.next
			if q.items.head == nil {
				q.items.tail = nil
			}
			w.next = nil
		}
		q.lock.Unlock()
		if w == nil {
			return
		}
		w.pending.Store(false)
		glog.V(5).Infof("WorkQueue[%s] run %p", q.name, w)
		w.handler(ctx)
	}
}

// Work is a deferred unit of processing executed by a WorkQueue.
type Work struct {
	queue   *WorkQueue
	handler WorkHandler
	pending atomic.Bool
	next    *Work
}

// Submit queues the work item. It returns false if already pending.
func (w *Work) Submit() bool {
	return w.queue.submit(w)
}

// Cancel removes the item from the queue if it hasn't started.
func (w *Work) Cancel() bool {
	return w.queue.cancelWork(w)
}

// Pending returns true if the item is queued and not yet running.
func (w *Work) Pending() bool {
	return w.pending.Load()
}

// DelayableWork is a Work submitted after a delay.
type DelayableWork struct {
	work  *Work
	lock  sync.Mutex
	timer *time.Timer
	gen   uint64
	armed bool
}

// Schedule submits the work after delay unless it is already scheduled
// or pending. It returns false when nothing changed.
func (d *DelayableWork) Schedule(delay time.Duration) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.armed || d.work.Pending() {
		return false
	}
	d.arm(delay)
	return true
}

// Reschedule submits the work after delay, replacing any earlier schedule.
func (d *DelayableWork) Reschedule(delay time.Duration) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.disarm()
	d.work.Cancel()
	d.arm(delay)
}

// Cancel drops any pending schedule or submission. A run in progress
// is not interrupted.
func (d *DelayableWork) Cancel() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.disarm()
	d.work.Cancel()
}

// Scheduled returns true while the delay is counting down.
func (d *DelayableWork) Scheduled() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.armed
}

// Submit queues the work immediately, bypassing any delay.
func (d *DelayableWork) Submit() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.disarm()
	return d.work.Submit()
}

func (d *DelayableWork) arm(delay time.Duration) {
	if delay <= 0 {
		d.work.Submit()
		return
	}
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = time.AfterFunc(delay, func() {
		d.lock.Lock()
		if d.gen != gen || !d.armed {
			d.lock.Unlock()
			return
		}
		d.armed = false
		d.work.Submit()
		d.lock.Unlock()
	})
}

func (d *DelayableWork) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
	d.gen++
}

// Timer invokes a callback periodically on its own goroutine.
type Timer struct {
	fn     func()
	lock   sync.Mutex
	stopCh chan struct{}
}

// NewTimer creates a stopped Timer.
func NewTimer(fn func()) *Timer {
	return &Timer{fn: fn}
}

// Start (re)starts the timer with the given period.
func (t *Timer) Start(period time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stopLocked()
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				t.fn()
			}
		}
	}()
}

// Stop stops the timer. It may be called from the callback.
func (t *Timer) Stop() {
	t.lock.Lock()
	t.stopLocked()
	t.lock.Unlock()
}

// Running returns true between Start and Stop.
func (t *Timer) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopCh != nil
}

func (t *Timer) stopLocked() {
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}
