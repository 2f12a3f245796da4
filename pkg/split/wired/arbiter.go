package wired

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
)

// ArbiterState is the ownership of a half-duplex wire as seen by the Central.
type ArbiterState int

// Arbiter states.
const (
	// ArbiterIdle means the link is disabled and nobody owns the wire.
	ArbiterIdle ArbiterState = iota
	// ArbiterHolding means this side may transmit.
	ArbiterHolding
	// ArbiterAwaitingPeer means the token was handed to the peer and the
	// timeout is armed.
	ArbiterAwaitingPeer
)

// String implements fmt.Stringer.
func (s ArbiterState) String() string {
	switch s {
	case ArbiterIdle:
		return "idle"
	case ArbiterHolding:
		return "holding"
	case ArbiterAwaitingPeer:
		return "awaiting-peer"
	}
	return "unknown"
}

// Arbiter passes the half-duplex token between the Central and the Peripheral.
//
// Taking the token moves it to the peer and arms RxTimeout. Received bytes
// shorten the wait to RxCompleteTimeout, the quiet period ending the peer's
// burst. When the timer expires the token returns to Holding and OnGrant is
// invoked, which is expected to poll the peer again. The timer is re-armed
// after every grant so the token can't be stranded.
type Arbiter struct {
	RxTimeout         time.Duration
	RxCompleteTimeout time.Duration
	OnGrant           func()

	lock     sync.Mutex
	state    ArbiterState
	sawRx    bool
	grants   uint64
	timeouts uint64
	expire   *framework.DelayableWork
}

// NewArbiter creates an idle Arbiter running its timer work on q.
func NewArbiter(q *framework.WorkQueue, rxTimeout, rxCompleteTimeout time.Duration, onGrant func()) *Arbiter {
	a := &Arbiter{
		RxTimeout:         rxTimeout,
		RxCompleteTimeout: rxCompleteTimeout,
		OnGrant:           onGrant,
	}
	a.expire = q.NewDelayableWork(a.expired)
	return a
}

// State returns the current state.
func (a *Arbiter) State() ArbiterState {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.state
}

// Grants returns how many times the token was taken.
func (a *Arbiter) Grants() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.grants
}

// Timeouts returns how many times the peer stayed silent for RxTimeout.
func (a *Arbiter) Timeouts() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.timeouts
}

// Start begins arbitration as if the token had just been handed to the peer.
func (a *Arbiter) Start() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.state != ArbiterIdle {
		return
	}
	a.state, a.sawRx = ArbiterAwaitingPeer, false
	a.expire.Reschedule(a.RxTimeout)
}

// Stop cancels the timer and returns to Idle.
func (a *Arbiter) Stop() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.state = ArbiterIdle
	a.expire.Cancel()
}

// Take moves the token to the peer if this side holds it.
// The caller may transmit only when it returns true.
func (a *Arbiter) Take() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.state != ArbiterHolding {
		return false
	}
	a.state, a.sawRx = ArbiterAwaitingPeer, false
	a.grants++
	arbiterEvents.WithLabelValues("grant").Inc()
	a.expire.Reschedule(a.RxTimeout)
	return true
}

// RxActivity reports bytes received from the peer.
func (a *Arbiter) RxActivity() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.state != ArbiterAwaitingPeer {
		return
	}
	a.sawRx = true
	a.expire.Reschedule(a.RxCompleteTimeout)
}

func (a *Arbiter) expired(context.Context) {
	a.lock.Lock()
	if a.state == ArbiterIdle {
		a.lock.Unlock()
		return
	}
	if !a.sawRx && a.state == ArbiterAwaitingPeer {
		a.timeouts++
		arbiterEvents.WithLabelValues("timeout").Inc()
		glog.V(3).Info("peer silent, reclaiming token")
	}
	a.state = ArbiterHolding
	onGrant := a.OnGrant
	a.lock.Unlock()

	if onGrant != nil {
		onGrant()
	}

	// the grant didn't hand over the token, retry later
	a.lock.Lock()
	if a.state == ArbiterHolding {
		a.expire.Reschedule(a.RxTimeout)
	}
	a.lock.Unlock()
}
