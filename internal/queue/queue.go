// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue binds a ring-buffer variant (internal/ring) and a
// connection registry to a [waiter.Waiter], exposing the blocking
// push/pop surface component H builds channels and routes on top of.
package queue

import (
	"time"

	"code.hybscloud.com/shmipc/internal/ring"
	"code.hybscloud.com/shmipc/internal/waiter"
)

// Queue is either a unicast ring (any of the four SPSC/MPSC/SPMC/MPMC
// protocols, addressed through the common [ring.Queue] interface) or a
// broadcast ring addressed with a fixed subscriber id. Exactly one of
// the ring fields is non-nil.
type Queue struct {
	uni          ring.Queue
	uniReg       *ring.UnicastRegistry
	bc           *ring.Broadcast
	bcReg        *ring.BroadcastRegistry
	subscriberID uint32
	hasSubscriber bool
	w            *waiter.Waiter
}

// NewUnicast binds a unicast ring variant, its registry and a waiter
// into a Queue.
func NewUnicast(q ring.Queue, reg *ring.UnicastRegistry, w *waiter.Waiter) *Queue {
	return &Queue{uni: q, uniReg: reg, w: w}
}

// NewBroadcastSender binds the producer side of a broadcast ring: it
// has no subscriber id of its own.
func NewBroadcastSender(bc *ring.Broadcast, reg *ring.BroadcastRegistry, w *waiter.Waiter) *Queue {
	return &Queue{bc: bc, bcReg: reg, w: w}
}

// NewBroadcastReceiver binds one subscriber's view of a broadcast ring.
func NewBroadcastReceiver(bc *ring.Broadcast, reg *ring.BroadcastRegistry, w *waiter.Waiter, subscriberID uint32) *Queue {
	return &Queue{bc: bc, bcReg: reg, w: w, subscriberID: subscriberID, hasSubscriber: true}
}

func (q *Queue) tryPush(elem []byte) error {
	if q.bc != nil {
		return q.bc.TryPush(elem)
	}
	return q.uni.TryPush(elem)
}

func (q *Queue) tryPop() ([]byte, error) {
	if q.bc != nil {
		return q.bc.TryPop(q.subscriberID)
	}
	return q.uni.TryPop()
}

// TryPush attempts to enqueue elem without ever blocking or
// force-pushing. Returns [ring.ErrWouldBlock] if the ring is full.
func (q *Queue) TryPush(elem []byte) error {
	if err := q.tryPush(elem); err != nil {
		return err
	}
	q.w.Notify()
	return nil
}

// TryPop attempts to dequeue the next element without blocking.
// Returns [ring.ErrWouldBlock] if the ring is empty.
func (q *Queue) TryPop() ([]byte, error) {
	return q.tryPop()
}

// Push enqueues elem, waiting up to timeout (<=0 indefinitely) for
// room. For a broadcast sender, a slot still held by slow subscribers
// is force-pushed rather than waited on, matching §4.E.5/§4.G: a
// broadcast send never truly blocks the producer, just may cost slow
// subscribers their stale message. After the fast-path attempt it makes
// one WaitIf call, which retries on every wake-up and may park more
// than once before the retry succeeds, the timeout elapses or the
// waiter is disabled.
func (q *Queue) Push(elem []byte, timeout time.Duration) error {
	if err := q.tryPush(elem); err == nil {
		q.w.Notify()
		return nil
	} else if !ring.IsWouldBlock(err) {
		return err
	}

	if q.bc != nil {
		q.bc.Push(elem)
		q.w.Notify()
		return nil
	}

	var lastErr error
	succeeded := false
	woke := q.w.WaitIf(func() bool {
		lastErr = q.tryPush(elem)
		if lastErr == nil {
			succeeded = true
			return false
		}
		return ring.IsWouldBlock(lastErr)
	}, timeout)

	if succeeded {
		q.w.Notify()
		return nil
	}
	if lastErr != nil && !ring.IsWouldBlock(lastErr) {
		return lastErr
	}
	if !woke && !q.w.Enabled() {
		return ErrDisconnected
	}
	return ErrTimeout
}

// Pop dequeues the next element, waiting up to timeout (<=0
// indefinitely) if the ring is empty. A successful pop broadcasts on
// the waiter so producers parked in Push re-check for room.
func (q *Queue) Pop(timeout time.Duration) ([]byte, error) {
	if elem, err := q.tryPop(); err == nil {
		q.w.Broadcast()
		return elem, nil
	} else if !ring.IsWouldBlock(err) {
		return nil, err
	}

	var result []byte
	var lastErr error
	succeeded := false
	woke := q.w.WaitIf(func() bool {
		result, lastErr = q.tryPop()
		if lastErr == nil {
			succeeded = true
			return false
		}
		return ring.IsWouldBlock(lastErr)
	}, timeout)

	if succeeded {
		q.w.Broadcast()
		return result, nil
	}
	if lastErr != nil && !ring.IsWouldBlock(lastErr) {
		return nil, lastErr
	}
	if !woke && !q.w.Enabled() {
		return nil, ErrDisconnected
	}
	return nil, ErrTimeout
}

// AttachedCount returns the number of endpoints currently attached to
// this queue's ring.
func (q *Queue) AttachedCount() int {
	if q.bc != nil {
		return q.bcReg.Count()
	}
	return q.uniReg.Count()
}

// WaitForAttached blocks up to timeout until at least n endpoints are
// attached, letting a producer delay its first send until consumers
// are known present (§4.G), preventing early-loss races.
func (q *Queue) WaitForAttached(n int, timeout time.Duration) bool {
	if q.AttachedCount() >= n {
		return true
	}
	return q.w.WaitIf(func() bool {
		return q.AttachedCount() < n
	}, timeout)
}

// Disable releases any blocked Push/Pop on this handle promptly,
// matching §4.C's teardown-disable contract.
func (q *Queue) Disable() { q.w.Disable() }
