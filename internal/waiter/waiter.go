// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package waiter combines a process-shared mutex and condition variable
// with a process-local enabled flag, so a blocked producer or consumer
// can be parked without busy-waiting and woken promptly on teardown.
//
// Per SPEC_FULL.md's Design Notes (source §9), the enabled flag lives in
// process-local memory rather than the shared region: a handle in one
// process must be able to abort its own waits without touching the
// shared predicate another process's handle is evaluating.
package waiter

import (
	"sync/atomic"
	"time"

	"code.hybscloud.com/shmipc/internal/ipcsync"
)

// Waiter parks goroutines on a predicate evaluated over shared state,
// guarded by a named process-shared mutex+condvar pair.
type Waiter struct {
	mtx     *ipcsync.Mutex
	cv      *ipcsync.Cond
	enabled atomic.Bool
}

// New wraps an already-open mutex/condvar pair. The waiter starts enabled.
func New(mtx *ipcsync.Mutex, cv *ipcsync.Cond) *Waiter {
	w := &Waiter{mtx: mtx, cv: cv}
	w.enabled.Store(true)
	return w
}

// WaitIf holds the mutex and loops while enabled && predicate() is true,
// parking on the condition variable between checks. Returns true on a
// clean wake where the predicate no longer holds, false on timeout or
// on Disable having been called (either locally or observed via the
// shared predicate).
func (w *Waiter) WaitIf(predicate func() bool, timeout time.Duration) bool {
	acquired, err := w.mtx.Lock(timeout)
	if err != nil || !acquired {
		return false
	}
	defer w.mtx.Unlock()

	deadline, hasDeadline := deadlineFromTimeout(timeout)
	for w.enabled.Load() && predicate() {
		var remaining time.Duration
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false
			}
		}
		woken, werr := w.cv.Wait(w.mtx, remaining)
		if werr != nil || !woken {
			return false
		}
	}
	return w.enabled.Load()
}

// Notify wakes exactly one parked waiter.
func (w *Waiter) Notify() { w.cv.Notify() }

// Broadcast wakes every parked waiter.
func (w *Waiter) Broadcast() { w.cv.Broadcast() }

// Disable marks this handle as disabled and broadcasts so every thread
// parked in WaitIf observes the flag and returns promptly, without
// waiting for its predicate to change. Disable is visible to every
// thread that subsequently re-acquires the waiter's mutex.
func (w *Waiter) Disable() {
	w.enabled.Store(false)
	w.cv.Broadcast()
}

// Enabled reports whether this handle has not been disabled.
func (w *Waiter) Enabled() bool { return w.enabled.Load() }

// Close releases the underlying mutex and condition variable handles.
func (w *Waiter) Close() error {
	err := w.cv.Close()
	if merr := w.mtx.Close(); err == nil {
		err = merr
	}
	return err
}

func deadlineFromTimeout(timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}
