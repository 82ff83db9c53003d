// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcsync

import (
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/shmipc/internal/shm"
)

const condRegionSize = shm.AccountingSize + 64

// Cond is a process-shared condition variable, always used together with
// a [Mutex]. It implements the classic futex sequence-counter protocol:
// [Cond.Wait] samples the sequence before releasing the mutex, then
// parks on that exact value so a Notify/Broadcast racing in after the
// sample but before the park is never missed.
type Cond struct {
	region *shm.Region
	seq    *atomix.Uint32
}

// OpenCond creates or opens the named condition variable.
func OpenCond(name string) (*Cond, error) {
	r, err := shm.Open(name, condRegionSize, shm.CreateOrOpen)
	if err != nil {
		return nil, err
	}
	return &Cond{region: r, seq: uint32At(r.Payload(), 0)}, nil
}

// Close releases this handle's reference to the condition variable's
// backing region.
func (c *Cond) Close() error { return c.region.Close() }

// ClearStorageCond unconditionally unlinks the named condition
// variable's backing region.
func ClearStorageCond(name string) error { return shm.ClearStorage(name) }

// Wait atomically releases mtx and parks until notified, signaled by
// another process's Notify/Broadcast on this name, or until timeout
// elapses (<=0 waits indefinitely). mtx is reacquired before returning,
// whether Wait returns due to wake or timeout. Returns false on timeout.
func (c *Cond) Wait(mtx *Mutex, timeout time.Duration) (bool, error) {
	seq := c.seq.LoadAcquire()
	mtx.Unlock()

	deadline, hasDeadline := deadlineFrom(timeout)
	woken := true
	for c.seq.LoadAcquire() == seq {
		var remaining time.Duration
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				woken = false
				break
			}
		}
		if err := futexWait(c.seq, seq, remaining, hasDeadline); err != nil {
			if err == ErrTimeout {
				continue
			}
			// Relock before surfacing the error: callers always expect
			// to hold mtx again on return from Wait.
			relockDeadline := remaining
			if !hasDeadline {
				relockDeadline = 0
			}
			_, _ = mtx.Lock(relockDeadline)
			return false, err
		}
	}

	var relockTimeout time.Duration
	if hasDeadline {
		relockTimeout = time.Until(deadline)
		if relockTimeout < 0 {
			relockTimeout = 0
		}
	}
	acquired, err := mtx.Lock(relockTimeout)
	if err != nil {
		return false, err
	}
	return woken && acquired, nil
}

// Notify wakes at least one thread parked in Wait.
func (c *Cond) Notify() {
	c.seq.AddAcqRel(1)
	futexWake(c.seq, 1)
}

// Broadcast wakes every thread parked in Wait.
func (c *Cond) Broadcast() {
	c.seq.AddAcqRel(1)
	futexWake(c.seq, maxWaiters)
}

// maxWaiters bounds how many waiters a single FUTEX_WAKE call requests;
// the kernel caps it at however many are actually parked.
const maxWaiters = 1 << 30
