// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ipcsync provides process-shared synchronization primitives —
// mutex, condition variable, counting semaphore — each backed by a small
// named shared-memory block, grounded on cpp-ipc's libipc/mutex.h,
// libipc/condition.h and libipc/semaphore.h contracts.
//
// All mutable state lives in shared memory reached through
// [code.hybscloud.com/shmipc/internal/shm]; waiting and waking use the
// Linux futex operations (the one kernel primitive guaranteed to work
// correctly across unrelated address spaces mapping the same memory —
// a [sync.Mutex] is not process-shared). Non-Linux platforms fall back
// to a bounded spin/yield loop; see futex_other.go.
package ipcsync

import (
	"errors"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/shmipc/internal/shm"
)

// ErrTimeout is returned by a timed Lock/Wait that reached its deadline
// with no progress.
var ErrTimeout = errors.New("ipcsync: timed out")

// mutexState is the futex word: 0 = unlocked, 1 = locked/uncontended,
// 2 = locked/contended (at least one waiter parked).
const (
	mutexUnlocked   uint32 = 0
	mutexLocked     uint32 = 1
	mutexContended  uint32 = 2
	mutexRegionSize        = shm.AccountingSize + 64
)

// Mutex is a non-recursive, process-shared mutex named deterministically
// from a caller-supplied name.
type Mutex struct {
	region *shm.Region
	word   *atomix.Uint32
}

// OpenMutex creates or opens the named mutex.
func OpenMutex(name string) (*Mutex, error) {
	r, err := shm.Open(name, mutexRegionSize, shm.CreateOrOpen)
	if err != nil {
		return nil, err
	}
	return &Mutex{region: r, word: uint32At(r.Payload(), 0)}, nil
}

// Close releases this handle's reference to the mutex's backing region.
func (m *Mutex) Close() error { return m.region.Close() }

// ClearStorageMutex unconditionally unlinks the named mutex's backing
// region, for crash-recovery tooling.
func ClearStorageMutex(name string) error { return shm.ClearStorage(name) }

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	return m.word.CompareAndSwapAcqRel(mutexUnlocked, mutexLocked)
}

// Lock acquires the mutex, blocking up to timeout. timeout <= 0 blocks
// indefinitely. The three-way result matches §4.B's
// {acquired, timed-out, error} contract: (true, nil) acquired,
// (false, nil) timed out cleanly, (false, err) a system error.
func (m *Mutex) Lock(timeout time.Duration) (acquired bool, err error) {
	if m.word.CompareAndSwapAcqRel(mutexUnlocked, mutexLocked) {
		return true, nil
	}
	deadline, hasDeadline := deadlineFrom(timeout)
	for {
		if m.word.SwapAcqRel(mutexContended) == mutexUnlocked {
			return true, nil
		}
		var remaining time.Duration
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
		}
		if werr := futexWait(m.word, mutexContended, remaining, hasDeadline); werr != nil {
			if errors.Is(werr, ErrTimeout) {
				continue // re-check predicate; might have been woken and relocked by someone else
			}
			return false, werr
		}
	}
}

// Unlock releases the mutex. Unlock on an already-unlocked mutex is a
// caller error and is not detected (the mutex is not recursive and does
// not track an owner, matching §4.B).
func (m *Mutex) Unlock() {
	if m.word.SwapAcqRel(mutexUnlocked) == mutexContended {
		futexWake(m.word, 1)
	}
}
