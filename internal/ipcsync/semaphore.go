// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcsync

import (
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/shmipc/internal/shm"
)

const semaphoreRegionSize = shm.AccountingSize + 64

// Semaphore is a process-shared counting semaphore.
type Semaphore struct {
	region *shm.Region
	count  *atomix.Uint32
}

// OpenSemaphore creates or opens the named semaphore. initial is only
// used when this call creates the backing region.
func OpenSemaphore(name string, initial uint32) (*Semaphore, error) {
	r, err := shm.Open(name, semaphoreRegionSize, shm.CreateOrOpen)
	if err != nil {
		return nil, err
	}
	s := &Semaphore{region: r, count: uint32At(r.Payload(), 0)}
	if r.Created() {
		s.count.StoreRelease(initial)
	}
	return s, nil
}

// Close releases this handle's reference to the semaphore's backing
// region.
func (s *Semaphore) Close() error { return s.region.Close() }

// ClearStorageSemaphore unconditionally unlinks the named semaphore's
// backing region.
func ClearStorageSemaphore(name string) error { return shm.ClearStorage(name) }

// Wait decrements the count, blocking up to timeout (<=0 indefinitely)
// while it is zero. Returns false on timeout.
func (s *Semaphore) Wait(timeout time.Duration) (bool, error) {
	deadline, hasDeadline := deadlineFrom(timeout)
	for {
		cur := s.count.LoadAcquire()
		if cur > 0 && s.count.CompareAndSwapAcqRel(cur, cur-1) {
			return true, nil
		}
		var remaining time.Duration
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
		}
		if err := futexWait(s.count, 0, remaining, hasDeadline); err != nil {
			if err == ErrTimeout {
				continue
			}
			return false, err
		}
	}
}

// Post increments the count by n and wakes up to n waiters.
func (s *Semaphore) Post(n uint32) {
	s.count.AddAcqRel(int32(n))
	futexWake(s.count, int(n))
}
