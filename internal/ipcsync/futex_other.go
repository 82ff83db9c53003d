// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package ipcsync

import (
	"runtime"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// futexWait is a portability shim for platforms without a futex syscall:
// it polls word with the same spin/yield/short-sleep back-off the ring
// layer uses internally, re-checking the deadline between rounds. A
// waiter only notices a change on its next poll; see futexWake.
func futexWait(word *atomix.Uint32, expected uint32, timeout time.Duration, hasDeadline bool) error {
	var deadline time.Time
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}
	sw := spin.Wait{}
	for word.LoadAcquire() == expected {
		if hasDeadline && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		sw.Once()
		runtime.Gosched()
	}
	return nil
}

// futexWake is a no-op on the polling fallback: waiters observe the new
// value on their next poll.
func futexWake(word *atomix.Uint32, n int) {}
