// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package ipcsync

import (
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/shmipc/internal/syserr"
	"golang.org/x/sys/unix"
)

// futexWait parks the calling goroutine's underlying OS thread on word
// until it no longer holds expected, or timeout elapses. It is the one
// primitive the kernel guarantees operates correctly when word lives in
// memory shared across unrelated processes.
func futexWait(word *atomix.Uint32, expected uint32, timeout time.Duration, hasDeadline bool) error {
	var ts *unix.Timespec
	if hasDeadline {
		if timeout <= 0 {
			return ErrTimeout
		}
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	// No FUTEX_PRIVATE_FLAG: word lives in a MAP_SHARED mapping that may
	// sit at a different virtual address in each process, so the kernel
	// must resolve waiters by the underlying physical page, not by
	// (pid, vaddr) as the private futex fast path does.
	addr := (*uint32)(unsafe.Pointer(word))
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	default:
		return syserr.New("futex_wait", "", errno)
	}
}

// futexWake wakes up to n goroutines parked on word via futexWait.
func futexWake(word *atomix.Uint32, n int) {
	addr := (*uint32)(unsafe.Pointer(word))
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0)
}
