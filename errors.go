// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"errors"
	"fmt"

	"code.hybscloud.com/shmipc/internal/ring"
	"code.hybscloud.com/shmipc/internal/shm"
)

// ErrNameInvalid indicates an empty or over-length channel name.
var ErrNameInvalid = shm.ErrNameInvalid

// ErrCapacityMismatch indicates Open found an existing ring whose
// header disagrees with the caller's requested capacity, payload size
// or transport/relation combination.
var ErrCapacityMismatch = ring.ErrCapacityMismatch

// ErrSlotsExhausted indicates a broadcast channel already has
// [ring.MaxSubscribers] attached subscribers, or that allocating a
// subscriber id lost every retry to concurrent attaches or detaches.
var ErrSlotsExhausted = ring.ErrSlotsExhausted

// ErrDisconnected indicates an operation on a handle whose waiter has
// been disabled, i.e. Disconnect has already run on this handle or the
// channel is tearing down.
var ErrDisconnected = errors.New("shmipc: disconnected")

// ErrTimeout is the timeout error kind. No function in this package
// returns it: [Chan.Recv] reports a timeout as an empty [Buffer] with
// a nil error, and [Chan.Send] waits for room without a deadline.
var ErrTimeout = errors.New("shmipc: timed out")

// SystemError wraps a failure from an underlying OS primitive (shared
// memory, futex, mutex init). It carries the platform error verbatim
// so callers can inspect errno-level detail via [errors.As] without
// shmipc needing to re-derive a taxonomy of OS failures.
type SystemError struct {
	Op    string
	Name  string
	Errno error
}

func (e *SystemError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("shmipc: %s: %v", e.Op, e.Errno)
	}
	return fmt.Sprintf("shmipc: %s(%q): %v", e.Op, e.Name, e.Errno)
}

func (e *SystemError) Unwrap() error { return e.Errno }

// IsWouldBlock reports whether err indicates a non-blocking operation
// could not proceed immediately.
func IsWouldBlock(err error) bool { return ring.IsWouldBlock(err) }
