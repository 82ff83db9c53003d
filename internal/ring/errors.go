// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates a try-operation could not proceed immediately
// (ring full on push, ring empty on pop).
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency with
// the sibling code.hybscloud.com/lfq library, which sources the same
// sentinel for its in-process queues.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrCapacityMismatch indicates [Open] found a header whose stored
// capacity, payload size or kind disagrees with the caller's request.
var ErrCapacityMismatch = errors.New("ring: capacity mismatch")

// ErrSlotsExhausted indicates a broadcast ring already has
// [MaxSubscribers] attached and cannot accept another, or that
// [BroadcastRegistry.Attach] lost every CAS attempt to concurrent
// attaches or detaches.
var ErrSlotsExhausted = errors.New("ring: subscriber slots exhausted")

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }
