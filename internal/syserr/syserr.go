// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package syserr carries a platform error code across the boundary
// between an OS primitive (map, unlink, mutex init, futex wait) and the
// structured error kinds the core surfaces, per the "System error"
// kind documented in SPEC_FULL.md's error-handling section.
//
// This package plays the role spec.md §1 calls out as an external
// collaborator ("platform-specific system-error formatting"): it has no
// core invariant, and a caller embedding this module could swap it for
// any formatter that produces an error satisfying the standard error
// interfaces.
package syserr

import "fmt"

// Error wraps a platform error code (a syscall errno, a Windows error
// code, and so on) with the operation and resource name that produced
// it, so callers can log a single structured value instead of threading
// op/name/errno through every call site.
type Error struct {
	Op    string // e.g. "shm_open", "mmap", "futex_wait"
	Name  string // the resource name involved, if any
	Errno error  // the underlying platform error
}

func New(op, name string, errno error) *Error {
	return &Error{Op: op, Name: name, Errno: errno}
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Errno)
	}
	return fmt.Sprintf("%s(%q): %v", e.Op, e.Name, e.Errno)
}

func (e *Error) Unwrap() error { return e.Errno }
