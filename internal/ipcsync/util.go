// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcsync

import (
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// uint32At overlays an *atomix.Uint32 onto b at the given byte offset.
// Callers guarantee the backing memory outlives the returned pointer and
// that offset is 4-byte aligned, matching the fixed layouts declared by
// each primitive's region size.
func uint32At(b []byte, offset int) *atomix.Uint32 {
	return (*atomix.Uint32)(unsafe.Pointer(unsafe.SliceData(b[offset:])))
}

// deadlineFrom converts a timeout duration into an absolute deadline.
// timeout <= 0 means "wait indefinitely" and hasDeadline is false.
func deadlineFrom(timeout time.Duration) (deadline time.Time, hasDeadline bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}
