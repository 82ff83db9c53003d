// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

// Slot state word layout, matching SPEC_FULL.md's wire table exactly:
// bit 63 is the lap-phase tag, bits 31..0 are the outstanding-reader
// count ("w_count"), bits 62..32 are reserved.
const (
	phaseBit    = uint64(1) << 63
	wCountMask  = uint64(0xFFFFFFFF)
	initPhase   = true // slots start "stale", so lap 0 always reads as writable
)

func packState(phase bool, wCount uint32) uint64 {
	v := uint64(wCount) & wCountMask
	if phase {
		v |= phaseBit
	}
	return v
}

func unpackState(v uint64) (phase bool, wCount uint32) {
	return v&phaseBit != 0, uint32(v & wCountMask)
}

func initialState() uint64 {
	return packState(initPhase, 0)
}

// expectedPhase returns the phase a slot must carry to hold the current
// lap's data, given a 32-bit monotonic cursor and the ring's capacity
// (a power of two). Lap parity alone — not a full generation counter —
// is all §4.D's wire format has room for.
func expectedPhase(cursor, capacity uint32) bool {
	lap := cursor / capacity
	return lap%2 == 1
}

// diff32 computes a-b as a signed 32-bit difference, the only safe way
// to compare wrapping 32-bit cursors per §4.E.6/§9's Design Notes. A
// direct "<" comparison of raw cursors is a bug.
func diff32(a, b uint32) int32 {
	return int32(a - b)
}
