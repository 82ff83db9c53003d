// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/spin"

// SPMC drives a single-producer multi-consumer ring over a shared
// [Header]. The single producer proceeds exactly like SPSC; consumers
// contend for slots via CAS on the shared consumer cursor, each
// checking that the producer has filled the target slot before
// claiming it, retrying on a stale read or lost race.
type SPMC struct {
	h *Header
}

// NewSPMC wraps h for single-producer/multi-consumer unicast access.
func NewSPMC(h *Header) *SPMC { return &SPMC{h: h} }

// TryPush writes elem into the next slot (single producer only).
// Returns [ErrWouldBlock] if the ring is full.
//
// Fullness is decided against the consumer cursor, not the slot's own
// phase bit — see [SPSC.TryPush]'s comment for why a bare phase
// comparison against this lap's expected phase is always false. The
// slot's reader count must also be zero: consumers advance the shared
// consumer cursor before releasing their slot, so a slot within
// capacity of that cursor may still be being read.
func (q *SPMC) TryPush(elem []byte) error {
	h := q.h
	cursor := h.producer.LoadRelaxed()
	head := h.consumers[0].LoadAcquire()
	if diff32(cursor, head) >= int32(h.capacity) {
		return ErrWouldBlock
	}

	idx := cursor & h.mask
	if _, wCount := unpackState(h.slotState(idx).LoadAcquire()); wCount != 0 {
		return ErrWouldBlock
	}
	want := expectedPhase(cursor, h.capacity)
	copy(h.slotPayload(idx), elem)
	h.slotState(idx).StoreRelease(packState(want, 1))
	h.producer.StoreRelease(cursor + 1)
	return nil
}

// spmcClaimRetries bounds the combined check-then-claim loop a
// consumer runs before giving up. The slot's readiness is checked
// *before* the consumer cursor is advanced via CAS, so a losing
// attempt never leaves a claimed-but-unread slot behind: if the CAS
// never succeeds within the bound, no cursor was moved and the next
// TryPop call starts fresh.
const spmcClaimRetries = 64

// TryPop claims the next slot and returns its payload, once the
// producer has filled it. Returns [ErrWouldBlock] if the ring is empty
// or contention prevents a successful claim within
// [spmcClaimRetries].
func (q *SPMC) TryPop() ([]byte, error) {
	h := q.h
	sw := spin.Wait{}
	for i := 0; i < spmcClaimRetries; i++ {
		cursor := h.consumers[0].LoadAcquire()
		idx := cursor & h.mask
		want := expectedPhase(cursor, h.capacity)

		phase, wCount := unpackState(h.slotState(idx).LoadAcquire())
		if phase != want || wCount == 0 {
			return nil, ErrWouldBlock
		}
		if !h.consumers[0].CompareAndSwapAcqRel(cursor, cursor+1) {
			sw.Once()
			continue
		}
		payload := h.slotPayload(idx)
		h.slotState(idx).StoreRelease(packState(want, 0))
		return payload, nil
	}
	return nil, ErrWouldBlock
}
