// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/spin"

// mpmcClaimRetries bounds the combined check-then-claim loop on either
// side of the ring, mirroring [mpscClaimRetries]'s rationale: the CAS
// claiming a cursor only happens once that cursor's slot has already
// been observed ready, so an exhausted loop never orphans a claimed
// slot.
const mpmcClaimRetries = 64

// MPMC drives a multi-producer multi-consumer ring over a shared
// [Header]. Both producers and consumers contend for slots via CAS on
// their respective shared cursors (§4.E.4): each side checks its next
// slot's readiness first and only claims the cursor once that slot is
// known ready, retrying the whole check-and-claim on either a stale
// read or lost CAS race before giving up with [ErrWouldBlock].
type MPMC struct {
	h *Header
}

// NewMPMC wraps h for multi-producer/multi-consumer unicast access.
func NewMPMC(h *Header) *MPMC { return &MPMC{h: h} }

// TryPush claims a slot and writes elem into it. Fullness is decided
// against the consumer cursor, as in [SPSC.TryPush], and additionally
// against the target slot's reader count: consumers advance the shared
// consumer cursor before releasing their slot, so a slot within
// capacity of that cursor may still be being read.
// Returns [ErrWouldBlock] if the ring is full or contention prevents a
// successful claim within [mpmcClaimRetries].
func (q *MPMC) TryPush(elem []byte) error {
	h := q.h
	sw := spin.Wait{}
	for i := 0; i < mpmcClaimRetries; i++ {
		cursor := h.producer.LoadAcquire()
		head := h.consumers[0].LoadAcquire()
		if diff32(cursor, head) >= int32(h.capacity) {
			return ErrWouldBlock
		}
		idx := cursor & h.mask
		if _, wCount := unpackState(h.slotState(idx).LoadAcquire()); wCount != 0 {
			sw.Once()
			continue
		}
		if !h.producer.CompareAndSwapAcqRel(cursor, cursor+1) {
			sw.Once()
			continue
		}
		want := expectedPhase(cursor, h.capacity)
		copy(h.slotPayload(idx), elem)
		h.slotState(idx).StoreRelease(packState(want, 1))
		return nil
	}
	return ErrWouldBlock
}

// TryPop claims a slot and returns its payload, once the producer has
// filled it. Returns [ErrWouldBlock] if the ring is empty or
// contention prevents a successful claim within [mpmcClaimRetries].
func (q *MPMC) TryPop() ([]byte, error) {
	h := q.h
	sw := spin.Wait{}
	for i := 0; i < mpmcClaimRetries; i++ {
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
