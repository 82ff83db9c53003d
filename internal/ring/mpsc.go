// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "code.hybscloud.com/spin"

// MPSC drives a multi-producer single-consumer ring over a shared
// [Header]. Producers contend on the shared producer cursor via CAS
// (§4.E.2): each checks the target slot has been drained by the
// previous lap before claiming the cursor, retrying on a stale read or
// lost race rather than ever claiming ahead of that check. The single
// consumer proceeds exactly like SPSC.
type MPSC struct {
	h *Header
}

// NewMPSC wraps h for multi-producer/single-consumer unicast access.
func NewMPSC(h *Header) *MPSC { return &MPSC{h: h} }

// mpscClaimRetries bounds the combined check-then-claim loop a
// producer runs before giving up. A slot's readiness is checked
// *before* the producer cursor is advanced via CAS, so a losing
// attempt never leaves a claimed-but-unwritten slot behind: if the CAS
// never succeeds within the bound, no cursor was moved and the next
// TryPush call starts fresh (§4.E.6's tie-break rule).
const mpscClaimRetries = 64

// TryPush claims a slot and writes elem into it. Fullness is decided
// against the consumer cursor, exactly as [SPSC.TryPush]; once a
// cursor is within capacity of the consumer's position its slot is
// guaranteed free, so the claiming CAS needs no separate phase check.
// Returns [ErrWouldBlock] if the ring is full or contention prevents a
// successful claim within [mpscClaimRetries]; it never spins
// indefinitely (§4.E.2).
func (q *MPSC) TryPush(elem []byte) error {
	h := q.h
	sw := spin.Wait{}
	for i := 0; i < mpscClaimRetries; i++ {
		cursor := h.producer.LoadAcquire()
		head := h.consumers[0].LoadAcquire()
		if diff32(cursor, head) >= int32(h.capacity) {
			return ErrWouldBlock
		}
		if !h.producer.CompareAndSwapAcqRel(cursor, cursor+1) {
			sw.Once()
			continue
		}
		idx := cursor & h.mask
		want := expectedPhase(cursor, h.capacity)
		copy(h.slotPayload(idx), elem)
		h.slotState(idx).StoreRelease(packState(want, 1))
		return nil
	}
	return ErrWouldBlock
}

// TryPop reads and returns the next slot's payload (single consumer
// only). Returns [ErrWouldBlock] if the ring is empty.
func (q *MPSC) TryPop() ([]byte, error) {
	h := q.h
	cursor := h.consumers[0].LoadRelaxed()
	idx := cursor & h.mask
	want := expectedPhase(cursor, h.capacity)

	state := h.slotState(idx).LoadAcquire()
	phase, wCount := unpackState(state)
	if phase != want || wCount == 0 {
		return nil, ErrWouldBlock
	}

	payload := h.slotPayload(idx)
	h.slotState(idx).StoreRelease(packState(want, 0))
	h.consumers[0].StoreRelease(cursor + 1)
	return payload, nil
}
