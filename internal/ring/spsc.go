// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

// SPSC drives a single-producer single-consumer ring over a shared
// [Header]. It is wait-free for both Push and Pop: no CAS, no spin loop,
// just acquire/release fences on the slot's state word — adapted from
// the teacher's Lamport-ring SPSC, generalized from an in-process Go
// slice to shared-memory slots addressed by [Header].
type SPSC struct {
	h *Header
}

// NewSPSC wraps h for single-producer/single-consumer unicast access.
// Both ends of the pair must call NewSPSC independently on their own
// mapping of the same header.
func NewSPSC(h *Header) *SPSC { return &SPSC{h: h} }

// TryPush writes elem into the next slot. elem must be at most
// h.PayloadSize() bytes. Returns [ErrWouldBlock] if the ring is full.
//
// Fullness is decided by comparing the producer cursor against the
// consumer cursor, not by the slot's own phase bit: a slot's stored
// phase flips on every write regardless of whether the previous lap
// was ever consumed, so checking it against this lap's expected phase
// is always false and would let the producer silently overwrite
// unconsumed payloads forever.
func (q *SPSC) TryPush(elem []byte) error {
	h := q.h
	cursor := h.producer.LoadRelaxed()
	head := h.consumers[0].LoadAcquire()
	if diff32(cursor, head) >= int32(h.capacity) {
		return ErrWouldBlock
	}

	idx := cursor & h.mask
	want := expectedPhase(cursor, h.capacity)
	copy(h.slotPayload(idx), elem)
	h.slotState(idx).StoreRelease(packState(want, 1))
	h.producer.StoreRelease(cursor + 1)
	return nil
}

// TryPop reads and returns the next slot's payload. Returns
// [ErrWouldBlock] if the ring is empty. The returned slice aliases the
// shared-memory slot; callers must copy it out before the slot can be
// overwritten by the next lap.
func (q *SPSC) TryPop() ([]byte, error) {
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
