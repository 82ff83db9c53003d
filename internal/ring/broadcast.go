// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// broadcastClaimRetries bounds the CAS retry loop producers use to claim
// a slot in [Broadcast.TryPush]; see [mpscClaimRetries] for the same
// rationale applied to the producer cursor instead of a slot's state.
const broadcastClaimRetries = 64

// Broadcast drives the fan-out protocol over a shared [Header] built
// with [KindBroadcast]: every attached subscriber receives every
// message, addressed by its own slot in h.consumers (§4.E.5). The
// producer side supports both a single and multiple concurrent
// producers transparently, since claiming a slot always goes through a
// CAS on the shared producer cursor (a bounded retry loop in TryPush,
// an unbounded one in Push).
type Broadcast struct {
	h *Header
}

// NewBroadcast wraps h for fan-out broadcast access.
func NewBroadcast(h *Header) *Broadcast { return &Broadcast{h: h} }

// TryPush publishes elem to every subscriber attached at the moment of
// the write. It never overwrites a slot still being read; if the next
// slot is still in its previous lap's phase with outstanding readers,
// it returns [ErrWouldBlock] without advancing the producer cursor,
// leaving the decision to force-push to [Broadcast.Push].
func (b *Broadcast) TryPush(elem []byte) error {
	h := b.h
	sw := spin.Wait{}
	for i := 0; i < broadcastClaimRetries; i++ {
		cursor := h.producer.LoadAcquire()
		idx := cursor & h.mask
		want := expectedPhase(cursor, h.capacity)

		phase, wCount := unpackState(h.slotState(idx).LoadAcquire())
		if phase != want && wCount > 0 {
			return ErrWouldBlock
		}
		if !h.producer.CompareAndSwapAcqRel(cursor, cursor+1) {
			sw.Once()
			continue
		}
		wc := uint32(bits.OnesCount32(h.connections.LoadAcquire()))
		copy(h.slotPayload(idx), elem)
		h.slotState(idx).StoreRelease(packState(want, wc))
		return nil
	}
	return ErrWouldBlock
}

// Push publishes elem unconditionally, force-pushing over a slot whose
// previous lap has not been fully drained by every subscriber
// (§4.E.5). Subscribers still holding that slot's previous phase see
// the bumped phase on their next read and skip ahead to the current
// producer cursor, losing the intervening messages rather than
// stalling the channel.
func (b *Broadcast) Push(elem []byte) {
	h := b.h
	for {
		cursor := h.producer.LoadAcquire()
		if !h.producer.CompareAndSwapAcqRel(cursor, cursor+1) {
			continue
		}
		idx := cursor & h.mask
		want := expectedPhase(cursor, h.capacity)
		wc := uint32(bits.OnesCount32(h.connections.LoadAcquire()))
		copy(h.slotPayload(idx), elem)
		h.slotState(idx).StoreRelease(packState(want, wc))
		return
	}
}

// TryPop reads the next message for subscriberID, an index previously
// returned by the connection registry's Attach. If the producer has
// force-pushed past this subscriber by more than a full lap, TryPop
// first fast-forwards the subscriber's cursor to the oldest message
// still held in the ring (the producer cursor minus the capacity) and
// reads from there: the overwritten messages are lost, the most recent
// ones are still delivered, matching the "subsequence, not duplicated"
// guarantee of §4.E.5/§8's force-push safety property.
func (b *Broadcast) TryPop(subscriberID uint32) ([]byte, error) {
	h := b.h
	cur := h.consumers[subscriberID]
	cursor := cur.LoadRelaxed()

	if producer := h.producer.LoadAcquire(); diff32(producer, cursor) > int32(h.capacity) {
		cursor = producer - h.capacity
		cur.StoreRelease(cursor)
	}

	idx := cursor & h.mask
	want := expectedPhase(cursor, h.capacity)
	phase, wCount := unpackState(h.slotState(idx).LoadAcquire())
	if phase != want || wCount == 0 {
		return nil, ErrWouldBlock
	}

	src := h.slotPayload(idx)
	out := make([]byte, len(src))
	copy(out, src)
	decrementReaders(h.slotState(idx))
	cur.StoreRelease(cursor + 1)
	return out, nil
}

// decrementReaders atomically decrements a slot's w_count without
// disturbing its phase bit, retrying the CAS against concurrent
// subscriber reads of the same force-pushed slot.
func decrementReaders(state *atomix.Uint64) {
	for {
		old := state.LoadAcquire()
		phase, wCount := unpackState(old)
		if wCount == 0 {
			return
		}
		next := packState(phase, wCount-1)
		if state.CompareAndSwapAcqRel(old, next) {
			return
		}
	}
}
