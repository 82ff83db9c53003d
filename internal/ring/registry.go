// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "math/bits"

// registryAttachRetries bounds the CAS retry loop in
// [BroadcastRegistry.Attach]. When every attempt loses its CAS race,
// Attach reports [ErrSlotsExhausted], the same error as a full bitset.
const registryAttachRetries = 64

// BroadcastRegistry tracks up to [MaxSubscribers] attached broadcast
// endpoints as a 32-bit atomic bitset stored in the ring header
// (§4.F). Attach scans for the lowest zero bit and CAS-sets it; Detach
// clears it.
type BroadcastRegistry struct {
	h *Header
}

// NewBroadcastRegistry wraps h's connection bitset for broadcast use.
func NewBroadcastRegistry(h *Header) *BroadcastRegistry { return &BroadcastRegistry{h: h} }

// Attach allocates the lowest free subscriber id in [0,31] and starts
// that subscriber's cursor at the producer cursor observed right after
// the allocating CAS, so it receives only messages published from then
// on. Returns [ErrSlotsExhausted] once all 32 bits are set, or when all
// [registryAttachRetries] CAS attempts lose to concurrent changes.
func (r *BroadcastRegistry) Attach() (uint32, error) {
	for i := 0; i < registryAttachRetries; i++ {
		bitset := r.h.connections.LoadAcquire()
		if bitset == 0xFFFFFFFF {
			return 0, ErrSlotsExhausted
		}
		id := uint32(bits.TrailingZeros32(^bitset))
		next := bitset | (1 << id)
		if r.h.connections.CompareAndSwapAcqRel(bitset, next) {
			r.h.consumers[id].StoreRelease(r.h.producer.LoadAcquire())
			return id, nil
		}
	}
	return 0, ErrSlotsExhausted
}

// Detach clears id's bit, allowing it to be reused by a future Attach.
// Per §9's teardown-ordering Design Note, callers must clear their
// connection bit before releasing the shared region, so a producer
// never force-pushes against a subscriber that will never read again.
func (r *BroadcastRegistry) Detach(id uint32) {
	for {
		bitset := r.h.connections.LoadAcquire()
		next := bitset &^ (1 << id)
		if r.h.connections.CompareAndSwapAcqRel(bitset, next) {
			return
		}
	}
}

// Count returns the number of currently attached subscribers.
func (r *BroadcastRegistry) Count() int {
	return bits.OnesCount32(r.h.connections.LoadAcquire())
}

// UnicastRegistry tracks attached unicast endpoints as a plain atomic
// counter (§4.F); unicast endpoints have no subscriber id, only a
// presence count used to decide when a route has any reader at all.
type UnicastRegistry struct {
	h *Header
}

// NewUnicastRegistry wraps h's connection counter for unicast use.
func NewUnicastRegistry(h *Header) *UnicastRegistry { return &UnicastRegistry{h: h} }

// Attach increments the attached-endpoint counter.
func (r *UnicastRegistry) Attach() {
	r.h.connections.AddAcqRel(1)
}

// Detach decrements the attached-endpoint counter.
func (r *UnicastRegistry) Detach() {
	r.h.connections.AddAcqRel(^uint32(0)) // -1, matching atomix's unsigned AddAcqRel
}

// Count returns the number of currently attached endpoints.
func (r *UnicastRegistry) Count() int {
	return int(r.h.connections.LoadAcquire())
}
