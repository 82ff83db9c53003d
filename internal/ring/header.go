// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring implements the fixed shared-memory ring-buffer header
// (component D) and the five lock-free producer/consumer protocols that
// read and write it (component E): SPSC, MPSC, SPMC and MPMC for
// unicast transport, plus a fan-out protocol for broadcast transport.
// It also implements the connection registry (component F) that tracks
// attached endpoints.
//
// All five protocols share one invariant: a slot's 64-bit state word is
// the single source of truth for whether that slot is writable or
// readable. Writers never overwrite a slot until its state says nobody
// is still reading it (except broadcast's force-push, §4.E.5); readers
// never consume a slot until its phase matches their current lap.
package ring

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// MaxSubscribers is the largest number of simultaneously attached
// broadcast subscribers a single ring supports.
const MaxSubscribers = 32

// cacheLine is the assumed destructive-interference size. Hot fields are
// padded to a multiple of this to keep producer and consumer cursors off
// the same cache line, mirroring the teacher's pad/padShort/padPtr types.
const cacheLine = 64

// Fixed byte offsets within a ring region, all relative to the region's
// payload (i.e. past the shm accounting header). Every offset below is
// rounded up to its own cache line so hot atomics never share one with
// a neighbor, matching the teacher's per-field padding discipline.
const (
	offMeta        = 0
	offProducer    = 1 * cacheLine
	offConsumers   = 2 * cacheLine // reserves 2 lines: room for MaxSubscribers*4 bytes
	offConnections = 4 * cacheLine
	offSlots       = 5 * cacheLine
)

// Kind tags which relation/transport combination a ring was built for.
// It is stored in the header so [Open] can refuse to bind a ring created
// for one combination to code expecting another.
type Kind uint8

const (
	KindUnicast Kind = iota
	KindBroadcast
)

// stateSize is the width, in bytes, of one slot's state word.
const stateSize = 8

// meta is the fixed, non-hot metadata block at the head of a ring.
type meta struct {
	capacity    atomix.Uint32
	payloadSize atomix.Uint32
	kind        atomix.Uint32
	nextMsgID   atomix.Uint32 // shared per-channel message-id counter, §4.H
}

// Header overlays a fixed-layout ring-buffer control block onto shared
// memory. Capacity is always a power of two.
type Header struct {
	base        []byte // ring region payload, starting at offset 0 == offMeta
	meta        *meta
	producer    *atomix.Uint32
	consumers   []*atomix.Uint32 // length 1 (unicast) or MaxSubscribers (broadcast)
	connections *atomix.Uint32
	slots       []byte // offSlots..end
	capacity    uint32
	mask        uint32
	payloadSize uint32
	slotSize    uint32
	kind        Kind
}

// Size returns the number of bytes a ring of the given capacity and
// per-slot inline payload size occupies, for sizing the backing region.
func Size(capacity, payloadSize int) int {
	slotSize := roundUpToCacheLine(stateSize + payloadSize)
	return offSlots + capacity*slotSize
}

// New initializes a fresh ring header over base, which must be at least
// [Size](capacity, payloadSize) bytes.
func New(base []byte, capacity, payloadSize int, kind Kind) (*Header, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity %d must be a power of two >= 2", capacity)
	}
	h := bind(base, uint32(capacity), uint32(payloadSize), kind)
	h.meta.capacity.StoreRelaxed(uint32(capacity))
	h.meta.payloadSize.StoreRelaxed(uint32(payloadSize))
	h.meta.kind.StoreRelaxed(uint32(kind))
	h.producer.StoreRelaxed(0)
	for _, c := range h.consumers {
		c.StoreRelaxed(0)
	}
	h.connections.StoreRelaxed(0)
	for i := 0; i < capacity; i++ {
		stateAt(h.slots, h.slotSize, uint32(i)).StoreRelaxed(initialState())
	}
	return h, nil
}

// Open binds to an existing ring header and validates it against the
// caller's expected capacity, payload size and kind, per §4.A/§7's
// capacity-mismatch error kind.
func Open(base []byte, capacity, payloadSize int, kind Kind) (*Header, error) {
	h := bind(base, uint32(capacity), uint32(payloadSize), kind)
	gotCap := h.meta.capacity.LoadAcquire()
	gotPayload := h.meta.payloadSize.LoadAcquire()
	gotKind := Kind(h.meta.kind.LoadAcquire())
	if gotCap != uint32(capacity) || gotPayload != uint32(payloadSize) || gotKind != kind {
		return nil, fmt.Errorf("%w: header has capacity=%d payload=%d kind=%d, want capacity=%d payload=%d kind=%d",
			ErrCapacityMismatch, gotCap, gotPayload, gotKind, capacity, payloadSize, kind)
	}
	return h, nil
}

func bind(base []byte, capacity, payloadSize uint32, kind Kind) *Header {
	slotSize := roundUpToCacheLine(stateSize + int(payloadSize))
	h := &Header{
		base:        base,
		meta:        (*meta)(unsafe.Pointer(unsafe.SliceData(base[offMeta:]))),
		producer:    (*atomix.Uint32)(unsafe.Pointer(unsafe.SliceData(base[offProducer:]))),
		connections: (*atomix.Uint32)(unsafe.Pointer(unsafe.SliceData(base[offConnections:]))),
		slots:       base[offSlots:],
		capacity:    capacity,
		mask:        capacity - 1,
		payloadSize: payloadSize,
		slotSize:    uint32(slotSize),
		kind:        kind,
	}
	n := 1
	if kind == KindBroadcast {
		n = MaxSubscribers
	}
	h.consumers = make([]*atomix.Uint32, n)
	for i := 0; i < n; i++ {
		h.consumers[i] = (*atomix.Uint32)(unsafe.Pointer(unsafe.SliceData(base[offConsumers+i*4:])))
	}
	return h
}

func roundUpToCacheLine(n int) int {
	if n <= 0 {
		return cacheLine
	}
	return ((n + cacheLine - 1) / cacheLine) * cacheLine
}

// Capacity returns the ring's slot count.
func (h *Header) Capacity() uint32 { return h.capacity }

// PayloadSize returns the configured inline payload size per slot.
func (h *Header) PayloadSize() uint32 { return h.payloadSize }

// Kind returns the relation/transport tag this ring was built for.
func (h *Header) Kind() Kind { return h.kind }

// Connections returns the shared connection bitset/counter word for
// use by the [F] connection registry.
func (h *Header) Connections() *atomix.Uint32 { return h.connections }

// AllocateMessageID draws the next value from this ring's shared,
// per-channel monotonic message-id counter (§4.H's send/recv chunking
// protocol). All producer handles attached to the same ring share one
// counter, so chunks from concurrent producers never collide on id.
func (h *Header) AllocateMessageID() uint32 {
	return h.meta.nextMsgID.AddAcqRel(1) - 1
}

// slotState returns the state word for the slot at index idx.
func (h *Header) slotState(idx uint32) *atomix.Uint64 {
	return stateAt(h.slots, h.slotSize, idx)
}

// slotPayload returns the inline payload bytes for the slot at index idx.
func (h *Header) slotPayload(idx uint32) []byte {
	off := idx * h.slotSize
	return h.slots[off+stateSize : off+h.slotSize]
}

func stateAt(slots []byte, slotSize, idx uint32) *atomix.Uint64 {
	off := idx * slotSize
	return (*atomix.Uint64)(unsafe.Pointer(unsafe.SliceData(slots[off:])))
}
