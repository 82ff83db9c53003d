// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmipc provides inter-process shared-memory message
// channels: producers publish opaque byte payloads and consumers
// receive them in the order produced, either point-to-point (unicast)
// or fanned out to every attached subscriber (broadcast).
package shmipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"code.hybscloud.com/shmipc/internal/ipcsync"
	"code.hybscloud.com/shmipc/internal/queue"
	"code.hybscloud.com/shmipc/internal/ring"
	"code.hybscloud.com/shmipc/internal/shm"
	"code.hybscloud.com/shmipc/internal/waiter"
)

// Relation tags one side of a channel's producer/consumer arity. It
// mirrors internal/ring.Relation; a distinct public type exists
// because callers outside this module cannot import an internal
// package to name the internal one.
type Relation uint8

const (
	Single Relation = iota
	Multi
)

func (r Relation) toRing() ring.Relation {
	if r == Multi {
		return ring.Multi
	}
	return ring.Single
}

// chanState is the connection state machine named in §4.H:
// Unconfigured -> Connected(role) -> Disconnected, with reconnect
// returning to Connected.
type chanState uint8

const (
	stateUnconfigured chanState = iota
	stateConnected
	stateDisconnected
)

const elementHeaderSize = 10 // remaining(4) + id(4) + dataLen(2), §6's wire table

// reassemblyEntry accumulates chunks for one in-flight multi-chunk
// message, keyed by message id (see the id-sharing simplification
// noted in DESIGN.md for §4.H's (producerID, messageID) key).
type reassemblyEntry struct {
	data []byte
}

// Chan is a channel or route handle: a name bound to a shared region,
// a ring-buffer variant, a connection registry and a waiter (component
// H). Use [OpenRoute], [OpenChannel] or [OpenUnicast] to create one.
type Chan struct {
	name        string
	names       channelNames
	opts        options
	producerRel ring.Relation
	consumerRel ring.Relation
	kind        ring.Kind

	region *shm.Region
	header *ring.Header
	mtx    *ipcsync.Mutex
	cv     *ipcsync.Cond
	w      *waiter.Waiter

	bc     *ring.Broadcast
	bcReg  *ring.BroadcastRegistry
	uniReg *ring.UnicastRegistry
	uniQ   *queue.Queue

	subscriberID  uint32
	hasSubscriber bool

	mu    sync.Mutex
	state chanState
	role  Role

	sendQ *queue.Queue
	recvQ *queue.Queue

	reassembly map[uint32]*reassemblyEntry
}

// OpenRoute opens a single-producer/multi-consumer broadcast channel
// (§4.H's `route = chan<single, multi, broadcast>`).
func OpenRoute(name string, opts ...Option) (*Chan, error) {
	return newChan(name, Single, Multi, ring.KindBroadcast, opts)
}

// OpenChannel opens a multi-producer/multi-consumer broadcast channel
// (§4.H's `channel = chan<multi, multi, broadcast>`).
func OpenChannel(name string, opts ...Option) (*Chan, error) {
	return newChan(name, Multi, Multi, ring.KindBroadcast, opts)
}

// OpenUnicast opens a point-to-point channel with the requested
// producer/consumer arity, covering all four unicast combinations
// (SPSC, MPSC, SPMC, MPMC).
func OpenUnicast(name string, producerRelation, consumerRelation Relation, opts ...Option) (*Chan, error) {
	return newChan(name, producerRelation, consumerRelation, ring.KindUnicast, opts)
}

func newChan(name string, producerRel, consumerRel Relation, kind ring.Kind, optFns []Option) (*Chan, error) {
	if name == "" {
		return nil, ErrNameInvalid
	}
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	o.resolveLogger()
	if o.inlineSize <= elementHeaderSize {
		return nil, fmt.Errorf("shmipc: inline size %d too small for a %d-byte element header", o.inlineSize, elementHeaderSize)
	}

	c := &Chan{
		name:        name,
		names:       deriveNames(o.prefix, name),
		opts:        o,
		producerRel: producerRel.toRing(),
		consumerRel: consumerRel.toRing(),
		kind:        kind,
		reassembly:  make(map[uint32]*reassemblyEntry),
	}
	if err := c.attachResources(); err != nil {
		return nil, err
	}
	if err := c.Connect(o.role); err != nil {
		c.releaseResources()
		return nil, err
	}
	return c, nil
}

// attachResources opens the shared region, ring header, waiter and
// connection registry backing this channel, without yet assigning a
// role (§4.H's Unconfigured state).
func (c *Chan) attachResources() error {
	size := shm.AccountingSize + ring.Size(c.opts.capacity, c.opts.inlineSize)
	region, err := shm.Open(c.names.data, size, shm.CreateOrOpen)
	if err != nil {
		return wrapSystemErr("open_region", c.names.data, err)
	}

	var header *ring.Header
	if region.Created() {
		header, err = ring.New(region.Payload(), c.opts.capacity, c.opts.inlineSize, c.kind)
	} else {
		header, err = ring.Open(region.Payload(), c.opts.capacity, c.opts.inlineSize, c.kind)
	}
	if err != nil {
		_ = region.Close()
		return err
	}

	mtx, err := ipcsync.OpenMutex(c.names.waiterMutex)
	if err != nil {
		_ = region.Close()
		return wrapSystemErr("open_mutex", c.names.waiterMutex, err)
	}
	cv, err := ipcsync.OpenCond(c.names.waiterCond)
	if err != nil {
		_ = mtx.Close()
		_ = region.Close()
		return wrapSystemErr("open_cond", c.names.waiterCond, err)
	}

	c.region = region
	c.header = header
	c.mtx = mtx
	c.cv = cv
	c.w = waiter.New(mtx, cv)
	if c.kind == ring.KindBroadcast {
		c.bc = ring.NewBroadcast(header)
		c.bcReg = ring.NewBroadcastRegistry(header)
	} else {
		c.uniReg = ring.NewUnicastRegistry(header)
	}
	c.state = stateUnconfigured
	return nil
}

// releaseResources tears down everything attachResources opened,
// ignoring close errors: this path only runs when construction is
// already failing.
func (c *Chan) releaseResources() {
	if c.w != nil {
		_ = c.w.Close()
	}
	if c.region != nil {
		_ = c.region.Close()
	}
}

// Connect (re)establishes this handle's role on the channel. It is
// idempotent when called again with the same role already connected,
// and may be called again after Disconnect to reconnect with a
// possibly different role (§4.H's state machine).
func (c *Chan) Connect(role Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateConnected && c.role == role {
		return nil
	}
	if c.state == stateDisconnected {
		if err := c.attachResources(); err != nil {
			return err
		}
	}

	if c.hasSubscriber {
		c.bcReg.Detach(c.subscriberID)
		c.hasSubscriber = false
	}

	if c.kind == ring.KindBroadcast {
		if role == RoleReceiver || role == RoleBoth {
			id, err := c.bcReg.Attach()
			if err != nil {
				return err
			}
			c.subscriberID = id
			c.hasSubscriber = true
			c.recvQ = queue.NewBroadcastReceiver(c.bc, c.bcReg, c.w, id)
		} else {
			c.recvQ = nil
		}
		if role == RoleSender || role == RoleBoth {
			c.sendQ = queue.NewBroadcastSender(c.bc, c.bcReg, c.w)
		} else {
			c.sendQ = nil
		}
	} else {
		if c.uniQ == nil {
			uq, err := ring.Select(c.header, c.producerRel, c.consumerRel)
			if err != nil {
				return err
			}
			c.uniQ = queue.NewUnicast(uq, c.uniReg, c.w)
		}
		if role == RoleSender || role == RoleBoth {
			c.sendQ = c.uniQ
		} else {
			c.sendQ = nil
		}
		if role == RoleReceiver || role == RoleBoth {
			c.recvQ = c.uniQ
		} else {
			c.recvQ = nil
		}
		if c.state != stateConnected {
			c.uniReg.Attach()
		}
	}

	c.role = role
	c.state = stateConnected
	c.w.Broadcast() // wake WaitForAttached callers to re-count
	return nil
}

// Send splits payload into inline-sized chunks if needed, stamps each
// with a shared monotonically increasing message id, and pushes them
// in order (§4.H). The return value reports enqueue success, not
// delivery (§6): true means every chunk reached the ring (and, for a
// broadcast channel, was broadcast to the connection set observed at
// push time), never that a consumer has read it.
func (c *Chan) Send(payload []byte) (bool, error) {
	c.mu.Lock()
	if c.state != stateConnected || (c.role != RoleSender && c.role != RoleBoth) {
		c.mu.Unlock()
		return false, ErrDisconnected
	}
	sendQ := c.sendQ
	header := c.header
	logger := c.opts.logger
	dataCap := c.opts.inlineSize - elementHeaderSize
	c.mu.Unlock()

	id := header.AllocateMessageID()
	chunks := splitPayload(payload, dataCap)
	total := len(payload)
	sent := 0
	for i, chunk := range chunks {
		sent += len(chunk)
		remaining := int32(total - sent)
		if i == len(chunks)-1 {
			remaining = -1 // terminal chunk, per §6's wire table
		}
		elem := make([]byte, c.opts.inlineSize)
		encodeElement(elem, remaining, id, chunk)

		if err := sendQ.Push(elem, 0); err != nil {
			if logger != nil {
				logger.Warn("shmipc: send failed, message orphaned",
					slog.String("channel", c.name), slog.Uint64("id", uint64(id)),
					slog.Int("chunk", i), slog.Any("err", err))
			}
			if errors.Is(err, queue.ErrDisconnected) {
				return false, ErrDisconnected
			}
			return false, err
		}
	}
	return true, nil
}

// Recv pops elements, reassembling multi-chunk messages by id, and
// returns a [Buffer] once a terminal chunk arrives. An empty Buffer
// with a nil error denotes timeout or disconnect (§6); callers
// distinguish by the timeout they supplied.
func (c *Chan) Recv(timeout time.Duration) (Buffer, error) {
	c.mu.Lock()
	if c.state != stateConnected || (c.role != RoleReceiver && c.role != RoleBoth) {
		c.mu.Unlock()
		return Buffer{}, ErrDisconnected
	}
	recvQ := c.recvQ
	reassembly := c.reassembly
	c.mu.Unlock()

	deadline, hasDeadline := deadlineFromTimeout(timeout)
	for {
		var remaining time.Duration
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return Buffer{}, nil
			}
		}
		elem, err := recvQ.Pop(remaining)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || errors.Is(err, queue.ErrDisconnected) || ring.IsWouldBlock(err) {
				return Buffer{}, nil
			}
			return Buffer{}, err
		}

		rem, id, data, ok := decodeElement(elem)
		if !ok {
			continue
		}
		entry, found := reassembly[id]
		if !found {
			entry = &reassemblyEntry{}
			reassembly[id] = entry
		}
		entry.data = append(entry.data, data...)
		if rem < 0 {
			delete(reassembly, id)
			return newBuffer(entry.data, nil), nil
		}
	}
}

// AttachedCount returns the number of endpoints currently attached to
// this channel's ring.
func (c *Chan) AttachedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind == ring.KindBroadcast {
		return c.bcReg.Count()
	}
	return c.uniReg.Count()
}

// WaitForAttached blocks up to timeout until at least n endpoints are
// attached, letting a producer delay its first Send until consumers
// are known present, avoiding an early-loss race against a force-push
// broadcast ring.
func (c *Chan) WaitForAttached(n int, timeout time.Duration) bool {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if c.AttachedCount() >= n {
		return true
	}
	return w.WaitIf(func() bool { return c.AttachedCount() < n }, timeout)
}

// Disconnect clears this handle's connection bit or counter before
// releasing the shared region (§5's teardown ordering: otherwise a
// producer could publish to a slot no subscriber will ever read,
// stalling on force-push), disables the waiter so any concurrently
// blocked Send/Recv on this handle returns within one wake round-trip,
// and discards any orphaned in-flight reassembly state.
func (c *Chan) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return nil
	}

	if c.hasSubscriber {
		c.bcReg.Detach(c.subscriberID)
		c.hasSubscriber = false
	} else if c.uniReg != nil {
		c.uniReg.Detach()
	}

	if len(c.reassembly) > 0 && c.opts.logger != nil {
		c.opts.logger.Warn("shmipc: discarding orphaned in-flight messages",
			slog.String("channel", c.name), slog.Int("count", len(c.reassembly)))
		c.reassembly = make(map[uint32]*reassemblyEntry)
	}

	c.w.Disable()
	err := c.w.Close()
	if rerr := c.region.Close(); err == nil {
		err = rerr
	}

	c.sendQ, c.recvQ, c.uniQ = nil, nil, nil
	c.state = stateDisconnected
	return err
}

func wrapSystemErr(op, name string, err error) error {
	return &SystemError{Op: op, Name: name, Errno: err}
}

func deadlineFromTimeout(timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

// splitPayload divides payload into chunks of at most chunkSize bytes.
// An empty payload still yields exactly one (empty) chunk, so a
// zero-length message round-trips as a single terminal element.
func splitPayload(payload []byte, chunkSize int) [][]byte {
	if len(payload) == 0 {
		return [][]byte{nil}
	}
	var chunks [][]byte
	for len(payload) > 0 {
		n := chunkSize
		if n > len(payload) {
			n = len(payload)
		}
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}
	return chunks
}

func encodeElement(buf []byte, remaining int32, id uint32, data []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(remaining))
	binary.LittleEndian.PutUint32(buf[4:8], id)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(data)))
	copy(buf[elementHeaderSize:], data)
}

func decodeElement(buf []byte) (remaining int32, id uint32, data []byte, ok bool) {
	if len(buf) < elementHeaderSize {
		return 0, 0, nil, false
	}
	remaining = int32(binary.LittleEndian.Uint32(buf[0:4]))
	id = binary.LittleEndian.Uint32(buf[4:8])
	n := int(binary.LittleEndian.Uint16(buf[8:10]))
	if elementHeaderSize+n > len(buf) {
		return 0, 0, nil, false
	}
	data = buf[elementHeaderSize : elementHeaderSize+n]
	return remaining, id, data, true
}
