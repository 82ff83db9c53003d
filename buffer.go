// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

// noCopy marks a struct as non-copyable to `go vet -copylocks`, the
// idiomatic stand-in for a deleted C++ copy constructor: embedding a
// type with a Lock/Unlock method pair makes vet flag any accidental
// pass-by-value of the containing struct.
//
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer is an owning, move-only byte span returned by [Chan.Recv]. It
// collapses the source's Buffer = Owned | Pooled distinction into one
// struct with a deleter closure: a buffer backed by the reassembly
// table and a buffer backed by a fresh allocation share one API, and
// [Buffer.Release] runs whichever cleanup its origin needs.
//
// A Buffer must not be copied; take its address or pass it by pointer.
// Copying it silently duplicates the slice header but not ownership of
// the deleter, so Release could run twice. This is caught by
// `go vet -copylocks`, not at runtime.
type Buffer struct {
	_    noCopy
	data []byte
	free func([]byte)
}

// newBuffer wraps data with an optional deleter. A nil free makes
// Release a no-op, for buffers backed by ordinary garbage-collected
// slices with nothing to release explicitly.
func newBuffer(data []byte, free func([]byte)) Buffer {
	return Buffer{data: data, free: free}
}

// Bytes returns the buffer's contents. The returned slice is only
// valid until Release is called.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes the buffer holds.
func (b *Buffer) Len() int { return len(b.data) }

// Empty reports whether the buffer holds no data, the value [Chan.Recv]
// returns on timeout or disconnect.
func (b *Buffer) Empty() bool { return len(b.data) == 0 }

// Release returns the buffer's backing storage to its origin, if it
// has one, and empties the buffer. Calling Release more than once is a
// no-op.
func (b *Buffer) Release() {
	if b.free != nil {
		b.free(b.data)
		b.free = nil
	}
	b.data = nil
}
