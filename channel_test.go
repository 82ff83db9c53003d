// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shmipc-test-%s", t.Name())
}

// S1: unicast single/single round-trip.
func TestUnicastRoundTrip(t *testing.T) {
	name := uniqueName(t)
	sender, err := OpenUnicast(name, Single, Single, WithRole(RoleSender))
	if err != nil {
		t.Fatalf("OpenUnicast(sender): %v", err)
	}
	defer sender.Disconnect()

	receiver, err := OpenUnicast(name, Single, Single, WithRole(RoleReceiver))
	if err != nil {
		t.Fatalf("OpenUnicast(receiver): %v", err)
	}
	defer receiver.Disconnect()

	payload := []byte("Hello, World!\x00")
	ok, err := sender.Send(payload)
	if err != nil || !ok {
		t.Fatalf("Send: ok=%v err=%v", ok, err)
	}

	buf, err := receiver.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	defer buf.Release()
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("Recv: got %q, want %q", buf.Bytes(), payload)
	}
}

// S2: unicast single/single long message, split across multiple
// inline-sized chunks and reassembled.
func TestUnicastLongMessage(t *testing.T) {
	name := uniqueName(t)
	sender, err := OpenUnicast(name, Single, Single, WithRole(RoleSender), WithInlineSize(64))
	if err != nil {
		t.Fatalf("OpenUnicast(sender): %v", err)
	}
	defer sender.Disconnect()

	receiver, err := OpenUnicast(name, Single, Single, WithRole(RoleReceiver), WithInlineSize(64))
	if err != nil {
		t.Fatalf("OpenUnicast(receiver): %v", err)
	}
	defer receiver.Disconnect()

	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	if ok, err := sender.Send(payload); err != nil || !ok {
		t.Fatalf("Send: ok=%v err=%v", ok, err)
	}

	buf, err := receiver.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	defer buf.Release()
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("Recv: length got %d want %d, equal=%v", buf.Len(), len(payload), bytes.Equal(buf.Bytes(), payload))
	}
}

// S2 edge case: a zero-length payload still round-trips as a single
// terminal chunk.
func TestUnicastEmptyMessage(t *testing.T) {
	name := uniqueName(t)
	sender, err := OpenUnicast(name, Single, Single, WithRole(RoleSender))
	if err != nil {
		t.Fatalf("OpenUnicast(sender): %v", err)
	}
	defer sender.Disconnect()
	receiver, err := OpenUnicast(name, Single, Single, WithRole(RoleReceiver))
	if err != nil {
		t.Fatalf("OpenUnicast(receiver): %v", err)
	}
	defer receiver.Disconnect()

	if ok, err := sender.Send(nil); err != nil || !ok {
		t.Fatalf("Send: ok=%v err=%v", ok, err)
	}
	buf, err := receiver.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	defer buf.Release()
	if buf.Len() != 0 {
		t.Fatalf("Recv: got %d bytes, want 0", buf.Len())
	}
}

// S3: multi-producer/multi-consumer counting.
func TestMultiProducerMultiConsumerCounting(t *testing.T) {
	const producers = 8
	const perProducer = 2000 // scaled down from spec's 100000 for test runtime
	name := uniqueName(t)

	root, err := OpenUnicast(name, Multi, Multi, WithRole(RoleBoth), WithCapacity(256))
	if err != nil {
		t.Fatalf("OpenUnicast: %v", err)
	}
	defer root.Disconnect()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := OpenUnicast(name, Multi, Multi, WithRole(RoleSender), WithCapacity(256))
			if err != nil {
				t.Errorf("producer OpenUnicast: %v", err)
				return
			}
			defer h.Disconnect()
			for i := 1; i <= perProducer; i++ {
				elem := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
				for {
					if ok, err := h.Send(elem); err == nil && ok {
						break
					}
				}
			}
		}()
	}

	var sum int64
	var received int64
	want := int64(perProducer) * int64(perProducer+1) / 2 * producers
	done := make(chan struct{})
	go func() {
		defer close(done)
		for atomic.LoadInt64(&received) < int64(producers*perProducer) {
			buf, err := root.Recv(2 * time.Second)
			if err != nil {
				return
			}
			if buf.Empty() {
				continue
			}
			b := buf.Bytes()
			v := int64(b[0]) | int64(b[1])<<8 | int64(b[2])<<16 | int64(b[3])<<24
			atomic.AddInt64(&sum, v)
			atomic.AddInt64(&received, 1)
			buf.Release()
		}
	}()

	wg.Wait()
	<-done
	if received != int64(producers*perProducer) {
		t.Fatalf("received %d messages, want %d", received, producers*perProducer)
	}
	if sum != want {
		t.Fatalf("sum %d, want %d", sum, want)
	}
}

// S4: broadcast one-to-many, all consumers attached before send.
func TestBroadcastOneToMany(t *testing.T) {
	name := uniqueName(t)
	sender, err := OpenRoute(name, WithRole(RoleSender), WithCapacity(8))
	if err != nil {
		t.Fatalf("OpenRoute(sender): %v", err)
	}
	defer sender.Disconnect()

	const n = 3
	receivers := make([]*Chan, n)
	for i := range receivers {
		r, err := OpenRoute(name, WithRole(RoleReceiver), WithCapacity(8))
		if err != nil {
			t.Fatalf("OpenRoute(receiver %d): %v", i, err)
		}
		receivers[i] = r
		defer r.Disconnect()
	}

	if !sender.WaitForAttached(n, time.Second) {
		t.Fatal("WaitForAttached: timed out")
	}

	for _, s := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		if ok, err := sender.Send(s); err != nil || !ok {
			t.Fatalf("Send(%q): ok=%v err=%v", s, ok, err)
		}
	}

	for i, r := range receivers {
		for _, want := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
			buf, err := r.Recv(time.Second)
			if err != nil {
				t.Fatalf("receiver %d Recv: %v", i, err)
			}
			if !bytes.Equal(buf.Bytes(), want) {
				t.Fatalf("receiver %d: got %q, want %q", i, buf.Bytes(), want)
			}
			buf.Release()
		}
	}
}

// S5: broadcast force-push against a slow consumer yields a monotonic
// subsequence, never stalling the producer.
func TestBroadcastForcePush(t *testing.T) {
	name := uniqueName(t)
	sender, err := OpenRoute(name, WithRole(RoleSender), WithCapacity(4))
	if err != nil {
		t.Fatalf("OpenRoute(sender): %v", err)
	}
	defer sender.Disconnect()
	receiver, err := OpenRoute(name, WithRole(RoleReceiver), WithCapacity(4))
	if err != nil {
		t.Fatalf("OpenRoute(receiver): %v", err)
	}
	defer receiver.Disconnect()

	if !sender.WaitForAttached(1, time.Second) {
		t.Fatal("WaitForAttached: timed out")
	}

	const n = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			if ok, err := sender.Send([]byte{byte(i)}); err != nil || !ok {
				t.Errorf("Send(%d): ok=%v err=%v", i, ok, err)
				return
			}
		}
	}()
	<-done

	last := -1
	got := 0
	for {
		buf, err := receiver.Recv(150 * time.Millisecond)
		if err != nil || buf.Empty() {
			break
		}
		v := int(buf.Bytes()[0])
		buf.Release()
		if v <= last {
			t.Fatalf("non-monotonic delivery: got %d after %d", v, last)
		}
		last = v
		got++
		time.Sleep(100 * time.Millisecond)
	}
	if got < 4 {
		t.Fatalf("received %d messages, want at least 4", got)
	}
}

// S6: Disconnect wakes a blocked Recv promptly.
func TestDisconnectWakesBlockedRecv(t *testing.T) {
	name := uniqueName(t)
	receiver, err := OpenUnicast(name, Single, Single, WithRole(RoleReceiver))
	if err != nil {
		t.Fatalf("OpenUnicast(receiver): %v", err)
	}

	result := make(chan Buffer, 1)
	go func() {
		buf, err := receiver.Recv(0)
		if err != nil {
			close(result)
			return
		}
		result <- buf
	}()

	time.Sleep(20 * time.Millisecond)
	if err := receiver.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	select {
	case buf, ok := <-result:
		if ok && !buf.Empty() {
			t.Fatalf("Recv after disconnect: got non-empty buffer")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Recv did not return within 200ms of Disconnect")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	name := uniqueName(t)
	c, err := OpenUnicast(name, Single, Single, WithRole(RoleBoth))
	if err != nil {
		t.Fatalf("OpenUnicast: %v", err)
	}
	defer c.Disconnect()
	if err := c.Connect(RoleBoth); err != nil {
		t.Fatalf("Connect (idempotent): %v", err)
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	name := uniqueName(t)
	c, err := OpenUnicast(name, Single, Single, WithRole(RoleSender))
	if err != nil {
		t.Fatalf("OpenUnicast: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := c.Connect(RoleSender); err != nil {
		t.Fatalf("Connect after Disconnect: %v", err)
	}
	defer c.Disconnect()
	if _, err := c.Send([]byte("x")); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
}
