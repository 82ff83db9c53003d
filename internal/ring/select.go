// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import "fmt"

// Relation tags one side of a ring's producer/consumer arity.
type Relation uint8

const (
	Single Relation = iota
	Multi
)

// Queue is the common try-push/try-pop surface shared by the four
// unicast protocols. Broadcast is deliberately excluded: its Pop takes
// a subscriber id and its Push has a force variant, so it is addressed
// directly as a [*Broadcast] rather than through this interface.
type Queue interface {
	TryPush(elem []byte) error
	TryPop() ([]byte, error)
}

// Select returns the unicast protocol matching the requested producer
// and consumer relation, generalizing the teacher's builder-pattern
// variant dispatch (formerly options.go's Builder) to the four
// lock-free state machines named in §4.E. h must have been opened with
// [KindUnicast].
func Select(h *Header, producer, consumer Relation) (Queue, error) {
	if h.Kind() != KindUnicast {
		return nil, fmt.Errorf("ring: Select requires a unicast header, got kind %d", h.Kind())
	}
	switch {
	case producer == Single && consumer == Single:
		return NewSPSC(h), nil
	case producer == Multi && consumer == Single:
		return NewMPSC(h), nil
	case producer == Single && consumer == Multi:
		return NewSPMC(h), nil
	default:
		return NewMPMC(h), nil
	}
}

// SelectBroadcast returns the fan-out protocol over h, which must have
// been opened with [KindBroadcast]. Producer/consumer arity does not
// change the broadcast protocol: it already supports any number of
// concurrent producers and up to [MaxSubscribers] consumers.
func SelectBroadcast(h *Header) (*Broadcast, error) {
	if h.Kind() != KindBroadcast {
		return nil, fmt.Errorf("ring: SelectBroadcast requires a broadcast header, got kind %d", h.Kind())
	}
	return NewBroadcast(h), nil
}
