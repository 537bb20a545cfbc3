package mqttd

import "sync"

// packetIDAllocator hands out packet identifiers (1-65535) for outbound
// QoS 1/2 publishes. An identifier stays unavailable until released by the
// matching acknowledgment, so it is never reused while in flight.
type packetIDAllocator struct {
	mu   sync.Mutex
	used map[uint16]struct{}
	next uint16
}

func newPacketIDAllocator() *packetIDAllocator {
	return &packetIDAllocator{
		used: make(map[uint16]struct{}),
		next: 1,
	}
}

// Allocate returns the next free packet identifier.
func (a *packetIDAllocator) Allocate() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.used) >= maxUint16 {
		return 0, ErrPacketIdentifiersSpent
	}

	start := a.next
	for {
		if _, inUse := a.used[a.next]; !inUse {
			id := a.next
			a.used[id] = struct{}{}
			a.advance()
			return id, nil
		}
		a.advance()
		if a.next == start {
			return 0, ErrPacketIdentifiersSpent
		}
	}
}

// Release returns an identifier to the pool. Returns false if it was not
// allocated.
func (a *packetIDAllocator) Release(id uint16) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, inUse := a.used[id]; !inUse {
		return false
	}
	delete(a.used, id)
	return true
}

// InFlight returns the number of outstanding identifiers.
func (a *packetIDAllocator) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used)
}

func (a *packetIDAllocator) advance() {
	a.next++
	if a.next == 0 {
		a.next = 1
	}
}
