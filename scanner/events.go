package scanner

import "sync/atomic"

// eventRing is a bounded event channel with overwrite-oldest semantics, so
// a slow consumer never stalls the radio callback.
type eventRing struct {
	ch      chan DeviceEvent
	dropped atomic.Int64
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		panic("scanner: event capacity must be > 0")
	}
	return &eventRing{ch: make(chan DeviceEvent, capacity)}
}

func (r *eventRing) C() <-chan DeviceEvent {
	return r.ch
}

// ForceSend never blocks; it discards the oldest event when full and
// reports whether it did.
func (r *eventRing) ForceSend(ev DeviceEvent) bool {
	select {
	case r.ch <- ev:
		return false
	default:
	}

	dropped := false
	select {
	case <-r.ch:
		r.dropped.Add(1)
		dropped = true
	default:
	}
	select {
	case r.ch <- ev:
	default:
		// lost a race with another producer; the newest event wins next time
		r.dropped.Add(1)
	}
	return dropped
}

// Dropped returns how many events were overwritten.
func (r *eventRing) Dropped() int64 {
	return r.dropped.Load()
}
