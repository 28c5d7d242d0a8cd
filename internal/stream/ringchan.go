package stream

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full the oldest element is
// discarded. With capacity 1 a RingChannel conflates to the latest value,
// which is what observers of state want.
//
//	rc := stream.NewRingChannel[int](1)
//	rc.Send(1)
//	rc.Send(2)
//	v := <-rc.C() // 2
//
// A RingChannel assumes a single producer; Value serializes its sends.
type RingChannel[T any] struct {
	ch chan T
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("stream: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest when full.
// It reports whether an element was dropped.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch:
			dropped = true
		default:
		}
		rc.ch <- v
	}

	return dropped
}

// Close closes the underlying channel. Sending afterwards panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}
