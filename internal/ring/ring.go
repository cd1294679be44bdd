// Package ring implements the bounded single-producer/single-consumer
// exchange that hands finished packet containers from the acquisition
// goroutine to the consumer without either side ever blocking the other.
package ring

import (
	"sync/atomic"

	"daviscore/internal/event"
)

// Ring is a lock-free SPSC bounded queue of *event.Container. Exactly one
// goroutine may call Put, and exactly one goroutine may call Get; those may
// be (and usually are) different goroutines, but each operation itself is
// only safe from a single caller.
type Ring struct {
	slots []atomic.Pointer[event.Container]
	mask  uint64
	head  atomic.Uint64 // next slot Get will read
	tail  atomic.Uint64 // next slot Put will write

	notifyIncrease func()
	notifyDecrease func()
}

// New allocates a ring of the given capacity, rounded up to the next power
// of two. capacity must be > 0.
func New(capacity int) *Ring {
	n := nextPow2(capacity)
	return &Ring{
		slots: make([]atomic.Pointer[event.Container], n),
		mask:  uint64(n - 1),
	}
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// SetNotifiers installs the notify_increase/notify_decrease hooks. Hooks
// must be reentrant and non-blocking; they are invoked from whichever
// goroutine causes the container transition.
func (r *Ring) SetNotifiers(increase, decrease func()) {
	r.notifyIncrease = increase
	r.notifyDecrease = decrease
}

// Put attempts to enqueue c. It never blocks: it returns false if the ring
// is full. On success it invokes the increase notifier exactly once.
func (r *Ring) Put(c *event.Container) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.slots)) {
		return false
	}
	r.slots[tail&r.mask].Store(c)
	r.tail.Store(tail + 1)
	if r.notifyIncrease != nil {
		r.notifyIncrease()
	}
	return true
}

// Get attempts to dequeue a container. It never blocks: ok is false if the
// ring is empty. On success it invokes the decrease notifier exactly once.
func (r *Ring) Get() (c *event.Container, ok bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head >= tail {
		return nil, false
	}
	slot := &r.slots[head&r.mask]
	c = slot.Load()
	slot.Store(nil)
	r.head.Store(head + 1)
	if r.notifyDecrease != nil {
		r.notifyDecrease()
	}
	return c, true
}

// Len returns a point-in-time estimate of the number of queued containers.
func (r *Ring) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the ring's capacity.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Drain removes and returns every queued container, invoking the decrease
// notifier once per container. Used at data_stop to free anything left in
// the ring.
func (r *Ring) Drain() []*event.Container {
	var out []*event.Container
	for {
		c, ok := r.Get()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}
