package camera

import "sync"

// mailbox is a single-slot latest-frame-wins buffer between the reader
// goroutine and the pipeline. Publishing over an unconsumed frame drops
// the old one, so staleness stays bounded even when the consumer is slow.
type mailbox struct {
	mu     sync.Mutex
	slot   *Frame
	notify chan struct{}
	drops  uint64
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// publish stores the frame, replacing (and closing) any unconsumed one.
func (m *mailbox) publish(f Frame) {
	m.mu.Lock()
	if m.slot != nil {
		m.slot.Close()
		m.drops++
	}
	m.slot = &f
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// take removes and returns the stored frame, if any.
func (m *mailbox) take() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return Frame{}, false
	}
	f := *m.slot
	m.slot = nil
	return f, true
}

// dropCount returns how many frames were overwritten before consumption.
func (m *mailbox) dropCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// drain closes any unconsumed frame.
func (m *mailbox) drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot != nil {
		m.slot.Close()
		m.slot = nil
	}
}
