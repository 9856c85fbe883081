package handlers

import (
	"sync"

	"lumifax/internal/service"
)

// streamChannel adapts a buffered Go channel to the emitter's delivery
// interface. Send never blocks: a full buffer is reported as an error so the
// emitter can back off and retry instead of stalling the analysis driver.
type streamChannel struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

func newStreamChannel(buffer int) *streamChannel {
	return &streamChannel{
		ch: make(chan string, buffer),
	}
}

func (s *streamChannel) Send(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return service.ErrChannelClosed
	}
	select {
	case s.ch <- payload:
		return nil
	default:
		return service.ErrChannelFull
	}
}

func (s *streamChannel) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// C exposes the receive side for the stream writer loop.
func (s *streamChannel) C() <-chan string {
	return s.ch
}
