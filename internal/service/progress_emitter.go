package service

import (
	"encoding/json"
	"sync"
	"time"

	"lumifax/internal/dto"
	"lumifax/pkg/config"

	"go.uber.org/zap"
)

// ProgressEmitter decouples event production from delivery: the analysis
// driver publishes events whether or not a browser is listening. Every event
// is appended to the session's pending queue before any delivery attempt, so
// a late attach still receives the full history in order.
//
// At most one channel is attached per session; a new attach replaces the old
// registration (last tab wins).
type ProgressEmitter struct {
	mu       sync.Mutex
	channels map[string]Channel
	pending  map[string][]string
	cfg      config.StreamConfig
	logger   *zap.Logger
}

func NewProgressEmitter(cfg config.StreamConfig, logger *zap.Logger) *ProgressEmitter {
	return &ProgressEmitter{
		channels: make(map[string]Channel),
		pending:  make(map[string][]string),
		cfg:      cfg,
		logger:   logger,
	}
}

// Attach registers the delivery channel for a session. A previous
// registration is replaced and its channel closed, so a superseded stream
// ends instead of lingering.
func (e *ProgressEmitter) Attach(sessionID string, ch Channel) {
	e.mu.Lock()
	prev := e.channels[sessionID]
	e.channels[sessionID] = ch
	e.mu.Unlock()

	if prev != nil && prev != ch {
		prev.Close()
	}
}

// Detach removes the registration. Queued events are kept for a future
// attach.
func (e *ProgressEmitter) Detach(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.channels, sessionID)
}

// DetachChannel removes the registration only if ch is still the registered
// channel. Transports use this so a stale stream cannot detach its
// replacement.
func (e *ProgressEmitter) DetachChannel(sessionID string, ch Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channels[sessionID] == ch {
		delete(e.channels, sessionID)
	}
}

// Publish serializes the event, queues it, and tries to flush the whole
// queue through the attached channel. Delivery failures are retried with
// exponential backoff up to the configured attempt ceiling; if no channel
// attaches within the wait window that counts as a failed attempt. Publish
// never fails the caller: the session store stays authoritative and exhausted
// retries only leave the events queued.
func (e *ProgressEmitter) Publish(sessionID string, event dto.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to serialize progress event",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	e.mu.Lock()
	e.pending[sessionID] = append(e.pending[sessionID], string(payload))
	e.mu.Unlock()

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.cfg.RetryBackoff << (attempt - 1))
		}

		ch, ok := e.waitForChannel(sessionID)
		if !ok {
			e.logger.Debug("No listener attached within wait window",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		if err := e.flush(sessionID, ch); err != nil {
			e.logger.Warn("Progress delivery failed, will retry",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if event.Terminal() {
			e.finish(sessionID, ch)
		}
		return
	}

	e.logger.Error("Giving up on progress delivery, events remain queued",
		zap.String("session_id", sessionID),
		zap.Int("attempts", e.cfg.MaxAttempts),
	)
}

// waitForChannel polls for an attached channel for up to AttachWait.
func (e *ProgressEmitter) waitForChannel(sessionID string) (Channel, bool) {
	deadline := time.Now().Add(e.cfg.AttachWait)
	for {
		e.mu.Lock()
		ch, ok := e.channels[sessionID]
		e.mu.Unlock()
		if ok {
			return ch, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(e.cfg.AttachPollInterval)
	}
}

// flush delivers the entire pending queue in order and clears it on success.
// On a send failure the undelivered tail (including the failed message) stays
// queued for the next attempt.
func (e *ProgressEmitter) flush(sessionID string, ch Channel) error {
	e.mu.Lock()
	queue := e.pending[sessionID]
	e.mu.Unlock()

	for i, msg := range queue {
		if i > 0 {
			time.Sleep(e.cfg.MessageDelay)
		}
		if err := ch.Send(msg); err != nil {
			e.mu.Lock()
			e.pending[sessionID] = e.pending[sessionID][i:]
			e.mu.Unlock()
			return err
		}
	}

	e.mu.Lock()
	delete(e.pending, sessionID)
	e.mu.Unlock()
	return nil
}

// finish tears down push delivery after the terminal event: queue and
// registration go away and the channel is closed so the transport ends its
// stream. The results endpoint keeps working off the session store.
func (e *ProgressEmitter) finish(sessionID string, ch Channel) {
	e.mu.Lock()
	delete(e.pending, sessionID)
	if e.channels[sessionID] == ch {
		delete(e.channels, sessionID)
	}
	e.mu.Unlock()
	ch.Close()
}

// PendingCount reports the queued, undelivered events for a session.
func (e *ProgressEmitter) PendingCount(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending[sessionID])
}

// Attached reports whether a channel is currently registered.
func (e *ProgressEmitter) Attached(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.channels[sessionID]
	return ok
}
