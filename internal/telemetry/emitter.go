package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Emitter writes events as JSONL through a buffered channel and a
// single background writer. Emit is fire-and-forget: when the buffer
// is full the event is dropped and counted, because the decision path
// must never block on telemetry.
type Emitter struct {
	ch      chan Event
	done    chan struct{}
	w       io.WriteCloser
	logger  *slog.Logger

	mu      sync.Mutex
	dropped int
	closed  bool
}

const emitterBuffer = 256

// NewEmitter creates an emitter writing to w. The caller retains
// ownership of w only until Close.
func NewEmitter(w io.WriteCloser, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		ch:     make(chan Event, emitterBuffer),
		done:   make(chan struct{}),
		w:      w,
		logger: logger,
	}
	go e.run()
	return e
}

// OpenEmitter creates an emitter appending to a JSONL file at path.
func OpenEmitter(path string, logger *slog.Logger) (*Emitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("telemetry: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open events file: %w", err)
	}
	return NewEmitter(f, logger), nil
}

// Emit queues an event without blocking. Returns false if the event
// was dropped.
func (e *Emitter) Emit(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}

	// Non-blocking send under the mutex, so Close cannot close the
	// channel while a send is in flight.
	select {
	case e.ch <- ev:
		return true
	default:
		e.dropped++
		return false
	}
}

// Dropped returns the number of events discarded due to backpressure.
func (e *Emitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close drains the buffer, stops the writer, and closes the sink.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	<-e.done
	return e.w.Close()
}

func (e *Emitter) run() {
	defer close(e.done)
	enc := json.NewEncoder(e.w)
	for ev := range e.ch {
		if err := enc.Encode(ev); err != nil {
			e.logger.Warn("telemetry write failed", "error", err)
		}
	}
}
