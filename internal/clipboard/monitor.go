// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package clipboard

import (
	"time"

	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/logging"
)

// EventKind classifies a clipboard change.
type EventKind int

const (
	// EventPGPDetected fires when an OpenPGP armor block appears.
	EventPGPDetected EventKind = iota
	// EventTextChanged fires for any other non-empty content change.
	EventTextChanged
	// EventCleared fires when the clipboard becomes empty.
	EventCleared
)

// Event describes one observed clipboard change.
type Event struct {
	Kind    EventKind
	Block   engine.BlockType // set for EventPGPDetected
	Content string
}

// eventBufferSize bounds the event channel; when the consumer lags,
// further events are dropped rather than blocking the poll loop.
const eventBufferSize = 32

// Monitor polls the clipboard and emits change events.
type Monitor struct {
	interval time.Duration
	events   chan Event
	stop     chan struct{}
	// readFunc allows tests to substitute clipboard access.
	readFunc func() (string, error)
}

// NewMonitor creates a monitor polling at the given interval. A zero or
// negative interval defaults to 500ms.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Monitor{
		interval: interval,
		events:   make(chan Event, eventBufferSize),
		stop:     make(chan struct{}),
		readFunc: Read,
	}
}

// Events returns the channel change events are delivered on. The channel
// is closed when the monitor stops.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Start launches the poll loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop terminates the poll loop. It is safe to call once.
func (m *Monitor) Stop() {
	close(m.stop)
}

func (m *Monitor) run() {
	defer close(m.events)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last string
	first := true
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			content, err := m.readFunc()
			if err != nil {
				logging.Debugf("clipboard: read failed: %v", err)
				continue
			}
			if !first && content == last {
				continue
			}
			// The initial read establishes the baseline without emitting.
			if first {
				first = false
				last = content
				continue
			}
			last = content
			m.emit(classify(content))
		}
	}
}

// classify maps clipboard content to an event.
func classify(content string) Event {
	if content == "" {
		return Event{Kind: EventCleared}
	}
	if block, ok := engine.DetectBlock(content); ok {
		return Event{Kind: EventPGPDetected, Block: block, Content: content}
	}
	return Event{Kind: EventTextChanged, Content: content}
}

// emit delivers without blocking; events are dropped when the buffer is
// full so a stuck consumer can never stall polling.
func (m *Monitor) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		logging.Debugf("clipboard: event buffer full, dropping event")
	}
}
