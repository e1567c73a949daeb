package session

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies session progress events.
type EventType string

const (
	EventIssued       EventType = "issued"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventAbandoned    EventType = "abandoned"
	EventExhausted    EventType = "exhausted"
	EventSpaceUpdated EventType = "space_updated"
)

// Event represents a progress update emitted by a session.
type Event struct {
	SessionID   string    `json:"sessionId"`
	Type        EventType `json:"type"`
	ParameterID int       `json:"parameterId,omitempty"`
	Reward      float64   `json:"reward,omitempty"`
	Trials      int       `json:"trials"`
	Timestamp   time.Time `json:"timestamp"`
}

// Broadcaster fans session events out to subscribers.
type Broadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan Event]bool // sessionID -> set of client channels
	lastEvent map[string]Event               // sessionID -> last event for new clients
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:   make(map[string]map[chan Event]bool),
		lastEvent: make(map[string]Event),
	}
}

// Subscribe adds a client to receive events for a session.
func (b *Broadcaster) Subscribe(sessionID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 10) // Buffered to prevent blocking

	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[chan Event]bool)
	}
	b.clients[sessionID][ch] = true

	// Send last event if available (for reconnecting clients)
	if lastEvent, ok := b.lastEvent[sessionID]; ok {
		select {
		case ch <- lastEvent:
		default:
			// Channel full, skip
		}
	}

	slog.Debug("Event client subscribed", "sessionID", sessionID, "total_clients", len(b.clients[sessionID]))
	return ch
}

// Unsubscribe removes a client from receiving events.
func (b *Broadcaster) Unsubscribe(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[sessionID]; ok {
		delete(clients, ch)
		close(ch)

		if len(clients) == 0 {
			delete(b.clients, sessionID)
		}
	}

	slog.Debug("Event client unsubscribed", "sessionID", sessionID)
}

// Broadcast sends an event to all subscribed clients for a session.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Store last event
	b.lastEvent[event.SessionID] = event

	clients, ok := b.clients[event.SessionID]
	if !ok || len(clients) == 0 {
		return
	}

	for ch := range clients {
		select {
		case ch <- event:
			// Event sent successfully
		default:
			// Channel full, skip this client (prevents blocking)
			slog.Warn("Event channel full, skipping event", "sessionID", event.SessionID)
		}
	}
}

// Cleanup removes all clients and cached events for a session.
func (b *Broadcaster) Cleanup(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[sessionID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(b.clients, sessionID)
	}

	delete(b.lastEvent, sessionID)
	slog.Debug("Cleaned up event resources", "sessionID", sessionID)
}
