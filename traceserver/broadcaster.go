// Package traceserver relays instruction-execution trace events over a
// websocket, fanning out each executed instruction and register-file
// snapshot to every connected trace viewer.
package traceserver

import "sync"

// EventType categorizes a broadcast trace event.
type EventType string

const (
	// EventFetch fires once per decoded/executed instruction.
	EventFetch EventType = "fetch"
	// EventRegisterRead fires once per register read a semantic program
	// performs.
	EventRegisterRead EventType = "register_read"
	// EventRegisterWrite fires once per register write a semantic
	// program performs.
	EventRegisterWrite EventType = "register_write"
	// EventHostOp fires once per host arithmetic-helper call.
	EventHostOp EventType = "host_op"
	// EventHalt fires when a run session stops (normal completion or
	// error).
	EventHalt EventType = "halt"
)

// Event is one broadcastable unit, JSON-encoded as-is over the
// websocket.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
}

// Subscription is one trace viewer's live feed, optionally filtered to a
// session ID and a set of event types.
type Subscription struct {
	SessionID  string
	EventTypes map[EventType]bool
	Channel    chan Event
}

// Broadcaster fans incoming trace events out to every matching
// subscription without letting a slow subscriber stall the run loop
// producing the events.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[*Subscription]bool
	broadcast     chan Event
	register      chan *Subscription
	unregister    chan *Subscription
	done          chan struct{}
}

// NewBroadcaster starts a broadcaster's dispatch loop in the background.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		subscriptions: make(map[*Subscription]bool),
		broadcast:     make(chan Event, 256),
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		done:          make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	for {
		select {
		case sub := <-b.register:
			b.mu.Lock()
			b.subscriptions[sub] = true
			b.mu.Unlock()

		case sub := <-b.unregister:
			b.mu.Lock()
			if b.subscriptions[sub] {
				delete(b.subscriptions, sub)
				close(sub.Channel)
			}
			b.mu.Unlock()

		case event := <-b.broadcast:
			b.mu.RLock()
			for sub := range b.subscriptions {
				if sub.SessionID != "" && sub.SessionID != event.SessionID {
					continue
				}
				if len(sub.EventTypes) > 0 && !sub.EventTypes[event.Type] {
					continue
				}
				select {
				case sub.Channel <- event:
				default:
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			b.mu.Lock()
			for sub := range b.subscriptions {
				close(sub.Channel)
			}
			b.subscriptions = make(map[*Subscription]bool)
			b.mu.Unlock()
			return
		}
	}
}

// Subscribe registers a new subscription; sessionID == "" matches every
// session, and a nil/empty eventTypes matches every event type.
func (b *Broadcaster) Subscribe(sessionID string, eventTypes []EventType) *Subscription {
	typeSet := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		typeSet[t] = true
	}
	sub := &Subscription{SessionID: sessionID, EventTypes: typeSet, Channel: make(chan Event, 64)}
	b.register <- sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) { b.unregister <- sub }

// Broadcast enqueues event for dispatch, dropping it if the broadcaster
// is overwhelmed rather than blocking the caller.
func (b *Broadcaster) Broadcast(event Event) {
	select {
	case b.broadcast <- event:
	default:
	}
}

// BroadcastFetch reports one decoded instruction's execution.
func (b *Broadcaster) BroadcastFetch(sessionID string, address, bits uint64, mnemonic string) {
	b.Broadcast(Event{
		Type:      EventFetch,
		SessionID: sessionID,
		Data: map[string]any{
			"address":  address,
			"bits":     bits,
			"mnemonic": mnemonic,
		},
	})
}

// BroadcastRegisterRead reports one register read.
func (b *Broadcaster) BroadcastRegisterRead(sessionID, register string, value uint64, width uint) {
	b.Broadcast(Event{
		Type:      EventRegisterRead,
		SessionID: sessionID,
		Data: map[string]any{
			"register": register,
			"value":    value,
			"width":    width,
		},
	})
}

// BroadcastRegisterWrite reports one register write.
func (b *Broadcaster) BroadcastRegisterWrite(sessionID, register string, value uint64, width uint) {
	b.Broadcast(Event{
		Type:      EventRegisterWrite,
		SessionID: sessionID,
		Data: map[string]any{
			"register": register,
			"value":    value,
			"width":    width,
		},
	})
}

// BroadcastHostOp reports one host arithmetic-helper call.
func (b *Broadcaster) BroadcastHostOp(sessionID, name string, args []uint64, result uint64) {
	b.Broadcast(Event{
		Type:      EventHostOp,
		SessionID: sessionID,
		Data: map[string]any{
			"name":   name,
			"args":   args,
			"result": result,
		},
	})
}

// BroadcastHalt reports a run session stopping, successfully or not.
func (b *Broadcaster) BroadcastHalt(sessionID string, err error) {
	data := map[string]any{}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Broadcast(Event{Type: EventHalt, SessionID: sessionID, Data: data})
}

// Close shuts the broadcaster down and closes every live subscription.
func (b *Broadcaster) Close() { close(b.done) }

// SubscriptionCount reports how many viewers are currently attached.
func (b *Broadcaster) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}
