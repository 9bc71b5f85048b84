// Package events carries log, list and config notifications between the
// list controllers and whoever renders them.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voltline/evdash/internal/constants"
)

// EventType names a kind of event.
type EventType string

const (
	EventLog EventType = "log"

	EventListStateChange    EventType = "list_state_change"    // SyncState transition
	EventListPageApplied    EventType = "list_page_applied"    // page merged into the list
	EventListFetchFailed    EventType = "list_fetch_failed"    // page fetch failed (not cancelled)
	EventListStaleDiscarded EventType = "list_stale_discarded" // late response from an old generation dropped

	EventConfigChanged EventType = "config_changed" // config file rewritten
)

// LogLevel is the severity carried by a LogEvent.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l LogLevel) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// Event is implemented by everything the bus carries.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides the Event methods.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Message   string
	Component string
	Error     error
}

// ListEvent describes something that happened to one synchronized list.
type ListEvent struct {
	BaseEvent
	List        string // "stations", "wallets", "transactions"
	Generation  uint64
	PageIndex   int
	OldState    string
	NewState    string
	Items       int // items in the list after the event
	Total       int
	HasNextPage bool
	Error       error
}

// ConfigChangedEvent is published after the config file is written.
type ConfigChangedEvent struct {
	BaseEvent
	Path string
}

type subscriber struct {
	ch    chan Event
	match func(Event) bool
}

// EventBus fans events out to buffered subscriber channels. Publishing never
// blocks: an event for a full subscriber is dropped and counted.
type EventBus struct {
	mu         sync.RWMutex
	subs       []*subscriber
	bufferSize int
	closed     bool
	dropped    atomic.Int64
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize events.
// Out-of-range sizes are clamped to the defaults in constants.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{bufferSize: min(bufferSize, constants.EventBusMaxBuffer)}
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is given.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	return eb.subscribe(typeFilter(types))
}

// SubscribeList is Subscribe restricted to ListEvents for one list.
func (eb *EventBus) SubscribeList(list string, types ...EventType) <-chan Event {
	ofType := typeFilter(types)
	return eb.subscribe(func(e Event) bool {
		le, ok := e.(*ListEvent)
		return ok && le.List == list && ofType(e)
	})
}

func typeFilter(types []EventType) func(Event) bool {
	if len(types) == 0 {
		return func(Event) bool { return true }
	}
	types = slices.Clone(types)
	return func(e Event) bool { return slices.Contains(types, e.Type()) }
}

func (eb *EventBus) subscribe(match func(Event) bool) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	s := &subscriber{ch: make(chan Event, eb.bufferSize), match: match}
	eb.subs = append(eb.subs, s)
	return s.ch
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	i := slices.IndexFunc(eb.subs, func(s *subscriber) bool { return s.ch == ch })
	if i < 0 {
		return
	}
	close(eb.subs[i].ch)
	eb.subs = slices.Delete(eb.subs, i, i+1)
}

// Publish delivers event to every matching subscriber.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, s := range eb.subs {
		if !s.match(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// PublishLog publishes a LogEvent stamped with the current time.
func (eb *EventBus) PublishLog(level LogLevel, message, component string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Component: component,
		Error:     err,
	})
}

// PublishList publishes ev with its type and time filled in.
func (eb *EventBus) PublishList(eventType EventType, ev ListEvent) {
	ev.BaseEvent = BaseEvent{EventType: eventType, Time: time.Now()}
	eb.Publish(&ev)
}

// Close closes every subscriber channel. Later publishes are ignored and
// later subscriptions receive an already closed channel.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, s := range eb.subs {
		close(s.ch)
	}
	eb.subs = nil
}

// Dropped returns how many events were discarded because a subscriber was full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}
