// Package bus fans resource-update events out to subscriber sinks. Sinks
// carry bounded queues; a sink that cannot keep up is dropped rather than
// allowed to stall publishers.
package bus

import (
	"sync"

	"odoomcp/pkg/logging"
)

// MethodResourcesUpdated is the notification method subscribers receive.
const MethodResourcesUpdated = "notifications/resources/updated"

// Update is one resource-change event.
type Update struct {
	// URI of the changed resource.
	URI string
	// Params is the notification payload; URI is always present under "uri".
	Params map[string]interface{}
}

// NewUpdate builds an update for a URI with optional extra payload fields.
func NewUpdate(uri string, extra map[string]interface{}) Update {
	params := map[string]interface{}{"uri": uri}
	for k, v := range extra {
		params[k] = v
	}
	return Update{URI: uri, Params: params}
}

// Sink is one subscriber's bounded event queue.
type Sink struct {
	id  int64
	uri string // empty means every update
	ch  chan Update
	bus *Bus
}

// Events is the receive side of the sink. The channel closes when the sink
// is dropped or the bus shuts down.
func (s *Sink) Events() <-chan Update {
	return s.ch
}

// Close unsubscribes the sink. Safe to call more than once.
func (s *Sink) Close() {
	s.bus.remove(s)
}

// Bus routes updates from publishers to sinks.
type Bus struct {
	queueSize int

	mu     sync.Mutex
	nextID int64
	byURI  map[string]map[int64]*Sink
	all    map[int64]*Sink
	closed bool

	dropped int64
}

// New creates a bus whose sinks buffer up to queueSize updates.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Bus{
		queueSize: queueSize,
		byURI:     make(map[string]map[int64]*Sink),
		all:       make(map[int64]*Sink),
	}
}

// Subscribe registers a sink for one URI.
func (b *Bus) Subscribe(uri string) *Sink {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.newSinkLocked(uri)
	if s == nil {
		return closedSink(b)
	}
	set, ok := b.byURI[uri]
	if !ok {
		set = make(map[int64]*Sink)
		b.byURI[uri] = set
	}
	set[s.id] = s
	return s
}

// SubscribeAll registers a sink that receives every update, regardless of
// URI. Event-stream clients without a filter use this.
func (b *Bus) SubscribeAll() *Sink {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.newSinkLocked("")
	if s == nil {
		return closedSink(b)
	}
	b.all[s.id] = s
	return s
}

func (b *Bus) newSinkLocked(uri string) *Sink {
	if b.closed {
		return nil
	}
	b.nextID++
	return &Sink{id: b.nextID, uri: uri, ch: make(chan Update, b.queueSize), bus: b}
}

// closedSink hands callers a terminated sink so subscribing after shutdown
// degrades to an immediately-closed event stream.
func closedSink(b *Bus) *Sink {
	s := &Sink{bus: b, ch: make(chan Update)}
	close(s.ch)
	return s
}

// Publish delivers an update to every sink watching its URI plus every
// catch-all sink. Publish never blocks: a sink whose queue is full is
// dropped and its channel closed.
func (b *Bus) Publish(update Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, s := range b.byURI[update.URI] {
		b.offerLocked(s, update)
	}
	for _, s := range b.all {
		b.offerLocked(s, update)
	}
}

func (b *Bus) offerLocked(s *Sink, update Update) {
	select {
	case s.ch <- update:
	default:
		b.dropLocked(s)
		b.dropped++
		logging.Warn("Bus", "dropping slow subscriber for %q (queue of %d full)", s.uri, b.queueSize)
	}
}

func (b *Bus) remove(s *Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(s)
}

func (b *Bus) dropLocked(s *Sink) {
	if s.id == 0 {
		return // already-terminated placeholder sink
	}
	if s.uri == "" {
		if _, ok := b.all[s.id]; !ok {
			return
		}
		delete(b.all, s.id)
	} else {
		set, ok := b.byURI[s.uri]
		if !ok {
			return
		}
		if _, ok := set[s.id]; !ok {
			return
		}
		delete(set, s.id)
		if len(set) == 0 {
			delete(b.byURI, s.uri)
		}
	}
	close(s.ch)
}

// SubscriberCount reports how many sinks watch a URI (catch-all sinks
// excluded).
func (b *Bus) SubscriberCount(uri string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byURI[uri])
}

// Dropped reports how many sinks have been evicted for falling behind.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close drops every sink and rejects further subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, set := range b.byURI {
		for _, s := range set {
			close(s.ch)
		}
	}
	for _, s := range b.all {
		close(s.ch)
	}
	b.byURI = make(map[string]map[int64]*Sink)
	b.all = make(map[int64]*Sink)
}
