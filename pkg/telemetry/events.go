package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/covenantdao/covenant/pkg/engine"
)

var _ engine.EventSink = (*EventPublisher)(nil)

// Event is a published governance event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the state change was committed.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ProposalID is the associated proposal, 0 for registry changes made outside a proposal.
	ProposalID uint64 `json:"proposal_id,omitempty"`

	// Caller is the address that performed the operation.
	Caller string `json:"caller,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned when publishing after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// ErrBufferFull is returned when an event is dropped because the buffer is full.
var ErrBufferFull = errors.New("event buffer full, event dropped")

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher buffers governance events and fans them out to subscribers.
// Subscribers are called in publication order from a single goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	dropped     atomic.Uint64
	onDrop      func()
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	stopOnce    sync.Once
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if !cfg.Enabled {
		return ep, nil
	}

	if cfg.EnableAsync {
		if cfg.BufferSize <= 0 || cfg.MaxBatchSize <= 0 {
			cancel()
			return nil, fmt.Errorf("invalid event buffer configuration: buffer %d, batch %d", cfg.BufferSize, cfg.MaxBatchSize)
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// OnDrop registers a callback invoked whenever an event is dropped.
func (ep *EventPublisher) OnDrop(fn func()) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.onDrop = fn
}

// Emit converts an engine event and publishes it. It never blocks; events that do not fit the
// buffer are counted and dropped.
func (ep *EventPublisher) Emit(ev engine.Event) {
	if err := ep.Publish(FromEngineEvent(ev)); errors.Is(err, ErrBufferFull) {
		ep.dropped.Add(1)
		ep.mu.RLock()
		onDrop := ep.onDrop
		ep.mu.RUnlock()
		if onDrop != nil {
			onDrop()
		}
	}
}

// Dropped returns the number of events dropped so far.
func (ep *EventPublisher) Dropped() uint64 {
	return ep.dropped.Load()
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if ep.ctx.Err() != nil {
		return ErrPublisherStopped
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		default:
			return ErrBufferFull
		}
	}

	ep.deliverEvent(event)
	return nil
}

// FromEngineEvent builds the published form of an engine event.
func FromEngineEvent(ev engine.Event) Event {
	out := Event{
		Timestamp:  ev.Timestamp,
		Type:       string(ev.Type),
		Source:     "governance-engine",
		ProposalID: ev.ProposalID,
		Caller:     string(ev.Caller),
		Level:      EventLevelInfo,
		Data:       ev.Data,
	}

	switch ev.Type {
	case engine.EventProposalCreated:
		out.Message = fmt.Sprintf("Proposal %d created by %s", ev.ProposalID, ev.Caller)
	case engine.EventProposalVoted:
		out.Message = fmt.Sprintf("%s voted on proposal %d", ev.Caller, ev.ProposalID)
	case engine.EventProposalSigned:
		out.Message = fmt.Sprintf("%s signed proposal %d", ev.Caller, ev.ProposalID)
	case engine.EventProposalExecuted:
		out.Message = fmt.Sprintf("Proposal %d executed by %s", ev.ProposalID, ev.Caller)
	case engine.EventDepositWithdrawn:
		out.Message = fmt.Sprintf("%s withdrew deposit from proposal %d", ev.Caller, ev.ProposalID)
	case engine.EventRegistryChanged:
		out.Message = fmt.Sprintf("Registry changed: %v", ev.Data["change"])
	case engine.EventGuardViolation:
		out.Message = fmt.Sprintf("Guard blocked %v on proposal %d", ev.Data["operation"], ev.ProposalID)
		out.Level = EventLevelWarning
	default:
		out.Message = string(ev.Type)
	}

	return out
}

// Subscribe adds a new event subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events in batches, flushing partial batches on a timer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	subscribers := ep.subscribers
	ep.mu.RUnlock()

	for _, entry := range subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits for buffered ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.stopOnce.Do(ep.cancel)

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout: %w", ctx.Err())
	}
}

// JSONSubscriber returns a subscriber writing one JSON document per event to w.
func JSONSubscriber(w io.Writer) EventSubscriber {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(event)
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...engine.EventType) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[string(t)] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByProposal creates a filter that only allows events for a specific proposal.
func FilterByProposal(id uint64) EventFilter {
	return func(event Event) bool {
		return event.ProposalID == id
	}
}

// FilterByCaller creates a filter that only allows events caused by addr.
func FilterByCaller(addr string) EventFilter {
	return func(event Event) bool {
		return event.Caller == addr
	}
}
