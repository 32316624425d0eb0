package application

import (
	"sync"
	"time"
)

// FlowTTL is how long an idle conversation keeps its place in the flow.
const FlowTTL = 30 * time.Minute

// FlowKey scopes a scheduling conversation to one sender in one chat.
type FlowKey struct {
	ChatID   string
	SenderID string
}

// FlowState is the progress of one interactive scheduling conversation.
// RequestID is the message id of the "add" command and doubles as the
// idempotency key of the resulting scheduled message.
type FlowState struct {
	Step      string // "to", "when", "text"
	RequestID string
	SenderID  string
	ToChatID  string
	SendAt    time.Time
	UpdatedAt time.Time
}

type IFlowStore interface {
	Get(key FlowKey, now time.Time) (*FlowState, bool)
	Set(key FlowKey, state *FlowState)
	Clear(key FlowKey)
}

// InMemoryFlowStore keeps conversations per process. Stale flows expire
// lazily on read.
type InMemoryFlowStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[FlowKey]*FlowState
}

var _ IFlowStore = (*InMemoryFlowStore)(nil)

func NewInMemoryFlowStore(ttl time.Duration) *InMemoryFlowStore {
	if ttl <= 0 {
		ttl = FlowTTL
	}
	return &InMemoryFlowStore{
		ttl:   ttl,
		flows: make(map[FlowKey]*FlowState),
	}
}

func (s *InMemoryFlowStore) Get(key FlowKey, now time.Time) (*FlowState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[key]
	if !ok {
		return nil, false
	}
	if now.Sub(flow.UpdatedAt) > s.ttl {
		delete(s.flows, key)
		return nil, false
	}
	return flow, true
}

func (s *InMemoryFlowStore) Set(key FlowKey, state *FlowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[key] = state
}

func (s *InMemoryFlowStore) Clear(key FlowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, key)
}
