package report

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu        sync.RWMutex
	traders   []*TradersEvent
	histories []*HistoryEvent
	err       error
	closed    bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishTraders records the event and returns any configured error.
func (m *MockPublisher) PublishTraders(ctx context.Context, event *TradersEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.traders = append(m.traders, event)
	return nil
}

// PublishHistory records the event and returns any configured error.
func (m *MockPublisher) PublishHistory(ctx context.Context, event *HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.histories = append(m.histories, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetError configures the mock to fail every publish.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Traders returns a copy of the published discovery events.
func (m *MockPublisher) Traders() []*TradersEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TradersEvent, len(m.traders))
	copy(out, m.traders)
	return out
}

// Histories returns a copy of the published history events.
func (m *MockPublisher) Histories() []*HistoryEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*HistoryEvent, len(m.histories))
	copy(out, m.histories)
	return out
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ Publisher = (*MockPublisher)(nil)
