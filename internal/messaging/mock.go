package messaging

import (
	"context"
	"sync"
)

// SentMessage records one delivery made through MockSender.
type SentMessage struct {
	To   string
	Body string
}

// MockSender is an in-memory Sender for tests. Recipients listed in Fail are rejected
// with FailErr.
type MockSender struct {
	mu      sync.Mutex
	Sent    []SentMessage
	Fail    map[string]bool
	FailErr error
}

// NewMockSender creates a sender that accepts every message.
func NewMockSender() *MockSender {
	return &MockSender{Fail: make(map[string]bool)}
}

func (m *MockSender) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail[to] {
		if m.FailErr != nil {
			return m.FailErr
		}
		return errMockDelivery
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of the recorded deliveries.
func (m *MockSender) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// SetFailing marks a recipient as failing or healthy.
func (m *MockSender) SetFailing(to string, failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail[to] = failing
}
