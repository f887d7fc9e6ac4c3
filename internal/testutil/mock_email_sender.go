package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/email"
)

// SentEmail is one notification captured by the mock sender.
type SentEmail struct {
	Kind     string
	To       string
	Amount   decimal.Decimal
	Currency string
}

// MockEmailSender records notifications instead of delivering them.
type MockEmailSender struct {
	mu   sync.Mutex
	sent []SentEmail

	// Err, when set, is returned from every send.
	Err error
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) SendPaymentFailed(ctx context.Context, to, invoiceNumber, paymentLink string, amount decimal.Decimal, currency string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{Kind: "payment_failed", To: to, Amount: amount, Currency: currency})
	return nil
}

func (m *MockEmailSender) SendBudgetAlert(ctx context.Context, to string, spend, threshold decimal.Decimal, currency string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{Kind: "budget_alert", To: to, Amount: spend, Currency: currency})
	return nil
}

// Sent returns the captured notifications, oldest first.
func (m *MockEmailSender) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockEmailSender) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.Err = nil
}

var _ email.Sender = (*MockEmailSender)(nil)
