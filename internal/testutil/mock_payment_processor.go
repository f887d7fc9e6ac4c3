package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/frappe/press-billing/internal/domain/processor"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// MockPaymentProcessor is a scriptable PaymentProcessor for service tests.
// Each hook, when set, overrides the default happy-path behavior. Calls are
// recorded so tests can assert on what crossed the boundary.
type MockPaymentProcessor struct {
	mu sync.Mutex

	EnsureCustomerFn    func(ctx context.Context, req *processor.CustomerRequest) (string, error)
	CreateInvoiceFn     func(ctx context.Context, req *processor.InvoiceRequest) (*processor.InvoiceResult, error)
	FinalizeInvoiceFn   func(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error)
	VoidInvoiceFn       func(ctx context.Context, processorInvoiceID string) error
	RetrieveInvoiceFn   func(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error)
	RefundChargeFn      func(ctx context.Context, processorInvoiceID string) (string, error)
	CreateSetupIntentFn func(ctx context.Context, customerID string) (*processor.SetupIntentResult, error)
	VerifySignatureFn   func(payload []byte, signature string) (*processor.Event, error)

	CreatedInvoices []*processor.InvoiceRequest
	FinalizedIDs    []string
	VoidedIDs       []string
	RefundedIDs     []string
	nextInvoiceSeq  int
}

func NewMockPaymentProcessor() *MockPaymentProcessor {
	return &MockPaymentProcessor{}
}

func (m *MockPaymentProcessor) Name() types.ProcessorName {
	return types.ProcessorStripe
}

func (m *MockPaymentProcessor) EnsureCustomer(ctx context.Context, req *processor.CustomerRequest) (string, error) {
	if m.EnsureCustomerFn != nil {
		return m.EnsureCustomerFn(ctx, req)
	}
	return "cus_mock_" + req.TenantID, nil
}

func (m *MockPaymentProcessor) CreateInvoice(ctx context.Context, req *processor.InvoiceRequest) (*processor.InvoiceResult, error) {
	m.mu.Lock()
	m.CreatedInvoices = append(m.CreatedInvoices, req)
	m.nextInvoiceSeq++
	seq := m.nextInvoiceSeq
	m.mu.Unlock()

	if m.CreateInvoiceFn != nil {
		return m.CreateInvoiceFn(ctx, req)
	}
	return &processor.InvoiceResult{
		ProcessorInvoiceID: fmt.Sprintf("in_mock_%d", seq),
		Status:             types.ProcessorInvoiceStatusDraft,
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
	}, nil
}

func (m *MockPaymentProcessor) FinalizeInvoice(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error) {
	m.mu.Lock()
	m.FinalizedIDs = append(m.FinalizedIDs, processorInvoiceID)
	m.mu.Unlock()

	if m.FinalizeInvoiceFn != nil {
		return m.FinalizeInvoiceFn(ctx, processorInvoiceID)
	}
	return &processor.InvoiceResult{
		ProcessorInvoiceID: processorInvoiceID,
		Status:             types.ProcessorInvoiceStatusOpen,
	}, nil
}

func (m *MockPaymentProcessor) VoidInvoice(ctx context.Context, processorInvoiceID string) error {
	m.mu.Lock()
	m.VoidedIDs = append(m.VoidedIDs, processorInvoiceID)
	m.mu.Unlock()

	if m.VoidInvoiceFn != nil {
		return m.VoidInvoiceFn(ctx, processorInvoiceID)
	}
	return nil
}

func (m *MockPaymentProcessor) RetrieveInvoice(ctx context.Context, processorInvoiceID string) (*processor.InvoiceResult, error) {
	if m.RetrieveInvoiceFn != nil {
		return m.RetrieveInvoiceFn(ctx, processorInvoiceID)
	}
	return &processor.InvoiceResult{
		ProcessorInvoiceID: processorInvoiceID,
		Status:             types.ProcessorInvoiceStatusOpen,
	}, nil
}

func (m *MockPaymentProcessor) RefundCharge(ctx context.Context, processorInvoiceID string) (string, error) {
	m.mu.Lock()
	m.RefundedIDs = append(m.RefundedIDs, processorInvoiceID)
	m.mu.Unlock()

	if m.RefundChargeFn != nil {
		return m.RefundChargeFn(ctx, processorInvoiceID)
	}
	return "re_mock_" + processorInvoiceID, nil
}

func (m *MockPaymentProcessor) CreateSetupIntent(ctx context.Context, customerID string) (*processor.SetupIntentResult, error) {
	if m.CreateSetupIntentFn != nil {
		return m.CreateSetupIntentFn(ctx, customerID)
	}
	return &processor.SetupIntentResult{
		SetupIntentID: "seti_mock_" + customerID,
		ClientSecret:  "seti_mock_secret",
	}, nil
}

func (m *MockPaymentProcessor) VerifyWebhookSignature(payload []byte, signature string) (*processor.Event, error) {
	if m.VerifySignatureFn != nil {
		return m.VerifySignatureFn(payload, signature)
	}
	return nil, ierr.NewError("webhook signature verification failed").
		Mark(ierr.ErrPermissionDenied)
}

// Clear drops recorded calls and scripted hooks between tests.
func (m *MockPaymentProcessor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureCustomerFn = nil
	m.CreateInvoiceFn = nil
	m.FinalizeInvoiceFn = nil
	m.VoidInvoiceFn = nil
	m.RetrieveInvoiceFn = nil
	m.RefundChargeFn = nil
	m.CreateSetupIntentFn = nil
	m.VerifySignatureFn = nil
	m.CreatedInvoices = nil
	m.FinalizedIDs = nil
	m.VoidedIDs = nil
	m.RefundedIDs = nil
	m.nextInvoiceSeq = 0
}

var _ processor.PaymentProcessor = (*MockPaymentProcessor)(nil)
