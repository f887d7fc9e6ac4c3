package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/processor"
	"github.com/frappe/press-billing/internal/domain/tenant"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/testutil"
	"github.com/frappe/press-billing/internal/types"
)

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PaymentService
	invoice InvoiceService
	ledger  LedgerService
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestParams(&s.BaseServiceTestSuite)
	s.service = NewPaymentService(params)
	s.invoice = NewInvoiceService(params)
	s.ledger = NewLedgerService(params)
}

func (s *PaymentServiceSuite) seedTenant(mode types.PaymentMode) *tenant.Tenant {
	t := &tenant.Tenant{
		ID:          types.DefaultTenantID,
		Name:        "Test Tenant",
		Email:       "billing@example.com",
		Currency:    "INR",
		PaymentMode: mode,
		Enabled:     true,
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
	return t
}

// chargedInvoice finalizes a card invoice so a processor mirror exists.
func (s *PaymentServiceSuite) chargedInvoice() *dto.InvoiceResponse {
	resp, err := s.invoice.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypeSubscription,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Items: []dto.CreateInvoiceItemRequest{{
			SiteID:   "site-alpha",
			Plan:     "basic-10",
			Quantity: decimal.NewFromInt(10),
			Rate:     decimal.NewFromInt(30),
		}},
	})
	s.NoError(err)

	finalized, err := s.invoice.FinalizeInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Require().NotNil(finalized.ProcessorInvoiceID)
	return finalized
}

// scriptEvent makes signature verification decode the payload as an Event.
func (s *PaymentServiceSuite) scriptEvent() {
	s.GetPaymentProcessor().VerifySignatureFn = func(payload []byte, signature string) (*processor.Event, error) {
		if signature != "valid" {
			return nil, ierr.NewError("webhook signature verification failed").
				Mark(ierr.ErrPermissionDenied)
		}
		var event processor.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrValidation)
		}
		return &event, nil
	}
}

func (s *PaymentServiceSuite) ingest(event *processor.Event) (*dto.ProcessorEventResponse, error) {
	payload, err := json.Marshal(event)
	s.Require().NoError(err)
	return s.service.IngestProcessorEvent(s.GetContext(), &dto.IngestProcessorEventRequest{
		Processor: types.ProcessorStripe,
		Signature: "valid",
		Payload:   payload,
	})
}

func (s *PaymentServiceSuite) TestBadSignatureRejected() {
	s.seedTenant(types.PaymentModeCard)
	s.scriptEvent()

	_, err := s.service.IngestProcessorEvent(s.GetContext(), &dto.IngestProcessorEventRequest{
		Processor: types.ProcessorStripe,
		Signature: "forged",
		Payload:   json.RawMessage(`{}`),
	})
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
}

func (s *PaymentServiceSuite) TestPaymentSucceededMarksInvoicePaid() {
	s.seedTenant(types.PaymentModeCard)
	inv := s.chargedInvoice()
	s.scriptEvent()

	resp, err := s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_1",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: *inv.ProcessorInvoiceID,
		AmountCents:        35400,
		Currency:           "INR",
	})
	s.NoError(err)
	s.True(resp.Processed)
	s.False(resp.Duplicate)
	s.Equal(types.DefaultTenantID, resp.TenantID)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.True(stored.AmountPaid.Equal(decimal.NewFromInt(354)))
	s.NotNil(stored.PaidAt)
	s.Empty(stored.LastPaymentError)
}

func (s *PaymentServiceSuite) TestDuplicateEventChangesNothing() {
	s.seedTenant(types.PaymentModeCard)
	inv := s.chargedInvoice()
	s.scriptEvent()

	event := &processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_once",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: *inv.ProcessorInvoiceID,
		AmountCents:        35400,
	}
	first, err := s.ingest(event)
	s.NoError(err)
	s.False(first.Duplicate)

	second, err := s.ingest(event)
	s.NoError(err)
	s.True(second.Duplicate)
	s.Equal(first.ID, second.ID)
}

func (s *PaymentServiceSuite) TestRedeliveryRetriesFailedProcessing() {
	s.seedTenant(types.PaymentModeCard)
	s.scriptEvent()

	event := &processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_early",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: "in_mock_early",
		AmountCents:        35400,
		Currency:           "INR",
	}

	// The event outruns the mirror; processing fails and is recorded.
	_, err := s.ingest(event)
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	// The mirror catches up.
	inv := s.chargedInvoice()
	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	stored.ProcessorInvoiceID = lo.ToPtr("in_mock_early")
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), stored))

	// Redelivery of the unapplied event is not a duplicate: it re-runs.
	resp, err := s.ingest(event)
	s.NoError(err)
	s.False(resp.Duplicate)
	s.True(resp.Processed)
	s.Empty(resp.ProcessingError)

	paid, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, paid.InvoiceStatus)

	// A third delivery is a true duplicate once applied.
	again, err := s.ingest(event)
	s.NoError(err)
	s.True(again.Duplicate)
}

func (s *PaymentServiceSuite) TestLateChargeOnCreditsPaidInvoiceRefunded() {
	s.seedTenant(types.PaymentModeCard)
	inv := s.chargedInvoice()
	procInvoiceID := *inv.ProcessorInvoiceID

	// Credits settle the invoice before the charge confirmation lands.
	_, err := s.ledger.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.NewFromInt(500),
		Source: types.CreditSourcePrepaid,
	})
	s.NoError(err)
	_, err = s.invoice.ConsumeCreditsAndMarkPaid(s.GetContext(), inv.ID, "")
	s.NoError(err)

	s.scriptEvent()
	_, err = s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_late",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: procInvoiceID,
		ChargeID:           "ch_late",
		AmountCents:        35400,
	})
	s.NoError(err)

	s.Equal([]string{procInvoiceID}, s.GetPaymentProcessor().RefundedIDs)
	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.Equal("re_mock_"+procInvoiceID, lo.FromPtr(stored.ProcessorRefundID))
}

func (s *PaymentServiceSuite) TestPaymentFailedSchedulesRetryAndNotifies() {
	s.seedTenant(types.PaymentModeCard)
	inv := s.chargedInvoice()
	s.scriptEvent()

	_, err := s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_fail",
		EventType:          types.ProcessorEventPaymentFailed,
		ProcessorInvoiceID: *inv.ProcessorInvoiceID,
		FailureMessage:     "card declined",
	})
	s.NoError(err)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusUnpaid, stored.InvoiceStatus)
	s.Equal(1, stored.PaymentAttempts)
	s.NotNil(stored.NextPaymentAttemptAt)
	s.Equal("card declined", stored.LastPaymentError)

	sent := s.GetEmailSender().Sent()
	s.Len(sent, 1)
	s.Equal("payment_failed", sent[0].Kind)
	s.Equal("billing@example.com", sent[0].To)
}

func (s *PaymentServiceSuite) TestFailureAfterCreditsSettlementVoidsMirror() {
	s.seedTenant(types.PaymentModeCard)
	inv := s.chargedInvoice()
	procInvoiceID := *inv.ProcessorInvoiceID

	_, err := s.ledger.AllocateCredit(s.GetContext(), &dto.AllocateCreditRequest{
		Amount: decimal.NewFromInt(500),
		Source: types.CreditSourcePrepaid,
	})
	s.NoError(err)
	_, err = s.invoice.ConsumeCreditsAndMarkPaid(s.GetContext(), inv.ID, "")
	s.NoError(err)

	s.scriptEvent()
	_, err = s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_fail_late",
		EventType:          types.ProcessorEventPaymentFailed,
		ProcessorInvoiceID: procInvoiceID,
		FailureMessage:     "card declined",
	})
	s.NoError(err)

	s.Equal([]string{procInvoiceID}, s.GetPaymentProcessor().VoidedIDs)
	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.Zero(stored.PaymentAttempts)
}

func (s *PaymentServiceSuite) TestPrepaidPurchaseConvertsToCredits() {
	s.seedTenant(types.PaymentModeCard)

	resp, err := s.invoice.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		Type:        types.InvoiceTypePrepaidCredits,
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Items: []dto.CreateInvoiceItemRequest{{
			Description: "Prepaid credits purchase",
			Quantity:    decimal.NewFromInt(1),
			Rate:        decimal.NewFromInt(1000),
		}},
	})
	s.NoError(err)

	procInvoiceID := "in_mock_topup"
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	inv.InvoiceStatus = types.InvoiceStatusCreated
	inv.ProcessorInvoiceID = &procInvoiceID
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	s.scriptEvent()
	_, err = s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_topup",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: procInvoiceID,
		AmountCents:        100000,
	})
	s.NoError(err)

	balance, err := s.ledger.GetBalance(s.GetContext())
	s.NoError(err)
	s.True(balance.Equal(decimal.NewFromInt(1000)))
}

func (s *PaymentServiceSuite) TestUnmatchedInvoiceRecordsProcessingError() {
	s.seedTenant(types.PaymentModeCard)
	s.scriptEvent()

	_, err := s.ingest(&processor.Event{
		ProcessorName:      types.ProcessorStripe,
		ProcessorEventID:   "evt_stray",
		EventType:          types.ProcessorEventPaymentSucceeded,
		ProcessorInvoiceID: "in_unknown",
		AmountCents:        100,
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	// The event is kept with its failure for later inspection.
	stored, err := s.GetStores().ProcessorEventRepo.GetByProcessorEventID(
		types.WithSystemCaller(s.GetContext()), "evt_stray")
	s.NoError(err)
	s.False(stored.Processed)
	s.NotEmpty(stored.ProcessingError)
}

func (s *PaymentServiceSuite) TestMandateActivatedResolvesTenantByCustomer() {
	t := s.seedTenant(types.PaymentModeCard)
	t.ProcessorCustomerIDs = types.Metadata{string(types.ProcessorStripe): "cus_mandate"}
	s.NoError(s.GetStores().TenantRepo.Update(s.GetContext(), t))

	s.scriptEvent()
	resp, err := s.ingest(&processor.Event{
		ProcessorName:    types.ProcessorStripe,
		ProcessorEventID: "evt_mandate",
		EventType:        types.ProcessorEventMandateActivated,
		CustomerID:       "cus_mandate",
	})
	s.NoError(err)
	s.True(resp.Processed)
	s.Equal(t.ID, resp.TenantID)
}

func (s *PaymentServiceSuite) TestCreateSetupIntentEnsuresCustomer() {
	t := s.seedTenant(types.PaymentModeCard)

	result, err := s.service.CreateSetupIntent(s.GetContext())
	s.NoError(err)
	s.Equal("seti_mock_cus_mock_"+t.ID, result.SetupIntentID)
	s.NotEmpty(result.ClientSecret)

	stored, err := s.GetStores().TenantRepo.Get(s.GetContext(), t.ID)
	s.NoError(err)
	s.Equal("cus_mock_"+t.ID, stored.ProcessorCustomerID(types.ProcessorStripe))
}
