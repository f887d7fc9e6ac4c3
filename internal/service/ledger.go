package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappe/press-billing/internal/api/dto"
	"github.com/frappe/press-billing/internal/domain/ledger"
	ierr "github.com/frappe/press-billing/internal/errors"
	"github.com/frappe/press-billing/internal/types"
)

// LedgerService owns the append-only balance ledger. Entries are submitted
// on insert and never mutated afterwards, except for the unallocated
// remainder on credit rows as debits consume them.
type LedgerService interface {
	// AllocateCredit appends a signed adjustment. Negative amounts draw down
	// open credits FIFO and fail atomically when balance would cross zero.
	AllocateCredit(ctx context.Context, req *dto.AllocateCreditRequest) (*dto.BalanceTransactionResponse, error)

	// GetBalance returns the ending balance of the newest entry, or zero.
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// ApplyToInvoice appends the single summarizing applied_to_invoice entry
	// after the allocator has decremented credit rows. Must run inside the
	// caller's transaction.
	ApplyToInvoice(ctx context.Context, amount decimal.Decimal, invoiceID string) (*ledger.BalanceTransaction, error)

	// ConsumeCredits walks open credit rows oldest first, decrementing their
	// unallocated amounts until the requested magnitude is consumed, and
	// returns one consumption per credit row touched. Must run inside the
	// caller's transaction.
	ConsumeCredits(ctx context.Context, amount decimal.Decimal, debitTransactionID string) ([]*ledger.Allocation, error)

	// ReverseTransaction appends a compensating entry for a prior one; the
	// original is only flagged, never mutated in amount.
	ReverseTransaction(ctx context.Context, transactionID, remark string) (*dto.BalanceTransactionResponse, error)

	GetTransaction(ctx context.Context, id string) (*dto.BalanceTransactionResponse, error)
	ListTransactions(ctx context.Context, filter *ledger.Filter) (*dto.ListTransactionsResponse, error)
}

type ledgerService struct {
	ServiceParams
}

func NewLedgerService(params ServiceParams) LedgerService {
	return &ledgerService{ServiceParams: params}
}

func (s *ledgerService) AllocateCredit(ctx context.Context, req *dto.AllocateCreditRequest) (*dto.BalanceTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}

	tenant, err := s.TenantRepo.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	var bt *ledger.BalanceTransaction
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		bt = &ledger.BalanceTransaction{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BALANCE_TRANSACTION),
			Type:        types.TransactionTypeAdjustment,
			Source:      req.Source,
			Amount:      req.Amount,
			Currency:    tenant.Currency,
			Description: req.Remark,
			Submitted:   true,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		}
		if req.Amount.IsPositive() {
			bt.UnallocatedAmount = req.Amount
			// A credit first settles any negative running balance; only
			// the remainder stays open for future consumption.
			balance, err := s.currentBalance(ctx)
			if err != nil {
				return err
			}
			if balance.IsNegative() {
				bt.UnallocatedAmount = decimal.Max(decimal.Zero, req.Amount.Add(balance))
			}
			if req.ExpiryDays > 0 {
				expiry := time.Now().UTC().AddDate(0, 0, req.ExpiryDays)
				bt.ExpiresAt = &expiry
			}
		} else {
			// Draw down open credits before the debit row exists so an
			// insufficient balance aborts the whole transaction.
			if _, err := s.ConsumeCredits(ctx, req.Amount.Neg(), bt.ID); err != nil {
				return err
			}
		}
		return s.appendEntry(ctx, bt)
	})
	if err != nil {
		return nil, err
	}

	if req.Amount.IsPositive() {
		s.publishWebhook(ctx, types.WebhookEventCreditsAdded, bt)
	}
	s.publishWebhook(ctx, types.WebhookEventBalanceUpdated, &dto.BalanceResponse{
		Balance:  bt.EndingBalance,
		Currency: bt.Currency,
	})

	return &dto.BalanceTransactionResponse{BalanceTransaction: bt}, nil
}

// appendEntry fixes the running balance and persists the row. The repository
// serializes concurrent appends per tenant, so the read-modify-write here is
// safe inside a transaction.
func (s *ledgerService) appendEntry(ctx context.Context, bt *ledger.BalanceTransaction) error {
	balance, err := s.currentBalance(ctx)
	if err != nil {
		return err
	}
	bt.EndingBalance = balance.Add(bt.Amount)

	if err := bt.Validate(); err != nil {
		return err
	}
	return s.LedgerRepo.Create(ctx, bt)
}

func (s *ledgerService) currentBalance(ctx context.Context) (decimal.Decimal, error) {
	latest, err := s.LedgerRepo.GetLatest(ctx)
	if err != nil {
		if ierr.IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return latest.EndingBalance, nil
}

func (s *ledgerService) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return decimal.Zero, ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}
	return s.currentBalance(ctx)
}

func (s *ledgerService) ConsumeCredits(ctx context.Context, amount decimal.Decimal, debitTransactionID string) ([]*ledger.Allocation, error) {
	if !amount.IsPositive() {
		return nil, ierr.NewError("consumption amount must be positive").
			Mark(ierr.ErrValidation)
	}

	credits, err := s.LedgerRepo.ListOpenCredits(ctx, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	remaining := amount
	var consumed []*ledger.Allocation
	for _, credit := range credits {
		if remaining.IsZero() {
			break
		}
		if credit.ExpiresAt != nil && credit.ExpiresAt.Before(now) {
			continue
		}

		take := decimal.Min(remaining, credit.UnallocatedAmount)
		credit.UnallocatedAmount = credit.UnallocatedAmount.Sub(take)
		if err := s.LedgerRepo.Update(ctx, credit); err != nil {
			return nil, err
		}

		alloc := &ledger.Allocation{
			ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
			CreditTransactionID: credit.ID,
			DebitTransactionID:  debitTransactionID,
			Amount:              take,
			Source:              credit.Source,
			BaseModel:           types.GetDefaultBaseModel(ctx),
		}
		if err := s.LedgerRepo.CreateAllocation(ctx, alloc); err != nil {
			return nil, err
		}
		consumed = append(consumed, alloc)
		remaining = remaining.Sub(take)
	}

	if !remaining.IsZero() {
		return nil, ierr.NewError("insufficient credit balance").
			WithHint("The tenant does not hold enough unallocated credits").
			WithReportableDetails(map[string]any{
				"requested": amount,
				"short_by":  remaining,
			}).
			Mark(ierr.ErrInsufficientBalance)
	}

	return consumed, nil
}

func (s *ledgerService) ApplyToInvoice(ctx context.Context, amount decimal.Decimal, invoiceID string) (*ledger.BalanceTransaction, error) {
	if !amount.IsPositive() {
		return nil, ierr.NewError("applied amount must be positive").
			Mark(ierr.ErrValidation)
	}

	tenant, err := s.TenantRepo.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}

	bt := &ledger.BalanceTransaction{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BALANCE_TRANSACTION),
		Type:        types.TransactionTypeAppliedToInvoice,
		Amount:      amount.Neg(),
		Currency:    tenant.Currency,
		InvoiceID:   &invoiceID,
		Description: fmt.Sprintf("Credits applied to invoice %s", invoiceID),
		Submitted:   true,
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
	if err := s.appendEntry(ctx, bt); err != nil {
		return nil, err
	}
	return bt, nil
}

func (s *ledgerService) ReverseTransaction(ctx context.Context, transactionID, remark string) (*dto.BalanceTransactionResponse, error) {
	original, err := s.LedgerRepo.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.Reverted {
		return nil, ierr.NewError("transaction already reversed").
			WithReportableDetails(map[string]any{"transaction_id": transactionID}).
			Mark(ierr.ErrInvalidState)
	}

	if remark == "" {
		remark = fmt.Sprintf("Reversal of %s", original.ID)
	}

	var compensating *ledger.BalanceTransaction
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		compensating = &ledger.BalanceTransaction{
			ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BALANCE_TRANSACTION),
			Type:                  types.TransactionTypeAdjustment,
			Source:                original.Source,
			Amount:                original.Amount.Neg(),
			Description:           remark,
			Currency:              original.Currency,
			ReversedTransactionID: &original.ID,
			Submitted:             true,
			BaseModel:             types.GetDefaultBaseModel(ctx),
		}
		if compensating.Amount.IsPositive() {
			compensating.UnallocatedAmount = compensating.Amount
		} else {
			if _, err := s.ConsumeCredits(ctx, compensating.Amount.Neg(), compensating.ID); err != nil {
				return err
			}
		}
		if err := s.appendEntry(ctx, compensating); err != nil {
			return err
		}

		original.Reverted = true
		return s.LedgerRepo.Update(ctx, original)
	})
	if err != nil {
		return nil, err
	}

	s.publishWebhook(ctx, types.WebhookEventBalanceUpdated, &dto.BalanceResponse{
		Balance:  compensating.EndingBalance,
		Currency: compensating.Currency,
	})

	return &dto.BalanceTransactionResponse{BalanceTransaction: compensating}, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id string) (*dto.BalanceTransactionResponse, error) {
	bt, err := s.LedgerRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.BalanceTransactionResponse{BalanceTransaction: bt}, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, filter *ledger.Filter) (*dto.ListTransactionsResponse, error) {
	if filter == nil {
		filter = &ledger.Filter{}
	}
	items, err := s.LedgerRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListTransactionsResponse{Total: len(items)}
	for _, bt := range items {
		resp.Items = append(resp.Items, &dto.BalanceTransactionResponse{BalanceTransaction: bt})
	}
	return resp, nil
}
