package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"github.com/numvend/numvend/internal/repositories"
	"go.uber.org/zap"
)

// LedgerService is the single balance authority. Every credit and
// debit goes through it and appends an immutable transaction; no other
// component touches balance_cents.
type LedgerService struct {
	accounts     repositories.AccountRepository
	transactions repositories.TransactionRepository
}

// NewLedgerService creates a ledger service.
func NewLedgerService(accounts repositories.AccountRepository, transactions repositories.TransactionRepository) *LedgerService {
	return &LedgerService{accounts: accounts, transactions: transactions}
}

// CreateAccount bootstraps a new account with a zero balance.
func (s *LedgerService) CreateAccount(ctx context.Context, id string, plan models.Plan) (*models.Account, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidPlan, plan)
	}
	if id == "" {
		id = uuid.New().String()
	}

	account := &models.Account{
		ID:   id,
		Plan: plan,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	logging.Logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("plan", string(plan)))
	return account, nil
}

// GetAccount returns the account.
func (s *LedgerService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.Get(ctx, id)
}

// TopUp credits purchased funds onto an account.
func (s *LedgerService) TopUp(ctx context.Context, accountID string, amountCents int64) (*models.Account, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("top-up amount must be positive, got %d", amountCents)
	}

	account, err := s.accounts.Credit(ctx, accountID, amountCents)
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, accountID, amountCents, models.ReasonTopUp, "", account.BalanceCents); err != nil {
		return nil, err
	}
	return account, nil
}

// Charge atomically debits amountCents for an entity. Returns
// models.ErrInsufficientFunds without side effects when the balance
// doesn't cover the amount.
func (s *LedgerService) Charge(ctx context.Context, accountID string, amountCents int64, reason models.TransactionReason, entityID string) (*models.Account, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("charge amount must be non-negative, got %d", amountCents)
	}

	account, err := s.accounts.DebitIfSufficient(ctx, accountID, amountCents)
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, accountID, -amountCents, reason, entityID, account.BalanceCents); err != nil {
		return nil, err
	}
	return account, nil
}

// Refund credits amountCents back for an entity, clamped so the total
// refunded for the entity never exceeds its total charged. Returns the
// amount actually refunded, which may be less than requested or zero.
func (s *LedgerService) Refund(ctx context.Context, accountID string, amountCents int64, reason models.TransactionReason, entityID string) (int64, error) {
	if amountCents <= 0 {
		return 0, nil
	}

	charged, err := s.transactions.SumByEntity(ctx, entityID, models.ChargeReasons)
	if err != nil {
		return 0, err
	}
	refunded, err := s.transactions.SumByEntity(ctx, entityID, models.RefundReasons)
	if err != nil {
		return 0, err
	}

	// Charges are negative entries, refunds positive
	allowed := -charged - refunded
	if allowed <= 0 {
		logging.Logger.Warn("refund rejected by refund bound",
			zap.String("entity_id", entityID),
			zap.Int64("requested_cents", amountCents))
		return 0, fmt.Errorf("%w: entity %s", models.ErrRefundExceedsCharge, entityID)
	}
	if amountCents > allowed {
		logging.Logger.Warn("refund clamped to refund bound",
			zap.String("entity_id", entityID),
			zap.Int64("requested_cents", amountCents),
			zap.Int64("allowed_cents", allowed))
		amountCents = allowed
	}

	account, err := s.accounts.Credit(ctx, accountID, amountCents)
	if err != nil {
		return 0, err
	}

	if err := s.record(ctx, accountID, amountCents, reason, entityID, account.BalanceCents); err != nil {
		return 0, err
	}
	return amountCents, nil
}

// RecordVerificationUse bumps the account's monthly verification
// counter, resetting it lazily on a new calendar month.
func (s *LedgerService) RecordVerificationUse(ctx context.Context, accountID string, at time.Time) (*models.Account, error) {
	return s.accounts.IncrementMonthly(ctx, accountID, models.MonthKeyFor(at))
}

// Transactions returns the most recent ledger entries for an account.
func (s *LedgerService) Transactions(ctx context.Context, accountID string, limit int64) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.transactions.ListByAccount(ctx, accountID, limit)
}

// AuditResult reports whether an account's stored balance matches the
// sum of its transaction log.
type AuditResult struct {
	AccountID     string `json:"account_id"`
	BalanceCents  int64  `json:"balance_cents"`
	ComputedCents int64  `json:"computed_cents"`
	DriftCents    int64  `json:"drift_cents"`
}

// AuditBalance recomputes the balance from the transaction log and
// reports drift. Drift is surfaced, never repaired automatically.
func (s *LedgerService) AuditBalance(ctx context.Context, accountID string) (*AuditResult, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	computed, err := s.transactions.SumByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &AuditResult{
		AccountID:     accountID,
		BalanceCents:  account.BalanceCents,
		ComputedCents: computed,
		DriftCents:    account.BalanceCents - computed,
	}
	if result.DriftCents != 0 {
		logging.Logger.Error("ledger drift detected",
			zap.String("account_id", accountID),
			zap.Int64("balance_cents", result.BalanceCents),
			zap.Int64("computed_cents", result.ComputedCents))
	}
	return result, nil
}

// retryRefund runs a refund closure up to three times with a short
// pause between attempts. Refunds are clamped per entity, so repeating
// one after an ambiguous failure cannot over-credit.
func retryRefund(fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (s *LedgerService) record(ctx context.Context, accountID string, amountCents int64, reason models.TransactionReason, entityID string, balanceAfter int64) error {
	tx := &models.Transaction{
		ID:                uuid.New().String(),
		AccountID:         accountID,
		AmountCents:       amountCents,
		Reason:            reason,
		EntityID:          entityID,
		BalanceAfterCents: balanceAfter,
		CreatedAt:         time.Now(),
	}
	if err := s.transactions.Insert(ctx, tx); err != nil {
		// The balance moved but the log entry failed; this is exactly
		// the drift AuditBalance exists to catch.
		logging.Logger.Error("failed to record ledger transaction",
			zap.String("account_id", accountID),
			zap.String("reason", string(reason)),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err))
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	observability.LedgerTransactions.WithLabelValues(string(reason)).Inc()
	return nil
}
