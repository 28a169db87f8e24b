package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/pricing"
	"github.com/numvend/numvend/internal/provider"
	"github.com/numvend/numvend/internal/repositories"
	"go.uber.org/zap"
)

// VerificationService drives the verification lifecycle: price, charge,
// reserve, then pending until a terminal provider state or the
// deadline. Funds errors are rejected before any provider call;
// provider failures after the charge always refund.
type VerificationService struct {
	ledger        *LedgerService
	verifications repositories.VerificationRepository
	provider      provider.API
	ttl           time.Duration

	// now is injectable for deadline tests
	now func() time.Time
}

// NewVerificationService creates a verification service. ttl is how
// long a pending verification may wait for a terminal provider state.
func NewVerificationService(ledger *LedgerService, verifications repositories.VerificationRepository, api provider.API, ttl time.Duration) *VerificationService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &VerificationService{
		ledger:        ledger,
		verifications: verifications,
		provider:      api,
		ttl:           ttl,
		now:           time.Now,
	}
}

// Quote prices a verification for an account without charging.
func (s *VerificationService) Quote(ctx context.Context, accountID, service string, capability models.Capability, addons []models.Addon) (int64, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return pricing.VerificationPrice(pricing.VerificationParams{
		Service:              service,
		Capability:           capability,
		Plan:                 account.Plan,
		MonthlyVerifications: s.monthlyCount(account),
		Addons:               addons,
	})
}

// Create charges the account and reserves a number. The debit happens
// before the provider call; a provider failure issues a compensating
// refund and surfaces the provider error with no entity persisted.
func (s *VerificationService) Create(ctx context.Context, accountID, service string, capability models.Capability, addons []models.Addon) (*models.Verification, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cost, err := pricing.VerificationPrice(pricing.VerificationParams{
		Service:              service,
		Capability:           capability,
		Plan:                 account.Plan,
		MonthlyVerifications: s.monthlyCount(account),
		Addons:               addons,
	})
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	if _, err := s.ledger.Charge(ctx, accountID, cost, models.ReasonVerificationCharge, id); err != nil {
		return nil, err
	}

	addonNames := make([]string, len(addons))
	for i, a := range addons {
		addonNames[i] = string(a)
	}
	reservation, err := s.provider.CreateReservation(ctx, provider.ReservationRequest{
		Service:    service,
		Capability: string(capability),
		Addons:     addonNames,
	})
	if err != nil {
		// Provider failed after the debit: compensate and surface
		if _, refundErr := s.ledger.Refund(ctx, accountID, cost, models.ReasonVerificationRefund, id); refundErr != nil {
			logging.Logger.Error("compensating refund failed after provider error",
				zap.String("verification_id", id),
				zap.Error(refundErr))
		}
		return nil, fmt.Errorf("reservation failed: %w", err)
	}

	now := s.now()
	verification := &models.Verification{
		ID:            id,
		AccountID:     accountID,
		Service:       service,
		Capability:    capability,
		Tier:          pricing.ServiceTier(service),
		Addons:        addons,
		CostCents:     cost,
		Status:        models.VerificationStatusPending,
		PhoneNumber:   reservation.PhoneNumber,
		ReservationID: reservation.ID,
		DeadlineAt:    now.Add(s.ttl),
	}
	if err := s.verifications.Insert(ctx, verification); err != nil {
		// The charge and the reservation are both live with nothing
		// pointing at them; unwind both.
		if cancelErr := s.provider.CancelReservation(ctx, reservation.ID); cancelErr != nil {
			logging.Logger.Warn("provider cancel failed after persist error",
				zap.String("verification_id", id),
				zap.Error(cancelErr))
		}
		if _, refundErr := s.ledger.Refund(ctx, accountID, cost, models.ReasonVerificationRefund, id); refundErr != nil {
			logging.Logger.Error("compensating refund failed after persist error",
				zap.String("verification_id", id),
				zap.Error(refundErr))
		}
		return nil, fmt.Errorf("failed to persist verification: %w", err)
	}

	if _, err := s.ledger.RecordVerificationUse(ctx, accountID, now); err != nil {
		logging.Logger.Warn("failed to bump monthly verification counter",
			zap.String("account_id", accountID),
			zap.Error(err))
	}

	logging.Logger.Info("verification created",
		zap.String("verification_id", id),
		zap.String("account_id", accountID),
		zap.String("service", service),
		zap.Int64("cost_cents", cost))
	return verification, nil
}

// Get returns a verification by id.
func (s *VerificationService) Get(ctx context.Context, id string) (*models.Verification, error) {
	return s.verifications.Get(ctx, id)
}

// List returns an account's most recent verifications.
func (s *VerificationService) List(ctx context.Context, accountID string, limit int64) ([]models.Verification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.verifications.ListByAccount(ctx, accountID, limit)
}

// Poll checks the provider for a terminal state and applies the
// resulting transition. A terminal verification is returned as-is
// without a provider call.
func (s *VerificationService) Poll(ctx context.Context, id string) (*models.Verification, error) {
	verification, err := s.verifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if verification.Status.Terminal() {
		return verification, nil
	}

	status, err := s.provider.GetReservation(ctx, verification.ReservationID)
	if err != nil {
		return nil, err
	}
	if !provider.TerminalReservationState(status.Status) {
		return verification, nil
	}

	to, refund := mapReservationState(status.Status)
	won, err := s.verifications.TransitionFromPending(ctx, id, to, status.Messages)
	if err != nil {
		return nil, err
	}
	if won && refund {
		if err := s.refundInFull(ctx, verification); err != nil {
			return nil, err
		}
	}

	return s.verifications.Get(ctx, id)
}

// Cancel cancels a pending verification with a full refund. Cancelling
// a terminal verification returns models.ErrTerminalState and has no
// side effects.
func (s *VerificationService) Cancel(ctx context.Context, id string) (*models.Verification, error) {
	verification, err := s.verifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if verification.Status.Terminal() {
		return nil, fmt.Errorf("%w: verification %s is %s", models.ErrTerminalState, id, verification.Status)
	}

	won, err := s.verifications.TransitionFromPending(ctx, id, models.VerificationStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race against the scheduler or a concurrent poll
		return nil, fmt.Errorf("%w: verification %s", models.ErrTerminalState, id)
	}

	if err := s.provider.CancelReservation(ctx, verification.ReservationID); err != nil {
		// The local state is authoritative; the provider will expire
		// the reservation on its own.
		logging.Logger.Warn("provider cancel failed after local transition",
			zap.String("verification_id", id),
			zap.Error(err))
	}

	if err := s.refundInFull(ctx, verification); err != nil {
		return nil, err
	}

	logging.Logger.Info("verification cancelled",
		zap.String("verification_id", id),
		zap.String("account_id", verification.AccountID))
	return s.verifications.Get(ctx, id)
}

// Expire transitions an overdue pending verification to expired with a
// full refund. Returns false when another transition won the race.
func (s *VerificationService) Expire(ctx context.Context, verification *models.Verification) (bool, error) {
	won, err := s.verifications.TransitionFromPending(ctx, verification.ID, models.VerificationStatusExpired, nil)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	if err := s.refundInFull(ctx, verification); err != nil {
		return true, err
	}
	return true, nil
}

// refundInFull credits a verification's full cost back after a
// terminal transition, retrying transient ledger failures. A refund
// still owed after the retries is logged for reconciliation.
func (s *VerificationService) refundInFull(ctx context.Context, verification *models.Verification) error {
	amount := pricing.VerificationRefund(verification.CostCents)
	err := retryRefund(func() error {
		_, err := s.ledger.Refund(ctx, verification.AccountID, amount, models.ReasonVerificationRefund, verification.ID)
		return err
	})
	if err != nil {
		logging.Logger.Error("refund still owed on terminal verification",
			zap.String("verification_id", verification.ID),
			zap.String("account_id", verification.AccountID),
			zap.Int64("refund_cents", amount),
			zap.Error(err))
	}
	return err
}

func (s *VerificationService) monthlyCount(account *models.Account) int {
	// A stale month key means the counter hasn't been lazily reset yet
	if account.MonthKey != models.MonthKeyFor(s.now()) {
		return 0
	}
	return account.MonthlyVerifications
}

func mapReservationState(state string) (to models.VerificationStatus, refund bool) {
	switch state {
	case provider.ReservationCompleted:
		return models.VerificationStatusCompleted, false
	case provider.ReservationCancelled:
		return models.VerificationStatusCancelled, true
	case provider.ReservationExpired:
		return models.VerificationStatusExpired, true
	default:
		return models.VerificationStatusFailed, true
	}
}
