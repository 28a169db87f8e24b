package services

import (
	"context"
	"errors"
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

// CreateRentalParams carries the caller's rental request.
type CreateRentalParams struct {
	Service       string
	Scope         models.RentalScope
	Mode          models.RentalMode
	DurationHours int
	AutoExtend    bool
	BulkGroup     string
}

// RentalService drives the rental lifecycle: charge, reserve, active
// until released, expired, or auto-extended by the scheduler.
type RentalService struct {
	ledger   *LedgerService
	rentals  repositories.RentalRepository
	provider provider.API
	bulkMin  int64

	now func() time.Time
}

// NewRentalService creates a rental service. bulkMin is the number of
// simultaneous active rentals that qualifies an account for the bulk
// discount.
func NewRentalService(ledger *LedgerService, rentals repositories.RentalRepository, api provider.API, bulkMin int) *RentalService {
	if bulkMin <= 0 {
		bulkMin = 5
	}
	return &RentalService{
		ledger:   ledger,
		rentals:  rentals,
		provider: api,
		bulkMin:  int64(bulkMin),
		now:      time.Now,
	}
}

// Quote prices a rental for an account without charging.
func (s *RentalService) Quote(ctx context.Context, accountID string, params CreateRentalParams) (int64, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	bulk, err := s.qualifiesForBulk(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return pricing.RentalPrice(pricing.RentalParams{
		Scope:         params.Scope,
		Mode:          params.Mode,
		DurationHours: params.DurationHours,
		Bulk:          bulk,
	})
}

// Create charges the account and reserves a number for the rental
// window. As with verifications, the debit precedes the provider call
// and a provider failure refunds it.
func (s *RentalService) Create(ctx context.Context, accountID string, params CreateRentalParams) (*models.Rental, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if params.Scope == models.RentalScopeService && params.Service == "" {
		return nil, fmt.Errorf("service-scoped rental requires a service")
	}

	bulk, err := s.qualifiesForBulk(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cost, err := pricing.RentalPrice(pricing.RentalParams{
		Scope:         params.Scope,
		Mode:          params.Mode,
		DurationHours: params.DurationHours,
		Bulk:          bulk,
	})
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	if _, err := s.ledger.Charge(ctx, accountID, cost, models.ReasonRentalCharge, id); err != nil {
		return nil, err
	}

	reservation, err := s.provider.CreateReservation(ctx, provider.ReservationRequest{
		Service:       params.Service,
		Capability:    string(models.CapabilitySMS),
		Rental:        true,
		DurationHours: params.DurationHours,
	})
	if err != nil {
		if _, refundErr := s.ledger.Refund(ctx, accountID, cost, models.ReasonRentalRefund, id); refundErr != nil {
			logging.Logger.Error("compensating refund failed after provider error",
				zap.String("rental_id", id),
				zap.Error(refundErr))
		}
		return nil, fmt.Errorf("rental reservation failed: %w", err)
	}

	now := s.now()
	rental := &models.Rental{
		ID:            id,
		AccountID:     accountID,
		PhoneNumber:   reservation.PhoneNumber,
		ReservationID: reservation.ID,
		Service:       params.Service,
		Scope:         params.Scope,
		Mode:          params.Mode,
		DurationHours: params.DurationHours,
		AutoExtend:    params.AutoExtend,
		BulkGroup:     params.BulkGroup,
		Status:        models.RentalStatusActive,
		CostCents:     cost,
		StartedAt:     now,
		ExpiresAt:     now.Add(time.Duration(params.DurationHours) * time.Hour),
	}
	if err := s.rentals.Insert(ctx, rental); err != nil {
		// The charge and the reservation are both live with nothing
		// pointing at them; unwind both.
		if cancelErr := s.provider.CancelReservation(ctx, reservation.ID); cancelErr != nil {
			logging.Logger.Warn("provider cancel failed after persist error",
				zap.String("rental_id", id),
				zap.Error(cancelErr))
		}
		if _, refundErr := s.ledger.Refund(ctx, accountID, cost, models.ReasonRentalRefund, id); refundErr != nil {
			logging.Logger.Error("compensating refund failed after persist error",
				zap.String("rental_id", id),
				zap.Error(refundErr))
		}
		return nil, fmt.Errorf("failed to persist rental: %w", err)
	}

	logging.Logger.Info("rental created",
		zap.String("rental_id", id),
		zap.String("account_id", accountID),
		zap.String("scope", string(params.Scope)),
		zap.Int("duration_hours", params.DurationHours),
		zap.Int64("cost_cents", cost))
	return rental, nil
}

// Get returns a rental by id.
func (s *RentalService) Get(ctx context.Context, id string) (*models.Rental, error) {
	return s.rentals.Get(ctx, id)
}

// List returns an account's most recent rentals.
func (s *RentalService) List(ctx context.Context, accountID string, limit int64) ([]models.Rental, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.rentals.ListByAccount(ctx, accountID, limit)
}

// Release ends a rental early and refunds half the unused time.
// Releasing a terminal rental returns models.ErrTerminalState with no
// side effects; losing the race against a concurrent sweep does too.
func (s *RentalService) Release(ctx context.Context, id string) (int64, error) {
	rental, err := s.rentals.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if rental.Status.Terminal() {
		return 0, fmt.Errorf("%w: rental %s is %s", models.ErrTerminalState, id, rental.Status)
	}

	now := s.now()
	won, err := s.rentals.Release(ctx, id, now)
	if err != nil {
		return 0, err
	}
	if !won {
		return 0, fmt.Errorf("%w: rental %s", models.ErrTerminalState, id)
	}

	if err := s.provider.CancelReservation(ctx, rental.ReservationID); err != nil {
		logging.Logger.Warn("provider cancel failed after rental release",
			zap.String("rental_id", id),
			zap.Error(err))
	}

	// The refund covers the whole paid window, extensions included
	totalCost := rental.CostCents + rental.ExtensionCostCents
	window := rental.ExpiresAt.Sub(rental.StartedAt)
	refund := pricing.RentalRefund(totalCost, window, now.Sub(rental.StartedAt))

	refunded := int64(0)
	if refund > 0 {
		refunded, err = s.refund(ctx, rental, refund)
		if err != nil {
			return 0, err
		}
	}

	logging.Logger.Info("rental released",
		zap.String("rental_id", id),
		zap.String("account_id", rental.AccountID),
		zap.Int64("refund_cents", refunded))
	return refunded, nil
}

// Renew charges and extends an auto-extend rental at its expiry. When
// funds are insufficient the rental expires instead. Returns true when
// the rental was extended.
func (s *RentalService) Renew(ctx context.Context, rental *models.Rental) (bool, error) {
	bulk, err := s.qualifiesForBulk(ctx, rental.AccountID)
	if err != nil {
		return false, err
	}

	cost, err := pricing.RentalPrice(pricing.RentalParams{
		Scope:         rental.Scope,
		Mode:          rental.Mode,
		DurationHours: rental.DurationHours,
		Bulk:          bulk,
		Renewal:       true,
	})
	if err != nil {
		return false, err
	}

	if _, err := s.ledger.Charge(ctx, rental.AccountID, cost, models.ReasonRentalExtension, rental.ID); err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			logging.Logger.Info("auto-extend skipped, insufficient funds",
				zap.String("rental_id", rental.ID),
				zap.String("account_id", rental.AccountID),
				zap.Int64("renewal_cents", cost))
			if _, expErr := s.rentals.Expire(ctx, rental.ID); expErr != nil {
				return false, expErr
			}
			return false, nil
		}
		return false, err
	}

	newExpiry := rental.ExpiresAt.Add(rental.Duration())
	won, err := s.rentals.Extend(ctx, rental.ID, newExpiry, cost)
	if err != nil {
		return false, err
	}
	if !won {
		// The rental went terminal between the sweep's read and the
		// extension; give the charge back.
		if _, refundErr := s.refund(ctx, rental, cost); refundErr != nil {
			return false, refundErr
		}
		return false, nil
	}

	logging.Logger.Info("rental auto-extended",
		zap.String("rental_id", rental.ID),
		zap.String("account_id", rental.AccountID),
		zap.Time("new_expiry", newExpiry),
		zap.Int64("renewal_cents", cost))
	return true, nil
}

// Expire transitions an overdue rental to expired without refund: the
// rental was fully consumed. Returns false when another transition won.
func (s *RentalService) Expire(ctx context.Context, id string) (bool, error) {
	return s.rentals.Expire(ctx, id)
}

// refund credits part of a rental's cost back after a terminal
// transition, retrying transient ledger failures. A refund still owed
// after the retries is logged for reconciliation.
func (s *RentalService) refund(ctx context.Context, rental *models.Rental, amountCents int64) (int64, error) {
	var refunded int64
	err := retryRefund(func() error {
		var err error
		refunded, err = s.ledger.Refund(ctx, rental.AccountID, amountCents, models.ReasonRentalRefund, rental.ID)
		return err
	})
	if err != nil {
		logging.Logger.Error("refund still owed on terminal rental",
			zap.String("rental_id", rental.ID),
			zap.String("account_id", rental.AccountID),
			zap.Int64("refund_cents", amountCents),
			zap.Error(err))
	}
	return refunded, err
}

func (s *RentalService) qualifiesForBulk(ctx context.Context, accountID string) (bool, error) {
	active, err := s.rentals.CountActive(ctx, accountID)
	if err != nil {
		return false, err
	}
	// The rental being priced counts toward the threshold
	return active+1 >= s.bulkMin, nil
}
