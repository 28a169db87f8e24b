package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/provider"
)

func init() {
	logging.InitLogger()
}

// In-memory repository fakes. They reproduce the concurrency-relevant
// behavior of the Mongo implementations: conditional balance updates
// and state-guarded transitions, all under a mutex.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	// creditFailures fails the next N Credit calls, for refund retry
	// tests
	creditFailures int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*models.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	if account.MonthKey == "" {
		account.MonthKey = models.MonthKeyFor(time.Now())
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) Get(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *fakeAccountRepo) DebitIfSufficient(_ context.Context, id string, amountCents int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if account.BalanceCents < amountCents {
		return nil, models.ErrInsufficientFunds
	}
	account.BalanceCents -= amountCents
	cp := *account
	return &cp, nil
}

func (r *fakeAccountRepo) Credit(_ context.Context, id string, amountCents int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creditFailures > 0 {
		r.creditFailures--
		return nil, fmt.Errorf("transient store error")
	}
	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	account.BalanceCents += amountCents
	cp := *account
	return &cp, nil
}

func (r *fakeAccountRepo) IncrementMonthly(_ context.Context, id, monthKey string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if account.MonthKey != monthKey {
		account.MonthKey = monthKey
		account.MonthlyVerifications = 0
	}
	account.MonthlyVerifications++
	cp := *account
	return &cp, nil
}

type fakeTransactionRepo struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{}
}

func (r *fakeTransactionRepo) Insert(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *fakeTransactionRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for i := len(r.txs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if r.txs[i].AccountID == accountID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) SumByEntity(_ context.Context, entityID string, reasons []models.TransactionReason) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, tx := range r.txs {
		if tx.EntityID != entityID {
			continue
		}
		for _, reason := range reasons {
			if tx.Reason == reason {
				total += tx.AmountCents
				break
			}
		}
	}
	return total, nil
}

func (r *fakeTransactionRepo) SumByAccount(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, tx := range r.txs {
		if tx.AccountID == accountID {
			total += tx.AmountCents
		}
	}
	return total, nil
}

func (r *fakeTransactionRepo) countByReason(reason models.TransactionReason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tx := range r.txs {
		if tx.Reason == reason {
			n++
		}
	}
	return n
}

type fakeVerificationRepo struct {
	mu            sync.Mutex
	verifications map[string]*models.Verification
	insertErr     error
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{verifications: make(map[string]*models.Verification)}
}

func (r *fakeVerificationRepo) Insert(_ context.Context, v *models.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	cp := *v
	r.verifications[v.ID] = &cp
	return nil
}

func (r *fakeVerificationRepo) Get(_ context.Context, id string) (*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.verifications[id]
	if !ok {
		return nil, models.ErrVerificationNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVerificationRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Verification
	for _, v := range r.verifications {
		if v.AccountID == accountID && int64(len(out)) < limit {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeVerificationRepo) TransitionFromPending(_ context.Context, id string, to models.VerificationStatus, messages []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.verifications[id]
	if !ok || v.Status != models.VerificationStatusPending {
		return false, nil
	}
	v.Status = to
	if len(messages) > 0 {
		v.Messages = messages
	}
	v.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeVerificationRepo) ListExpired(_ context.Context, now time.Time, limit int64) ([]models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Verification
	for _, v := range r.verifications {
		if v.Status == models.VerificationStatusPending && !v.DeadlineAt.After(now) && int64(len(out)) < limit {
			out = append(out, *v)
		}
	}
	return out, nil
}

type fakeRentalRepo struct {
	mu        sync.Mutex
	rentals   map[string]*models.Rental
	insertErr error
}

func newFakeRentalRepo() *fakeRentalRepo {
	return &fakeRentalRepo{rentals: make(map[string]*models.Rental)}
}

func (r *fakeRentalRepo) Insert(_ context.Context, rental *models.Rental) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	cp := *rental
	r.rentals[rental.ID] = &cp
	return nil
}

func (r *fakeRentalRepo) Get(_ context.Context, id string) (*models.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok {
		return nil, models.ErrRentalNotFound
	}
	cp := *rental
	return &cp, nil
}

func (r *fakeRentalRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Rental
	for _, rental := range r.rentals {
		if rental.AccountID == accountID && int64(len(out)) < limit {
			out = append(out, *rental)
		}
	}
	return out, nil
}

func (r *fakeRentalRepo) CountActive(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rental := range r.rentals {
		if rental.AccountID == accountID && rental.Status == models.RentalStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeRentalRepo) Release(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return false, nil
	}
	rental.Status = models.RentalStatusReleased
	rental.ReleasedAt = &at
	return true, nil
}

func (r *fakeRentalRepo) Expire(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return false, nil
	}
	rental.Status = models.RentalStatusExpired
	return true, nil
}

func (r *fakeRentalRepo) Extend(_ context.Context, id string, newExpiry time.Time, chargeCents int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return false, nil
	}
	rental.ExpiresAt = newExpiry
	rental.LastEvent = models.RentalEventExtended
	rental.Warned = false
	rental.Extensions++
	rental.ExtensionCostCents += chargeCents
	return true, nil
}

func (r *fakeRentalRepo) MarkWarned(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive || rental.Warned {
		return false, nil
	}
	rental.Warned = true
	return true, nil
}

func (r *fakeRentalRepo) ListDue(_ context.Context, now time.Time, limit int64) ([]models.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Rental
	for _, rental := range r.rentals {
		if rental.Status == models.RentalStatusActive && !rental.ExpiresAt.After(now) && int64(len(out)) < limit {
			out = append(out, *rental)
		}
	}
	return out, nil
}

func (r *fakeRentalRepo) ListWarnable(_ context.Context, now time.Time, window time.Duration, limit int64) ([]models.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Rental
	for _, rental := range r.rentals {
		if rental.Status == models.RentalStatusActive && !rental.Warned &&
			rental.ExpiresAt.After(now) && !rental.ExpiresAt.After(now.Add(window)) &&
			int64(len(out)) < limit {
			out = append(out, *rental)
		}
	}
	return out, nil
}

// fakeProvider is a scriptable provider.API.
type fakeProvider struct {
	mu           sync.Mutex
	createCalls  int
	cancelCalls  int
	createErr    error
	cancelErr    error
	statusResult *provider.ReservationStatus
	statusErr    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

func (p *fakeProvider) CreateReservation(_ context.Context, _ provider.ReservationRequest) (*provider.Reservation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &provider.Reservation{
		ID:          fmt.Sprintf("res-%d", p.createCalls),
		PhoneNumber: "+14155552671",
		Status:      provider.ReservationWaiting,
	}, nil
}

func (p *fakeProvider) GetReservation(_ context.Context, id string) (*provider.ReservationStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	if p.statusResult != nil {
		cp := *p.statusResult
		cp.ID = id
		return &cp, nil
	}
	return &provider.ReservationStatus{ID: id, Status: provider.ReservationWaiting}, nil
}

func (p *fakeProvider) CancelReservation(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	return p.cancelErr
}

// ledgerFixture wires a ledger service over fakes and funds one
// account.
type ledgerFixture struct {
	accounts     *fakeAccountRepo
	transactions *fakeTransactionRepo
	ledger       *LedgerService
}

func newLedgerFixture(t interface {
	Helper()
	Fatalf(format string, args ...interface{})
}, plan models.Plan, balanceCents int64) *ledgerFixture {
	t.Helper()

	accounts := newFakeAccountRepo()
	transactions := newFakeTransactionRepo()
	ledger := NewLedgerService(accounts, transactions)

	if _, err := ledger.CreateAccount(context.Background(), "acct-1", plan); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if balanceCents > 0 {
		if _, err := ledger.TopUp(context.Background(), "acct-1", balanceCents); err != nil {
			t.Fatalf("TopUp() error = %v", err)
		}
	}

	return &ledgerFixture{accounts: accounts, transactions: transactions, ledger: ledger}
}
