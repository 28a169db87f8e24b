package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/provider"
	"github.com/numvend/numvend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	logging.InitLogger()
}

// Minimal in-memory repositories backing real services for handler
// tests. They keep the conditional-update semantics the handlers'
// behavior depends on.

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func (r *memAccountRepo) Create(_ context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	if a.MonthKey == "" {
		a.MonthKey = models.MonthKeyFor(time.Now())
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memAccountRepo) Get(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) DebitIfSufficient(_ context.Context, id string, amount int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if a.BalanceCents < amount {
		return nil, models.ErrInsufficientFunds
	}
	a.BalanceCents -= amount
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) Credit(_ context.Context, id string, amount int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	a.BalanceCents += amount
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) IncrementMonthly(_ context.Context, id, monthKey string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if a.MonthKey != monthKey {
		a.MonthKey = monthKey
		a.MonthlyVerifications = 0
	}
	a.MonthlyVerifications++
	cp := *a
	return &cp, nil
}

type memTransactionRepo struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func (r *memTransactionRepo) Insert(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *memTransactionRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Transaction, error) {
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

func (r *memTransactionRepo) SumByEntity(_ context.Context, entityID string, reasons []models.TransactionReason) (int64, error) {
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

func (r *memTransactionRepo) SumByAccount(_ context.Context, accountID string) (int64, error) {
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

type memVerificationRepo struct {
	mu            sync.Mutex
	verifications map[string]*models.Verification
}

func (r *memVerificationRepo) Insert(_ context.Context, v *models.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.verifications[v.ID] = &cp
	return nil
}

func (r *memVerificationRepo) Get(_ context.Context, id string) (*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.verifications[id]
	if !ok {
		return nil, models.ErrVerificationNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memVerificationRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Verification, error) {
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

func (r *memVerificationRepo) TransitionFromPending(_ context.Context, id string, to models.VerificationStatus, messages []string) (bool, error) {
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
	return true, nil
}

func (r *memVerificationRepo) ListExpired(_ context.Context, now time.Time, limit int64) ([]models.Verification, error) {
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

type memRentalRepo struct {
	mu      sync.Mutex
	rentals map[string]*models.Rental
}

func (r *memRentalRepo) Insert(_ context.Context, rental *models.Rental) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rental
	r.rentals[rental.ID] = &cp
	return nil
}

func (r *memRentalRepo) Get(_ context.Context, id string) (*models.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok {
		return nil, models.ErrRentalNotFound
	}
	cp := *rental
	return &cp, nil
}

func (r *memRentalRepo) ListByAccount(_ context.Context, accountID string, limit int64) ([]models.Rental, error) {
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

func (r *memRentalRepo) CountActive(_ context.Context, accountID string) (int64, error) {
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

func (r *memRentalRepo) Release(_ context.Context, id string, at time.Time) (bool, error) {
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

func (r *memRentalRepo) Expire(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return false, nil
	}
	rental.Status = models.RentalStatusExpired
	return true, nil
}

func (r *memRentalRepo) Extend(_ context.Context, id string, newExpiry time.Time, chargeCents int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive {
		return false, nil
	}
	rental.ExpiresAt = newExpiry
	rental.Warned = false
	rental.Extensions++
	rental.ExtensionCostCents += chargeCents
	return true, nil
}

func (r *memRentalRepo) MarkWarned(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok || rental.Status != models.RentalStatusActive || rental.Warned {
		return false, nil
	}
	rental.Warned = true
	return true, nil
}

func (r *memRentalRepo) ListDue(_ context.Context, now time.Time, limit int64) ([]models.Rental, error) {
	return nil, nil
}

func (r *memRentalRepo) ListWarnable(_ context.Context, now time.Time, window time.Duration, limit int64) ([]models.Rental, error) {
	return nil, nil
}

type memBreakerRepo struct {
	mu        sync.Mutex
	snapshots map[string]models.BreakerSnapshot
}

func (r *memBreakerRepo) Save(_ context.Context, s models.BreakerSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.Endpoint] = s
	return nil
}

func (r *memBreakerRepo) List(_ context.Context) ([]models.BreakerSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BreakerSnapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s)
	}
	return out, nil
}

type stubProvider struct {
	mu        sync.Mutex
	creates   int
	createErr error
}

func (p *stubProvider) CreateReservation(_ context.Context, _ provider.ReservationRequest) (*provider.Reservation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates++
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &provider.Reservation{
		ID:          fmt.Sprintf("res-%d", p.creates),
		PhoneNumber: "+14155552671",
		Status:      provider.ReservationWaiting,
	}, nil
}

func (p *stubProvider) GetReservation(_ context.Context, id string) (*provider.ReservationStatus, error) {
	return &provider.ReservationStatus{ID: id, Status: provider.ReservationWaiting}, nil
}

func (p *stubProvider) CancelReservation(_ context.Context, _ string) error {
	return nil
}

// testServer wires real services over in-memory repositories behind a
// gin router.
type testServer struct {
	router   *gin.Engine
	ledger   *services.LedgerService
	provider *stubProvider
	breakers *memBreakerRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	accounts := &memAccountRepo{accounts: make(map[string]*models.Account)}
	transactions := &memTransactionRepo{}
	verifications := &memVerificationRepo{verifications: make(map[string]*models.Verification)}
	rentals := &memRentalRepo{rentals: make(map[string]*models.Rental)}
	breakers := &memBreakerRepo{snapshots: make(map[string]models.BreakerSnapshot)}
	prov := &stubProvider{}

	ledger := services.NewLedgerService(accounts, transactions)
	vsvc := services.NewVerificationService(ledger, verifications, prov, 15*time.Minute)
	rsvc := services.NewRentalService(ledger, rentals, prov, 5)

	router := gin.New()
	New(ledger, vsvc, rsvc, breakers).RegisterRoutes(router)

	return &testServer{router: router, ledger: ledger, provider: prov, breakers: breakers}
}

// fundAccount creates acct-1 with the given balance.
func (s *testServer) fundAccount(t *testing.T, balanceCents int64) {
	t.Helper()
	if _, err := s.ledger.CreateAccount(context.Background(), "acct-1", models.PlanStarter); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if balanceCents > 0 {
		if _, err := s.ledger.TopUp(context.Background(), "acct-1", balanceCents); err != nil {
			t.Fatalf("TopUp() error = %v", err)
		}
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body %s", w.Code, want, w.Body.String())
	}
}
