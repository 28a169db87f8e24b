package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/models"
)

func rentalBody() gin.H {
	return gin.H{
		"account_id":     "acct-1",
		"service":        "whatsapp",
		"scope":          "service",
		"mode":           "always_active",
		"duration_hours": 24,
	}
}

func TestPriceRental(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 0)

	w := s.do(t, http.MethodPost, "/v1/price/rental", rentalBody())
	wantStatus(t, w, http.StatusOK)

	var price priceResponse
	decode(t, w, &price)
	if price.CostCents != 2000 {
		t.Errorf("CostCents = %v, want 2000", price.CostCents)
	}
}

func TestPriceRental_DurationTooLong(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 0)

	body := rentalBody()
	body["duration_hours"] = 31 * 24
	w := s.do(t, http.MethodPost, "/v1/price/rental", body)
	wantStatus(t, w, http.StatusBadRequest)
}

func TestCreateRental(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 5000)

	w := s.do(t, http.MethodPost, "/v1/rentals", rentalBody())
	wantStatus(t, w, http.StatusCreated)

	var rental models.Rental
	decode(t, w, &rental)
	if rental.Status != models.RentalStatusActive {
		t.Errorf("Status = %v, want active", rental.Status)
	}
	if rental.CostCents != 2000 {
		t.Errorf("CostCents = %v, want 2000", rental.CostCents)
	}
}

func TestCreateRental_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 100)

	w := s.do(t, http.MethodPost, "/v1/rentals", rentalBody())
	wantStatus(t, w, http.StatusPaymentRequired)
}

func TestReleaseRental(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 5000)

	w := s.do(t, http.MethodPost, "/v1/rentals", rentalBody())
	wantStatus(t, w, http.StatusCreated)
	var rental models.Rental
	decode(t, w, &rental)

	w = s.do(t, http.MethodDelete, "/v1/rentals/"+rental.ID, nil)
	wantStatus(t, w, http.StatusOK)

	var released releaseResponse
	decode(t, w, &released)
	if released.Rental.Status != models.RentalStatusReleased {
		t.Errorf("Status = %v, want released", released.Rental.Status)
	}
	if released.RefundCents <= 0 {
		t.Errorf("RefundCents = %v, want a partial refund", released.RefundCents)
	}

	// Releasing again conflicts
	w = s.do(t, http.MethodDelete, "/v1/rentals/"+rental.ID, nil)
	wantStatus(t, w, http.StatusConflict)
}

func TestGetRental_NotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/rentals/missing", nil)
	wantStatus(t, w, http.StatusNotFound)
}

func TestListRentals(t *testing.T) {
	s := newTestServer(t)
	s.fundAccount(t, 5000)

	w := s.do(t, http.MethodPost, "/v1/rentals", rentalBody())
	wantStatus(t, w, http.StatusCreated)

	w = s.do(t, http.MethodGet, "/v1/rentals?account_id=acct-1", nil)
	wantStatus(t, w, http.StatusOK)

	var out []models.Rental
	decode(t, w, &out)
	if len(out) != 1 {
		t.Errorf("rentals = %d, want 1", len(out))
	}
}

func TestListBreakers(t *testing.T) {
	s := newTestServer(t)
	s.breakers.Save(context.Background(), models.BreakerSnapshot{Endpoint: "reserve", State: "closed"})

	w := s.do(t, http.MethodGet, "/v1/breakers", nil)
	wantStatus(t, w, http.StatusOK)

	var out []models.BreakerSnapshot
	decode(t, w, &out)
	if len(out) != 1 || out[0].Endpoint != "reserve" {
		t.Errorf("breakers = %+v, want the reserve snapshot", out)
	}
}
