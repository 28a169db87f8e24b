package pricing

import (
	"fmt"
	"sort"

	"github.com/numvend/numvend/internal/models"
	"github.com/shopspring/decimal"
)

// Service tiers order providers by demand. Unknown services fall into
// tier4, the most expensive bracket, so a missing mapping never
// undercharges.
const (
	Tier1 = "tier1"
	Tier2 = "tier2"
	Tier3 = "tier3"
	Tier4 = "tier4"
)

var serviceTiers = map[string]string{
	"whatsapp":  Tier1,
	"telegram":  Tier1,
	"google":    Tier1,
	"facebook":  Tier2,
	"instagram": Tier2,
	"twitter":   Tier2,
	"discord":   Tier2,
	"tiktok":    Tier3,
	"amazon":    Tier3,
	"uber":      Tier3,
	"netflix":   Tier3,
}

var tierBaseCents = map[string]int64{
	Tier1: 150,
	Tier2: 120,
	Tier3: 90,
	Tier4: 200,
}

var planDiscount = map[models.Plan]decimal.Decimal{
	models.PlanStarter:    decimal.Zero,
	models.PlanPro:        decimal.NewFromFloat(0.15),
	models.PlanTurbo:      decimal.NewFromFloat(0.25),
	models.PlanEnterprise: decimal.NewFromFloat(0.40),
}

// Volume thresholds on the account's verification count this calendar
// month. The highest matching threshold wins.
var volumeDiscounts = []struct {
	minMonthly int
	discount   decimal.Decimal
}{
	{101, decimal.NewFromFloat(0.15)},
	{51, decimal.NewFromFloat(0.10)},
	{11, decimal.NewFromFloat(0.05)},
}

var voicePremiumCents int64 = 25

var addonCents = map[models.Addon]int64{
	models.AddonAreaCode:      50,
	models.AddonCarrier:       75,
	models.AddonPriorityQueue: 30,
}

// ServiceTier returns the pricing tier for a service name.
func ServiceTier(service string) string {
	if tier, ok := serviceTiers[service]; ok {
		return tier
	}
	return Tier4
}

// VerificationParams carries everything verification pricing depends on.
type VerificationParams struct {
	Service              string
	Capability           models.Capability
	Plan                 models.Plan
	MonthlyVerifications int
	Addons               []models.Addon
}

// VerificationPrice computes the cost of a single verification in cents.
//
// Plan and volume discounts stack multiplicatively on the tier base.
// The voice premium is added after discounts; add-on surcharges are
// flat and never discounted.
func VerificationPrice(p VerificationParams) (int64, error) {
	if !p.Plan.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidPlan, p.Plan)
	}
	if p.Capability != models.CapabilitySMS && p.Capability != models.CapabilityVoice {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidCapability, p.Capability)
	}

	base := FromCents(tierBaseCents[ServiceTier(p.Service)])

	price := base.
		Mul(decimal.NewFromInt(1).Sub(planDiscount[p.Plan])).
		Mul(decimal.NewFromInt(1).Sub(volumeDiscount(p.MonthlyVerifications)))

	if p.Capability == models.CapabilityVoice {
		price = price.Add(FromCents(voicePremiumCents))
	}

	for _, addon := range p.Addons {
		surcharge, ok := addonCents[addon]
		if !ok {
			return 0, fmt.Errorf("%w: %q", models.ErrInvalidAddon, addon)
		}
		price = price.Add(FromCents(surcharge))
	}

	return Cents(price), nil
}

func volumeDiscount(monthly int) decimal.Decimal {
	for _, v := range volumeDiscounts {
		if monthly >= v.minMonthly {
			return v.discount
		}
	}
	return decimal.Zero
}

// Rental duration brackets. Hourly rentals round up to the next
// bracket; anything over a day rounds up through the per-scope day
// tables.
var hourlyBracketCents = []struct {
	hours int
	cents int64
}{
	{1, 300},
	{3, 600},
	{6, 900},
	{12, 1400},
	{24, 2000},
}

var dayBracketCents = map[models.RentalScope][]struct {
	days  int
	cents int64
}{
	models.RentalScopeService: {
		{7, 1500},
		{14, 2500},
		{30, 5000},
	},
	models.RentalScopeGeneral: {
		{7, 3000},
		{14, 5000},
		{30, 9000},
	},
}

var (
	manualDiscount     = decimal.NewFromFloat(0.30)
	autoExtendDiscount = decimal.NewFromFloat(0.10)
	bulkDiscount       = decimal.NewFromFloat(0.15)
)

// RentalParams carries everything rental pricing depends on.
type RentalParams struct {
	Scope         models.RentalScope
	Mode          models.RentalMode
	DurationHours int
	// Bulk is true when the account holds at least the bulk minimum of
	// simultaneous active rentals.
	Bulk bool
	// Renewal marks an auto-extend renewal charge, which gets its own
	// discount. Initial charges never do.
	Renewal bool
}

// RentalPrice computes the cost of a rental in cents from the bracket
// tables. Discounts stack multiplicatively: manual mode, bulk, then
// the renewal discount for auto-extend charges.
func RentalPrice(p RentalParams) (int64, error) {
	if p.DurationHours <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive, got %dh", models.ErrInvalidRental, p.DurationHours)
	}
	if p.Scope != models.RentalScopeService && p.Scope != models.RentalScopeGeneral {
		return 0, fmt.Errorf("%w: unknown scope %q", models.ErrInvalidRental, p.Scope)
	}
	if p.Mode != models.RentalModeAlwaysActive && p.Mode != models.RentalModeManual {
		return 0, fmt.Errorf("%w: unknown mode %q", models.ErrInvalidRental, p.Mode)
	}

	baseCents, err := rentalBaseCents(p.Scope, p.DurationHours)
	if err != nil {
		return 0, err
	}

	price := FromCents(baseCents)
	if p.Mode == models.RentalModeManual {
		price = price.Mul(decimal.NewFromInt(1).Sub(manualDiscount))
	}
	if p.Bulk {
		price = price.Mul(decimal.NewFromInt(1).Sub(bulkDiscount))
	}
	if p.Renewal {
		price = price.Mul(decimal.NewFromInt(1).Sub(autoExtendDiscount))
	}

	return Cents(price), nil
}

func rentalBaseCents(scope models.RentalScope, hours int) (int64, error) {
	if hours <= 24 {
		idx := sort.Search(len(hourlyBracketCents), func(i int) bool {
			return hourlyBracketCents[i].hours >= hours
		})
		return hourlyBracketCents[idx].cents, nil
	}

	days := (hours + 23) / 24
	for _, bracket := range dayBracketCents[scope] {
		if days <= bracket.days {
			return bracket.cents, nil
		}
	}
	return 0, fmt.Errorf("%w: duration %dh exceeds the longest bracket", models.ErrInvalidRental, hours)
}
