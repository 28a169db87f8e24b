package pricing

import (
	"testing"

	"github.com/numvend/numvend/internal/models"
)

func TestServiceTier(t *testing.T) {
	tests := []struct {
		service string
		want    string
	}{
		{"whatsapp", Tier1},
		{"discord", Tier2},
		{"tiktok", Tier3},
		{"some-obscure-service", Tier4},
		{"", Tier4},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			if got := ServiceTier(tt.service); got != tt.want {
				t.Errorf("ServiceTier(%q) = %v, want %v", tt.service, got, tt.want)
			}
		})
	}
}

func TestVerificationPrice(t *testing.T) {
	tests := []struct {
		name   string
		params VerificationParams
		want   int64
	}{
		{
			name: "tier1 starter no discounts",
			params: VerificationParams{
				Service:    "whatsapp",
				Capability: models.CapabilitySMS,
				Plan:       models.PlanStarter,
			},
			want: 150,
		},
		{
			name: "tier1 turbo with volume discount at 60 monthly uses",
			params: VerificationParams{
				Service:              "whatsapp",
				Capability:           models.CapabilitySMS,
				Plan:                 models.PlanTurbo,
				MonthlyVerifications: 60,
			},
			// 1.50 * 0.75 * 0.90
			want: 101,
		},
		{
			name: "volume threshold boundary at 11",
			params: VerificationParams{
				Service:              "whatsapp",
				Capability:           models.CapabilitySMS,
				Plan:                 models.PlanStarter,
				MonthlyVerifications: 11,
			},
			// 1.50 * 0.95
			want: 143,
		},
		{
			name: "below volume threshold at 10",
			params: VerificationParams{
				Service:              "whatsapp",
				Capability:           models.CapabilitySMS,
				Plan:                 models.PlanStarter,
				MonthlyVerifications: 10,
			},
			want: 150,
		},
		{
			name: "top volume tier at 101",
			params: VerificationParams{
				Service:              "whatsapp",
				Capability:           models.CapabilitySMS,
				Plan:                 models.PlanStarter,
				MonthlyVerifications: 101,
			},
			// 1.50 * 0.85
			want: 128,
		},
		{
			name: "voice premium added after discounts",
			params: VerificationParams{
				Service:    "whatsapp",
				Capability: models.CapabilityVoice,
				Plan:       models.PlanStarter,
			},
			want: 175,
		},
		{
			name: "voice premium not discounted by plan",
			params: VerificationParams{
				Service:    "whatsapp",
				Capability: models.CapabilityVoice,
				Plan:       models.PlanEnterprise,
			},
			// 1.50 * 0.60 + 0.25
			want: 115,
		},
		{
			name: "addons flat and never discounted",
			params: VerificationParams{
				Service:    "facebook",
				Capability: models.CapabilitySMS,
				Plan:       models.PlanPro,
				Addons:     []models.Addon{models.AddonAreaCode, models.AddonPriorityQueue},
			},
			// 1.20 * 0.85 + 0.50 + 0.30
			want: 182,
		},
		{
			name: "unknown service charged at highest tier",
			params: VerificationParams{
				Service:    "never-heard-of-it",
				Capability: models.CapabilitySMS,
				Plan:       models.PlanStarter,
			},
			want: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerificationPrice(tt.params)
			if err != nil {
				t.Fatalf("VerificationPrice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("VerificationPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerificationPrice_InvalidInput(t *testing.T) {
	_, err := VerificationPrice(VerificationParams{
		Service:    "whatsapp",
		Capability: models.CapabilitySMS,
		Plan:       "platinum",
	})
	if err == nil {
		t.Error("VerificationPrice() with invalid plan: error = nil, want error")
	}

	_, err = VerificationPrice(VerificationParams{
		Service:    "whatsapp",
		Capability: "fax",
		Plan:       models.PlanStarter,
	})
	if err == nil {
		t.Error("VerificationPrice() with invalid capability: error = nil, want error")
	}

	_, err = VerificationPrice(VerificationParams{
		Service:    "whatsapp",
		Capability: models.CapabilitySMS,
		Plan:       models.PlanStarter,
		Addons:     []models.Addon{"free_upgrade"},
	})
	if err == nil {
		t.Error("VerificationPrice() with unknown addon: error = nil, want error")
	}
}

func TestRentalPrice_HourlyBrackets(t *testing.T) {
	tests := []struct {
		name  string
		hours int
		want  int64
	}{
		{"exact 1h bracket", 1, 300},
		{"2h rounds up to 3h bracket", 2, 600},
		{"exact 6h bracket", 6, 900},
		{"7h rounds up to 12h bracket", 7, 1400},
		{"exact 24h bracket", 24, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RentalPrice(RentalParams{
				Scope:         models.RentalScopeService,
				Mode:          models.RentalModeAlwaysActive,
				DurationHours: tt.hours,
			})
			if err != nil {
				t.Fatalf("RentalPrice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RentalPrice(%dh) = %v, want %v", tt.hours, got, tt.want)
			}
		})
	}
}

func TestRentalPrice_DayBrackets(t *testing.T) {
	tests := []struct {
		name  string
		scope models.RentalScope
		hours int
		want  int64
	}{
		{"25h rounds up to 7d service table", models.RentalScopeService, 25, 1500},
		{"7d service", models.RentalScopeService, 7 * 24, 1500},
		{"8d rounds up to 14d service", models.RentalScopeService, 8 * 24, 2500},
		{"30d service", models.RentalScopeService, 30 * 24, 5000},
		{"7d general costs more", models.RentalScopeGeneral, 7 * 24, 3000},
		{"30d general", models.RentalScopeGeneral, 30 * 24, 9000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RentalPrice(RentalParams{
				Scope:         tt.scope,
				Mode:          models.RentalModeAlwaysActive,
				DurationHours: tt.hours,
			})
			if err != nil {
				t.Fatalf("RentalPrice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RentalPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRentalPrice_Discounts(t *testing.T) {
	tests := []struct {
		name   string
		params RentalParams
		want   int64
	}{
		{
			name: "manual mode 30 percent off",
			params: RentalParams{
				Scope: models.RentalScopeService, Mode: models.RentalModeManual, DurationHours: 24,
			},
			want: 1400, // 2000 * 0.70
		},
		{
			name: "bulk 15 percent off",
			params: RentalParams{
				Scope: models.RentalScopeService, Mode: models.RentalModeAlwaysActive, DurationHours: 24, Bulk: true,
			},
			want: 1700, // 2000 * 0.85
		},
		{
			name: "manual and bulk stack multiplicatively",
			params: RentalParams{
				Scope: models.RentalScopeService, Mode: models.RentalModeManual, DurationHours: 24, Bulk: true,
			},
			want: 1190, // 2000 * 0.70 * 0.85
		},
		{
			name: "auto-extend discount applies to renewal only",
			params: RentalParams{
				Scope: models.RentalScopeGeneral, Mode: models.RentalModeAlwaysActive, DurationHours: 7 * 24, Renewal: true,
			},
			want: 2700, // 3000 * 0.90
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RentalPrice(tt.params)
			if err != nil {
				t.Fatalf("RentalPrice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RentalPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRentalPrice_InvalidInput(t *testing.T) {
	if _, err := RentalPrice(RentalParams{Scope: models.RentalScopeService, Mode: models.RentalModeAlwaysActive, DurationHours: 0}); err == nil {
		t.Error("RentalPrice(0h) error = nil, want error")
	}
	if _, err := RentalPrice(RentalParams{Scope: models.RentalScopeService, Mode: models.RentalModeAlwaysActive, DurationHours: 31 * 24}); err == nil {
		t.Error("RentalPrice(31d) error = nil, want error")
	}
	if _, err := RentalPrice(RentalParams{Scope: "regional", Mode: models.RentalModeAlwaysActive, DurationHours: 24}); err == nil {
		t.Error("RentalPrice() with unknown scope: error = nil, want error")
	}
	if _, err := RentalPrice(RentalParams{Scope: models.RentalScopeService, Mode: "burst", DurationHours: 24}); err == nil {
		t.Error("RentalPrice() with unknown mode: error = nil, want error")
	}
}
