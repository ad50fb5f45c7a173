package app

import (
	"fmt"

	"github.com/cutline/booking-service/internal/config"
	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeePolicy is the single configured platform fee rule. Amounts are in cents
// and fractions are rounded half away from zero to the cent.
type FeePolicy struct {
	Mode       string
	FlatFee    int64
	Percent    decimal.Decimal
	PayeeShare decimal.Decimal
}

// NewFeePolicy builds the fee policy from configuration.
func NewFeePolicy(cfg config.Config) FeePolicy {
	mode := cfg.PlatformFeeMode
	if mode == "" {
		mode = config.FeeModeFlat
	}
	return FeePolicy{
		Mode:       mode,
		FlatFee:    cfg.PlatformFeeCents,
		Percent:    decimal.NewFromFloat(cfg.PlatformFeePercent),
		PayeeShare: decimal.NewFromFloat(cfg.PayeeFeeShare),
	}
}

// PricingInput is what the calculator needs for one booking attempt.
// Candidates are the catalog rows looked up for SelectedAddonIDs.
type PricingInput struct {
	ServicePrice     *int64
	BarberID         uuid.UUID
	Tariff           string
	SelectedAddonIDs []uuid.UUID
	Candidates       []domain.Addon
}

// Calculate prices a booking. It has no side effects. Selected add-ons that are
// unknown, inactive or owned by another barber are dropped without error.
func (p FeePolicy) Calculate(in PricingInput) (domain.PricingBreakdown, error) {
	if in.ServicePrice == nil {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: service has no price", ErrInvalidInput)
	}
	if *in.ServicePrice < 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: service price is negative", ErrInvalidInput)
	}
	if in.Tariff != domain.TariffStandard && in.Tariff != domain.TariffFeeWaived {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: unknown tariff %q", ErrInvalidInput, in.Tariff)
	}

	catalog := make(map[uuid.UUID]domain.Addon, len(in.Candidates))
	for _, addon := range in.Candidates {
		catalog[addon.ID] = addon
	}

	b := domain.PricingBreakdown{
		Tariff:       in.Tariff,
		ServicePrice: *in.ServicePrice,
		Addons:       []domain.PricedAddon{},
	}

	seen := make(map[uuid.UUID]bool, len(in.SelectedAddonIDs))
	for _, id := range in.SelectedAddonIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		addon, ok := catalog[id]
		if !ok || !addon.IsActive || addon.BarberID != in.BarberID || addon.Price < 0 {
			continue
		}
		b.Addons = append(b.Addons, domain.PricedAddon{ID: addon.ID, Price: addon.Price})
		b.AddonTotal += addon.Price
	}

	subtotal := b.ServicePrice + b.AddonTotal
	if in.Tariff == domain.TariffFeeWaived {
		b.TotalPrice = subtotal
		b.PayeePayout = subtotal
		return b, nil
	}

	b.PlatformFee = p.fee(subtotal)
	payeeFeeShare := decimal.NewFromInt(b.PlatformFee).Mul(p.PayeeShare).Round(0).IntPart()
	b.PlatformShare = b.PlatformFee - payeeFeeShare
	b.TotalPrice = subtotal + b.PlatformFee
	b.PayeePayout = subtotal + payeeFeeShare
	return b, nil
}

func (p FeePolicy) fee(subtotal int64) int64 {
	if p.Mode == config.FeeModePercent {
		return decimal.NewFromInt(subtotal).Mul(p.Percent).Div(hundred).Round(0).IntPart()
	}
	return p.FlatFee
}
