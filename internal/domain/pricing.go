package domain

import "github.com/google/uuid"

const (
	TariffStandard  = "standard"
	TariffFeeWaived = "fee_waived"
)

// PricedAddon is an add-on resolved against the catalog with its current price.
type PricedAddon struct {
	ID    uuid.UUID `json:"id"`
	Price int64     `json:"price"`
}

// PricingBreakdown is computed per booking attempt and never stored as-is.
// All amounts are in cents.
//
// PlatformFee is what the payer is charged on top of the service.
// PlatformShare is the part of it the platform keeps, the rest goes to the barber.
type PricingBreakdown struct {
	Tariff        string        `json:"tariff"`
	ServicePrice  int64         `json:"service_price"`
	AddonTotal    int64         `json:"addon_total"`
	PlatformFee   int64         `json:"platform_fee"`
	PlatformShare int64         `json:"platform_share"`
	TotalPrice    int64         `json:"total_price"`
	PayeePayout   int64         `json:"payee_payout"`
	Addons        []PricedAddon `json:"addons"`
}

// Balanced reports whether the breakdown satisfies the settlement arithmetic.
func (b PricingBreakdown) Balanced() bool {
	return b.TotalPrice == b.ServicePrice+b.AddonTotal+b.PlatformFee &&
		b.PayeePayout+b.PlatformShare == b.TotalPrice
}
