package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sampleIntent() PendingBookingIntent {
	clientID := uuid.New()
	addonID := uuid.New()
	return PendingBookingIntent{
		ServiceID:   uuid.New(),
		BarberID:    uuid.New(),
		Payer:       Payer{ClientID: &clientID},
		ScheduledAt: time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC),
		Notes:       "fade, keep the top long",
		Breakdown: PricingBreakdown{
			Tariff:        TariffStandard,
			ServicePrice:  3000,
			AddonTotal:    1000,
			PlatformFee:   338,
			PlatformShare: 203,
			TotalPrice:    4338,
			PayeePayout:   4135,
			Addons:        []PricedAddon{{ID: addonID, Price: 1000}},
		},
	}
}

func TestParsePendingBookingIntent_ReadsBackWhatMetadataWrote(t *testing.T) {
	intent := sampleIntent()

	parsed, err := ParsePendingBookingIntent(intent.Metadata())
	if err != nil {
		t.Fatalf("expected metadata to parse, got %v", err)
	}
	if parsed.ServiceID != intent.ServiceID || parsed.BarberID != intent.BarberID {
		t.Fatalf("identity mismatch: %+v", parsed)
	}
	if parsed.Payer.ClientID == nil || *parsed.Payer.ClientID != *intent.Payer.ClientID {
		t.Fatalf("expected client id to survive, got %v", parsed.Payer.ClientID)
	}
	if !parsed.ScheduledAt.Equal(intent.ScheduledAt) {
		t.Fatalf("expected scheduled_at %v, got %v", intent.ScheduledAt, parsed.ScheduledAt)
	}
	if len(parsed.Breakdown.Addons) != 1 || parsed.Breakdown.Addons[0] != intent.Breakdown.Addons[0] {
		t.Fatalf("expected add-on line items to survive, got %+v", parsed.Breakdown.Addons)
	}
	if parsed.Breakdown.TotalPrice != 4338 || parsed.Breakdown.PayeePayout != 4135 {
		t.Fatalf("unexpected amounts: %+v", parsed.Breakdown)
	}
}

func TestParsePendingBookingIntent_RejectsDriftedMetadata(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(md map[string]string)
	}{
		{"foreign intent", func(md map[string]string) { delete(md, "booking_intent") }},
		{"missing service", func(md map[string]string) { delete(md, "service_id") }},
		{"no payer", func(md map[string]string) { delete(md, "client_id") }},
		{"bad schedule", func(md map[string]string) { md["scheduled_at"] = "tomorrow" }},
		{"negative amount", func(md map[string]string) { md["platform_fee"] = "-1" }},
		{"unbalanced total", func(md map[string]string) { md["total_price"] = "4000" }},
		{"addon sum drift", func(md map[string]string) { md["addon_total"] = "900" }},
		{"malformed addon", func(md map[string]string) { md["addons"] = "not-an-addon" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			md := sampleIntent().Metadata()
			tc.mutate(md)

			_, err := ParsePendingBookingIntent(md)
			if !errors.Is(err, ErrInvalidIntentMetadata) {
				t.Fatalf("expected ErrInvalidIntentMetadata, got %v", err)
			}
		})
	}
}

func TestParsePendingBookingIntent_AcceptsGuestPayer(t *testing.T) {
	intent := sampleIntent()
	intent.Payer = Payer{GuestName: "Sam Rivera", GuestPhone: "+15550100"}

	parsed, err := ParsePendingBookingIntent(intent.Metadata())
	if err != nil {
		t.Fatalf("expected guest intent to parse, got %v", err)
	}
	if !parsed.Payer.IsGuest() || parsed.Payer.GuestPhone != "+15550100" {
		t.Fatalf("expected guest payer, got %+v", parsed.Payer)
	}
}

func TestPendingBookingIntent_Matches(t *testing.T) {
	intent := sampleIntent()
	other := uuid.New()

	match := IntentMatch{ClientID: intent.Payer.ClientID, ServiceID: intent.ServiceID, BarberID: intent.BarberID}
	if !intent.Matches(match) {
		t.Fatal("expected tuple without schedule to match")
	}

	match.ScheduledAt = intent.ScheduledAt.Add(time.Hour)
	if intent.Matches(match) {
		t.Fatal("expected different schedule not to match")
	}

	match = IntentMatch{ClientID: &other, ServiceID: intent.ServiceID, BarberID: intent.BarberID}
	if intent.Matches(match) {
		t.Fatal("expected different client not to match")
	}
}

func TestPendingBookingIntent_BookingCopiesAddonPrices(t *testing.T) {
	intent := sampleIntent()

	booking, addons := intent.Booking("pi_123", PaymentStatusSucceeded)
	if booking.Status != BookingStatusConfirmed || booking.PaymentStatus != PaymentStatusSucceeded {
		t.Fatalf("unexpected statuses: %s/%s", booking.Status, booking.PaymentStatus)
	}
	if booking.PaymentIntentID != "pi_123" || booking.Price != 4338 || booking.BarberPayout != 4135 {
		t.Fatalf("unexpected booking: %+v", booking)
	}
	if len(addons) != 1 || addons[0].BookingID != booking.ID || addons[0].Price != 1000 {
		t.Fatalf("unexpected add-on rows: %+v", addons)
	}
}

func TestTruncateRunes_KeepsValidUTF8(t *testing.T) {
	got := truncateRunes("aé", 2)
	if got != "a" {
		t.Fatalf("expected truncation before the split rune, got %q", got)
	}
}

func TestPendingBookingIntent_KeepsSubSecondScheduledAt(t *testing.T) {
	intent := sampleIntent()
	intent.ScheduledAt = time.Date(2026, 3, 1, 15, 30, 0, 250_000_000, time.UTC)

	parsed, err := ParsePendingBookingIntent(intent.Metadata())
	if err != nil {
		t.Fatalf("expected metadata to parse, got %v", err)
	}
	if !parsed.ScheduledAt.Equal(intent.ScheduledAt) {
		t.Fatalf("expected scheduled_at %v, got %v", intent.ScheduledAt, parsed.ScheduledAt)
	}

	match := IntentMatch{
		ClientID:    intent.Payer.ClientID,
		ServiceID:   intent.ServiceID,
		BarberID:    intent.BarberID,
		ScheduledAt: intent.ScheduledAt.In(time.FixedZone("EST", -5*60*60)),
	}
	if !parsed.Matches(match) {
		t.Fatalf("expected the tuple used at checkout to match the settled intent")
	}

	booking, _ := parsed.Booking("pi_1", PaymentStatusSucceeded)
	if !booking.ScheduledAt.Equal(intent.ScheduledAt) {
		t.Fatalf("expected booking to keep %v, got %v", intent.ScheduledAt, booking.ScheduledAt)
	}
}

func TestParsePendingBookingIntent_AcceptsWholeSecondTimestamps(t *testing.T) {
	md := sampleIntent().Metadata()
	md["scheduled_at"] = "2026-03-14T15:30:00Z"

	parsed, err := ParsePendingBookingIntent(md)
	if err != nil {
		t.Fatalf("expected whole-second timestamp to parse, got %v", err)
	}
	if !parsed.ScheduledAt.Equal(time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected scheduled_at %v", parsed.ScheduledAt)
	}
}
