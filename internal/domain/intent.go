package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// IntentMetadataVersion tags reservations created by this service so that
// polling can skip payment intents created elsewhere on the account.
const IntentMetadataVersion = "booking.v1"

const (
	metaVersion       = "booking_intent"
	metaServiceID     = "service_id"
	metaBarberID      = "barber_id"
	metaClientID      = "client_id"
	metaGuestName     = "guest_name"
	metaGuestEmail    = "guest_email"
	metaGuestPhone    = "guest_phone"
	metaScheduledAt   = "scheduled_at"
	metaNotes         = "notes"
	metaAddons        = "addons"
	metaServicePrice  = "service_price"
	metaAddonTotal    = "addon_total"
	metaPlatformFee   = "platform_fee"
	metaPlatformShare = "platform_share"
	metaTotalPrice    = "total_price"
	metaPayeePayout   = "payee_payout"

	maxMetadataValueLen = 500
)

var ErrInvalidIntentMetadata = errors.New("invalid booking intent metadata")

// PendingBookingIntent is everything needed to create a booking once payment
// succeeds. It travels as processor metadata because no booking row exists yet.
type PendingBookingIntent struct {
	ServiceID   uuid.UUID
	BarberID    uuid.UUID
	Payer       Payer
	ScheduledAt time.Time
	Notes       string
	Breakdown   PricingBreakdown
}

// IntentMatch is the identity tuple a caller expects a settled booking for.
type IntentMatch struct {
	ClientID    *uuid.UUID
	ServiceID   uuid.UUID
	BarberID    uuid.UUID
	ScheduledAt time.Time
}

// Matches reports whether the intent was created for the given tuple.
func (i PendingBookingIntent) Matches(m IntentMatch) bool {
	if i.ServiceID != m.ServiceID || i.BarberID != m.BarberID {
		return false
	}
	if m.ClientID != nil {
		if i.Payer.ClientID == nil || *i.Payer.ClientID != *m.ClientID {
			return false
		}
	}
	if !m.ScheduledAt.IsZero() && !i.ScheduledAt.Equal(m.ScheduledAt) {
		return false
	}
	return true
}

// Booking builds the booking row and line items for a settled intent.
func (i PendingBookingIntent) Booking(paymentIntentID, paymentStatus string) (*Booking, []BookingAddon) {
	booking := &Booking{
		ID:              uuid.New(),
		ServiceID:       i.ServiceID,
		BarberID:        i.BarberID,
		ClientID:        i.Payer.ClientID,
		GuestName:       optional(i.Payer.GuestName),
		GuestEmail:      optional(i.Payer.GuestEmail),
		GuestPhone:      optional(i.Payer.GuestPhone),
		ScheduledAt:     i.ScheduledAt.UTC(),
		Notes:           optional(i.Notes),
		Status:          BookingStatusConfirmed,
		PaymentStatus:   paymentStatus,
		Price:           i.Breakdown.TotalPrice,
		AddonTotal:      i.Breakdown.AddonTotal,
		PlatformFee:     i.Breakdown.PlatformFee,
		BarberPayout:    i.Breakdown.PayeePayout,
		PaymentIntentID: paymentIntentID,
	}

	addons := make([]BookingAddon, 0, len(i.Breakdown.Addons))
	for _, addon := range i.Breakdown.Addons {
		addons = append(addons, BookingAddon{BookingID: booking.ID, AddonID: addon.ID, Price: addon.Price})
	}
	return booking, addons
}

// Metadata encodes the intent as processor metadata.
func (i PendingBookingIntent) Metadata() map[string]string {
	b := i.Breakdown
	md := map[string]string{
		metaVersion:       IntentMetadataVersion,
		metaServiceID:     i.ServiceID.String(),
		metaBarberID:      i.BarberID.String(),
		metaScheduledAt:   i.ScheduledAt.UTC().Format(time.RFC3339Nano),
		metaServicePrice:  strconv.FormatInt(b.ServicePrice, 10),
		metaAddonTotal:    strconv.FormatInt(b.AddonTotal, 10),
		metaPlatformFee:   strconv.FormatInt(b.PlatformFee, 10),
		metaPlatformShare: strconv.FormatInt(b.PlatformShare, 10),
		metaTotalPrice:    strconv.FormatInt(b.TotalPrice, 10),
		metaPayeePayout:   strconv.FormatInt(b.PayeePayout, 10),
	}
	if i.Payer.ClientID != nil {
		md[metaClientID] = i.Payer.ClientID.String()
	}
	setIfPresent(md, metaGuestName, i.Payer.GuestName)
	setIfPresent(md, metaGuestEmail, i.Payer.GuestEmail)
	setIfPresent(md, metaGuestPhone, i.Payer.GuestPhone)
	setIfPresent(md, metaNotes, i.Notes)

	if len(b.Addons) > 0 {
		parts := make([]string, 0, len(b.Addons))
		for _, addon := range b.Addons {
			parts = append(parts, addon.ID.String()+":"+strconv.FormatInt(addon.Price, 10))
		}
		md[metaAddons] = strings.Join(parts, ",")
	}
	return md
}

// MetadataWithinLimits reports whether every value fits the processor's
// per-value size limit.
func MetadataWithinLimits(md map[string]string) bool {
	for _, v := range md {
		if len(v) > maxMetadataValueLen {
			return false
		}
	}
	return true
}

// IsBookingIntent reports whether the metadata was written by Metadata.
func IsBookingIntent(md map[string]string) bool {
	return md[metaVersion] == IntentMetadataVersion
}

// ParsePendingBookingIntent decodes and validates processor metadata.
func ParsePendingBookingIntent(md map[string]string) (PendingBookingIntent, error) {
	var intent PendingBookingIntent
	if !IsBookingIntent(md) {
		return intent, fmt.Errorf("%w: unknown version %q", ErrInvalidIntentMetadata, md[metaVersion])
	}

	var err error
	if intent.ServiceID, err = parseUUID(md, metaServiceID); err != nil {
		return intent, err
	}
	if intent.BarberID, err = parseUUID(md, metaBarberID); err != nil {
		return intent, err
	}
	if raw := md[metaClientID]; raw != "" {
		clientID, err := parseUUID(md, metaClientID)
		if err != nil {
			return intent, err
		}
		intent.Payer.ClientID = &clientID
	}
	intent.Payer.GuestName = md[metaGuestName]
	intent.Payer.GuestEmail = md[metaGuestEmail]
	intent.Payer.GuestPhone = md[metaGuestPhone]
	if !intent.Payer.Valid() {
		return intent, fmt.Errorf("%w: no client or guest contact", ErrInvalidIntentMetadata)
	}

	intent.ScheduledAt, err = time.Parse(time.RFC3339Nano, md[metaScheduledAt])
	if err != nil {
		return intent, fmt.Errorf("%w: scheduled_at: %v", ErrInvalidIntentMetadata, err)
	}
	intent.Notes = md[metaNotes]

	b := &intent.Breakdown
	amounts := []struct {
		key string
		dst *int64
	}{
		{metaServicePrice, &b.ServicePrice},
		{metaAddonTotal, &b.AddonTotal},
		{metaPlatformFee, &b.PlatformFee},
		{metaPlatformShare, &b.PlatformShare},
		{metaTotalPrice, &b.TotalPrice},
		{metaPayeePayout, &b.PayeePayout},
	}
	for _, a := range amounts {
		v, err := strconv.ParseInt(md[a.key], 10, 64)
		if err != nil || v < 0 {
			return intent, fmt.Errorf("%w: %s=%q", ErrInvalidIntentMetadata, a.key, md[a.key])
		}
		*a.dst = v
	}

	b.Tariff = TariffStandard
	b.Addons, err = parseAddons(md[metaAddons])
	if err != nil {
		return intent, err
	}

	var addonSum int64
	for _, addon := range b.Addons {
		addonSum += addon.Price
	}
	if addonSum != b.AddonTotal {
		return intent, fmt.Errorf("%w: add-on prices sum to %d, expected %d", ErrInvalidIntentMetadata, addonSum, b.AddonTotal)
	}
	if !b.Balanced() {
		return intent, fmt.Errorf("%w: amounts do not balance", ErrInvalidIntentMetadata)
	}
	return intent, nil
}

func parseAddons(raw string) ([]PricedAddon, error) {
	if raw == "" {
		return nil, nil
	}
	var addons []PricedAddon
	for _, item := range strings.Split(raw, ",") {
		idPart, pricePart, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("%w: add-on entry %q", ErrInvalidIntentMetadata, item)
		}
		id, err := uuid.Parse(idPart)
		if err != nil {
			return nil, fmt.Errorf("%w: add-on id %q", ErrInvalidIntentMetadata, idPart)
		}
		price, err := strconv.ParseInt(pricePart, 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("%w: add-on price %q", ErrInvalidIntentMetadata, pricePart)
		}
		addons = append(addons, PricedAddon{ID: id, Price: price})
	}
	return addons, nil
}

func parseUUID(md map[string]string, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(md[key])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s=%q", ErrInvalidIntentMetadata, key, md[key])
	}
	return id, nil
}

func setIfPresent(md map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	md[key] = truncateRunes(value, maxMetadataValueLen)
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
