package model

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"telegram-bot-hosting/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionFree    SubscriptionStatus = "free"
	SubscriptionTrial   SubscriptionStatus = "trial"
	SubscriptionPaid    SubscriptionStatus = "paid"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// User is a human Telegram account interacting with the master bot.
// UserID is the external Telegram id and the natural key.
type User struct {
	UserID             int64
	AdminChatID        int64
	Status             SubscriptionStatus
	TrialStartedAt     *time.Time
	SubscriptionExpiresAt *time.Time
	ReferralCode       string
	ReferredBy         *int64
	TotalReferrals     int
	ReferralEarnings   float64 // 2-dp decimal, stored as NUMERIC(12,2)
	RegisteredAt       time.Time
}

// NewUser registers a user in the free state with a fresh referral code.
func NewUser(userID, adminChatID int64, referredBy *int64) (*User, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		UserID:       userID,
		AdminChatID:  adminChatID,
		Status:       SubscriptionFree,
		ReferralCode: NewReferralCode(),
		ReferredBy:   referredBy,
		RegisteredAt: time.Now(),
	}, nil
}

// StartTrial moves a free user into trial. Trial is granted once.
func (u *User) StartTrial(now time.Time) bool {
	if u.Status != SubscriptionFree || u.TrialStartedAt != nil {
		return false
	}
	u.Status = SubscriptionTrial
	u.TrialStartedAt = &now
	return true
}

// ExtendPaid grants days of paid access stacking on any remaining paid time.
func (u *User) ExtendPaid(now time.Time, days int) {
	base := now
	if u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now) {
		base = *u.SubscriptionExpiresAt
	}
	expires := base.Add(time.Duration(days) * 24 * time.Hour)
	u.SubscriptionExpiresAt = &expires
	u.Status = SubscriptionPaid
}

// EffectiveStatus resolves the stored status against the clock.
// Stored trial/paid rows that ran out read as expired.
func (u *User) EffectiveStatus(now time.Time, trialDays int) SubscriptionStatus {
	switch u.Status {
	case SubscriptionPaid:
		if u.SubscriptionExpiresAt == nil || !u.SubscriptionExpiresAt.After(now) {
			return SubscriptionExpired
		}
		return SubscriptionPaid
	case SubscriptionTrial:
		if u.TrialStartedAt == nil || !u.TrialStartedAt.Add(time.Duration(trialDays)*24*time.Hour).After(now) {
			return SubscriptionExpired
		}
		return SubscriptionTrial
	default:
		return u.Status
	}
}

// HasAccess reports whether the user may use gated features right now.
func (u *User) HasAccess(now time.Time, trialDays int) bool {
	s := u.EffectiveStatus(now, trialDays)
	return s == SubscriptionPaid || s == SubscriptionTrial
}

// NewReferralCode returns a short unique token (8 chars, base32, no padding).
func NewReferralCode() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b))
}
