package model

import (
	"math"
	"time"

	"telegram-bot-hosting/internal/domain"
)

type ReferralType string

const (
	ReferralSubscription ReferralType = "subscription"
	ReferralTokens       ReferralType = "tokens"
)

type ReferralStatus string

const (
	ReferralPaid    ReferralStatus = "paid"
	ReferralPending ReferralStatus = "pending"
)

// CommissionRate is the referrer's share of any payment by a referred user.
const CommissionRate = 0.15

// ReferralTransaction records one commission event.
type ReferralTransaction struct {
	ID               string
	ReferrerUserID   int64
	ReferredUserID   int64
	Type             ReferralType
	PaymentAmount    float64
	CommissionAmount float64
	Status           ReferralStatus
	CreatedAt        time.Time
	InvoiceID        int64 // payment invoice, enforces at-most-one commission per payment
}

// NewReferralTransaction computes the 15% commission rounded to 2 dp.
func NewReferralTransaction(referrer, referred int64, kind ReferralType, paymentAmount float64, invoiceID int64) (*ReferralTransaction, error) {
	if referrer == 0 || referred == 0 || paymentAmount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &ReferralTransaction{
		ID:               NewULID(),
		ReferrerUserID:   referrer,
		ReferredUserID:   referred,
		Type:             kind,
		PaymentAmount:    paymentAmount,
		CommissionAmount: math.Round(paymentAmount*CommissionRate*100) / 100,
		Status:           ReferralPaid,
		CreatedAt:        time.Now(),
		InvoiceID:        invoiceID,
	}, nil
}
