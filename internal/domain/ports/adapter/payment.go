package adapter

import "net/url"

type PaymentKind string

const (
	PaymentSubscription PaymentKind = "subscription"
	PaymentTokens       PaymentKind = "tokens"
)

// PaymentNotice is a verified, decoded payment webhook.
type PaymentNotice struct {
	OutSum float64
	InvID  int64
	UserID int64
	Kind   PaymentKind
	// BotID is set for token purchases that target a specific bot.
	BotID string
}

// PaymentGateway verifies webhook signatures and builds payment links.
type PaymentGateway interface {
	// ParseNotice verifies the signature and decodes the intent. An invalid
	// signature returns domain.ErrBadSignature without side effects.
	ParseNotice(form url.Values) (*PaymentNotice, error)
	// PaymentURL builds the redirect URL for a subscription or token purchase.
	PaymentURL(userID int64, kind PaymentKind, botID string, amount float64, invID int64) string
}
