package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Access-gate errors
	ErrAccessDenied        = errors.New("access denied")
	ErrTrialExpired        = errors.New("trial period expired")
	ErrSubscriptionExpired = errors.New("subscription expired")
	ErrTokensExhausted     = errors.New("token budget exhausted")

	// Payment errors
	ErrBadSignature = errors.New("invalid payment signature")

	// AI bridge errors
	ErrAIRateLimited  = errors.New("ai provider rate limited")
	ErrAIUnauthorized = errors.New("ai provider rejected credentials")
	ErrAIServer       = errors.New("ai provider server error")
	ErrAIBadRequest   = errors.New("ai provider rejected request")

	// Fleet errors
	ErrBotNotRunning = errors.New("bot runtime is not running")
)
