package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid exec context")
	ErrForbidden          = errors.New("forbidden")

	// Conversation and flow errors
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidSession     = errors.New("invalid conversation session")
	ErrDomainActionFailed = errors.New("domain action failed")
	ErrPromotionInactive  = errors.New("promotion is no longer active")
	ErrAlreadyClaimed     = errors.New("promotion already claimed by user")

	// Delivery errors
	ErrTransport = errors.New("transport failure")
	ErrAuth      = errors.New("authentication failed")
)
