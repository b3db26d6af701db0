package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the record
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError is a local, recoverable input problem
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PaymentError is a gateway decline, cancellation or transport failure
type PaymentError struct {
	Reason string
	Err    error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("payment failed (%s)", e.Reason)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// VerificationError means the server-side capture check did not confirm the claim.
// Money may or may not have moved; support must reconcile.
type VerificationError struct {
	ProviderOrderID string
	Detail          string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment %s could not be verified: %s", e.ProviderOrderID, e.Detail)
}

// PersistenceError is a post-confirmation storage failure. Never rolls back a booking.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
