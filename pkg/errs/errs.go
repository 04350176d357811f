package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell "definitely failed" apart
// from "unknown, check later".
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidState        Kind = "invalid_state"
	KindInvariantViolation  Kind = "invariant_violation"
	KindExternalFailure     Kind = "external_failure"
	KindConfirmationTimeout Kind = "confirmation_timeout"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInternal            Kind = "internal"
)

// Error is the typed failure returned by the domain services.
// Current and Requested are set when an amount precondition failed.
type Error struct {
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Current   *int64 `json:"current,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Current != nil && e.Requested != nil {
		msg = fmt.Sprintf("%s (current=%d requested=%d)", msg, *e.Current, *e.Requested)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that a decorated copy still equals its sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithAmounts returns a copy carrying the current and requested amounts.
func (e *Error) WithAmounts(current, requested int64) *Error {
	cp := *e
	cp.Current = &current
	cp.Requested = &requested
	return &cp
}

// Wrap returns a copy with an underlying cause attached.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// Withf returns a copy with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrPlanNotFound         = newErr(KindNotFound, "plan_not_found", "plan not found")
	ErrSubscriptionNotFound = newErr(KindNotFound, "subscription_not_found", "subscription not found")
	ErrInvoiceNotFound      = newErr(KindNotFound, "invoice_not_found", "invoice not found")
	ErrConsentNotFound      = newErr(KindNotFound, "consent_not_found", "payment consent not found")
	ErrPositionNotFound     = newErr(KindNotFound, "position_not_found", "stake position not found")
	ErrTransactionNotFound  = newErr(KindNotFound, "transaction_not_found", "chain transaction not found")

	ErrUnauthorized          = newErr(KindUnauthorized, "unauthorized", "caller is not allowed to act on this entity")
	ErrRecorderNotAuthorized = newErr(KindUnauthorized, "recorder_not_authorized", "caller is not an authorized usage recorder for this plan")

	ErrNotActive             = newErr(KindInvalidState, "not_active", "subscription is not active")
	ErrSubscriptionNotActive = newErr(KindInvalidState, "subscription_not_active", "subscription is not active")
	ErrTrialUnavailable      = newErr(KindInvalidState, "trial_unavailable", "plan has no trial configured")
	ErrNotTrial              = newErr(KindInvalidState, "not_trial", "subscription is not a trial")
	ErrPeriodOpen            = newErr(KindInvalidState, "period_open", "billing period is still open")
	ErrInvoiceAlreadyIssued  = newErr(KindInvalidState, "invoice_already_issued", "billing period already invoiced")
	ErrInvoiceNotPayable     = newErr(KindInvalidState, "invoice_not_payable", "invoice is not pending")
	ErrPaymentInFlight       = newErr(KindInvalidState, "payment_in_flight", "a chain payment is awaiting confirmation, reconcile it instead")
	ErrConsentRevoked        = newErr(KindInvalidState, "consent_revoked", "payment consent is not active")
	ErrConsentExpired        = newErr(KindInvalidState, "consent_expired", "payment consent has expired")
	ErrNothingToClaim        = newErr(KindInvalidState, "nothing_to_claim", "no pending rewards")
	ErrSubscriptionActive    = newErr(KindInvalidState, "subscription_active", "subscription is still active")

	ErrAlreadySubscribed     = newErr(KindInvariantViolation, "already_subscribed", "an active subscription already exists for this plan")
	ErrAlreadyTrialing       = newErr(KindInvariantViolation, "already_trialing", "a trial was already used for this plan")
	ErrInsufficientAllowance = newErr(KindInvariantViolation, "insufficient_allowance", "charge exceeds the consent allowance")
	ErrBelowMinimumStake     = newErr(KindInvariantViolation, "below_minimum_stake", "stake is below the minimum")
	ErrInsufficientBalance   = newErr(KindInvariantViolation, "insufficient_balance", "amount exceeds principal plus pending rewards")
	ErrInsufficientRewards   = newErr(KindInvariantViolation, "insufficient_rewards", "amount exceeds pending rewards")
	ErrAmountOverflow        = newErr(KindInvariantViolation, "amount_overflow", "amount does not fit in 64-bit motes")

	ErrInvalidArgument = newErr(KindInvalidArgument, "invalid_argument", "invalid argument")

	ErrChainFailure        = newErr(KindExternalFailure, "chain_failure", "chain transaction failed")
	ErrConfirmationTimeout = newErr(KindConfirmationTimeout, "confirmation_timeout", "transaction confirmation timed out, outcome unknown")
)

// Invalidf builds an InvalidArgument error with a specific message.
func Invalidf(format string, args ...any) *Error {
	return ErrInvalidArgument.Withf(format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
