package domain

import "errors"

var (
	ErrProviderNotFound        = errors.New("provider_not_found")
	ErrProviderUnavailable     = errors.New("provider_unavailable")
	ErrProviderRejected        = errors.New("provider_rejected")
	ErrPaymentInitiationFailed = errors.New("payment_initiation_failed")
	ErrAuthenticityRejected    = errors.New("authenticity_rejected")
	ErrInvalidPayload          = errors.New("invalid_payload")
	ErrInvalidConfig           = errors.New("invalid_config")
	ErrEventIgnored            = errors.New("event_ignored")
	ErrMissingCorrelation      = errors.New("missing_correlation")
	ErrNotificationNotFound    = errors.New("notification_not_found")
)

// RejectedError carries the provider's description of a refused request.
type RejectedError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	msg := e.Provider + " rejected request"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RejectedError) Unwrap() error { return ErrProviderRejected }

// UnavailableError wraps a transport failure or a provider-side 5xx.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return e.Provider + " unavailable"
	}
	return e.Provider + " unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProviderUnavailable}
	}
	return []error{ErrProviderUnavailable, e.Err}
}

// ProviderFault marks the error as the provider's side for scheduler metrics.
func (e *UnavailableError) ProviderFault() bool { return true }
