package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/authorization"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/identity"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrReceiptUnavailable = errors.New("receipt_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if meta, ok := lastErr.Meta.(map[string]any); ok && len(meta) > 0 {
			payload.Metadata = meta
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// abortWithErrorMeta is AbortWithError with fields the client needs to
// correlate the failure, returned under error.metadata.
func abortWithErrorMeta(c *gin.Context, err error, meta map[string]any) {
	if err == nil {
		return
	}
	_ = c.Error(err).SetMeta(meta)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrPaymentInitiationFailed) && errors.Is(err, paymentdomain.ErrProviderRejected):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_rejected",
			Message: "payment provider rejected the request",
		}
	case errors.Is(err, paymentdomain.ErrPaymentInitiationFailed):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "payment_initiation_failed",
			Message: "payment provider unavailable, try again",
		}
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrReceiptUnavailable):
		return http.StatusConflict, errorPayload{
			Type:    "receipt_unavailable",
			Message: "receipt is only available for successful donations",
		}
	case errors.Is(err, donationdomain.ErrConflictingStatus):
		return http.StatusConflict, errorPayload{
			Type:    "conflicting_status",
			Message: "donation already settled with a different status",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrAdminExists),
		errors.Is(err, authdomain.ErrSetupClosed):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, identity.ErrNotConfigured),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same classification the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal", err.Error()
	}
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrMissingCorrelation),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	case isDonationValidationError(err),
		isOrphanageValidationError(err),
		isUserValidationError(err),
		isAdminValidationError(err):
		return true
	default:
		return false
	}
}

func isDonationValidationError(err error) bool {
	switch {
	case errors.Is(err, donationdomain.ErrInvalidAmount),
		errors.Is(err, donationdomain.ErrInvalidCurrency),
		errors.Is(err, donationdomain.ErrInvalidDonor),
		errors.Is(err, donationdomain.ErrInvalidOrphanage),
		errors.Is(err, donationdomain.ErrUnsupportedMethod),
		errors.Is(err, donationdomain.ErrInvalidOutcome):
		return true
	default:
		return false
	}
}

func isOrphanageValidationError(err error) bool {
	switch {
	case errors.Is(err, orphanagedomain.ErrInvalidID),
		errors.Is(err, orphanagedomain.ErrInvalidName),
		errors.Is(err, orphanagedomain.ErrInvalidEmail),
		errors.Is(err, orphanagedomain.ErrNotVerified):
		return true
	default:
		return false
	}
}

func isUserValidationError(err error) bool {
	switch {
	case errors.Is(err, userdomain.ErrInvalidUID),
		errors.Is(err, userdomain.ErrInvalidName),
		errors.Is(err, userdomain.ErrInvalidEmail),
		errors.Is(err, userdomain.ErrInvalidPhone),
		errors.Is(err, userdomain.ErrInvalidToken),
		errors.Is(err, userdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isAdminValidationError(err error) bool {
	switch {
	case errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, authdomain.ErrInvalidEmail):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, donationdomain.ErrNotFound),
		errors.Is(err, orphanagedomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, authdomain.ErrAdminNotFound),
		errors.Is(err, paymentdomain.ErrNotificationNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, donationdomain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, authdomain.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, authdomain.ErrInvalidEmail):
		return "invalid_email"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unsupported_method":
		return "method"
	case "orphanage_not_verified":
		return "orphanage_id"
	case "missing_correlation":
		return "merchant_transaction_id"
	case "invalid_fcm_token":
		return "token"
	case "weak_password":
		return "password"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_amount":
		return "amount must be a positive value with at most two decimals"
	case "unsupported_method":
		return "unsupported payment method"
	case "orphanage_not_verified":
		return "orphanage is not accepting donations yet"
	default:
		return "invalid value"
	}
}
