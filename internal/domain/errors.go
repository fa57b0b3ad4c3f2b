package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel connector errors. Connector-reported business declines are NOT
// errors of this kind; they travel as ErrorResponse values in the RouterData
// response slot.
var (
	// ErrFailedToObtainAuthType means the stored credential shape does not
	// match what the connector expects. Configuration error, alertable.
	ErrFailedToObtainAuthType = errors.New("failed to obtain connector auth type")

	// ErrResponseHandlingFailed means the connector returned a structurally
	// unexpected response (e.g. an empty list where one entry was required).
	ErrResponseHandlingFailed = errors.New("connector response handling failed")

	// ErrRequestEncodingFailed means the outbound payload could not be
	// serialized.
	ErrRequestEncodingFailed = errors.New("request encoding failed")

	// ErrMissingConnectorTransactionID means a sync/capture/refund request
	// lacks the connector transaction id it must reference.
	ErrMissingConnectorTransactionID = errors.New("missing connector transaction id")
)

// NotImplementedError reports a payment method or feature the connector has
// no mapping for. Recoverable: the orchestrator may pick another connector.
type NotImplementedError struct {
	Feature   string
	Connector string
}

func (e *NotImplementedError) Error() string {
	if e.Connector != "" {
		return fmt.Sprintf("%s is not implemented for connector %s", e.Feature, e.Connector)
	}
	return fmt.Sprintf("%s is not implemented", e.Feature)
}

func NewNotImplementedError(feature, connector string) *NotImplementedError {
	return &NotImplementedError{Feature: feature, Connector: connector}
}

// NewUnsupportedPaymentMethodError is the uniform "no arm for this payment
// method" failure used by every connector matcher.
func NewUnsupportedPaymentMethodError(connector string, method PaymentMethod) *NotImplementedError {
	return &NotImplementedError{
		Feature:   fmt.Sprintf("payment method %s", method.Name()),
		Connector: connector,
	}
}

// MissingRequiredFieldError reports caller-supplied data the connector
// requires but did not receive. Surfaced as a validation error before any
// connector call.
type MissingRequiredFieldError struct {
	FieldName string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field %s", e.FieldName)
}

func NewMissingRequiredFieldError(field string) *MissingRequiredFieldError {
	return &MissingRequiredFieldError{FieldName: field}
}

// InvalidConnectorConfigError reports stored connector metadata that failed
// to parse. Operational error.
type InvalidConnectorConfigError struct {
	Config string
}

func (e *InvalidConnectorConfigError) Error() string {
	return fmt.Sprintf("invalid connector config: %s", e.Config)
}

// UnexpectedResponseError carries the raw connector value that could not be
// classified, for diagnostics.
type UnexpectedResponseError struct {
	Raw string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected connector response value %q", e.Raw)
}

// ErrorResponse is the normalized connector failure envelope. Exactly one
// ErrorResponse is produced per failure signal; business declines are routine
// outcomes, not alarms.
type ErrorResponse struct {
	Code                   string         `json:"code"`
	Message                string         `json:"message"`
	Reason                 string         `json:"reason,omitempty"`
	StatusCode             int            `json:"status_code"`
	AttemptStatus          *AttemptStatus `json:"attempt_status,omitempty"`
	ConnectorTransactionID string         `json:"connector_transaction_id,omitempty"`
	NetworkAdviceCode      string         `json:"network_advice_code,omitempty"`
	NetworkDeclineCode     string         `json:"network_decline_code,omitempty"`
	NetworkErrorMessage    string         `json:"network_error_message,omitempty"`
}

const (
	// NoErrorCode and NoErrorMessage fill the envelope when a connector
	// signals failure without structured code/message fields.
	NoErrorCode    = "No error code"
	NoErrorMessage = "No error message"
)

// ErrorCategory classifies a connector-layer error for retry and alerting
// decisions made by the orchestrator.
type ErrorCategory string

const (
	CategoryTransient     ErrorCategory = "TRANSIENT"
	CategoryPermanent     ErrorCategory = "PERMANENT"
	CategoryValidation    ErrorCategory = "VALIDATION"
	CategoryConfiguration ErrorCategory = "CONFIGURATION"
)

// CategorizeError buckets a connector-layer error. Validation errors surface
// to the caller before a connector call; configuration errors are alertable;
// transient errors are retry-safe.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var missingField *MissingRequiredFieldError
	if errors.As(err, &missingField) {
		return CategoryValidation
	}

	var notImplemented *NotImplementedError
	if errors.As(err, &notImplemented) {
		return CategoryValidation
	}

	var invalidConfig *InvalidConnectorConfigError
	if errors.As(err, &invalidConfig) {
		return CategoryConfiguration
	}

	if errors.Is(err, ErrFailedToObtainAuthType) {
		return CategoryConfiguration
	}

	if errors.Is(err, ErrResponseHandlingFailed) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether the orchestrator may retry the call unchanged.
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}
