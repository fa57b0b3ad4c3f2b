// Package domain holds the shared vocabulary of the connector layer: the
// canonical status machine, amount views, the payment method union and the
// RouterData context every connector transform operates on.
package domain

// AttemptStatus is the canonical state of one payment attempt. Every
// connector status vocabulary projects onto this set.
type AttemptStatus string

const (
	StatusStarted                  AttemptStatus = "STARTED"
	StatusAuthenticationPending    AttemptStatus = "AUTHENTICATION_PENDING"
	StatusAuthenticationSuccessful AttemptStatus = "AUTHENTICATION_SUCCESSFUL"
	StatusAuthenticationFailed     AttemptStatus = "AUTHENTICATION_FAILED"
	StatusAuthorizing              AttemptStatus = "AUTHORIZING"
	StatusAuthorized               AttemptStatus = "AUTHORIZED"
	StatusAuthorizationFailed      AttemptStatus = "AUTHORIZATION_FAILED"
	StatusCharged                  AttemptStatus = "CHARGED"
	StatusCaptureFailed            AttemptStatus = "CAPTURE_FAILED"
	StatusPending                  AttemptStatus = "PENDING"
	StatusFailure                  AttemptStatus = "FAILURE"
	StatusVoided                   AttemptStatus = "VOIDED"
	StatusVoidFailed               AttemptStatus = "VOID_FAILED"
)

// IsTerminal reports whether the attempt can no longer change state.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusCharged, StatusFailure, StatusAuthorizationFailed,
		StatusCaptureFailed, StatusVoided, StatusVoidFailed,
		StatusAuthenticationFailed:
		return true
	default:
		return false
	}
}

// RefundStatus is the canonical state of one refund.
type RefundStatus string

const (
	RefundSuccess RefundStatus = "SUCCESS"
	RefundFailure RefundStatus = "FAILURE"
	RefundPending RefundStatus = "PENDING"
)

// IsFailure reports whether the refund terminally failed.
func (s RefundStatus) IsFailure() bool {
	return s == RefundFailure
}

// CaptureMethod is the capture mode requested by the caller. An absent value
// defaults to automatic.
type CaptureMethod string

const (
	CaptureAutomatic           CaptureMethod = "AUTOMATIC"
	CaptureSequentialAutomatic CaptureMethod = "SEQUENTIAL_AUTOMATIC"
	CaptureManual              CaptureMethod = "MANUAL"
	CaptureManualMultiple      CaptureMethod = "MANUAL_MULTIPLE"
)

// IsAutoCapture resolves the auto-capture flag, treating the zero value as
// automatic.
func (c CaptureMethod) IsAutoCapture() bool {
	switch c {
	case CaptureAutomatic, CaptureSequentialAutomatic, "":
		return true
	default:
		return false
	}
}

// MandateStatus is the state of a stored mandate.
type MandateStatus string

const (
	MandateActive  MandateStatus = "ACTIVE"
	MandateRevoked MandateStatus = "REVOKED"
)
