package domain

import "encoding/json"

// Result is the response slot of a RouterData: exactly one of success data or
// a normalized ErrorResponse, never both. The zero value means "no response
// yet".
type Result[T any] struct {
	ok      *T
	errResp *ErrorResponse
}

func OkResult[T any](v T) Result[T] {
	return Result[T]{ok: &v}
}

func ErrResult[T any](e ErrorResponse) Result[T] {
	return Result[T]{errResp: &e}
}

func (r Result[T]) IsOk() bool  { return r.ok != nil }
func (r Result[T]) IsErr() bool { return r.errResp != nil }

// Get returns the success value or the error; at most one is non-nil.
func (r Result[T]) Get() (*T, *ErrorResponse) {
	return r.ok, r.errResp
}

// Phone is a customer phone number with its dialing code.
type Phone struct {
	Number      Secret
	CountryCode string
}

// NumberWithHashCountryCode renders "countrycode#number", the shape some
// connectors use as a wallet account id.
func (p Phone) NumberWithHashCountryCode() Secret {
	return NewSecret(p.CountryCode + "#" + p.Number.Peek())
}

// Address is the billing address carried on the RouterData.
type Address struct {
	Line1    Secret
	Line2    Secret
	City     string
	State    Secret
	Zip      Secret
	Country  string
	FullName Secret
	Email    string
	Phone    *Phone
}

// SetupMandateDetails signals that this authorization should also establish a
// mandate for future merchant-initiated use.
type SetupMandateDetails struct {
	MaxAmount MinorUnit
	Currency  Currency
}

// AuthorizeData is the flow request for a payment authorization.
type AuthorizeData struct {
	Amount        MinorUnit
	Currency      Currency
	PaymentMethod PaymentMethod
	CaptureMethod CaptureMethod
	// SetupMandateDetails present => initial, cardholder-initiated mandate
	// registration. MandateID present => repeated, merchant-initiated use of
	// an existing mandate. At most one of the two is set.
	SetupMandateDetails *SetupMandateDetails
	MandateID           string
	OffSession          bool
	RouterReturnURL     string
	CompleteAuthorizeURL string
	WebhookURL          string
	OrderCategory       string
	Metadata            map[string]any
	IPAddress           string
}

// IsMandatePayment reports whether this call either sets up or uses a
// mandate.
func (d AuthorizeData) IsMandatePayment() bool {
	return d.SetupMandateDetails != nil || d.MandateID != ""
}

// MultipleCaptureData identifies one capture in a manual-multiple sequence.
type MultipleCaptureData struct {
	CaptureSequence  int
	CaptureReference string
}

// CaptureData is the flow request for capturing an authorized payment.
type CaptureData struct {
	AmountToCapture        MinorUnit
	Currency               Currency
	ConnectorTransactionID string
	MultipleCaptureData    *MultipleCaptureData
}

// CancelData is the flow request for voiding an authorization.
type CancelData struct {
	ConnectorTransactionID string
	CancellationReason     string
	Amount                 MinorUnit
	Currency               Currency
}

// SyncData is the flow request for polling a payment attempt.
type SyncData struct {
	ConnectorTransactionID string
	CaptureMethod          CaptureMethod
}

// RefundData is the flow request for executing or syncing a refund.
type RefundData struct {
	RefundID               string
	ConnectorTransactionID string
	ConnectorRefundID      string
	RefundAmount           MinorUnit
	Currency               Currency
	Reason                 string
}

// MandateRevokeData is the flow request for revoking a stored mandate.
type MandateRevokeData struct {
	ConnectorMandateID string
}

// PaymentsResponseData is the normalized success payload of a payment flow.
type PaymentsResponseData struct {
	// ResourceID is the connector transaction id; empty when the connector
	// did not assign one for this flow.
	ResourceID                   string
	Redirection                  *RedirectForm
	MandateReference             *MandateReference
	ConnectorMetadata            json.RawMessage
	NetworkTxnID                 string
	ConnectorResponseReferenceID string
}

// RefundsResponseData is the normalized success payload of a refund flow.
type RefundsResponseData struct {
	ConnectorRefundID string
	Status            RefundStatus
}

// MandateRevokeResponseData is the normalized payload of a mandate revoke.
type MandateRevokeResponseData struct {
	Status MandateStatus
}

// AccessToken is a connector-scoped bearer credential with its lifetime in
// seconds. Caching and refresh scheduling belong to the caller; the transform
// layer only mints and consumes it.
type AccessToken struct {
	Token     Secret
	ExpiresIn int64
}

// RouterData threads one connector operation: immutable connector identity
// and auth, the typed flow request, and the mutable response/status slot that
// response translators update ("replace response and status, carry the
// rest"). Owned by the calling orchestrator for the duration of one round
// trip; the transform layer never retains it.
type RouterData[Req any, Resp any] struct {
	Connector                   string
	AuthType                    ConnectorAuthType
	ConnectorRequestReferenceID string
	// ConnectorMetadata is the merchant-connector account metadata blob
	// (e.g. terminal ids) stored by an external collaborator.
	ConnectorMetadata json.RawMessage
	Description       string
	CustomerID        string
	Billing           *Address
	// AccessToken is set by the caller for connectors that authenticate
	// calls with a separately negotiated token.
	AccessToken *AccessToken

	Request Req

	// Response-side fields; only ReplaceResponse writes them.
	Status         AttemptStatus
	HTTPStatusCode int
	Response       Result[Resp]
}

// ReplaceResponse updates the response-side fields and leaves everything else
// untouched.
func (rd *RouterData[Req, Resp]) ReplaceResponse(status AttemptStatus, httpCode int, response Result[Resp]) {
	rd.Status = status
	rd.HTTPStatusCode = httpCode
	rd.Response = response
}

// BillingCountry returns the billing country or a missing-field error.
func (rd *RouterData[Req, Resp]) BillingCountry() (string, error) {
	if rd.Billing == nil || rd.Billing.Country == "" {
		return "", NewMissingRequiredFieldError("billing.address.country")
	}
	return rd.Billing.Country, nil
}

// BillingEmail returns the billing email or a missing-field error.
func (rd *RouterData[Req, Resp]) BillingEmail() (string, error) {
	if rd.Billing == nil || rd.Billing.Email == "" {
		return "", NewMissingRequiredFieldError("billing.email")
	}
	return rd.Billing.Email, nil
}

// BillingPhone returns the billing phone or a missing-field error.
func (rd *RouterData[Req, Resp]) BillingPhone() (*Phone, error) {
	if rd.Billing == nil || rd.Billing.Phone == nil {
		return nil, NewMissingRequiredFieldError("billing.phone")
	}
	return rd.Billing.Phone, nil
}

// OptionalBillingFullName returns the billing full name, or an empty secret.
func (rd *RouterData[Req, Resp]) OptionalBillingFullName() Secret {
	if rd.Billing == nil {
		return Secret{}
	}
	return rd.Billing.FullName
}

// Flow-specific RouterData instantiations shared by every connector.
type (
	AuthorizeRouterData     = RouterData[AuthorizeData, PaymentsResponseData]
	CaptureRouterData       = RouterData[CaptureData, PaymentsResponseData]
	CancelRouterData        = RouterData[CancelData, PaymentsResponseData]
	SyncRouterData          = RouterData[SyncData, PaymentsResponseData]
	RefundRouterData        = RouterData[RefundData, RefundsResponseData]
	MandateRevokeRouterData = RouterData[MandateRevokeData, MandateRevokeResponseData]
)
