// Package connector defines the contract between the orchestrator and each
// payment connector integration: request builders that produce fully formed
// wire requests, response handlers that fold connector replies back into the
// RouterData, and a registry resolving connector names to implementations.
package connector

import (
	"context"

	"github.com/cortexpay/payment-switch/internal/domain"
)

// WireRequest is a fully specified outbound HTTP call: method, absolute URL,
// headers (auth included) and an encoded body. The transport sends it
// verbatim; nothing downstream re-encodes or re-signs.
type WireRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	ContentType string
	Body        []byte
}

// Transport performs the actual network call. Implemented by the hosting
// service, not by this layer; connectors only produce WireRequests and
// consume raw responses.
type Transport interface {
	Do(ctx context.Context, req *WireRequest) (statusCode int, body []byte, err error)
}

// Connector is the minimal identity every integration carries. Flow support
// is discovered by asserting the capability interfaces below.
type Connector interface {
	Name() string
}

// PaymentAuthorizer builds and interprets the authorize flow. Response
// handlers receive the raw status code and body and update the RouterData in
// place: response and status are replaced, everything else carries through.
// A non-nil error means the exchange itself failed (encoding, unparsable
// body, structural surprise); connector-reported declines are folded into the
// RouterData as ErrorResponse values instead.
type PaymentAuthorizer interface {
	BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*WireRequest, error)
	HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error
}

// PaymentCapturer builds and interprets the capture flow.
type PaymentCapturer interface {
	BuildCaptureRequest(rd *domain.CaptureRouterData) (*WireRequest, error)
	HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error
}

// PaymentVoider builds and interprets the void/cancel flow.
type PaymentVoider interface {
	BuildVoidRequest(rd *domain.CancelRouterData) (*WireRequest, error)
	HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error
}

// PaymentSyncer builds and interprets the payment status poll.
type PaymentSyncer interface {
	BuildSyncRequest(rd *domain.SyncRouterData) (*WireRequest, error)
	HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error
}

// RefundExecutor builds and interprets the refund flow.
type RefundExecutor interface {
	BuildRefundRequest(rd *domain.RefundRouterData) (*WireRequest, error)
	HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error
}

// RefundSyncer builds and interprets the refund status poll.
type RefundSyncer interface {
	BuildRefundSyncRequest(rd *domain.RefundRouterData) (*WireRequest, error)
	HandleRefundSyncResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error
}

// MandateRevoker revokes a stored mandate at the connector.
type MandateRevoker interface {
	BuildMandateRevokeRequest(rd *domain.MandateRevokeRouterData) (*WireRequest, error)
	HandleMandateRevokeResponse(rd *domain.MandateRevokeRouterData, statusCode int, body []byte) error
}

// AccessTokenProvider is implemented by connectors whose API requires a
// separately negotiated access token. The caller caches the token and places
// it on the RouterData of subsequent calls.
type AccessTokenProvider interface {
	BuildAccessTokenRequest(auth domain.ConnectorAuthType) (*WireRequest, error)
	ParseAccessTokenResponse(statusCode int, body []byte) (*domain.AccessToken, error)
}

// EventClass says which object a webhook event concerns.
type EventClass string

const (
	EventClassPayment EventClass = "payment"
	EventClassRefund  EventClass = "refund"
)

// NormalizedEvent is the connector-agnostic form of an inbound webhook.
type NormalizedEvent struct {
	Connector       string               `json:"connector"`
	Class           EventClass           `json:"class"`
	ObjectReference string               `json:"object_reference"`
	PaymentStatus   domain.AttemptStatus `json:"payment_status,omitempty"`
	RefundStatus    domain.RefundStatus  `json:"refund_status,omitempty"`
}

// WebhookTranslator decodes a connector's webhook payload into a
// NormalizedEvent.
type WebhookTranslator interface {
	TranslateWebhook(body []byte) (*NormalizedEvent, error)
}
