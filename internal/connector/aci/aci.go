// Package aci integrates the ACI payment platform: form-encoded requests,
// dotted field names, result-code triplets classified into
// success/pending/failure families.
package aci

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

const connectorName = "aci"

const formContentType = "application/x-www-form-urlencoded"

type Connector struct {
	baseURL string
}

func New(baseURL string) *Connector {
	return &Connector{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Connector) Name() string { return connectorName }

func (c *Connector) headers(auth domain.ConnectorAuthType) (map[string]string, error) {
	creds, err := resolveAuth(auth)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + creds.apiKey.Peek(),
	}, nil
}

func (c *Connector) formRequest(method, endpoint string, auth domain.ConnectorAuthType, vals url.Values) (*connector.WireRequest, error) {
	headers, err := c.headers(auth)
	if err != nil {
		return nil, err
	}
	return &connector.WireRequest{
		Method:      method,
		URL:         c.baseURL + endpoint,
		Headers:     headers,
		ContentType: formContentType,
		Body:        []byte(vals.Encode()),
	}, nil
}

func (c *Connector) BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*connector.WireRequest, error) {
	vals, err := buildAuthorizeValues(rd)
	if err != nil {
		return nil, err
	}
	endpoint := "/v1/payments"
	// Repeated mandate payments run against the stored registration.
	if _, ok := rd.Request.PaymentMethod.(domain.MandatePayment); ok {
		endpoint = fmt.Sprintf("/v1/registrations/%s/payments", rd.Request.MandateID)
	}
	return c.formRequest(http.MethodPost, endpoint, rd.AuthType, vals)
}

func (c *Connector) HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body, rd.Request.CaptureMethod.IsAutoCapture())
}

func (c *Connector) BuildSyncRequest(rd *domain.SyncRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	headers, err := c.headers(rd.AuthType)
	if err != nil {
		return nil, err
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("entityId", creds.entityID.Peek())
	return &connector.WireRequest{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/v1/payments/%s?%s", c.baseURL, rd.Request.ConnectorTransactionID, query.Encode()),
		Headers: headers,
	}, nil
}

func (c *Connector) HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body, rd.Request.CaptureMethod.IsAutoCapture())
}

func (c *Connector) BuildCaptureRequest(rd *domain.CaptureRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	vals, err := buildCaptureValues(rd)
	if err != nil {
		return nil, err
	}
	return c.formRequest(http.MethodPost, "/v1/payments/"+rd.Request.ConnectorTransactionID, rd.AuthType, vals)
}

func (c *Connector) HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.ReplaceResponse(rd.Status, statusCode, domain.ErrResult[domain.PaymentsResponseData](parseErrorBody(statusCode, body)))
		return nil
	}
	var resp captureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("aci capture: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	outcome, err := classifyResultCode(resp.Result.Code)
	if err != nil {
		return err
	}
	status := domain.StatusPending
	switch outcome {
	case outcomeSucceeded:
		status = domain.StatusCharged
	case outcomeFailed:
		status = domain.StatusCaptureFailed
	}
	rd.ReplaceResponse(status, statusCode, domain.OkResult(domain.PaymentsResponseData{
		ResourceID:                   resp.ID,
		ConnectorResponseReferenceID: resp.ReferencedID,
	}))
	return nil
}

func (c *Connector) BuildVoidRequest(rd *domain.CancelRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	vals, err := buildVoidValues(rd)
	if err != nil {
		return nil, err
	}
	return c.formRequest(http.MethodPost, "/v1/payments/"+rd.Request.ConnectorTransactionID, rd.AuthType, vals)
}

func (c *Connector) HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.ReplaceResponse(rd.Status, statusCode, domain.ErrResult[domain.PaymentsResponseData](parseErrorBody(statusCode, body)))
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("aci void: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	outcome, err := classifyResultCode(resp.Result.Code)
	if err != nil {
		return err
	}
	status := domain.StatusPending
	switch outcome {
	case outcomeSucceeded:
		status = domain.StatusVoided
	case outcomeFailed:
		status = domain.StatusVoidFailed
	}
	rd.ReplaceResponse(status, statusCode, domain.OkResult(domain.PaymentsResponseData{
		ResourceID:                   resp.ID,
		ConnectorResponseReferenceID: resp.ID,
	}))
	return nil
}

func (c *Connector) BuildRefundRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	vals, err := buildRefundValues(rd)
	if err != nil {
		return nil, err
	}
	return c.formRequest(http.MethodPost, "/v1/payments/"+rd.Request.ConnectorTransactionID, rd.AuthType, vals)
}

func (c *Connector) HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](parseErrorBody(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp refundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("aci refund: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	outcome, err := classifyResultCode(resp.Result.Code)
	if err != nil {
		return err
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.ID,
		Status:            mapRefundStatus(outcome),
	})
	return nil
}

func parseErrorBody(statusCode int, body []byte) domain.ErrorResponse {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result.Code == "" {
		return domain.ErrorResponse{
			Code:       domain.NoErrorCode,
			Message:    domain.NoErrorMessage,
			Reason:     string(body),
			StatusCode: statusCode,
		}
	}
	return toErrorResponse(statusCode, resp.Result)
}

func foldPayments(status *domain.AttemptStatus, httpCode *int, slot *domain.Result[domain.PaymentsResponseData], statusCode int, body []byte, autoCapture bool) error {
	if statusCode >= http.StatusBadRequest {
		*slot = domain.ErrResult[domain.PaymentsResponseData](parseErrorBody(statusCode, body))
		*httpCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("aci payments: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	mapped, data, err := translatePayments(&resp, autoCapture)
	if err != nil {
		return err
	}
	*status = mapped
	*httpCode = statusCode
	*slot = domain.OkResult(data)
	return nil
}

// Webhook envelope: a typed wrapper around the raw payment payload.
type webhookNotification struct {
	Type    string          `json:"type"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type webhookPaymentPayload struct {
	ID          string     `json:"id"`
	PaymentType string     `json:"paymentType"`
	Result      resultCode `json:"result"`
}

func (c *Connector) TranslateWebhook(body []byte) (*connector.NormalizedEvent, error) {
	var note webhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("aci webhook: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	if !strings.EqualFold(note.Type, "payment") {
		return nil, domain.NewNotImplementedError(fmt.Sprintf("webhook event type %q", note.Type), connectorName)
	}
	var payload webhookPaymentPayload
	if err := json.Unmarshal(note.Payload, &payload); err != nil {
		return nil, fmt.Errorf("aci webhook payload: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	outcome, err := classifyResultCode(payload.Result.Code)
	if err != nil {
		return nil, err
	}

	if payload.PaymentType == paymentTypeRefund {
		return &connector.NormalizedEvent{
			Connector:       connectorName,
			Class:           connector.EventClassRefund,
			ObjectReference: payload.ID,
			RefundStatus:    mapRefundStatus(outcome),
		}, nil
	}

	// PA events settle to Authorized, everything else to the debit mapping.
	autoCapture := payload.PaymentType != "PA"
	return &connector.NormalizedEvent{
		Connector:       connectorName,
		Class:           connector.EventClassPayment,
		ObjectReference: payload.ID,
		PaymentStatus:   mapAttemptStatus(outcome, autoCapture),
	}, nil
}

var (
	_ connector.PaymentAuthorizer = (*Connector)(nil)
	_ connector.PaymentSyncer     = (*Connector)(nil)
	_ connector.PaymentCapturer   = (*Connector)(nil)
	_ connector.PaymentVoider     = (*Connector)(nil)
	_ connector.RefundExecutor    = (*Connector)(nil)
	_ connector.WebhookTranslator = (*Connector)(nil)
)
