// Package noon integrates the Noon payments API: a single order endpoint
// driven by an apiOperation discriminator, string major unit amounts, and
// subscription identifiers as stored mandates.
package noon

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

const connectorName = "noon"

const orderPath = "/payment/v1/order"

type Connector struct {
	baseURL string
}

func New(baseURL string) *Connector {
	return &Connector{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Connector) Name() string { return connectorName }

// authHeader renders the credential triple as
// "Key base64(business.application:apiKey)".
func authHeader(auth domain.ConnectorAuthType) (string, error) {
	creds, err := resolveAuth(auth)
	if err != nil {
		return "", err
	}
	pair := creds.businessIdentifier.Peek() + "." + creds.applicationIdentifier.Peek() + ":" + creds.apiKey.Peek()
	return "Key " + base64.StdEncoding.EncodeToString([]byte(pair)), nil
}

func (c *Connector) jsonRequest(method, path string, auth domain.ConnectorAuthType, payload any) (*connector.WireRequest, error) {
	header, err := authHeader(auth)
	if err != nil {
		return nil, err
	}
	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("noon: %w: %s", domain.ErrRequestEncodingFailed, err)
		}
	}
	return &connector.WireRequest{
		Method:      method,
		URL:         c.baseURL + path,
		Headers:     map[string]string{"Authorization": header, "Accept": "application/json"},
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (c *Connector) BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*connector.WireRequest, error) {
	payload, err := buildPaymentsRequest(rd)
	if err != nil {
		return nil, err
	}
	return c.jsonRequest(http.MethodPost, orderPath, rd.AuthType, payload)
}

func (c *Connector) HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildCaptureRequest(rd *domain.CaptureRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := actionRequest{
		APIOperation: opCapture,
		Order:        actionOrder{ID: rd.Request.ConnectorTransactionID},
		Transaction: actionTransaction{
			Amount:   rd.Request.AmountToCapture.ToStringMajorUnit(rd.Request.Currency),
			Currency: rd.Request.Currency.String(),
		},
	}
	return c.jsonRequest(http.MethodPost, orderPath, rd.AuthType, payload)
}

func (c *Connector) HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildVoidRequest(rd *domain.CancelRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := cancelRequest{
		APIOperation: opReverse,
		Order:        actionOrder{ID: rd.Request.ConnectorTransactionID},
	}
	return c.jsonRequest(http.MethodPost, orderPath, rd.AuthType, payload)
}

func (c *Connector) HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildSyncRequest(rd *domain.SyncRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	return c.jsonRequest(http.MethodGet, orderPath+"/"+rd.Request.ConnectorTransactionID, rd.AuthType, nil)
}

func (c *Connector) HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error {
	return foldPayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildRefundRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := actionRequest{
		APIOperation: opRefund,
		Order:        actionOrder{ID: rd.Request.ConnectorTransactionID},
		Transaction: actionTransaction{
			Amount:               rd.Request.RefundAmount.ToStringMajorUnit(rd.Request.Currency),
			Currency:             rd.Request.Currency.String(),
			TransactionReference: rd.Request.RefundID,
		},
	}
	return c.jsonRequest(http.MethodPost, orderPath, rd.AuthType, payload)
}

func (c *Connector) HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.HTTPStatusCode = statusCode
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp refundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("noon refund: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	rd.HTTPStatusCode = statusCode
	status := mapRefundStatus(resp.Result.Transaction.Status)
	if status.IsFailure() {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](domain.ErrorResponse{
			Code:                   strconv.FormatUint(uint64(resp.ResultCode), 10),
			Message:                resp.ClassDescription,
			Reason:                 resp.Message,
			StatusCode:             statusCode,
			ConnectorTransactionID: resp.Result.Transaction.ID,
		})
		return nil
	}
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.Result.Transaction.ID,
		Status:            status,
	})
	return nil
}

func (c *Connector) BuildRefundSyncRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	return c.jsonRequest(http.MethodGet, orderPath+"/"+rd.Request.ConnectorTransactionID, rd.AuthType, nil)
}

// HandleRefundSyncResponse scans the order's transactions for the one carrying
// this refund's reference.
func (c *Connector) HandleRefundSyncResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.HTTPStatusCode = statusCode
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp refundSyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("noon refund sync: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	var match *refundTransaction
	for i := range resp.Result.Transactions {
		if resp.Result.Transactions[i].TransactionReference == rd.Request.RefundID {
			match = &resp.Result.Transactions[i]
			break
		}
	}
	if match == nil {
		return fmt.Errorf("noon refund sync: no transaction for refund %s: %w",
			rd.Request.RefundID, domain.ErrResponseHandlingFailed)
	}
	rd.HTTPStatusCode = statusCode
	status := mapRefundStatus(match.Status)
	if status.IsFailure() {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](domain.ErrorResponse{
			Code:                   strconv.FormatUint(uint64(resp.ResultCode), 10),
			Message:                resp.ClassDescription,
			Reason:                 resp.Message,
			StatusCode:             statusCode,
			ConnectorTransactionID: match.ID,
		})
		return nil
	}
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: match.ID,
		Status:            status,
	})
	return nil
}

func (c *Connector) BuildMandateRevokeRequest(rd *domain.MandateRevokeRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorMandateID == "" {
		return nil, domain.NewMissingRequiredFieldError("connector_mandate_id")
	}
	payload := revokeRequest{
		APIOperation: opCancelSubscription,
		Subscription: revokeSubscription{Identifier: domain.NewSecret(rd.Request.ConnectorMandateID)},
	}
	return c.jsonRequest(http.MethodPost, orderPath, rd.AuthType, payload)
}

func (c *Connector) HandleMandateRevokeResponse(rd *domain.MandateRevokeRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.HTTPStatusCode = statusCode
		rd.Response = domain.ErrResult[domain.MandateRevokeResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp revokeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("noon mandate revoke: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	if !strings.EqualFold(resp.Result.Subscription.Status, "cancelled") {
		return fmt.Errorf("noon mandate revoke: unexpected subscription status %q: %w",
			resp.Result.Subscription.Status, domain.ErrResponseHandlingFailed)
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.MandateRevokeResponseData{Status: domain.MandateRevoked})
	return nil
}

// webhookBody is the inbound event envelope.
type webhookBody struct {
	OrderID     uint64        `json:"orderId"`
	OrderStatus paymentStatus `json:"orderStatus"`
	EventType   string        `json:"eventType"`
	EventID     string        `json:"eventId"`
	TimeStamp   string        `json:"timeStamp"`
}

func (c *Connector) TranslateWebhook(body []byte) (*connector.NormalizedEvent, error) {
	var event webhookBody
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("noon webhook: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	if event.OrderID == 0 {
		return nil, fmt.Errorf("noon webhook: missing order id: %w", domain.ErrResponseHandlingFailed)
	}
	normalized := &connector.NormalizedEvent{
		Connector:       connectorName,
		Class:           connector.EventClassPayment,
		ObjectReference: strconv.FormatUint(event.OrderID, 10),
		PaymentStatus:   mapAttemptStatus(event.OrderStatus, domain.StatusPending),
	}
	if strings.EqualFold(event.EventType, "refund") {
		normalized.Class = connector.EventClassRefund
		if event.OrderStatus == statusRefunded || event.OrderStatus == statusPartiallyRefunded {
			normalized.RefundStatus = domain.RefundSuccess
		} else {
			normalized.RefundStatus = domain.RefundPending
		}
	}
	return normalized, nil
}

func foldPayments(status *domain.AttemptStatus, httpCode *int, slot *domain.Result[domain.PaymentsResponseData], statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		*httpCode = statusCode
		*slot = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("noon payments: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	mapped, result := translatePayments(&resp, statusCode, *status)
	*status = mapped
	*httpCode = statusCode
	*slot = result
	return nil
}

var (
	_ connector.PaymentAuthorizer = (*Connector)(nil)
	_ connector.PaymentCapturer   = (*Connector)(nil)
	_ connector.PaymentVoider     = (*Connector)(nil)
	_ connector.PaymentSyncer     = (*Connector)(nil)
	_ connector.RefundExecutor    = (*Connector)(nil)
	_ connector.RefundSyncer      = (*Connector)(nil)
	_ connector.MandateRevoker    = (*Connector)(nil)
	_ connector.WebhookTranslator = (*Connector)(nil)
)
