// Package nexinets integrates the Nexinets (Payengine) order API: HTTP Basic
// auth, integer minor unit amounts, and an order/transaction model where
// every follow-up call addresses both the order and one of its transactions.
package nexinets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

const connectorName = "nexinets"

type Connector struct {
	baseURL string
}

func New(baseURL string) *Connector {
	return &Connector{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Connector) Name() string { return connectorName }

func (c *Connector) jsonRequest(method, path string, auth domain.ConnectorAuthType, payload any) (*connector.WireRequest, error) {
	header, err := resolveAuth(auth)
	if err != nil {
		return nil, err
	}
	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("nexinets: %w: %s", domain.ErrRequestEncodingFailed, err)
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

// replayedMeta recovers the order/transaction addressing blob the caller
// stored from the opening response.
func replayedMeta(raw json.RawMessage) (paymentsMetadata, error) {
	var meta paymentsMetadata
	if len(raw) == 0 {
		return meta, fmt.Errorf("nexinets: missing order metadata: %w", domain.ErrMissingConnectorTransactionID)
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.OrderID == "" {
		return meta, fmt.Errorf("nexinets: missing order metadata: %w", domain.ErrMissingConnectorTransactionID)
	}
	return meta, nil
}

func (c *Connector) BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*connector.WireRequest, error) {
	payload, err := buildPaymentsRequest(rd)
	if err != nil {
		return nil, err
	}
	path := "/orders/preauth"
	if rd.Request.CaptureMethod.IsAutoCapture() {
		path = "/orders/debit"
	}
	return c.jsonRequest(http.MethodPost, path, rd.AuthType, payload)
}

func (c *Connector) HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.HTTPStatusCode = statusCode
		rd.Response = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("nexinets order: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	status, data, err := translateOrder(&resp)
	if err != nil {
		return err
	}
	rd.ReplaceResponse(status, statusCode, domain.OkResult(data))
	return nil
}

func (c *Connector) BuildCaptureRequest(rd *domain.CaptureRouterData) (*connector.WireRequest, error) {
	meta, err := replayedMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := amountRequest{
		InitialAmount: rd.Request.AmountToCapture,
		Currency:      rd.Request.Currency.String(),
	}
	path := "/orders/" + meta.OrderID + "/transactions/" + rd.Request.ConnectorTransactionID + "/capture"
	return c.jsonRequest(http.MethodPost, path, rd.AuthType, payload)
}

func (c *Connector) HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error {
	return foldTransaction(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildVoidRequest(rd *domain.CancelRouterData) (*connector.WireRequest, error) {
	meta, err := replayedMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := amountRequest{
		InitialAmount: rd.Request.Amount,
		Currency:      rd.Request.Currency.String(),
	}
	path := "/orders/" + meta.OrderID + "/transactions/" + rd.Request.ConnectorTransactionID + "/cancel"
	return c.jsonRequest(http.MethodPost, path, rd.AuthType, payload)
}

func (c *Connector) HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error {
	return foldTransaction(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildSyncRequest(rd *domain.SyncRouterData) (*connector.WireRequest, error) {
	meta, err := replayedMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	if meta.TransactionID == "" {
		return nil, fmt.Errorf("nexinets sync: missing transaction id: %w", domain.ErrMissingConnectorTransactionID)
	}
	path := "/orders/" + meta.OrderID + "/transactions/" + meta.TransactionID
	return c.jsonRequest(http.MethodGet, path, rd.AuthType, nil)
}

func (c *Connector) HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error {
	return foldTransaction(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildRefundRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	meta, err := replayedMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := amountRequest{
		InitialAmount: rd.Request.RefundAmount,
		Currency:      rd.Request.Currency.String(),
	}
	path := "/orders/" + meta.OrderID + "/transactions/" + rd.Request.ConnectorTransactionID + "/refund"
	return c.jsonRequest(http.MethodPost, path, rd.AuthType, payload)
}

func (c *Connector) HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	return foldRefund(rd, statusCode, body)
}

func (c *Connector) BuildRefundSyncRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	meta, err := replayedMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	if rd.Request.ConnectorRefundID == "" {
		return nil, fmt.Errorf("nexinets refund sync: %w", domain.ErrMissingConnectorTransactionID)
	}
	path := "/orders/" + meta.OrderID + "/transactions/" + rd.Request.ConnectorRefundID
	return c.jsonRequest(http.MethodGet, path, rd.AuthType, nil)
}

func (c *Connector) HandleRefundSyncResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	return foldRefund(rd, statusCode, body)
}

func foldTransaction(status *domain.AttemptStatus, httpCode *int, slot *domain.Result[domain.PaymentsResponseData], statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		*httpCode = statusCode
		*slot = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp transactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("nexinets transaction: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	mapped, data, err := translateTransaction(&resp)
	if err != nil {
		return err
	}
	*status = mapped
	*httpCode = statusCode
	*slot = domain.OkResult(data)
	return nil
}

func foldRefund(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.HTTPStatusCode = statusCode
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		return nil
	}
	var resp refundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("nexinets refund: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.TransactionID,
		Status:            mapRefundStatus(resp.Status),
	})
	return nil
}

var (
	_ connector.PaymentAuthorizer = (*Connector)(nil)
	_ connector.PaymentCapturer   = (*Connector)(nil)
	_ connector.PaymentVoider     = (*Connector)(nil)
	_ connector.PaymentSyncer     = (*Connector)(nil)
	_ connector.RefundExecutor    = (*Connector)(nil)
	_ connector.RefundSyncer      = (*Connector)(nil)
)
