// Package fiserv integrates the Fiserv CommerceHub gateway: JSON requests
// signed with HMAC-SHA256, float major unit amounts, terminal routing from
// merchant connector metadata.
package fiserv

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

const connectorName = "fiserv"

const (
	chargesPath = "/ch/payments/v1/charges"
	cancelsPath = "/ch/payments/v1/cancels"
	refundsPath = "/ch/payments/v1/refunds"
	inquiryPath = "/ch/payments/v1/transaction-inquiry"
)

type Connector struct {
	baseURL string

	// Overridable for deterministic signing in tests.
	now          func() time.Time
	newRequestID func() string
}

func New(baseURL string) *Connector {
	return &Connector{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		now:          time.Now,
		newRequestID: uuid.NewString,
	}
}

func (c *Connector) Name() string { return connectorName }

// signedHeaders computes the CommerceHub HMAC scheme: the signature covers
// api key, client request id, timestamp and the exact body bytes, keyed by
// the api secret.
func (c *Connector) signedHeaders(auth domain.ConnectorAuthType, body []byte) (map[string]string, error) {
	creds, err := resolveAuth(auth)
	if err != nil {
		return nil, err
	}
	clientRequestID := c.newRequestID()
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(creds.apiSecret.Peek()))
	mac.Write([]byte(creds.apiKey.Peek()))
	mac.Write([]byte(clientRequestID))
	mac.Write([]byte(timestamp))
	mac.Write(body)

	return map[string]string{
		"Api-Key":           creds.apiKey.Peek(),
		"Client-Request-Id": clientRequestID,
		"Timestamp":         timestamp,
		"Auth-Token-Type":   "HMAC",
		"Authorization":     base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

func (c *Connector) jsonRequest(path string, auth domain.ConnectorAuthType, payload any) (*connector.WireRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fiserv: %w: %s", domain.ErrRequestEncodingFailed, err)
	}
	headers, err := c.signedHeaders(auth, body)
	if err != nil {
		return nil, err
	}
	return &connector.WireRequest{
		Method:      http.MethodPost,
		URL:         c.baseURL + path,
		Headers:     headers,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (c *Connector) BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*connector.WireRequest, error) {
	payload, err := buildPaymentsRequest(rd)
	if err != nil {
		return nil, err
	}
	return c.jsonRequest(chargesPath, rd.AuthType, payload)
}

func (c *Connector) HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("fiserv payments: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	status, data := paymentsResponseData(&resp)
	rd.ReplaceResponse(status, statusCode, domain.OkResult(data))
	return nil
}

func (c *Connector) BuildCaptureRequest(rd *domain.CaptureRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	session, err := resolveSession(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	captureFlag := true
	payload := captureRequest{
		Amount: amount{
			Total:    rd.Request.AmountToCapture.ToFloatMajorUnit(rd.Request.Currency),
			Currency: rd.Request.Currency.String(),
		},
		TransactionDetails: transactionDetails{
			CaptureFlag:           &captureFlag,
			MerchantTransactionID: rd.ConnectorRequestReferenceID,
		},
		MerchantDetails: merchantDetails{
			MerchantID: creds.merchantID,
			TerminalID: domain.NewSecret(session.TerminalID),
		},
		ReferenceTransactionDetails: referenceTransactionDetails{
			ReferenceTransactionID: rd.Request.ConnectorTransactionID,
		},
	}
	return c.jsonRequest(chargesPath, rd.AuthType, payload)
}

func (c *Connector) HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("fiserv capture: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	status, data := paymentsResponseData(&resp)
	rd.ReplaceResponse(status, statusCode, domain.OkResult(data))
	return nil
}

func (c *Connector) BuildVoidRequest(rd *domain.CancelRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	if rd.Request.CancellationReason == "" {
		return nil, domain.NewMissingRequiredFieldError("cancellation_reason")
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	session, err := resolveSession(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	payload := cancelRequest{
		TransactionDetails: transactionDetails{
			ReversalReasonCode:    rd.Request.CancellationReason,
			MerchantTransactionID: rd.ConnectorRequestReferenceID,
		},
		MerchantDetails: merchantDetails{
			MerchantID: creds.merchantID,
			TerminalID: domain.NewSecret(session.TerminalID),
		},
		ReferenceTransactionDetails: referenceTransactionDetails{
			ReferenceTransactionID: rd.Request.ConnectorTransactionID,
		},
	}
	return c.jsonRequest(cancelsPath, rd.AuthType, payload)
}

func (c *Connector) HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("fiserv void: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	status, data := paymentsResponseData(&resp)
	rd.ReplaceResponse(status, statusCode, domain.OkResult(data))
	return nil
}

func (c *Connector) BuildSyncRequest(rd *domain.SyncRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	payload := syncRequest{
		MerchantDetails: merchantDetails{MerchantID: creds.merchantID},
		ReferenceTransactionDetails: referenceTransactionDetails{
			ReferenceTransactionID: rd.Request.ConnectorTransactionID,
		},
	}
	return c.jsonRequest(inquiryPath, rd.AuthType, payload)
}

func (c *Connector) HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	resp, err := firstSyncResponse(body)
	if err != nil {
		return err
	}
	status, data := paymentsResponseData(resp)
	rd.ReplaceResponse(status, statusCode, domain.OkResult(data))
	return nil
}

func (c *Connector) BuildRefundRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	session, err := resolveSession(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	payload := refundRequest{
		Amount: amount{
			Total:    rd.Request.RefundAmount.ToFloatMajorUnit(rd.Request.Currency),
			Currency: rd.Request.Currency.String(),
		},
		MerchantDetails: merchantDetails{
			MerchantID: creds.merchantID,
			TerminalID: domain.NewSecret(session.TerminalID),
		},
		ReferenceTransactionDetails: referenceTransactionDetails{
			ReferenceTransactionID: rd.Request.ConnectorTransactionID,
		},
	}
	return c.jsonRequest(refundsPath, rd.AuthType, payload)
}

func (c *Connector) HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("fiserv refund: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.GatewayResponse.TransactionProcessingDetails.TransactionID,
		Status:            mapRefundStatus(resp.GatewayResponse.TransactionState),
	})
	return nil
}

func (c *Connector) BuildRefundSyncRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorRefundID == "" {
		return nil, fmt.Errorf("fiserv refund sync: %w", domain.ErrRequestEncodingFailed)
	}
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	payload := syncRequest{
		MerchantDetails: merchantDetails{MerchantID: creds.merchantID},
		ReferenceTransactionDetails: referenceTransactionDetails{
			ReferenceTransactionID: rd.Request.ConnectorRefundID,
		},
	}
	return c.jsonRequest(inquiryPath, rd.AuthType, payload)
}

func (c *Connector) HandleRefundSyncResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	resp, err := firstSyncResponse(body)
	if err != nil {
		return err
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.GatewayResponse.TransactionProcessingDetails.TransactionID,
		Status:            mapRefundStatus(resp.GatewayResponse.TransactionState),
	})
	return nil
}

// Inquiry replies are bare arrays; the first entry is authoritative and an
// empty array is a malformed reply.
func firstSyncResponse(body []byte) (*paymentsResponse, error) {
	var entries []paymentsResponse
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("fiserv inquiry: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("fiserv inquiry: empty response: %w", domain.ErrResponseHandlingFailed)
	}
	return &entries[0], nil
}

var (
	_ connector.PaymentAuthorizer = (*Connector)(nil)
	_ connector.PaymentCapturer   = (*Connector)(nil)
	_ connector.PaymentVoider     = (*Connector)(nil)
	_ connector.PaymentSyncer     = (*Connector)(nil)
	_ connector.RefundExecutor    = (*Connector)(nil)
	_ connector.RefundSyncer      = (*Connector)(nil)
)
