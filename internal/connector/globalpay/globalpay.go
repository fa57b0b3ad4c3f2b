// Package globalpay integrates the Global Payments unified API: JSON
// requests, string minor unit amounts, bearer access tokens minted through a
// SHA-512 nonce digest handshake.
package globalpay

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

const connectorName = "globalpay"

const apiVersion = "2021-03-22"

type Connector struct {
	baseURL string

	// Overridable for deterministic token handshakes in tests.
	newNonce func() string
}

func New(baseURL string) *Connector {
	return &Connector{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		newNonce: randomNonce,
	}
}

func (c *Connector) Name() string { return connectorName }

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomNonce() string {
	b := make([]byte, 12)
	for i := range b {
		b[i] = nonceAlphabet[rand.Intn(len(nonceAlphabet))]
	}
	return string(b)
}

func tokenHeaders(token *domain.AccessToken) (map[string]string, error) {
	if token == nil {
		return nil, fmt.Errorf("globalpay: missing access token: %w", domain.ErrFailedToObtainAuthType)
	}
	return map[string]string{
		"Authorization": "Bearer " + token.Token.Peek(),
		"X-GP-Version":  apiVersion,
		"Accept":        "application/json",
	}, nil
}

func (c *Connector) jsonRequest(method, path string, token *domain.AccessToken, payload any) (*connector.WireRequest, error) {
	headers, err := tokenHeaders(token)
	if err != nil {
		return nil, err
	}
	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("globalpay: %w: %s", domain.ErrRequestEncodingFailed, err)
		}
	}
	return &connector.WireRequest{
		Method:      method,
		URL:         c.baseURL + path,
		Headers:     headers,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// BuildAccessTokenRequest mints the token handshake: the request secret is
// hex(SHA512(nonce + app key)).
func (c *Connector) BuildAccessTokenRequest(auth domain.ConnectorAuthType) (*connector.WireRequest, error) {
	creds, err := resolveAuth(auth)
	if err != nil {
		return nil, err
	}
	nonce := c.newNonce()
	digest := sha512.Sum512([]byte(nonce + creds.appKey.Peek()))

	body, err := json.Marshal(accessTokenRequest{
		AppID:     creds.appID,
		Nonce:     domain.NewSecret(nonce),
		Secret:    domain.NewSecret(hex.EncodeToString(digest[:])),
		GrantType: "client_credentials",
	})
	if err != nil {
		return nil, fmt.Errorf("globalpay: %w: %s", domain.ErrRequestEncodingFailed, err)
	}
	return &connector.WireRequest{
		Method:      http.MethodPost,
		URL:         c.baseURL + "/accesstoken",
		Headers:     map[string]string{"X-GP-Version": apiVersion},
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (c *Connector) ParseAccessTokenResponse(statusCode int, body []byte) (*domain.AccessToken, error) {
	if statusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("globalpay access token: status %d: %w", statusCode, domain.ErrResponseHandlingFailed)
	}
	var resp accessTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return nil, fmt.Errorf("globalpay access token: %w", domain.ErrResponseHandlingFailed)
	}
	return &domain.AccessToken{
		Token:     domain.NewSecret(resp.Token),
		ExpiresIn: resp.SecondsToExpire,
	}, nil
}

func (c *Connector) BuildAuthorizeRequest(rd *domain.AuthorizeRouterData) (*connector.WireRequest, error) {
	payload, err := buildPaymentsRequest(rd)
	if err != nil {
		return nil, err
	}
	return c.jsonRequest(http.MethodPost, "/transactions", rd.AccessToken, payload)
}

func (c *Connector) HandleAuthorizeResponse(rd *domain.AuthorizeRouterData, statusCode int, body []byte) error {
	return handlePayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildCaptureRequest(rd *domain.CaptureRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := captureRequest{Amount: rd.Request.AmountToCapture.ToStringMinorUnit()}
	if mc := rd.Request.MultipleCaptureData; mc != nil {
		payload.Reference = mc.CaptureReference
		if mc.CaptureSequence <= 1 {
			payload.CaptureSequence = "FIRST"
		} else {
			payload.CaptureSequence = "SUBSEQUENT"
		}
	}
	return c.jsonRequest(http.MethodPost, "/transactions/"+rd.Request.ConnectorTransactionID+"/capture", rd.AccessToken, payload)
}

func (c *Connector) HandleCaptureResponse(rd *domain.CaptureRouterData, statusCode int, body []byte) error {
	return handlePayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildVoidRequest(rd *domain.CancelRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := amountRequest{Amount: rd.Request.Amount.ToStringMinorUnit()}
	return c.jsonRequest(http.MethodPost, "/transactions/"+rd.Request.ConnectorTransactionID+"/reversal", rd.AccessToken, payload)
}

func (c *Connector) HandleVoidResponse(rd *domain.CancelRouterData, statusCode int, body []byte) error {
	return handlePayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildSyncRequest(rd *domain.SyncRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	return c.jsonRequest(http.MethodGet, "/transactions/"+rd.Request.ConnectorTransactionID, rd.AccessToken, nil)
}

func (c *Connector) HandleSyncResponse(rd *domain.SyncRouterData, statusCode int, body []byte) error {
	return handlePayments(&rd.Status, &rd.HTTPStatusCode, &rd.Response, statusCode, body)
}

func (c *Connector) BuildRefundRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorTransactionID == "" {
		return nil, domain.ErrMissingConnectorTransactionID
	}
	payload := amountRequest{Amount: rd.Request.RefundAmount.ToStringMinorUnit()}
	return c.jsonRequest(http.MethodPost, "/transactions/"+rd.Request.ConnectorTransactionID+"/refund", rd.AccessToken, payload)
}

func (c *Connector) HandleRefundResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	return handleRefund(rd, statusCode, body)
}

func (c *Connector) BuildRefundSyncRequest(rd *domain.RefundRouterData) (*connector.WireRequest, error) {
	if rd.Request.ConnectorRefundID == "" {
		return nil, fmt.Errorf("globalpay refund sync: %w", domain.ErrRequestEncodingFailed)
	}
	return c.jsonRequest(http.MethodGet, "/transactions/"+rd.Request.ConnectorRefundID, rd.AccessToken, nil)
}

func (c *Connector) HandleRefundSyncResponse(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	return handleRefund(rd, statusCode, body)
}

func handlePayments(status *domain.AttemptStatus, httpCode *int, slot *domain.Result[domain.PaymentsResponseData], statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		*slot = domain.ErrResult[domain.PaymentsResponseData](toErrorResponse(statusCode, body))
		*httpCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("globalpay payments: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	mapped, result := translatePayments(&resp, statusCode)
	*status = mapped
	*httpCode = statusCode
	*slot = result
	return nil
}

func handleRefund(rd *domain.RefundRouterData, statusCode int, body []byte) error {
	if statusCode >= http.StatusBadRequest {
		rd.Response = domain.ErrResult[domain.RefundsResponseData](toErrorResponse(statusCode, body))
		rd.HTTPStatusCode = statusCode
		return nil
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("globalpay refund: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	rd.HTTPStatusCode = statusCode
	rd.Response = domain.OkResult(domain.RefundsResponseData{
		ConnectorRefundID: resp.ID,
		Status:            mapRefundStatus(resp.Status),
	})
	return nil
}

var (
	_ connector.PaymentAuthorizer   = (*Connector)(nil)
	_ connector.PaymentCapturer     = (*Connector)(nil)
	_ connector.PaymentVoider       = (*Connector)(nil)
	_ connector.PaymentSyncer       = (*Connector)(nil)
	_ connector.RefundExecutor      = (*Connector)(nil)
	_ connector.RefundSyncer        = (*Connector)(nil)
	_ connector.AccessTokenProvider = (*Connector)(nil)
)
