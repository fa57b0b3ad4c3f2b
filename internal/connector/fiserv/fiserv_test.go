package fiserv

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexpay/payment-switch/internal/domain"
)

func testAuth() domain.ConnectorAuthType {
	return domain.SignatureKey{
		APIKey:    domain.NewSecret("api-key"),
		Key1:      domain.NewSecret("merchant-1"),
		APISecret: domain.NewSecret("api-secret"),
	}
}

func pinned(c *Connector) *Connector {
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	c.newRequestID = func() string { return "req-id-1" }
	return c
}

func newAuthorizeRD() *domain.AuthorizeRouterData {
	return &domain.AuthorizeRouterData{
		Connector:                   connectorName,
		AuthType:                    testAuth(),
		ConnectorRequestReferenceID: "order-77",
		ConnectorMetadata:           json.RawMessage(`{"terminal_id":"10000001"}`),
		Request: domain.AuthorizeData{
			Amount:   2999,
			Currency: domain.USD,
			PaymentMethod: domain.Card{
				Number:   domain.NewSecret("4005550000000019"),
				ExpMonth: domain.NewSecret("02"),
				ExpYear:  domain.NewSecret("35"),
				CVC:      domain.NewSecret("123"),
			},
		},
	}
}

func TestBuildAuthorizeRequestCard(t *testing.T) {
	c := pinned(New("https://cert.api.fiservapps.com"))

	req, err := c.BuildAuthorizeRequest(newAuthorizeRD())
	require.NoError(t, err)

	assert.Equal(t, "https://cert.api.fiservapps.com/ch/payments/v1/charges", req.URL)
	assert.Equal(t, "application/json", req.ContentType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))

	amt := payload["amount"].(map[string]any)
	assert.Equal(t, 29.99, amt["total"])
	assert.Equal(t, "USD", amt["currency"])

	source := payload["source"].(map[string]any)
	assert.Equal(t, "PaymentCard", source["sourceType"])
	card := source["card"].(map[string]any)
	assert.Equal(t, "4005550000000019", card["cardData"])
	assert.Equal(t, "2035", card["expirationYear"])

	details := payload["transactionDetails"].(map[string]any)
	assert.Equal(t, true, details["captureFlag"])
	assert.Equal(t, "order-77", details["merchantTransactionId"])

	merchant := payload["merchantDetails"].(map[string]any)
	assert.Equal(t, "merchant-1", merchant["merchantId"])
	assert.Equal(t, "10000001", merchant["terminalId"])

	interaction := payload["transactionInteraction"].(map[string]any)
	assert.Equal(t, "ECOM", interaction["origin"])
	assert.Equal(t, "CHANNEL_ENCRYPTED", interaction["eciIndicator"])
	assert.Equal(t, "CARD_NOT_PRESENT_ECOM", interaction["posConditionCode"])
}

func TestBuildAuthorizeRequestManualCapture(t *testing.T) {
	rd := newAuthorizeRD()
	rd.Request.CaptureMethod = domain.CaptureManual

	req, err := pinned(New("https://base")).BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, false, payload["transactionDetails"].(map[string]any)["captureFlag"])
}

func TestSignedHeaders(t *testing.T) {
	c := pinned(New("https://base"))

	req, err := c.BuildAuthorizeRequest(newAuthorizeRD())
	require.NoError(t, err)

	assert.Equal(t, "api-key", req.Headers["Api-Key"])
	assert.Equal(t, "req-id-1", req.Headers["Client-Request-Id"])
	assert.Equal(t, "1700000000000", req.Headers["Timestamp"])
	assert.Equal(t, "HMAC", req.Headers["Auth-Token-Type"])

	mac := hmac.New(sha256.New, []byte("api-secret"))
	mac.Write([]byte("api-key" + "req-id-1" + "1700000000000"))
	mac.Write(req.Body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), req.Headers["Authorization"])
}

func TestBuildAuthorizeRequestInvalidMetadata(t *testing.T) {
	rd := newAuthorizeRD()
	rd.ConnectorMetadata = json.RawMessage(`{"unexpected":"shape"}`)

	_, err := pinned(New("https://base")).BuildAuthorizeRequest(rd)

	var invalid *domain.InvalidConnectorConfigError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Merchant connector account metadata", invalid.Config)
}

func TestBuildAuthorizeRequestAuthMismatch(t *testing.T) {
	rd := newAuthorizeRD()
	rd.AuthType = domain.BodyKey{APIKey: domain.NewSecret("k"), Key1: domain.NewSecret("e")}

	_, err := pinned(New("https://base")).BuildAuthorizeRequest(rd)
	assert.ErrorIs(t, err, domain.ErrFailedToObtainAuthType)
}

func TestBuildAuthorizeRequestGooglePay(t *testing.T) {
	signedKey := `{"keyValue":"kv-1","keyExpiration":"1700000000000"}`
	signedMessage := `{"encryptedMessage":"enc-1","ephemeralPublicKey":"epk-1","tag":"tag-1"}`
	token, err := json.Marshal(map[string]any{
		"signature":       "sig-1",
		"protocolVersion": "ECv2",
		"signedMessage":   signedMessage,
		"intermediateSigningKey": map[string]any{
			"signedKey":  signedKey,
			"signatures": []string{"isig-1"},
		},
	})
	require.NoError(t, err)

	rd := newAuthorizeRD()
	rd.Request.PaymentMethod = domain.Wallet{
		Kind:      domain.WalletGooglePay,
		GooglePay: &domain.GooglePayToken{Token: domain.NewSecret(string(token))},
	}

	req, err := pinned(New("https://base")).BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	source := payload["source"].(map[string]any)
	assert.Equal(t, "GooglePay", source["sourceType"])
	assert.Equal(t, "enc-1", source["data"])
	assert.Equal(t, "sig-1", source["signature"])
	assert.Equal(t, "ECv2", source["version"])

	isk := source["intermediateSigningKey"].(map[string]any)
	assert.JSONEq(t, signedKey, isk["signedKey"].(string))
	assert.Equal(t, []any{"isig-1"}, isk["signatures"])
}

func TestBuildAuthorizeRequestCoversEveryPaymentMethod(t *testing.T) {
	c := pinned(New("https://base"))
	for _, pm := range domain.AllPaymentMethodVariants() {
		rd := newAuthorizeRD()
		rd.Request.PaymentMethod = pm

		_, err := c.BuildAuthorizeRequest(rd)
		switch pm.(type) {
		case domain.Card:
			assert.NoError(t, err, pm.Name())
		default:
			if w, ok := pm.(domain.Wallet); ok && w.Kind == domain.WalletGooglePay {
				assert.NoError(t, err, pm.Name())
				continue
			}
			var notImplemented *domain.NotImplementedError
			assert.True(t, errors.As(err, &notImplemented), "payment method %s: %v", pm.Name(), err)
		}
	}
}

func TestAttemptStatusMappingIsTotal(t *testing.T) {
	for _, s := range allPaymentStatuses() {
		assert.NotEmpty(t, mapAttemptStatus(s), string(s))
		assert.NotEmpty(t, mapRefundStatus(s), string(s))
	}
}

func TestMapAttemptStatus(t *testing.T) {
	assert.Equal(t, domain.StatusCharged, mapAttemptStatus(statusCaptured))
	assert.Equal(t, domain.StatusCharged, mapAttemptStatus(statusSucceeded))
	assert.Equal(t, domain.StatusFailure, mapAttemptStatus(statusDeclined))
	assert.Equal(t, domain.StatusAuthorized, mapAttemptStatus(statusAuthorized))
	assert.Equal(t, domain.StatusVoided, mapAttemptStatus(statusVoided))
	assert.Equal(t, domain.StatusAuthorizing, mapAttemptStatus(statusProcessing))
}

func TestHandleAuthorizeResponse(t *testing.T) {
	body := []byte(`{"gatewayResponse":{"transactionState":"AUTHORIZED","transactionProcessingDetails":{"orderId":"ord-1","transactionId":"txn-1"}},"paymentReceipt":{"approvedAmount":{"total":29.99,"currency":"USD"}}}`)

	rd := newAuthorizeRD()
	require.NoError(t, pinned(New("https://base")).HandleAuthorizeResponse(rd, 201, body))

	assert.Equal(t, domain.StatusAuthorized, rd.Status)
	data, errResp := rd.Response.Get()
	require.Nil(t, errResp)
	assert.Equal(t, "txn-1", data.ResourceID)
	assert.Equal(t, "ord-1", data.ConnectorResponseReferenceID)
}

func TestHandleSyncResponseEmptyArray(t *testing.T) {
	rd := &domain.SyncRouterData{
		AuthType: testAuth(),
		Request:  domain.SyncData{ConnectorTransactionID: "txn-1"},
	}
	err := pinned(New("https://base")).HandleSyncResponse(rd, 200, []byte(`[]`))
	assert.ErrorIs(t, err, domain.ErrResponseHandlingFailed)
}

func TestHandleSyncResponseUsesFirstEntry(t *testing.T) {
	body := []byte(`[{"gatewayResponse":{"transactionState":"CAPTURED","transactionProcessingDetails":{"orderId":"ord-1","transactionId":"txn-1"}},"paymentReceipt":{"approvedAmount":{"total":29.99,"currency":"USD"}}}]`)

	rd := &domain.SyncRouterData{
		AuthType: testAuth(),
		Request:  domain.SyncData{ConnectorTransactionID: "txn-1"},
	}
	require.NoError(t, pinned(New("https://base")).HandleSyncResponse(rd, 200, body))
	assert.Equal(t, domain.StatusCharged, rd.Status)
}

func TestHandleRefundResponse(t *testing.T) {
	body := []byte(`{"gatewayResponse":{"transactionState":"SUCCEEDED","transactionProcessingDetails":{"orderId":"ord-1","transactionId":"rfn-1"}},"paymentReceipt":{"approvedAmount":{"total":10.00,"currency":"USD"}}}`)

	rd := &domain.RefundRouterData{
		AuthType:          testAuth(),
		ConnectorMetadata: json.RawMessage(`{"terminal_id":"10000001"}`),
		Request:           domain.RefundData{RefundAmount: 1000, Currency: domain.USD, ConnectorTransactionID: "txn-1"},
	}
	require.NoError(t, pinned(New("https://base")).HandleRefundResponse(rd, 200, body))

	data, _ := rd.Response.Get()
	assert.Equal(t, "rfn-1", data.ConnectorRefundID)
	assert.Equal(t, domain.RefundSuccess, data.Status)
}

func TestHandleAuthorizeResponseError(t *testing.T) {
	body := []byte(`{"error":[{"type":"GATEWAY","code":"104","field":"source.card.cardData","message":"Invalid card number"}]}`)

	rd := newAuthorizeRD()
	require.NoError(t, pinned(New("https://base")).HandleAuthorizeResponse(rd, 400, body))

	_, errResp := rd.Response.Get()
	require.NotNil(t, errResp)
	assert.Equal(t, "104", errResp.Code)
	assert.Equal(t, "Invalid card number", errResp.Message)
	assert.Equal(t, "source.card.cardData: Invalid card number", errResp.Reason)
}

func TestBuildVoidRequestRequiresReason(t *testing.T) {
	rd := &domain.CancelRouterData{
		AuthType:          testAuth(),
		ConnectorMetadata: json.RawMessage(`{"terminal_id":"10000001"}`),
		Request:           domain.CancelData{ConnectorTransactionID: "txn-1"},
	}
	_, err := pinned(New("https://base")).BuildVoidRequest(rd)

	var missing *domain.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "cancellation_reason", missing.FieldName)
}
