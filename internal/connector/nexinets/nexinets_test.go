package nexinets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexpay/payment-switch/internal/domain"
)

func testAuth() domain.ConnectorAuthType {
	return domain.BodyKey{
		APIKey: domain.NewSecret("api-key"),
		Key1:   domain.NewSecret("merchant-1"),
	}
}

func testCard() domain.Card {
	return domain.Card{
		Number:   domain.NewSecret("4111111111111111"),
		ExpMonth: domain.NewSecret("08"),
		ExpYear:  domain.NewSecret("2030"),
		CVC:      domain.NewSecret("123"),
	}
}

func newAuthorizeRD(pm domain.PaymentMethod) *domain.AuthorizeRouterData {
	return &domain.AuthorizeRouterData{
		Connector:                   connectorName,
		AuthType:                    testAuth(),
		ConnectorRequestReferenceID: "order-ref-1",
		Request: domain.AuthorizeData{
			Amount:          1050,
			Currency:        domain.EUR,
			PaymentMethod:   pm,
			RouterReturnURL: "https://merchant.example.com/return",
		},
	}
}

func testMetadata() json.RawMessage {
	return json.RawMessage(`{"transaction_id":"txn-1","order_id":"ord-1","psync_flow":"PREAUTH"}`)
}

func TestBuildAuthorizeRequestCard(t *testing.T) {
	req, err := New("https://base").BuildAuthorizeRequest(newAuthorizeRD(testCard()))
	require.NoError(t, err)

	assert.Equal(t, "https://base/orders/debit", req.URL)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("merchant-1:api-key"))
	assert.Equal(t, want, req.Headers["Authorization"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, float64(1050), payload["initialAmount"])
	assert.Equal(t, "EUR", payload["currency"])
	assert.Equal(t, "ECOM", payload["channel"])
	assert.Equal(t, "creditcard", payload["product"])
	assert.Equal(t, "order-ref-1", payload["merchantOrderId"])

	payment := payload["payment"].(map[string]any)
	assert.Equal(t, "4111111111111111", payment["cardNumber"])
	assert.Equal(t, "30", payment["expiryYear"])
	assert.Equal(t, "123", payment["verification"])
	assert.NotContains(t, payment, "cofContract")

	async := payload["async"].(map[string]any)
	assert.Equal(t, "https://merchant.example.com/return", async["successUrl"])
	assert.Equal(t, "https://merchant.example.com/return", async["cancelUrl"])
	assert.Equal(t, "https://merchant.example.com/return", async["failureUrl"])
}

func TestBuildAuthorizeRequestAuthMismatch(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.AuthType = domain.HeaderKey{APIKey: domain.NewSecret("api-key")}

	_, err := New("https://base").BuildAuthorizeRequest(rd)
	assert.ErrorIs(t, err, domain.ErrFailedToObtainAuthType)
}

func TestBuildAuthorizeRequestManualCaptureUsesPreauth(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.CaptureMethod = domain.CaptureManual

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, "https://base/orders/preauth", req.URL)
}

func TestBuildAuthorizeRequestMandateSetup(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.SetupMandateDetails = &domain.SetupMandateDetails{MaxAmount: 10000, Currency: domain.EUR}

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	payment := payload["payment"].(map[string]any)
	assert.Equal(t, "4111111111111111", payment["cardNumber"])
	contract := payment["cofContract"].(map[string]any)
	assert.Equal(t, "UNSCHEDULED", contract["type"])
}

func TestBuildAuthorizeRequestMandateReuse(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.MandateID = "instr-55"
	rd.Request.OffSession = true

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	payment := payload["payment"].(map[string]any)
	assert.Equal(t, "instr-55", payment["paymentInstrumentId"])
	assert.NotContains(t, payment, "cardNumber")
	contract := payment["cofContract"].(map[string]any)
	assert.Equal(t, "UNSCHEDULED", contract["type"])
}

func TestBuildAuthorizeRequestIdealBIC(t *testing.T) {
	rd := newAuthorizeRD(domain.BankRedirect{Kind: domain.BankRedirectIdeal, BankName: domain.BankIng})

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "ideal", payload["product"])
	assert.Equal(t, "INGBNL2A", payload["payment"].(map[string]any)["bic"])
	assert.NotContains(t, payload, "merchantOrderId")
}

func TestBuildAuthorizeRequestIdealUnknownBank(t *testing.T) {
	rd := newAuthorizeRD(domain.BankRedirect{Kind: domain.BankRedirectIdeal, BankName: "some_other_bank"})

	_, err := New("https://base").BuildAuthorizeRequest(rd)
	var notImplemented *domain.NotImplementedError
	assert.True(t, errors.As(err, &notImplemented))
}

func TestBuildAuthorizeRequestRedirectProductsOmitPayment(t *testing.T) {
	tests := []struct {
		pm   domain.PaymentMethod
		want string
	}{
		{domain.Wallet{Kind: domain.WalletPaypalRedirect}, "paypal"},
		{domain.BankRedirect{Kind: domain.BankRedirectEps}, "eps"},
		{domain.BankRedirect{Kind: domain.BankRedirectGiropay}, "giropay"},
		{domain.BankRedirect{Kind: domain.BankRedirectSofort}, "sofort"},
	}
	for _, tt := range tests {
		req, err := New("https://base").BuildAuthorizeRequest(newAuthorizeRD(tt.pm))
		require.NoError(t, err, tt.want)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &payload))
		assert.Equal(t, tt.want, payload["product"])
		assert.NotContains(t, payload, "payment", tt.want)
	}
}

func TestBuildAuthorizeRequestApplePay(t *testing.T) {
	rd := newAuthorizeRD(domain.Wallet{
		Kind: domain.WalletApplePay,
		ApplePay: &domain.ApplePayToken{
			PaymentData:           domain.NewSecret(`{"data":"opaque"}`),
			DisplayName:           "Visa 1234",
			Network:               "Visa",
			TokenType:             "credit",
			TransactionIdentifier: "txid-9",
		},
	})

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "applepay", payload["product"])
	payment := payload["payment"].(map[string]any)
	assert.Equal(t, map[string]any{"data": "opaque"}, payment["paymentData"])
	method := payment["paymentMethod"].(map[string]any)
	assert.Equal(t, "Visa 1234", method["displayName"])
	assert.Equal(t, "credit", method["type"])
	assert.Equal(t, "txid-9", payment["transactionIdentifier"])
}

func TestBuildAuthorizeRequestApplePayBadToken(t *testing.T) {
	rd := newAuthorizeRD(domain.Wallet{
		Kind:     domain.WalletApplePay,
		ApplePay: &domain.ApplePayToken{PaymentData: domain.NewSecret("not-json")},
	})

	_, err := New("https://base").BuildAuthorizeRequest(rd)
	assert.ErrorIs(t, err, domain.ErrRequestEncodingFailed)
}

func TestBuildAuthorizeRequestUnsupportedMethods(t *testing.T) {
	c := New("https://base")
	for _, pm := range domain.AllPaymentMethodVariants() {
		rd := newAuthorizeRD(pm)
		if w, ok := pm.(domain.Wallet); ok && w.Kind == domain.WalletApplePay {
			rd.Request.PaymentMethod = domain.Wallet{
				Kind:     domain.WalletApplePay,
				ApplePay: &domain.ApplePayToken{PaymentData: domain.NewSecret(`{}`)},
			}
		}

		_, err := c.BuildAuthorizeRequest(rd)
		if err != nil {
			var notImplemented *domain.NotImplementedError
			assert.True(t, errors.As(err, &notImplemented), "payment method %s: %v", pm.Name(), err)
		}
	}
}

func TestAttemptStatusMappingIsTotal(t *testing.T) {
	for _, s := range allPaymentStatuses() {
		for _, txn := range allTransactionTypes() {
			assert.NotEmpty(t, mapAttemptStatus(s, txn), "%s/%s", s, txn)
		}
		assert.NotEmpty(t, mapRefundStatus(s), string(s))
	}
}

func TestMapAttemptStatusByTransactionType(t *testing.T) {
	tests := []struct {
		status paymentStatus
		txn    transactionType
		want   domain.AttemptStatus
	}{
		{statusSuccess, txnPreauth, domain.StatusAuthorized},
		{statusSuccess, txnDebit, domain.StatusCharged},
		{statusSuccess, txnCapture, domain.StatusCharged},
		{statusSuccess, txnCancel, domain.StatusVoided},
		{statusDeclined, txnPreauth, domain.StatusAuthorizationFailed},
		{statusExpired, txnCapture, domain.StatusCaptureFailed},
		{statusAborted, txnCancel, domain.StatusVoidFailed},
		{statusOk, txnPreauth, domain.StatusAuthorized},
		{statusOk, txnDebit, domain.StatusPending},
		{statusPending, txnDebit, domain.StatusAuthenticationPending},
		{statusInProgress, txnDebit, domain.StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapAttemptStatus(tt.status, tt.txn), "%s/%s", tt.status, tt.txn)
	}
}

func TestHandleAuthorizeResponsePreauth(t *testing.T) {
	body := []byte(`{
		"orderId": "ord-1",
		"transactionType": "PREAUTH",
		"transactions": [{"transactionId": "txn-1", "type": "PREAUTH", "currency": "EUR", "status": "SUCCESS"}],
		"paymentInstrument": {"paymentInstrumentId": "instr-55"}
	}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 200, body))

	assert.Equal(t, domain.StatusAuthorized, rd.Status)
	data, _ := rd.Response.Get()
	assert.Empty(t, data.ResourceID)
	assert.Equal(t, "ord-1", data.ConnectorResponseReferenceID)
	require.NotNil(t, data.MandateReference)
	assert.Equal(t, "instr-55", data.MandateReference.ConnectorMandateID)

	var meta paymentsMetadata
	require.NoError(t, json.Unmarshal(data.ConnectorMetadata, &meta))
	assert.Equal(t, "txn-1", meta.TransactionID)
	assert.Equal(t, "ord-1", meta.OrderID)
	assert.Equal(t, txnPreauth, meta.PsyncFlow)
}

func TestHandleAuthorizeResponseDebitWithRedirect(t *testing.T) {
	body := []byte(`{
		"orderId": "ord-2",
		"transactionType": "DEBIT",
		"transactions": [{"transactionId": "txn-2", "type": "DEBIT", "currency": "EUR", "status": "PENDING"}],
		"paymentInstrument": {},
		"redirectUrl": "https://pay.example.com/hop"
	}`)

	rd := newAuthorizeRD(domain.BankRedirect{Kind: domain.BankRedirectIdeal})
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 200, body))

	assert.Equal(t, domain.StatusAuthenticationPending, rd.Status)
	data, _ := rd.Response.Get()
	assert.Equal(t, "txn-2", data.ResourceID)
	require.NotNil(t, data.Redirection)
	assert.Equal(t, http.MethodGet, data.Redirection.Method)
	assert.Equal(t, "https://pay.example.com/hop", data.Redirection.Endpoint)
	assert.Nil(t, data.MandateReference)
}

func TestHandleAuthorizeResponseNoTransactions(t *testing.T) {
	body := []byte(`{"orderId": "ord-3", "transactionType": "DEBIT", "transactions": []}`)

	rd := newAuthorizeRD(testCard())
	err := New("https://base").HandleAuthorizeResponse(rd, 200, body)
	assert.ErrorIs(t, err, domain.ErrResponseHandlingFailed)
}

func TestBuildCaptureRequest(t *testing.T) {
	rd := &domain.CaptureRouterData{
		AuthType:          testAuth(),
		ConnectorMetadata: testMetadata(),
		Request: domain.CaptureData{
			AmountToCapture:        1050,
			Currency:               domain.EUR,
			ConnectorTransactionID: "txn-1",
		},
	}
	req, err := New("https://base").BuildCaptureRequest(rd)
	require.NoError(t, err)

	assert.Equal(t, "https://base/orders/ord-1/transactions/txn-1/capture", req.URL)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, float64(1050), payload["initialAmount"])
	assert.Equal(t, "EUR", payload["currency"])
}

func TestBuildCaptureRequestMissingMetadata(t *testing.T) {
	rd := &domain.CaptureRouterData{
		AuthType: testAuth(),
		Request:  domain.CaptureData{ConnectorTransactionID: "txn-1"},
	}
	_, err := New("https://base").BuildCaptureRequest(rd)
	assert.ErrorIs(t, err, domain.ErrMissingConnectorTransactionID)
}

func TestHandleCaptureResponse(t *testing.T) {
	body := []byte(`{"transactionId": "txn-9", "status": "SUCCESS", "order": {"orderId": "ord-1"}, "type": "CAPTURE"}`)

	rd := &domain.CaptureRouterData{Request: domain.CaptureData{ConnectorTransactionID: "txn-1"}}
	require.NoError(t, New("https://base").HandleCaptureResponse(rd, 200, body))

	assert.Equal(t, domain.StatusCharged, rd.Status)
	data, _ := rd.Response.Get()
	assert.Equal(t, "txn-9", data.ResourceID)
	assert.Equal(t, "ord-1", data.ConnectorResponseReferenceID)
}

func TestHandleVoidResponse(t *testing.T) {
	body := []byte(`{"transactionId": "txn-9", "status": "SUCCESS", "order": {"orderId": "ord-1"}, "type": "CANCEL"}`)

	rd := &domain.CancelRouterData{Request: domain.CancelData{ConnectorTransactionID: "txn-1"}}
	require.NoError(t, New("https://base").HandleVoidResponse(rd, 200, body))

	assert.Equal(t, domain.StatusVoided, rd.Status)
	data, _ := rd.Response.Get()
	assert.Empty(t, data.ResourceID)
}

func TestBuildSyncRequestUsesMetadata(t *testing.T) {
	rd := &domain.SyncRouterData{
		AuthType:          testAuth(),
		ConnectorMetadata: testMetadata(),
		Request:           domain.SyncData{ConnectorTransactionID: "txn-1"},
	}
	req, err := New("https://base").BuildSyncRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://base/orders/ord-1/transactions/txn-1", req.URL)
}

func TestBuildRefundRequest(t *testing.T) {
	rd := &domain.RefundRouterData{
		AuthType:          testAuth(),
		ConnectorMetadata: testMetadata(),
		Request: domain.RefundData{
			RefundAmount:           500,
			Currency:               domain.EUR,
			ConnectorTransactionID: "txn-1",
		},
	}
	req, err := New("https://base").BuildRefundRequest(rd)
	require.NoError(t, err)
	assert.Equal(t, "https://base/orders/ord-1/transactions/txn-1/refund", req.URL)
}

func TestHandleRefundResponse(t *testing.T) {
	body := []byte(`{"transactionId": "txn-r1", "status": "IN_PROGRESS", "order": {"orderId": "ord-1"}, "type": "REFUND"}`)

	rd := &domain.RefundRouterData{Request: domain.RefundData{ConnectorTransactionID: "txn-1"}}
	require.NoError(t, New("https://base").HandleRefundResponse(rd, 200, body))

	data, _ := rd.Response.Get()
	assert.Equal(t, "txn-r1", data.ConnectorRefundID)
	assert.Equal(t, domain.RefundPending, data.Status)
}

func TestHandleAuthorizeResponseErrorBody(t *testing.T) {
	body := []byte(`{
		"status": 400,
		"code": 1007,
		"message": "Validation failed",
		"errors": [{"code": 1008, "message": "must not be empty", "field": "payment.cardNumber"}]
	}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 400, body))

	_, errResp := rd.Response.Get()
	require.NotNil(t, errResp)
	assert.Equal(t, "1007", errResp.Code)
	assert.Equal(t, "Validation failed", errResp.Message)
	assert.Equal(t, "payment.cardNumber: must not be empty", errResp.Reason)
	assert.Equal(t, 400, errResp.StatusCode)
}
