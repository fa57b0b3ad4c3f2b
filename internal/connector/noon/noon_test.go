package noon

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexpay/payment-switch/internal/domain"
)

func testAuth() domain.ConnectorAuthType {
	return domain.SignatureKey{
		APIKey:    domain.NewSecret("api-key"),
		Key1:      domain.NewSecret("business-1"),
		APISecret: domain.NewSecret("app-1"),
	}
}

func testCard() domain.Card {
	return domain.Card{
		Number:   domain.NewSecret("4242424242424242"),
		ExpMonth: domain.NewSecret("11"),
		ExpYear:  domain.NewSecret("28"),
		CVC:      domain.NewSecret("737"),
	}
}

func newAuthorizeRD(pm domain.PaymentMethod) *domain.AuthorizeRouterData {
	return &domain.AuthorizeRouterData{
		Connector:                   connectorName,
		AuthType:                    testAuth(),
		ConnectorRequestReferenceID: "ref-42",
		Description:                 "  Plan  upgrade  ",
		Billing: &domain.Address{
			Line1:   domain.NewSecret("1 Main St"),
			City:    "Dubai",
			Country: "AE",
			Zip:     domain.NewSecret("00000"),
		},
		Request: domain.AuthorizeData{
			Amount:          2999,
			Currency:        domain.USD,
			PaymentMethod:   pm,
			OrderCategory:   "pay",
			RouterReturnURL: "https://merchant.example.com/return",
		},
	}
}

func TestAuthHeader(t *testing.T) {
	header, err := authHeader(testAuth())
	require.NoError(t, err)
	want := "Key " + base64.StdEncoding.EncodeToString([]byte("business-1.app-1:api-key"))
	assert.Equal(t, want, header)

	_, err = authHeader(domain.HeaderKey{APIKey: domain.NewSecret("x")})
	assert.ErrorIs(t, err, domain.ErrFailedToObtainAuthType)
}

func TestBuildAuthorizeRequestCard(t *testing.T) {
	req, err := New("https://base").BuildAuthorizeRequest(newAuthorizeRD(testCard()))
	require.NoError(t, err)

	assert.Equal(t, "https://base/payment/v1/order", req.URL)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "INITIATE", payload["apiOperation"])

	ord := payload["order"].(map[string]any)
	assert.Equal(t, "29.99", ord["amount"])
	assert.Equal(t, "USD", ord["currency"])
	assert.Equal(t, "WEB", ord["channel"])
	assert.Equal(t, "pay", ord["category"])
	assert.Equal(t, "ref-42", ord["reference"])
	assert.Equal(t, "Plan upgrade", ord["name"])

	conf := payload["configuration"].(map[string]any)
	assert.Equal(t, "SALE", conf["paymentAction"])
	assert.Equal(t, "https://merchant.example.com/return", conf["returnUrl"])
	assert.NotContains(t, conf, "tokenizeCC")

	pd := payload["paymentData"].(map[string]any)
	assert.Equal(t, "CARD", pd["type"])
	card := pd["data"].(map[string]any)
	assert.Equal(t, "4242424242424242", card["numberPlain"])
	assert.Equal(t, "2028", card["expiryYear"])

	bill := payload["billing"].(map[string]any)["address"].(map[string]any)
	assert.Equal(t, "1 Main St", bill["street"])
	assert.Equal(t, "AE", bill["country"])
}

func TestBuildAuthorizeRequestManualCapture(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.CaptureMethod = domain.CaptureManual

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "AUTHORIZE", payload["configuration"].(map[string]any)["paymentAction"])
}

func TestBuildAuthorizeRequestMandateSetup(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.SetupMandateDetails = &domain.SetupMandateDetails{MaxAmount: 50000, Currency: domain.USD}

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	sub := payload["subscription"].(map[string]any)
	assert.Equal(t, "UNSCHEDULED", sub["type"])
	assert.Equal(t, "Plan upgrade", sub["name"])
	assert.Equal(t, "500.00", sub["maxAmount"])
	assert.Equal(t, true, payload["configuration"].(map[string]any)["tokenizeCC"])
}

func TestBuildAuthorizeRequestMandateReuse(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.MandateID = "sub-77"

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	pd := payload["paymentData"].(map[string]any)
	assert.Equal(t, "SUBSCRIPTION", pd["type"])
	assert.Equal(t, "sub-77", pd["data"].(map[string]any)["subscriptionIdentifier"])

	// Subscription payments carry neither currency nor category.
	ord := payload["order"].(map[string]any)
	assert.NotContains(t, ord, "currency")
	assert.NotContains(t, ord, "category")
}

func TestBuildAuthorizeRequestRequiresDescriptionAndCategory(t *testing.T) {
	var missingField *domain.MissingRequiredFieldError

	rd := newAuthorizeRD(testCard())
	rd.Description = ""
	_, err := New("https://base").BuildAuthorizeRequest(rd)
	require.True(t, errors.As(err, &missingField))
	assert.Equal(t, "description", missingField.FieldName)

	rd = newAuthorizeRD(testCard())
	rd.Request.OrderCategory = ""
	_, err = New("https://base").BuildAuthorizeRequest(rd)
	require.True(t, errors.As(err, &missingField))
	assert.Equal(t, "order_category", missingField.FieldName)
}

func TestBuildAuthorizeRequestMetadataNvp(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.Metadata = map[string]any{
		"plan":  "gold",
		"seats": float64(4),
	}

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	nvp := payload["order"].(map[string]any)["nvp"].(map[string]any)
	assert.Equal(t, "plan=gold", nvp["1"])
	assert.Equal(t, "seats=4", nvp["2"])
}

func TestBuildAuthorizeRequestMetadataNvpUnencodable(t *testing.T) {
	rd := newAuthorizeRD(testCard())
	rd.Request.Metadata = map[string]any{
		"plan":     "gold",
		"progress": make(chan int),
	}

	_, err := New("https://base").BuildAuthorizeRequest(rd)
	assert.ErrorIs(t, err, domain.ErrRequestEncodingFailed)
}

func TestBuildAuthorizeRequestGooglePay(t *testing.T) {
	rd := newAuthorizeRD(domain.Wallet{
		Kind: domain.WalletGooglePay,
		GooglePay: &domain.GooglePayToken{
			Token:       domain.NewSecret(`{"signature":"sig"}`),
			Network:     "VISA",
			Description: "Visa 1111",
		},
	})

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	pd := payload["paymentData"].(map[string]any)
	assert.Equal(t, "GOOGLEPAY", pd["type"])
	data := pd["data"].(map[string]any)
	assert.Equal(t, float64(2), data["apiVersion"])
	assert.Equal(t, float64(0), data["apiVersionMinor"])
	method := data["paymentMethodData"].(map[string]any)
	assert.Equal(t, "VISA", method["info"].(map[string]any)["cardNetwork"])
	tok := method["tokenizationData"].(map[string]any)
	assert.Equal(t, "PAYMENT_GATEWAY", tok["type"])
	assert.Equal(t, `{"signature":"sig"}`, tok["token"])
}

func TestBuildAuthorizeRequestApplePay(t *testing.T) {
	rd := newAuthorizeRD(domain.Wallet{
		Kind: domain.WalletApplePay,
		ApplePay: &domain.ApplePayToken{
			PaymentData:           domain.NewSecret(`{"data":"opaque","version":"EC_v1"}`),
			DisplayName:           "Visa 1234",
			Network:               "Visa",
			TokenType:             "credit",
			TransactionIdentifier: "txid-1",
		},
	})

	req, err := New("https://base").BuildAuthorizeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	pd := payload["paymentData"].(map[string]any)
	assert.Equal(t, "APPLEPAY", pd["type"])

	info := pd["data"].(map[string]any)["paymentInfo"].(string)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal([]byte(info), &envelope))
	token := envelope["token"].(map[string]any)
	assert.Equal(t, "opaque", token["paymentData"].(map[string]any)["data"])
	assert.Equal(t, "credit", token["paymentMethod"].(map[string]any)["type"])
	assert.Equal(t, "txid-1", token["transactionIdentifier"])
}

func TestBuildAuthorizeRequestUnsupportedMethods(t *testing.T) {
	c := New("https://base")
	for _, pm := range domain.AllPaymentMethodVariants() {
		rd := newAuthorizeRD(pm)
		switch w := pm.(type) {
		case domain.Wallet:
			if w.Kind == domain.WalletGooglePay {
				rd.Request.PaymentMethod = domain.Wallet{
					Kind:      domain.WalletGooglePay,
					GooglePay: &domain.GooglePayToken{Token: domain.NewSecret("t")},
				}
			}
			if w.Kind == domain.WalletApplePay {
				rd.Request.PaymentMethod = domain.Wallet{
					Kind:     domain.WalletApplePay,
					ApplePay: &domain.ApplePayToken{PaymentData: domain.NewSecret(`{}`)},
				}
			}
		}

		_, err := c.BuildAuthorizeRequest(rd)
		if err != nil {
			var notImplemented *domain.NotImplementedError
			assert.True(t, errors.As(err, &notImplemented), "payment method %s: %v", pm.Name(), err)
		}
	}
}

func TestOrderName(t *testing.T) {
	assert.Equal(t, "Plan upgrade", orderName("  Plan   upgrade "))
	long := orderName("this description is quite a bit longer than the fifty character limit")
	assert.Len(t, long, 50)
}

func TestOrderNameCapsByCharactersNotBytes(t *testing.T) {
	// 17 characters but 51 bytes: under the cap, must pass through intact.
	short := strings.Repeat("€", 17)
	assert.Equal(t, short, orderName(short))

	long := orderName(strings.Repeat("€", 60))
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, 50, utf8.RuneCountInString(long))
}

func TestAttemptStatusMappingIsTotal(t *testing.T) {
	for _, s := range allPaymentStatuses() {
		assert.NotEmpty(t, mapAttemptStatus(s, domain.StatusAuthorized), string(s))
	}
}

func TestMapAttemptStatusLockedPreservesCurrent(t *testing.T) {
	assert.Equal(t, domain.StatusAuthorized, mapAttemptStatus(statusLocked, domain.StatusAuthorized))
	assert.Equal(t, domain.StatusCharged, mapAttemptStatus(statusLocked, domain.StatusCharged))
}

func TestHandleAuthorizeResponseSuccess(t *testing.T) {
	body := []byte(`{
		"result": {
			"order": {"status": "CAPTURED", "id": 160, "errorCode": 0, "reference": "ref-42"},
			"subscription": {"identifier": "sub-9"}
		}
	}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 200, body))

	assert.Equal(t, domain.StatusCharged, rd.Status)
	data, _ := rd.Response.Get()
	assert.Equal(t, "160", data.ResourceID)
	assert.Equal(t, "ref-42", data.ConnectorResponseReferenceID)
	require.NotNil(t, data.MandateReference)
	assert.Equal(t, "sub-9", data.MandateReference.ConnectorMandateID)
}

func TestHandleAuthorizeResponseCheckoutRedirect(t *testing.T) {
	body := []byte(`{
		"result": {
			"order": {"status": "3DS_ENROLL_INITIATED", "id": 161, "errorCode": 0},
			"checkoutData": {"postUrl": "https://checkout.example.com/pay"}
		}
	}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 200, body))

	assert.Equal(t, domain.StatusAuthenticationPending, rd.Status)
	data, _ := rd.Response.Get()
	require.NotNil(t, data.Redirection)
	assert.Equal(t, "POST", data.Redirection.Method)
	assert.Equal(t, "https://checkout.example.com/pay", data.Redirection.Endpoint)
}

func TestHandleAuthorizeResponseOrderError(t *testing.T) {
	body := []byte(`{
		"result": {
			"order": {"status": "FAILED", "id": 162, "errorCode": 19024, "errorMessage": "Insufficient funds"}
		}
	}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 200, body))

	assert.Equal(t, domain.StatusFailure, rd.Status)
	_, errResp := rd.Response.Get()
	require.NotNil(t, errResp)
	assert.Equal(t, "19024", errResp.Code)
	assert.Equal(t, "Insufficient funds", errResp.Message)
	assert.Equal(t, "162", errResp.ConnectorTransactionID)
	require.NotNil(t, errResp.AttemptStatus)
	assert.Equal(t, domain.StatusFailure, *errResp.AttemptStatus)
}

func TestHandleSyncResponseLockedKeepsStatus(t *testing.T) {
	body := []byte(`{"result": {"order": {"status": "LOCKED", "id": 163, "errorCode": 0}}}`)

	rd := &domain.SyncRouterData{
		AuthType: testAuth(),
		Status:   domain.StatusAuthorized,
		Request:  domain.SyncData{ConnectorTransactionID: "163"},
	}
	require.NoError(t, New("https://base").HandleSyncResponse(rd, 200, body))
	assert.Equal(t, domain.StatusAuthorized, rd.Status)
}

func TestBuildCaptureRequest(t *testing.T) {
	rd := &domain.CaptureRouterData{
		AuthType: testAuth(),
		Request: domain.CaptureData{
			AmountToCapture:        2999,
			Currency:               domain.USD,
			ConnectorTransactionID: "160",
		},
	}
	req, err := New("https://base").BuildCaptureRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "CAPTURE", payload["apiOperation"])
	assert.Equal(t, "160", payload["order"].(map[string]any)["id"])
	txn := payload["transaction"].(map[string]any)
	assert.Equal(t, "29.99", txn["amount"])
	assert.Equal(t, "USD", txn["currency"])
}

func TestBuildVoidRequest(t *testing.T) {
	rd := &domain.CancelRouterData{
		AuthType: testAuth(),
		Request:  domain.CancelData{ConnectorTransactionID: "160"},
	}
	req, err := New("https://base").BuildVoidRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "REVERSE", payload["apiOperation"])
	assert.NotContains(t, payload, "transaction")
}

func TestBuildRefundRequestCarriesReference(t *testing.T) {
	rd := &domain.RefundRouterData{
		AuthType: testAuth(),
		Request: domain.RefundData{
			RefundID:               "ref-re-1",
			ConnectorTransactionID: "160",
			RefundAmount:           1000,
			Currency:               domain.USD,
		},
	}
	req, err := New("https://base").BuildRefundRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "REFUND", payload["apiOperation"])
	txn := payload["transaction"].(map[string]any)
	assert.Equal(t, "10.00", txn["amount"])
	assert.Equal(t, "ref-re-1", txn["transactionReference"])
}

func TestHandleRefundResponseFailure(t *testing.T) {
	body := []byte(`{
		"result": {"transaction": {"id": "txn-5", "status": "FAILED"}},
		"resultCode": 5001,
		"classDescription": "Refund declined",
		"message": "refund rejected by issuer"
	}`)

	rd := &domain.RefundRouterData{Request: domain.RefundData{ConnectorTransactionID: "160"}}
	require.NoError(t, New("https://base").HandleRefundResponse(rd, 200, body))

	_, errResp := rd.Response.Get()
	require.NotNil(t, errResp)
	assert.Equal(t, "5001", errResp.Code)
	assert.Equal(t, "Refund declined", errResp.Message)
	assert.Equal(t, "txn-5", errResp.ConnectorTransactionID)
}

func TestHandleRefundSyncResponseMatchesReference(t *testing.T) {
	body := []byte(`{
		"result": {"transactions": [
			{"id": "txn-4", "status": "SUCCESS", "transactionReference": "other"},
			{"id": "txn-5", "status": "PENDING", "transactionReference": "ref-re-1"}
		]}
	}`)

	rd := &domain.RefundRouterData{
		Request: domain.RefundData{RefundID: "ref-re-1", ConnectorTransactionID: "160"},
	}
	require.NoError(t, New("https://base").HandleRefundSyncResponse(rd, 200, body))

	data, _ := rd.Response.Get()
	assert.Equal(t, "txn-5", data.ConnectorRefundID)
	assert.Equal(t, domain.RefundPending, data.Status)
}

func TestHandleRefundSyncResponseNoMatch(t *testing.T) {
	body := []byte(`{"result": {"transactions": []}}`)

	rd := &domain.RefundRouterData{
		Request: domain.RefundData{RefundID: "ref-re-1", ConnectorTransactionID: "160"},
	}
	err := New("https://base").HandleRefundSyncResponse(rd, 200, body)
	assert.ErrorIs(t, err, domain.ErrResponseHandlingFailed)
}

func TestMandateRevoke(t *testing.T) {
	rd := &domain.MandateRevokeRouterData{
		AuthType: testAuth(),
		Request:  domain.MandateRevokeData{ConnectorMandateID: "sub-9"},
	}
	req, err := New("https://base").BuildMandateRevokeRequest(rd)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "CANCEL_SUBSCRIPTION", payload["apiOperation"])
	assert.Equal(t, "sub-9", payload["subscription"].(map[string]any)["identifier"])

	body := []byte(`{"result": {"subscription": {"status": "CANCELLED"}}}`)
	require.NoError(t, New("https://base").HandleMandateRevokeResponse(rd, 200, body))
	data, _ := rd.Response.Get()
	assert.Equal(t, domain.MandateRevoked, data.Status)
}

func TestTranslateWebhook(t *testing.T) {
	body := []byte(`{"orderId": 160, "orderStatus": "CAPTURED", "eventType": "Sale", "eventId": "ev-1", "timeStamp": "2024-01-02T03:04:05Z"}`)

	event, err := New("https://base").TranslateWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, connectorName, event.Connector)
	assert.Equal(t, "160", event.ObjectReference)
	assert.Equal(t, domain.StatusCharged, event.PaymentStatus)

	refund := []byte(`{"orderId": 160, "orderStatus": "REFUNDED", "eventType": "Refund", "eventId": "ev-2", "timeStamp": "2024-01-02T03:04:06Z"}`)
	event, err = New("https://base").TranslateWebhook(refund)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSuccess, event.RefundStatus)
}

func TestHandleAuthorizeResponseErrorBody(t *testing.T) {
	body := []byte(`{"resultCode": 19001, "message": "Invalid request", "classDescription": "Request validation"}`)

	rd := newAuthorizeRD(testCard())
	require.NoError(t, New("https://base").HandleAuthorizeResponse(rd, 400, body))

	_, errResp := rd.Response.Get()
	require.NotNil(t, errResp)
	assert.Equal(t, "19001", errResp.Code)
	assert.Equal(t, "Request validation", errResp.Message)
	assert.Equal(t, "Invalid request", errResp.Reason)
}
