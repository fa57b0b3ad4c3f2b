package fiserv

import (
	"encoding/json"
	"fmt"

	"github.com/cortexpay/payment-switch/internal/domain"
)

type authCreds struct {
	apiKey     domain.Secret
	merchantID domain.Secret
	apiSecret  domain.Secret
}

func resolveAuth(auth domain.ConnectorAuthType) (authCreds, error) {
	sk, ok := auth.(domain.SignatureKey)
	if !ok {
		return authCreds{}, fmt.Errorf("fiserv: %w", domain.ErrFailedToObtainAuthType)
	}
	return authCreds{apiKey: sk.APIKey, merchantID: sk.Key1, apiSecret: sk.APISecret}, nil
}

// sessionObject is the merchant connector account metadata blob: the terminal
// the merchant transacts through.
type sessionObject struct {
	TerminalID string `json:"terminal_id"`
}

func resolveSession(metadata json.RawMessage) (sessionObject, error) {
	var session sessionObject
	if len(metadata) == 0 {
		return session, &domain.InvalidConnectorConfigError{Config: "Merchant connector account metadata"}
	}
	if err := json.Unmarshal(metadata, &session); err != nil || session.TerminalID == "" {
		return session, &domain.InvalidConnectorConfigError{Config: "Merchant connector account metadata"}
	}
	return session, nil
}

type amount struct {
	Total    domain.FloatMajorUnit `json:"total"`
	Currency string                `json:"currency"`
}

type cardData struct {
	CardData        domain.Secret `json:"cardData"`
	ExpirationMonth domain.Secret `json:"expirationMonth"`
	ExpirationYear  domain.Secret `json:"expirationYear"`
	SecurityCode    domain.Secret `json:"securityCode,omitempty"`
}

type cardSource struct {
	SourceType string   `json:"sourceType"`
	Card       cardData `json:"card"`
}

type intermediateSigningKey struct {
	SignedKey  domain.Secret   `json:"signedKey"`
	Signatures []domain.Secret `json:"signatures"`
}

type googlePaySource struct {
	SourceType             string                 `json:"sourceType"`
	Data                   domain.Secret          `json:"data"`
	Signature              domain.Secret          `json:"signature"`
	Version                string                 `json:"version"`
	IntermediateSigningKey intermediateSigningKey `json:"intermediateSigningKey"`
}

type transactionDetails struct {
	CaptureFlag           *bool  `json:"captureFlag,omitempty"`
	ReversalReasonCode    string `json:"reversalReasonCode,omitempty"`
	MerchantTransactionID string `json:"merchantTransactionId,omitempty"`
}

type merchantDetails struct {
	MerchantID domain.Secret `json:"merchantId"`
	TerminalID domain.Secret `json:"terminalId,omitempty"`
}

type transactionInteraction struct {
	Origin           string `json:"origin"`
	EciIndicator     string `json:"eciIndicator"`
	PosConditionCode string `json:"posConditionCode"`
}

// Card-not-present e-commerce over an encrypted channel; fixed for this
// integration.
func defaultInteraction() *transactionInteraction {
	return &transactionInteraction{
		Origin:           "ECOM",
		EciIndicator:     "CHANNEL_ENCRYPTED",
		PosConditionCode: "CARD_NOT_PRESENT_ECOM",
	}
}

type paymentsRequest struct {
	Amount                 amount                  `json:"amount"`
	Source                 any                     `json:"source"`
	TransactionDetails     transactionDetails      `json:"transactionDetails"`
	MerchantDetails        merchantDetails         `json:"merchantDetails"`
	TransactionInteraction *transactionInteraction `json:"transactionInteraction,omitempty"`
}

type referenceTransactionDetails struct {
	ReferenceTransactionID string `json:"referenceTransactionId"`
}

type captureRequest struct {
	Amount                      amount                      `json:"amount"`
	TransactionDetails          transactionDetails          `json:"transactionDetails"`
	MerchantDetails             merchantDetails             `json:"merchantDetails"`
	ReferenceTransactionDetails referenceTransactionDetails `json:"referenceTransactionDetails"`
}

type cancelRequest struct {
	TransactionDetails          transactionDetails          `json:"transactionDetails"`
	MerchantDetails             merchantDetails             `json:"merchantDetails"`
	ReferenceTransactionDetails referenceTransactionDetails `json:"referenceTransactionDetails"`
}

type syncRequest struct {
	MerchantDetails             merchantDetails             `json:"merchantDetails"`
	ReferenceTransactionDetails referenceTransactionDetails `json:"referenceTransactionDetails"`
}

type refundRequest struct {
	Amount                      amount                      `json:"amount"`
	MerchantDetails             merchantDetails             `json:"merchantDetails"`
	ReferenceTransactionDetails referenceTransactionDetails `json:"referenceTransactionDetails"`
}

// Google Pay hands over a nested token: an outer envelope whose signedKey and
// signedMessage fields are themselves JSON strings. Partial parses keep the
// fields that did decode; the gateway rejects incomplete material itself.
type rawGooglePayToken struct {
	Signature              string `json:"signature"`
	ProtocolVersion        string `json:"protocolVersion"`
	SignedMessage          string `json:"signedMessage"`
	IntermediateSigningKey struct {
		SignedKey  string   `json:"signedKey"`
		Signatures []string `json:"signatures"`
	} `json:"intermediateSigningKey"`
}

type signedKeyPayload struct {
	KeyValue      string `json:"keyValue"`
	KeyExpiration string `json:"keyExpiration"`
}

type signedMessagePayload struct {
	EncryptedMessage   string `json:"encryptedMessage"`
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	Tag                string `json:"tag"`
}

type parsedGooglePayToken struct {
	signature        string
	protocolVersion  string
	encryptedMessage string
	keyValue         string
	keyExpiration    string
	signatures       []string
}

func parseGooglePayToken(token string) parsedGooglePayToken {
	var parsed parsedGooglePayToken

	var raw rawGooglePayToken
	if err := json.Unmarshal([]byte(token), &raw); err != nil {
		return parsed
	}
	parsed.signature = raw.Signature
	parsed.protocolVersion = raw.ProtocolVersion
	parsed.signatures = raw.IntermediateSigningKey.Signatures

	var key signedKeyPayload
	if err := json.Unmarshal([]byte(raw.IntermediateSigningKey.SignedKey), &key); err == nil {
		parsed.keyValue = key.KeyValue
		parsed.keyExpiration = key.KeyExpiration
	}

	var msg signedMessagePayload
	if err := json.Unmarshal([]byte(raw.SignedMessage), &msg); err == nil {
		parsed.encryptedMessage = msg.EncryptedMessage
	}

	return parsed
}

func buildSource(pm domain.PaymentMethod) (any, error) {
	switch v := pm.(type) {
	case domain.Card:
		return cardSource{
			SourceType: "PaymentCard",
			Card: cardData{
				CardData:        v.Number,
				ExpirationMonth: v.ExpMonth,
				ExpirationYear:  v.ExpiryYear4Digit(),
				SecurityCode:    v.CVC,
			},
		}, nil
	case domain.Wallet:
		if v.Kind != domain.WalletGooglePay || v.GooglePay == nil {
			return nil, domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
		parsed := parseGooglePayToken(v.GooglePay.Token.Peek())
		signedKey, err := json.Marshal(signedKeyPayload{
			KeyValue:      parsed.keyValue,
			KeyExpiration: parsed.keyExpiration,
		})
		if err != nil {
			return nil, fmt.Errorf("fiserv: %w: %s", domain.ErrRequestEncodingFailed, err)
		}
		signatures := make([]domain.Secret, 0, len(parsed.signatures))
		for _, s := range parsed.signatures {
			signatures = append(signatures, domain.NewSecret(s))
		}
		return googlePaySource{
			SourceType: "GooglePay",
			Data:       domain.NewSecret(parsed.encryptedMessage),
			Signature:  domain.NewSecret(parsed.signature),
			Version:    parsed.protocolVersion,
			IntermediateSigningKey: intermediateSigningKey{
				SignedKey:  domain.NewSecret(string(signedKey)),
				Signatures: signatures,
			},
		}, nil
	default:
		return nil, domain.NewUnsupportedPaymentMethodError(connectorName, pm)
	}
}

func buildPaymentsRequest(rd *domain.AuthorizeRouterData) (*paymentsRequest, error) {
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	session, err := resolveSession(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	source, err := buildSource(rd.Request.PaymentMethod)
	if err != nil {
		return nil, err
	}

	captureFlag := rd.Request.CaptureMethod.IsAutoCapture()
	return &paymentsRequest{
		Amount: amount{
			Total:    rd.Request.Amount.ToFloatMajorUnit(rd.Request.Currency),
			Currency: rd.Request.Currency.String(),
		},
		Source: source,
		TransactionDetails: transactionDetails{
			CaptureFlag:           &captureFlag,
			MerchantTransactionID: rd.ConnectorRequestReferenceID,
		},
		MerchantDetails: merchantDetails{
			MerchantID: creds.merchantID,
			TerminalID: domain.NewSecret(session.TerminalID),
		},
		TransactionInteraction: defaultInteraction(),
	}, nil
}

// Connector status vocabulary. PROCESSING is what the gateway reports for
// anything still in flight.
type paymentStatus string

const (
	statusSucceeded  paymentStatus = "SUCCEEDED"
	statusFailed     paymentStatus = "FAILED"
	statusCaptured   paymentStatus = "CAPTURED"
	statusDeclined   paymentStatus = "DECLINED"
	statusVoided     paymentStatus = "VOIDED"
	statusAuthorized paymentStatus = "AUTHORIZED"
	statusProcessing paymentStatus = "PROCESSING"
)

func allPaymentStatuses() []paymentStatus {
	return []paymentStatus{
		statusSucceeded, statusFailed, statusCaptured, statusDeclined,
		statusVoided, statusAuthorized, statusProcessing,
	}
}

func mapAttemptStatus(s paymentStatus) domain.AttemptStatus {
	switch s {
	case statusCaptured, statusSucceeded:
		return domain.StatusCharged
	case statusDeclined, statusFailed:
		return domain.StatusFailure
	case statusVoided:
		return domain.StatusVoided
	case statusAuthorized:
		return domain.StatusAuthorized
	default:
		return domain.StatusAuthorizing
	}
}

func mapRefundStatus(s paymentStatus) domain.RefundStatus {
	switch s {
	case statusSucceeded, statusAuthorized, statusCaptured:
		return domain.RefundSuccess
	case statusDeclined, statusFailed:
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

type transactionProcessingDetails struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
}

type gatewayResponse struct {
	GatewayTransactionID         string                       `json:"gatewayTransactionId,omitempty"`
	TransactionState             paymentStatus                `json:"transactionState"`
	TransactionProcessingDetails transactionProcessingDetails `json:"transactionProcessingDetails"`
}

type paymentsResponse struct {
	GatewayResponse gatewayResponse `json:"gatewayResponse"`
}

func paymentsResponseData(resp *paymentsResponse) (domain.AttemptStatus, domain.PaymentsResponseData) {
	details := resp.GatewayResponse.TransactionProcessingDetails
	return mapAttemptStatus(resp.GatewayResponse.TransactionState), domain.PaymentsResponseData{
		ResourceID:                   details.TransactionID,
		ConnectorResponseReferenceID: details.OrderID,
	}
}

type errorDetails struct {
	Type           string `json:"type,omitempty"`
	Code           string `json:"code,omitempty"`
	Field          string `json:"field,omitempty"`
	Message        string `json:"message,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

type apiErrorResponse struct {
	Error []errorDetails `json:"error,omitempty"`
}

func toErrorResponse(statusCode int, body []byte) domain.ErrorResponse {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Error) == 0 {
		return domain.ErrorResponse{
			Code:       domain.NoErrorCode,
			Message:    domain.NoErrorMessage,
			Reason:     string(body),
			StatusCode: statusCode,
		}
	}
	first := resp.Error[0]
	code := first.Code
	if code == "" {
		code = domain.NoErrorCode
	}
	message := first.Message
	if message == "" {
		message = domain.NoErrorMessage
	}
	reason := first.Field
	if reason != "" && first.Message != "" {
		reason = fmt.Sprintf("%s: %s", first.Field, first.Message)
	}
	return domain.ErrorResponse{
		Code:       code,
		Message:    message,
		Reason:     reason,
		StatusCode: statusCode,
	}
}
