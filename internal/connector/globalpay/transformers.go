package globalpay

import (
	"encoding/json"
	"fmt"

	"github.com/cortexpay/payment-switch/internal/domain"
)

type authCreds struct {
	appKey domain.Secret
	appID  domain.Secret
}

func resolveAuth(auth domain.ConnectorAuthType) (authCreds, error) {
	bk, ok := auth.(domain.BodyKey)
	if !ok {
		return authCreds{}, fmt.Errorf("globalpay: %w", domain.ErrFailedToObtainAuthType)
	}
	return authCreds{appKey: bk.APIKey, appID: bk.Key1}, nil
}

// connectorMeta is the merchant connector account metadata: the processing
// account payments run against.
type connectorMeta struct {
	AccountName string `json:"account_name"`
}

func resolveMeta(metadata json.RawMessage) (connectorMeta, error) {
	var meta connectorMeta
	if len(metadata) == 0 {
		return meta, &domain.InvalidConnectorConfigError{Config: "Merchant connector account metadata"}
	}
	if err := json.Unmarshal(metadata, &meta); err != nil || meta.AccountName == "" {
		return meta, &domain.InvalidConnectorConfigError{Config: "Merchant connector account metadata"}
	}
	return meta, nil
}

type captureMode string

const (
	captureModeAuto     captureMode = "AUTO"
	captureModeLater    captureMode = "LATER"
	captureModeMultiple captureMode = "MULTIPLE"
)

func toCaptureMode(m domain.CaptureMethod) captureMode {
	switch m {
	case domain.CaptureManual:
		return captureModeLater
	case domain.CaptureManualMultiple:
		return captureModeMultiple
	default:
		return captureModeAuto
	}
}

type cardPayload struct {
	Number         domain.Secret `json:"number"`
	ExpiryMonth    domain.Secret `json:"expiry_month"`
	ExpiryYear     domain.Secret `json:"expiry_year"`
	Cvv            domain.Secret `json:"cvv,omitempty"`
	BrandReference string        `json:"brand_reference,omitempty"`
}

type digitalWallet struct {
	Provider     string        `json:"provider"`
	PaymentToken domain.Secret `json:"payment_token"`
}

type apm struct {
	Provider string `json:"provider"`
}

type paymentMethod struct {
	EntryMode     string         `json:"entry_mode"`
	Name          domain.Secret  `json:"name,omitempty"`
	Card          *cardPayload   `json:"card,omitempty"`
	DigitalWallet *digitalWallet `json:"digital_wallet,omitempty"`
	Apm           *apm           `json:"apm,omitempty"`
}

type notifications struct {
	ReturnURL string `json:"return_url,omitempty"`
	StatusURL string `json:"status_url,omitempty"`
}

type storedCredential struct {
	Model    string `json:"model"`
	Sequence string `json:"sequence"`
}

type paymentsRequest struct {
	AccountName      string                 `json:"account_name"`
	Amount           domain.StringMinorUnit `json:"amount"`
	Currency         string                 `json:"currency"`
	Reference        string                 `json:"reference"`
	Country          string                 `json:"country,omitempty"`
	CaptureMode      captureMode            `json:"capture_mode"`
	Channel          string                 `json:"channel"`
	Initiator        string                 `json:"initiator,omitempty"`
	StoredCredential *storedCredential      `json:"stored_credential,omitempty"`
	PaymentMethod    paymentMethod          `json:"payment_method"`
	Notifications    *notifications         `json:"notifications,omitempty"`
}

func buildPaymentMethod(rd *domain.AuthorizeRouterData) (paymentMethod, error) {
	pm := paymentMethod{EntryMode: "ECOM"}

	switch v := rd.Request.PaymentMethod.(type) {
	case domain.Card:
		pm.Name = rd.OptionalBillingFullName()
		pm.Card = &cardPayload{
			Number:         v.Number,
			ExpiryMonth:    v.ExpMonth,
			ExpiryYear:     v.ExpiryYear2Digit(),
			Cvv:            v.CVC,
			BrandReference: rd.Request.MandateID,
		}
	case domain.Wallet:
		switch v.Kind {
		case domain.WalletGooglePay:
			if v.GooglePay == nil {
				return pm, domain.NewUnsupportedPaymentMethodError(connectorName, v)
			}
			pm.DigitalWallet = &digitalWallet{
				Provider:     "PAY_BY_GOOGLE",
				PaymentToken: v.GooglePay.Token,
			}
		case domain.WalletPaypalRedirect:
			pm.Apm = &apm{Provider: "paypal"}
		default:
			return pm, domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
	case domain.BankRedirect:
		switch v.Kind {
		case domain.BankRedirectEps:
			pm.Apm = &apm{Provider: "eps"}
		case domain.BankRedirectGiropay:
			pm.Apm = &apm{Provider: "giropay"}
		case domain.BankRedirectIdeal:
			pm.Apm = &apm{Provider: "ideal"}
		case domain.BankRedirectSofort:
			pm.Apm = &apm{Provider: "sofort"}
		default:
			return pm, domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
	default:
		return pm, domain.NewUnsupportedPaymentMethodError(connectorName, rd.Request.PaymentMethod)
	}
	return pm, nil
}

func buildPaymentsRequest(rd *domain.AuthorizeRouterData) (*paymentsRequest, error) {
	meta, err := resolveMeta(rd.ConnectorMetadata)
	if err != nil {
		return nil, err
	}
	pm, err := buildPaymentMethod(rd)
	if err != nil {
		return nil, err
	}

	req := &paymentsRequest{
		AccountName:   meta.AccountName,
		Amount:        rd.Request.Amount.ToStringMinorUnit(),
		Currency:      rd.Request.Currency.String(),
		Reference:     rd.ConnectorRequestReferenceID,
		CaptureMode:   toCaptureMode(rd.Request.CaptureMethod),
		Channel:       "CNP",
		PaymentMethod: pm,
	}
	if rd.Billing != nil {
		req.Country = rd.Billing.Country
	}

	returnURL := rd.Request.RouterReturnURL
	// PayPal returns through the complete-authorize hop, not the final
	// return URL.
	if w, ok := rd.Request.PaymentMethod.(domain.Wallet); ok && w.Kind == domain.WalletPaypalRedirect {
		returnURL = rd.Request.CompleteAuthorizeURL
	}
	if returnURL != "" || rd.Request.WebhookURL != "" {
		req.Notifications = &notifications{
			ReturnURL: returnURL,
			StatusURL: rd.Request.WebhookURL,
		}
	}

	if rd.Request.IsMandatePayment() {
		if rd.Request.OffSession {
			req.Initiator = "MERCHANT"
		} else {
			req.Initiator = "PAYER"
		}
		sequence := "FIRST"
		if rd.Request.MandateID != "" {
			sequence = "SUBSEQUENT"
		}
		req.StoredCredential = &storedCredential{Model: "RECURRING", Sequence: sequence}
	}

	return req, nil
}

type captureRequest struct {
	Amount          domain.StringMinorUnit `json:"amount"`
	CaptureSequence string                 `json:"capture_sequence,omitempty"`
	Reference       string                 `json:"reference,omitempty"`
}

type amountRequest struct {
	Amount domain.StringMinorUnit `json:"amount"`
}

// Token refresh: the secret is the SHA-512 of nonce + app key, hex encoded.
type accessTokenRequest struct {
	AppID     domain.Secret `json:"app_id"`
	Nonce     domain.Secret `json:"nonce"`
	Secret    domain.Secret `json:"secret"`
	GrantType string        `json:"grant_type"`
}

type accessTokenResponse struct {
	Token           string `json:"token"`
	SecondsToExpire int64  `json:"seconds_to_expire"`
}

type paymentStatus string

const (
	statusCaptured      paymentStatus = "CAPTURED"
	statusDeclined      paymentStatus = "DECLINED"
	statusFunded        paymentStatus = "FUNDED"
	statusInitiated     paymentStatus = "INITIATED"
	statusPending       paymentStatus = "PENDING"
	statusPreauthorized paymentStatus = "PREAUTHORIZED"
	statusRejected      paymentStatus = "REJECTED"
	statusReversed      paymentStatus = "REVERSED"
)

func allPaymentStatuses() []paymentStatus {
	return []paymentStatus{
		statusCaptured, statusDeclined, statusFunded, statusInitiated,
		statusPending, statusPreauthorized, statusRejected, statusReversed,
	}
}

func mapAttemptStatus(s paymentStatus) domain.AttemptStatus {
	switch s {
	case statusCaptured, statusFunded:
		return domain.StatusCharged
	case statusDeclined, statusRejected:
		return domain.StatusFailure
	case statusPreauthorized:
		return domain.StatusAuthorized
	case statusReversed:
		return domain.StatusVoided
	case statusInitiated:
		return domain.StatusAuthenticationPending
	default:
		return domain.StatusPending
	}
}

func mapRefundStatus(s paymentStatus) domain.RefundStatus {
	switch s {
	case statusCaptured, statusFunded:
		return domain.RefundSuccess
	case statusDeclined, statusRejected:
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

type responseCard struct {
	BrandReference string `json:"brand_reference,omitempty"`
}

type responseApm struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type responsePaymentMethod struct {
	Result  string        `json:"result,omitempty"`
	Message string        `json:"message,omitempty"`
	Card    *responseCard `json:"card,omitempty"`
	Apm     *responseApm  `json:"apm,omitempty"`
}

type paymentsResponse struct {
	ID            string                 `json:"id"`
	Status        paymentStatus          `json:"status"`
	Reference     string                 `json:"reference,omitempty"`
	PaymentMethod *responsePaymentMethod `json:"payment_method,omitempty"`
}

// translatePayments folds a transaction reply. A declined status carries the
// processor message as the normalized error; an APM redirect URL turns into a
// GET hop.
func translatePayments(resp *paymentsResponse, httpCode int) (domain.AttemptStatus, domain.Result[domain.PaymentsResponseData]) {
	status := mapAttemptStatus(resp.Status)

	if status == domain.StatusFailure {
		code := domain.NoErrorCode
		message := domain.NoErrorMessage
		if resp.PaymentMethod != nil {
			if resp.PaymentMethod.Result != "" {
				code = resp.PaymentMethod.Result
			}
			if resp.PaymentMethod.Message != "" {
				message = resp.PaymentMethod.Message
			}
		}
		return status, domain.ErrResult[domain.PaymentsResponseData](domain.ErrorResponse{
			Code:                   code,
			Message:                message,
			StatusCode:             httpCode,
			AttemptStatus:          &status,
			ConnectorTransactionID: resp.ID,
		})
	}

	data := domain.PaymentsResponseData{
		ResourceID:                   resp.ID,
		ConnectorResponseReferenceID: resp.Reference,
	}
	if resp.PaymentMethod != nil {
		if resp.PaymentMethod.Apm != nil && resp.PaymentMethod.Apm.RedirectURL != "" {
			data.Redirection = domain.NewGetRedirect(resp.PaymentMethod.Apm.RedirectURL)
		}
		if resp.PaymentMethod.Card != nil && resp.PaymentMethod.Card.BrandReference != "" {
			data.MandateReference = domain.MandateIDFromConnector(resp.PaymentMethod.Card.BrandReference)
		}
	}
	return status, domain.OkResult(data)
}

type apiErrorResponse struct {
	ErrorCode                string `json:"error_code,omitempty"`
	DetailedErrorCode        string `json:"detailed_error_code,omitempty"`
	DetailedErrorDescription string `json:"detailed_error_description,omitempty"`
}

func toErrorResponse(statusCode int, body []byte) domain.ErrorResponse {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ErrorCode == "" {
		return domain.ErrorResponse{
			Code:       domain.NoErrorCode,
			Message:    domain.NoErrorMessage,
			Reason:     string(body),
			StatusCode: statusCode,
		}
	}
	message := resp.DetailedErrorDescription
	if message == "" {
		message = domain.NoErrorMessage
	}
	return domain.ErrorResponse{
		Code:       resp.ErrorCode,
		Message:    message,
		Reason:     resp.DetailedErrorCode,
		StatusCode: statusCode,
	}
}
