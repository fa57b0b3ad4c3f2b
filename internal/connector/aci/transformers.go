package aci

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cortexpay/payment-switch/internal/domain"
)

// ACI speaks form-encoded requests with dotted field names (card.number,
// standingInstruction.mode). Builders produce url.Values; the connector
// encodes them as the wire body.

type authCreds struct {
	apiKey   domain.Secret
	entityID domain.Secret
}

func resolveAuth(auth domain.ConnectorAuthType) (authCreds, error) {
	bk, ok := auth.(domain.BodyKey)
	if !ok {
		return authCreds{}, fmt.Errorf("aci: %w", domain.ErrFailedToObtainAuthType)
	}
	return authCreds{apiKey: bk.APIKey, entityID: bk.Key1}, nil
}

const (
	paymentTypeDebit    = "DB"
	paymentTypeCapture  = "CP"
	paymentTypeReversal = "RV"
	paymentTypeRefund   = "RF"
)

// Result codes follow the documented triplet grammar. Success and pending
// families are matched by prefix; any other well-formed code is a decline.
// Codes outside the grammar are unclassifiable and error out.
var (
	successCodePattern = regexp.MustCompile(`^(000\.000\.|000\.100\.1|000\.[36]|000\.400\.(0[0-24-9]|100|110|120))`)
	pendingCodePattern = regexp.MustCompile(`^(000\.200|800\.400\.5|100\.400\.500)`)
	resultCodeShape    = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}$`)
)

type paymentOutcome int

const (
	outcomeSucceeded paymentOutcome = iota
	outcomeFailed
	outcomePending
	outcomeRedirect
)

func classifyResultCode(code string) (paymentOutcome, error) {
	switch {
	case successCodePattern.MatchString(code):
		return outcomeSucceeded, nil
	case pendingCodePattern.MatchString(code):
		return outcomePending, nil
	case resultCodeShape.MatchString(code):
		return outcomeFailed, nil
	default:
		return 0, &domain.UnexpectedResponseError{Raw: code}
	}
}

func mapAttemptStatus(outcome paymentOutcome, autoCapture bool) domain.AttemptStatus {
	switch outcome {
	case outcomeSucceeded:
		if autoCapture {
			return domain.StatusCharged
		}
		return domain.StatusAuthorized
	case outcomeFailed:
		return domain.StatusFailure
	case outcomeRedirect:
		return domain.StatusAuthenticationPending
	default:
		return domain.StatusAuthorizing
	}
}

func mapRefundStatus(outcome paymentOutcome) domain.RefundStatus {
	switch outcome {
	case outcomeSucceeded:
		return domain.RefundSuccess
	case outcomeFailed:
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

func transactionValues(creds authCreds, amount domain.MinorUnit, currency domain.Currency, paymentType string) url.Values {
	vals := url.Values{}
	vals.Set("entityId", creds.entityID.Peek())
	vals.Set("amount", string(amount.ToStringMajorUnit(currency)))
	vals.Set("currency", currency.String())
	vals.Set("paymentType", paymentType)
	return vals
}

func applyInstruction(vals url.Values, req domain.AuthorizeData) {
	switch {
	case req.SetupMandateDetails != nil:
		vals.Set("standingInstruction.mode", "INITIAL")
		vals.Set("standingInstruction.type", "UNSCHEDULED")
		vals.Set("standingInstruction.source", "CIT")
		vals.Set("createRegistration", "true")
	case req.MandateID != "":
		vals.Set("standingInstruction.mode", "REPEATED")
		vals.Set("standingInstruction.type", "UNSCHEDULED")
		vals.Set("standingInstruction.source", "MIT")
	}
}

func buildAuthorizeValues(rd *domain.AuthorizeRouterData) (url.Values, error) {
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	vals := transactionValues(creds, rd.Request.Amount, rd.Request.Currency, paymentTypeDebit)

	switch pm := rd.Request.PaymentMethod.(type) {
	case domain.Card:
		vals.Set("card.number", pm.Number.Peek())
		vals.Set("card.holder", rd.OptionalBillingFullName().Peek())
		vals.Set("card.expiryMonth", pm.ExpMonth.Peek())
		vals.Set("card.expiryYear", pm.ExpYear.Peek())
		vals.Set("card.cvv", pm.CVC.Peek())
		applyInstruction(vals, rd.Request)

	case domain.Wallet:
		if err := applyWalletValues(vals, rd, pm); err != nil {
			return nil, err
		}
		vals.Set("shopperResultUrl", rd.Request.RouterReturnURL)

	case domain.BankRedirect:
		if err := applyBankRedirectValues(vals, rd, pm); err != nil {
			return nil, err
		}
		vals.Set("shopperResultUrl", rd.Request.RouterReturnURL)

	case domain.PayLater:
		// Klarna needs no payment-method fields beyond the transaction block.
		vals.Set("shopperResultUrl", rd.Request.RouterReturnURL)

	case domain.MandatePayment:
		if rd.Request.MandateID == "" {
			return nil, domain.NewMissingRequiredFieldError("mandate_id")
		}
		applyInstruction(vals, rd.Request)
		vals.Set("shopperResultUrl", rd.Request.RouterReturnURL)

	default:
		return nil, domain.NewUnsupportedPaymentMethodError(connectorName, rd.Request.PaymentMethod)
	}

	return vals, nil
}

func applyWalletValues(vals url.Values, rd *domain.AuthorizeRouterData, w domain.Wallet) error {
	switch w.Kind {
	case domain.WalletMbWayRedirect:
		phone, err := rd.BillingPhone()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "MBWAY")
		vals.Set("virtualAccount.accountId", phone.NumberWithHashCountryCode().Peek())
		return nil
	case domain.WalletAliPayRedirect:
		vals.Set("paymentBrand", "ALIPAY")
		return nil
	default:
		return domain.NewUnsupportedPaymentMethodError(connectorName, w)
	}
}

func applyBankRedirectValues(vals url.Values, rd *domain.AuthorizeRouterData, b domain.BankRedirect) error {
	switch b.Kind {
	case domain.BankRedirectEps:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "EPS")
		vals.Set("bankAccount.country", country)

	case domain.BankRedirectEft:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "EFT")
		vals.Set("bankAccount.country", country)

	case domain.BankRedirectGiropay:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "GIROPAY")
		vals.Set("bankAccount.country", country)
		if !b.BIC.IsEmpty() {
			vals.Set("bankAccount.bic", b.BIC.Peek())
		}
		if !b.IBAN.IsEmpty() {
			vals.Set("bankAccount.iban", b.IBAN.Peek())
		}

	case domain.BankRedirectIdeal:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		if b.BankName == "" {
			return domain.NewMissingRequiredFieldError("ideal.bank_name")
		}
		vals.Set("paymentBrand", "IDEAL")
		vals.Set("bankAccount.country", country)
		vals.Set("bankAccount.bankName", string(b.BankName))

	case domain.BankRedirectSofort:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "SOFORTUEBERWEISUNG")
		vals.Set("bankAccount.country", country)

	case domain.BankRedirectPrzelewy24:
		email, err := rd.BillingEmail()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "PRZELEWY")
		vals.Set("customer.email", email)

	case domain.BankRedirectInterac:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		email, err := rd.BillingEmail()
		if err != nil {
			return err
		}
		vals.Set("paymentBrand", "INTERAC_ONLINE")
		vals.Set("bankAccount.country", country)
		vals.Set("customer.email", email)

	case domain.BankRedirectTrustly:
		country, err := rd.BillingCountry()
		if err != nil {
			return err
		}
		if rd.CustomerID == "" {
			return domain.NewMissingRequiredFieldError("customer_id")
		}
		vals.Set("paymentBrand", "TRUSTLY")
		vals.Set("billing.country", country)
		vals.Set("customer.merchantCustomerId", rd.CustomerID)
		vals.Set("merchantTransactionId", rd.ConnectorRequestReferenceID)

	default:
		return domain.NewUnsupportedPaymentMethodError(connectorName, b)
	}
	return nil
}

func buildCaptureValues(rd *domain.CaptureRouterData) (url.Values, error) {
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	return transactionValues(creds, rd.Request.AmountToCapture, rd.Request.Currency, paymentTypeCapture), nil
}

func buildVoidValues(rd *domain.CancelRouterData) (url.Values, error) {
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	vals := url.Values{}
	vals.Set("entityId", creds.entityID.Peek())
	vals.Set("paymentType", paymentTypeReversal)
	return vals, nil
}

func buildRefundValues(rd *domain.RefundRouterData) (url.Values, error) {
	creds, err := resolveAuth(rd.AuthType)
	if err != nil {
		return nil, err
	}
	return transactionValues(creds, rd.Request.RefundAmount, rd.Request.Currency, paymentTypeRefund), nil
}

type resultCode struct {
	Code            string       `json:"code"`
	Description     string       `json:"description"`
	ParameterErrors []paramError `json:"parameterErrors,omitempty"`
}

type paramError struct {
	Name    string `json:"name"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

type redirectionData struct {
	Method     string                 `json:"method,omitempty"`
	Parameters []domain.RedirectParam `json:"parameters"`
	URL        string                 `json:"url"`
}

type paymentsResponse struct {
	ID             string           `json:"id"`
	RegistrationID string           `json:"registrationId,omitempty"`
	NDC            string           `json:"ndc"`
	Timestamp      string           `json:"timestamp"`
	BuildNumber    string           `json:"buildNumber"`
	Result         resultCode       `json:"result"`
	Redirect       *redirectionData `json:"redirect,omitempty"`
}

type captureResponse struct {
	ID           string     `json:"id"`
	ReferencedID string     `json:"referencedId"`
	PaymentType  string     `json:"paymentType"`
	Result       resultCode `json:"result"`
	NDC          string     `json:"ndc"`
	Timestamp    string     `json:"timestamp"`
}

type refundResponse struct {
	ID        string     `json:"id"`
	NDC       string     `json:"ndc"`
	Timestamp string     `json:"timestamp"`
	Result    resultCode `json:"result"`
}

type errorResponse struct {
	NDC         string     `json:"ndc"`
	Timestamp   string     `json:"timestamp"`
	BuildNumber string     `json:"buildNumber"`
	Result      resultCode `json:"result"`
}

// translatePayments folds an authorize/sync/reversal reply into the
// normalized form. A redirect descriptor wins over the result code: the
// attempt is authentication-pending until the shopper returns.
func translatePayments(resp *paymentsResponse, autoCapture bool) (domain.AttemptStatus, domain.PaymentsResponseData, error) {
	var redirect *domain.RedirectForm
	if resp.Redirect != nil {
		method := resp.Redirect.Method
		if method == "" {
			method = "POST"
		}
		redirect = domain.NewRedirectForm(resp.Redirect.URL, method, resp.Redirect.Parameters)
	}

	var status domain.AttemptStatus
	if redirect != nil {
		status = mapAttemptStatus(outcomeRedirect, autoCapture)
	} else {
		outcome, err := classifyResultCode(resp.Result.Code)
		if err != nil {
			return "", domain.PaymentsResponseData{}, err
		}
		status = mapAttemptStatus(outcome, autoCapture)
	}

	var mandateRef *domain.MandateReference
	if resp.RegistrationID != "" {
		mandateRef = domain.MandateIDFromConnector(resp.RegistrationID)
	}

	return status, domain.PaymentsResponseData{
		ResourceID:                   resp.ID,
		Redirection:                  redirect,
		MandateReference:             mandateRef,
		ConnectorResponseReferenceID: resp.ID,
	}, nil
}

func toErrorResponse(statusCode int, result resultCode) domain.ErrorResponse {
	code := result.Code
	if code == "" {
		code = domain.NoErrorCode
	}
	message := result.Description
	if message == "" {
		message = domain.NoErrorMessage
	}
	var reasons []string
	for _, pe := range result.ParameterErrors {
		reasons = append(reasons, fmt.Sprintf("%s: %s", pe.Name, pe.Message))
	}
	return domain.ErrorResponse{
		Code:       code,
		Message:    message,
		Reason:     strings.Join(reasons, "; "),
		StatusCode: statusCode,
	}
}
