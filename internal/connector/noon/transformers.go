package noon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cortexpay/payment-switch/internal/domain"
)

const (
	googlePayAPIVersionMinor = 0
	googlePayAPIVersion      = 2
)

type authCreds struct {
	apiKey                domain.Secret
	businessIdentifier    domain.Secret
	applicationIdentifier domain.Secret
}

func resolveAuth(auth domain.ConnectorAuthType) (authCreds, error) {
	sk, ok := auth.(domain.SignatureKey)
	if !ok {
		return authCreds{}, fmt.Errorf("noon: %w", domain.ErrFailedToObtainAuthType)
	}
	return authCreds{
		apiKey:                sk.APIKey,
		businessIdentifier:    sk.Key1,
		applicationIdentifier: sk.APISecret,
	}, nil
}

type apiOperation string

const (
	opInitiate           apiOperation = "INITIATE"
	opCapture            apiOperation = "CAPTURE"
	opReverse            apiOperation = "REVERSE"
	opRefund             apiOperation = "REFUND"
	opCancelSubscription apiOperation = "CANCEL_SUBSCRIPTION"
)

type order struct {
	Amount    domain.StringMajorUnit `json:"amount"`
	Currency  string                 `json:"currency,omitempty"`
	Channel   string                 `json:"channel"`
	Category  string                 `json:"category,omitempty"`
	Reference string                 `json:"reference"`
	Name      string                 `json:"name"`
	Nvp       map[string]string      `json:"nvp,omitempty"`
	IPAddress string                 `json:"ipAddress,omitempty"`
}

type configuration struct {
	TokenizeCC    *bool  `json:"tokenizeCC,omitempty"`
	PaymentAction string `json:"paymentAction"`
	ReturnURL     string `json:"returnUrl,omitempty"`
}

type cardData struct {
	NameOnCard  domain.Secret `json:"nameOnCard,omitempty"`
	NumberPlain domain.Secret `json:"numberPlain"`
	ExpiryMonth domain.Secret `json:"expiryMonth"`
	ExpiryYear  domain.Secret `json:"expiryYear"`
	Cvv         domain.Secret `json:"cvv"`
}

type subscriptionIdentifierData struct {
	SubscriptionIdentifier domain.Secret `json:"subscriptionIdentifier"`
}

type googlePayInfo struct {
	CardNetwork string `json:"cardNetwork,omitempty"`
}

type googlePayTokenizationData struct {
	Type  string        `json:"type"`
	Token domain.Secret `json:"token"`
}

type googlePayMethodData struct {
	Type             string                    `json:"type"`
	Description      string                    `json:"description,omitempty"`
	Info             googlePayInfo             `json:"info"`
	TokenizationData googlePayTokenizationData `json:"tokenizationData"`
}

type googlePayData struct {
	APIVersionMinor   int                 `json:"apiVersionMinor"`
	APIVersion        int                 `json:"apiVersion"`
	PaymentMethodData googlePayMethodData `json:"paymentMethodData"`
}

type applePayData struct {
	PaymentInfo domain.Secret `json:"paymentInfo"`
}

type applePayMethod struct {
	DisplayName string `json:"displayName"`
	Network     string `json:"network"`
	TokenType   string `json:"type"`
}

type applePayTokenInner struct {
	PaymentData           json.RawMessage `json:"paymentData"`
	PaymentMethod         applePayMethod  `json:"paymentMethod"`
	TransactionIdentifier domain.Secret   `json:"transactionIdentifier"`
}

type applePayTokenEnvelope struct {
	Token applePayTokenInner `json:"token"`
}

type payPalData struct {
	ReturnURL string `json:"returnUrl"`
}

// paymentData is a tagged union: Type names the variant, Data carries its
// payload.
type paymentData struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscriptionData struct {
	SubscriptionType string                 `json:"type"`
	Name             string                 `json:"name"`
	MaxAmount        domain.StringMajorUnit `json:"maxAmount"`
}

type billingAddress struct {
	Street        domain.Secret `json:"street,omitempty"`
	Street2       domain.Secret `json:"street2,omitempty"`
	City          string        `json:"city,omitempty"`
	StateProvince domain.Secret `json:"stateProvince,omitempty"`
	Country       string        `json:"country,omitempty"`
	PostalCode    domain.Secret `json:"postalCode,omitempty"`
}

type billing struct {
	Address billingAddress `json:"address"`
}

type paymentsRequest struct {
	APIOperation  apiOperation      `json:"apiOperation"`
	Order         order             `json:"order"`
	Configuration configuration     `json:"configuration"`
	PaymentData   paymentData       `json:"paymentData"`
	Subscription  *subscriptionData `json:"subscription,omitempty"`
	Billing       *billing          `json:"billing,omitempty"`
}

// orderName normalizes the free-text description to the accepted shape: no
// surrounding or doubled whitespace, at most 50 characters.
func orderName(description string) string {
	name := strings.TrimSpace(description)
	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	return name
}

// orderNvp flattens the caller metadata into numbered "key=value" pairs,
// ordered by metadata key.
func orderNvp(metadata map[string]any) (map[string]string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nvp := make(map[string]string, len(keys))
	for i, k := range keys {
		value, ok := metadata[k].(string)
		if !ok {
			encoded, err := json.Marshal(metadata[k])
			if err != nil {
				return nil, fmt.Errorf("noon metadata %q: %w: %s", k, domain.ErrRequestEncodingFailed, err)
			}
			value = string(encoded)
		}
		nvp[strconv.Itoa(i+1)] = k + "=" + value
	}
	return nvp, nil
}

func buildGooglePayData(token *domain.GooglePayToken) (paymentData, error) {
	if token == nil {
		return paymentData{}, domain.NewMissingRequiredFieldError("wallet.google_pay")
	}
	return paymentData{
		Type: "GOOGLEPAY",
		Data: googlePayData{
			APIVersionMinor: googlePayAPIVersionMinor,
			APIVersion:      googlePayAPIVersion,
			PaymentMethodData: googlePayMethodData{
				Type:        "CARD",
				Description: token.Description,
				Info:        googlePayInfo{CardNetwork: token.Network},
				TokenizationData: googlePayTokenizationData{
					Type:  "PAYMENT_GATEWAY",
					Token: token.Token,
				},
			},
		},
	}, nil
}

func buildApplePayData(token *domain.ApplePayToken) (paymentData, error) {
	if token == nil || !json.Valid([]byte(token.PaymentData.Peek())) {
		return paymentData{}, fmt.Errorf("noon: apple pay payment data is not valid JSON: %w", domain.ErrRequestEncodingFailed)
	}
	envelope, err := json.Marshal(applePayTokenEnvelope{
		Token: applePayTokenInner{
			PaymentData: json.RawMessage(token.PaymentData.Peek()),
			PaymentMethod: applePayMethod{
				DisplayName: token.DisplayName,
				Network:     token.Network,
				TokenType:   token.TokenType,
			},
			TransactionIdentifier: domain.NewSecret(token.TransactionIdentifier),
		},
	})
	if err != nil {
		return paymentData{}, fmt.Errorf("noon: %w: %s", domain.ErrRequestEncodingFailed, err)
	}
	return paymentData{
		Type: "APPLEPAY",
		Data: applePayData{PaymentInfo: domain.NewSecret(string(envelope))},
	}, nil
}

func buildPaymentData(rd *domain.AuthorizeRouterData) (paymentData, error) {
	switch v := rd.Request.PaymentMethod.(type) {
	case domain.Card:
		return paymentData{
			Type: "CARD",
			Data: cardData{
				NameOnCard:  rd.OptionalBillingFullName(),
				NumberPlain: v.Number,
				ExpiryMonth: v.ExpMonth,
				ExpiryYear:  v.ExpiryYear4Digit(),
				Cvv:         v.CVC,
			},
		}, nil
	case domain.Wallet:
		switch v.Kind {
		case domain.WalletGooglePay:
			return buildGooglePayData(v.GooglePay)
		case domain.WalletApplePay:
			return buildApplePayData(v.ApplePay)
		case domain.WalletPaypalRedirect:
			if rd.Request.RouterReturnURL == "" {
				return paymentData{}, domain.NewMissingRequiredFieldError("router_return_url")
			}
			return paymentData{
				Type: "PAYPAL",
				Data: payPalData{ReturnURL: rd.Request.RouterReturnURL},
			}, nil
		default:
			return paymentData{}, domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
	default:
		return paymentData{}, domain.NewUnsupportedPaymentMethodError(connectorName, rd.Request.PaymentMethod)
	}
}

func buildBilling(addr *domain.Address) *billing {
	if addr == nil {
		return nil
	}
	return &billing{Address: billingAddress{
		Street:        addr.Line1,
		Street2:       addr.Line2,
		City:          addr.City,
		StateProvince: addr.State,
		Country:       addr.Country,
		PostalCode:    addr.Zip,
	}}
}

func buildPaymentsRequest(rd *domain.AuthorizeRouterData) (*paymentsRequest, error) {
	if rd.Description == "" {
		return nil, domain.NewMissingRequiredFieldError("description")
	}
	name := orderName(rd.Description)

	var (
		data     paymentData
		currency string
		category string
		err      error
	)
	if rd.Request.MandateID != "" {
		// Subscription payments omit currency and category.
		data = paymentData{
			Type: "SUBSCRIPTION",
			Data: subscriptionIdentifierData{
				SubscriptionIdentifier: domain.NewSecret(rd.Request.MandateID),
			},
		}
	} else {
		data, err = buildPaymentData(rd)
		if err != nil {
			return nil, err
		}
		if rd.Request.OrderCategory == "" {
			return nil, domain.NewMissingRequiredFieldError("order_category")
		}
		currency = rd.Request.Currency.String()
		category = rd.Request.OrderCategory
	}

	var subscription *subscriptionData
	if setup := rd.Request.SetupMandateDetails; setup != nil {
		subscription = &subscriptionData{
			SubscriptionType: "UNSCHEDULED",
			Name:             name,
			MaxAmount:        setup.MaxAmount.ToStringMajorUnit(setup.Currency),
		}
	}
	var tokenize *bool
	if subscription != nil {
		t := true
		tokenize = &t
	}

	action := "AUTHORIZE"
	if rd.Request.CaptureMethod.IsAutoCapture() {
		action = "SALE"
	}

	nvp, err := orderNvp(rd.Request.Metadata)
	if err != nil {
		return nil, err
	}

	return &paymentsRequest{
		APIOperation: opInitiate,
		Order: order{
			Amount:    rd.Request.Amount.ToStringMajorUnit(rd.Request.Currency),
			Currency:  currency,
			Channel:   "WEB",
			Category:  category,
			Reference: rd.ConnectorRequestReferenceID,
			Name:      name,
			Nvp:       nvp,
			IPAddress: rd.Request.IPAddress,
		},
		Configuration: configuration{
			TokenizeCC:    tokenize,
			PaymentAction: action,
			ReturnURL:     rd.Request.RouterReturnURL,
		},
		PaymentData:  data,
		Subscription: subscription,
		Billing:      buildBilling(rd.Billing),
	}, nil
}

type actionOrder struct {
	ID string `json:"id"`
}

type actionTransaction struct {
	Amount               domain.StringMajorUnit `json:"amount"`
	Currency             string                 `json:"currency"`
	TransactionReference string                 `json:"transactionReference,omitempty"`
}

// actionRequest is the shared capture/refund body addressing an existing
// order.
type actionRequest struct {
	APIOperation apiOperation      `json:"apiOperation"`
	Order        actionOrder       `json:"order"`
	Transaction  actionTransaction `json:"transaction"`
}

type cancelRequest struct {
	APIOperation apiOperation `json:"apiOperation"`
	Order        actionOrder  `json:"order"`
}

type revokeSubscription struct {
	Identifier domain.Secret `json:"identifier"`
}

type revokeRequest struct {
	APIOperation apiOperation       `json:"apiOperation"`
	Subscription revokeSubscription `json:"subscription"`
}

type paymentStatus string

const (
	statusInitiated           paymentStatus = "INITIATED"
	statusAuthorized          paymentStatus = "AUTHORIZED"
	statusCaptured            paymentStatus = "CAPTURED"
	statusPartiallyCaptured   paymentStatus = "PARTIALLY_CAPTURED"
	statusPartiallyRefunded   paymentStatus = "PARTIALLY_REFUNDED"
	statusPaymentInfoAdded    paymentStatus = "PAYMENT_INFO_ADDED"
	status3DSEnrollInitiated  paymentStatus = "3DS_ENROLL_INITIATED"
	status3DSEnrollChecked    paymentStatus = "3DS_ENROLL_CHECKED"
	status3DSResultVerified   paymentStatus = "3DS_RESULT_VERIFIED"
	statusMarkedForReview     paymentStatus = "MARKED_FOR_REVIEW"
	statusAuthenticated       paymentStatus = "AUTHENTICATED"
	statusPartiallyReversed   paymentStatus = "PARTIALLY_REVERSED"
	statusPending             paymentStatus = "PENDING"
	statusCancelled           paymentStatus = "CANCELLED"
	statusFailed              paymentStatus = "FAILED"
	statusRefunded            paymentStatus = "REFUNDED"
	statusExpired             paymentStatus = "EXPIRED"
	statusReversed            paymentStatus = "REVERSED"
	statusRejected            paymentStatus = "REJECTED"
	statusLocked              paymentStatus = "LOCKED"
)

func allPaymentStatuses() []paymentStatus {
	return []paymentStatus{
		statusInitiated, statusAuthorized, statusCaptured, statusPartiallyCaptured,
		statusPartiallyRefunded, statusPaymentInfoAdded, status3DSEnrollInitiated,
		status3DSEnrollChecked, status3DSResultVerified, statusMarkedForReview,
		statusAuthenticated, statusPartiallyReversed, statusPending, statusCancelled,
		statusFailed, statusRefunded, statusExpired, statusReversed, statusRejected,
		statusLocked,
	}
}

// mapAttemptStatus projects an order status onto the canonical machine. A
// LOCKED order is mid-transition, so the current attempt status is preserved.
func mapAttemptStatus(s paymentStatus, current domain.AttemptStatus) domain.AttemptStatus {
	switch s {
	case statusAuthorized:
		return domain.StatusAuthorized
	case statusCaptured, statusPartiallyCaptured, statusPartiallyRefunded, statusRefunded:
		return domain.StatusCharged
	case statusReversed, statusPartiallyReversed:
		return domain.StatusVoided
	case statusCancelled, statusExpired:
		return domain.StatusAuthenticationFailed
	case status3DSEnrollInitiated, status3DSEnrollChecked:
		return domain.StatusAuthenticationPending
	case status3DSResultVerified:
		return domain.StatusAuthenticationSuccessful
	case statusFailed, statusRejected:
		return domain.StatusFailure
	case statusPending, statusMarkedForReview:
		return domain.StatusPending
	case statusInitiated, statusPaymentInfoAdded, statusAuthenticated:
		return domain.StatusStarted
	case statusLocked:
		return current
	default:
		return domain.StatusPending
	}
}

type orderResponse struct {
	Status       paymentStatus `json:"status"`
	ID           uint64        `json:"id"`
	ErrorCode    uint64        `json:"errorCode"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Reference    string        `json:"reference,omitempty"`
}

type checkoutData struct {
	PostURL string `json:"postUrl"`
}

type subscriptionObject struct {
	Identifier string `json:"identifier"`
}

type paymentsResult struct {
	Order        orderResponse       `json:"order"`
	CheckoutData *checkoutData       `json:"checkoutData,omitempty"`
	Subscription *subscriptionObject `json:"subscription,omitempty"`
}

type paymentsResponse struct {
	Result paymentsResult `json:"result"`
}

// translatePayments folds an order reply. A populated errorMessage means the
// order-level operation failed regardless of the HTTP status.
func translatePayments(resp *paymentsResponse, httpCode int, current domain.AttemptStatus) (domain.AttemptStatus, domain.Result[domain.PaymentsResponseData]) {
	ord := resp.Result.Order
	status := mapAttemptStatus(ord.Status, current)
	orderID := strconv.FormatUint(ord.ID, 10)

	if ord.ErrorMessage != "" {
		return status, domain.ErrResult[domain.PaymentsResponseData](domain.ErrorResponse{
			Code:                   strconv.FormatUint(ord.ErrorCode, 10),
			Message:                ord.ErrorMessage,
			Reason:                 ord.ErrorMessage,
			StatusCode:             httpCode,
			AttemptStatus:          &status,
			ConnectorTransactionID: orderID,
		})
	}

	data := domain.PaymentsResponseData{
		ResourceID:                   orderID,
		ConnectorResponseReferenceID: orderID,
	}
	if ord.Reference != "" {
		data.ConnectorResponseReferenceID = ord.Reference
	}
	if cd := resp.Result.CheckoutData; cd != nil {
		// The checkout hop is a POST to the hosted page with no form fields.
		data.Redirection = domain.NewRedirectForm(cd.PostURL, "POST", nil)
	}
	if sub := resp.Result.Subscription; sub != nil && sub.Identifier != "" {
		data.MandateReference = domain.MandateIDFromConnector(sub.Identifier)
	}
	return status, domain.OkResult(data)
}

type refundStatus string

const (
	refundStatusSuccess refundStatus = "SUCCESS"
	refundStatusFailed  refundStatus = "FAILED"
	refundStatusPending refundStatus = "PENDING"
)

func mapRefundStatus(s refundStatus) domain.RefundStatus {
	switch s {
	case refundStatusSuccess:
		return domain.RefundSuccess
	case refundStatusFailed:
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

type refundTransaction struct {
	ID                   string       `json:"id"`
	Status               refundStatus `json:"status"`
	TransactionReference string       `json:"transactionReference,omitempty"`
}

type refundResult struct {
	Transaction refundTransaction `json:"transaction"`
}

type refundResponse struct {
	Result           refundResult `json:"result"`
	ResultCode       uint32       `json:"resultCode"`
	ClassDescription string       `json:"classDescription"`
	Message          string       `json:"message"`
}

type refundSyncResult struct {
	Transactions []refundTransaction `json:"transactions"`
}

type refundSyncResponse struct {
	Result           refundSyncResult `json:"result"`
	ResultCode       uint32           `json:"resultCode"`
	ClassDescription string           `json:"classDescription"`
	Message          string           `json:"message"`
}

type revokeResult struct {
	Subscription struct {
		Status string `json:"status"`
	} `json:"subscription"`
}

type revokeResponse struct {
	Result revokeResult `json:"result"`
}

type apiErrorResponse struct {
	ResultCode       uint32 `json:"resultCode"`
	Message          string `json:"message"`
	ClassDescription string `json:"classDescription"`
}

func toErrorResponse(statusCode int, body []byte) domain.ErrorResponse {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ResultCode == 0 {
		return domain.ErrorResponse{
			Code:       domain.NoErrorCode,
			Message:    domain.NoErrorMessage,
			Reason:     string(body),
			StatusCode: statusCode,
		}
	}
	return domain.ErrorResponse{
		Code:       strconv.FormatUint(uint64(resp.ResultCode), 10),
		Message:    resp.ClassDescription,
		Reason:     resp.Message,
		StatusCode: statusCode,
	}
}
