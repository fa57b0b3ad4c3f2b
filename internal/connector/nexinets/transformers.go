package nexinets

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cortexpay/payment-switch/internal/domain"
)

// resolveAuth renders the stored key pair as an HTTP Basic header value:
// base64("merchantId:apiKey").
func resolveAuth(auth domain.ConnectorAuthType) (string, error) {
	bk, ok := auth.(domain.BodyKey)
	if !ok {
		return "", fmt.Errorf("nexinets: %w", domain.ErrFailedToObtainAuthType)
	}
	pair := bk.Key1.Peek() + ":" + bk.APIKey.Peek()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(pair)), nil
}

type product string

const (
	productCreditcard product = "creditcard"
	productPaypal     product = "paypal"
	productGiropay    product = "giropay"
	productSofort     product = "sofort"
	productEps        product = "eps"
	productIdeal      product = "ideal"
	productApplepay   product = "applepay"
)

type asyncDetails struct {
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
	FailureURL string `json:"failureUrl,omitempty"`
}

type cofContract struct {
	RecurringType string `json:"type"`
}

var unscheduledContract = &cofContract{RecurringType: "UNSCHEDULED"}

type cardPayment struct {
	CardNumber   domain.Secret `json:"cardNumber"`
	ExpiryMonth  domain.Secret `json:"expiryMonth"`
	ExpiryYear   domain.Secret `json:"expiryYear"`
	Verification domain.Secret `json:"verification"`
	CofContract  *cofContract  `json:"cofContract,omitempty"`
}

type instrumentPayment struct {
	PaymentInstrumentID domain.Secret `json:"paymentInstrumentId"`
	CofContract         *cofContract  `json:"cofContract,omitempty"`
}

type bankRedirectPayment struct {
	BIC string `json:"bic,omitempty"`
}

type applePayMethod struct {
	DisplayName string `json:"displayName"`
	Network     string `json:"network"`
	TokenType   string `json:"type"`
}

type applePayPayment struct {
	PaymentData           json.RawMessage `json:"paymentData"`
	PaymentMethod         applePayMethod  `json:"paymentMethod"`
	TransactionIdentifier string          `json:"transactionIdentifier"`
}

// paymentsRequest opens an order. Payment carries the product-specific detail
// object, or nothing for pure-redirect products.
type paymentsRequest struct {
	InitialAmount   domain.MinorUnit `json:"initialAmount"`
	Currency        string           `json:"currency"`
	Channel         string           `json:"channel"`
	Product         product          `json:"product"`
	Payment         any              `json:"payment,omitempty"`
	Async           asyncDetails     `json:"async"`
	MerchantOrderID string           `json:"merchantOrderId,omitempty"`
}

var idealBICs = map[domain.BankName]string{
	domain.BankAbnAmro:     "ABNANL2A",
	domain.BankAsnBank:     "ASNBNL21",
	domain.BankBunq:        "BUNQNL2A",
	domain.BankIng:         "INGBNL2A",
	domain.BankKnab:        "KNABNL2H",
	domain.BankRabobank:    "RABONL2U",
	domain.BankRegiobank:   "RBRBNL21",
	domain.BankSnsBank:     "SNSBNL2A",
	domain.BankTriodosBank: "TRIONL2U",
	domain.BankVanLanschot: "FVLBNL22",
}

func buildCardPayment(rd *domain.AuthorizeRouterData, card domain.Card) any {
	if !rd.Request.IsMandatePayment() {
		return &cardPayment{
			CardNumber:   card.Number,
			ExpiryMonth:  card.ExpMonth,
			ExpiryYear:   card.ExpiryYear2Digit(),
			Verification: card.CVC,
		}
	}
	if rd.Request.OffSession {
		return &instrumentPayment{
			PaymentInstrumentID: domain.NewSecret(rd.Request.MandateID),
			CofContract:         unscheduledContract,
		}
	}
	return &cardPayment{
		CardNumber:   card.Number,
		ExpiryMonth:  card.ExpMonth,
		ExpiryYear:   card.ExpiryYear2Digit(),
		Verification: card.CVC,
		CofContract:  unscheduledContract,
	}
}

func buildApplePayPayment(token *domain.ApplePayToken) (any, error) {
	if token == nil || !json.Valid([]byte(token.PaymentData.Peek())) {
		return nil, fmt.Errorf("nexinets: apple pay payment data is not valid JSON: %w", domain.ErrRequestEncodingFailed)
	}
	return &applePayPayment{
		PaymentData: json.RawMessage(token.PaymentData.Peek()),
		PaymentMethod: applePayMethod{
			DisplayName: token.DisplayName,
			Network:     token.Network,
			TokenType:   token.TokenType,
		},
		TransactionIdentifier: token.TransactionIdentifier,
	}, nil
}

// paymentAndProduct picks the product routing key and its detail payload.
// Pure-redirect products (PayPal, EPS, Giropay, Sofort) send no detail object.
func paymentAndProduct(rd *domain.AuthorizeRouterData) (any, product, error) {
	switch v := rd.Request.PaymentMethod.(type) {
	case domain.Card:
		return buildCardPayment(rd, v), productCreditcard, nil
	case domain.Wallet:
		switch v.Kind {
		case domain.WalletPaypalRedirect:
			return nil, productPaypal, nil
		case domain.WalletApplePay:
			payment, err := buildApplePayPayment(v.ApplePay)
			if err != nil {
				return nil, "", err
			}
			return payment, productApplepay, nil
		default:
			return nil, "", domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
	case domain.BankRedirect:
		switch v.Kind {
		case domain.BankRedirectEps:
			return nil, productEps, nil
		case domain.BankRedirectGiropay:
			return nil, productGiropay, nil
		case domain.BankRedirectSofort:
			return nil, productSofort, nil
		case domain.BankRedirectIdeal:
			payment := &bankRedirectPayment{}
			if v.BankName != "" {
				bic, ok := idealBICs[v.BankName]
				if !ok {
					return nil, "", domain.NewNotImplementedError(
						fmt.Sprintf("bank %s", v.BankName), connectorName)
				}
				payment.BIC = bic
			}
			return payment, productIdeal, nil
		default:
			return nil, "", domain.NewUnsupportedPaymentMethodError(connectorName, v)
		}
	default:
		return nil, "", domain.NewUnsupportedPaymentMethodError(connectorName, rd.Request.PaymentMethod)
	}
}

func buildPaymentsRequest(rd *domain.AuthorizeRouterData) (*paymentsRequest, error) {
	payment, prod, err := paymentAndProduct(rd)
	if err != nil {
		return nil, err
	}
	returnURL := rd.Request.RouterReturnURL
	req := &paymentsRequest{
		InitialAmount: rd.Request.Amount,
		Currency:      rd.Request.Currency.String(),
		Channel:       "ECOM",
		Product:       prod,
		Payment:       payment,
		Async: asyncDetails{
			SuccessURL: returnURL,
			CancelURL:  returnURL,
			FailureURL: returnURL,
		},
	}
	// The merchant order id is only accepted on card orders.
	if prod == productCreditcard {
		req.MerchantOrderID = rd.ConnectorRequestReferenceID
	}
	return req, nil
}

// amountRequest is the shared capture, cancel and refund body.
type amountRequest struct {
	InitialAmount domain.MinorUnit `json:"initialAmount"`
	Currency      string           `json:"currency"`
}

type paymentStatus string

const (
	statusSuccess    paymentStatus = "SUCCESS"
	statusPending    paymentStatus = "PENDING"
	statusOk         paymentStatus = "OK"
	statusFailure    paymentStatus = "FAILURE"
	statusDeclined   paymentStatus = "DECLINED"
	statusInProgress paymentStatus = "IN_PROGRESS"
	statusExpired    paymentStatus = "EXPIRED"
	statusAborted    paymentStatus = "ABORTED"
)

func allPaymentStatuses() []paymentStatus {
	return []paymentStatus{
		statusSuccess, statusPending, statusOk, statusFailure,
		statusDeclined, statusInProgress, statusExpired, statusAborted,
	}
}

type transactionType string

const (
	txnPreauth transactionType = "PREAUTH"
	txnDebit   transactionType = "DEBIT"
	txnCapture transactionType = "CAPTURE"
	txnCancel  transactionType = "CANCEL"
)

func allTransactionTypes() []transactionType {
	return []transactionType{txnPreauth, txnDebit, txnCapture, txnCancel}
}

// mapAttemptStatus projects a transaction status onto the canonical machine.
// The same status means different things depending on which transaction kind
// reported it: SUCCESS on a preauth is an authorization, on a debit or capture
// a completed charge, on a cancel a void.
func mapAttemptStatus(s paymentStatus, t transactionType) domain.AttemptStatus {
	switch s {
	case statusSuccess:
		switch t {
		case txnPreauth:
			return domain.StatusAuthorized
		case txnCancel:
			return domain.StatusVoided
		default:
			return domain.StatusCharged
		}
	case statusDeclined, statusFailure, statusExpired, statusAborted:
		switch t {
		case txnPreauth:
			return domain.StatusAuthorizationFailed
		case txnCancel:
			return domain.StatusVoidFailed
		default:
			return domain.StatusCaptureFailed
		}
	case statusOk:
		if t == txnPreauth {
			return domain.StatusAuthorized
		}
		return domain.StatusPending
	case statusPending:
		return domain.StatusAuthenticationPending
	default:
		return domain.StatusPending
	}
}

func mapRefundStatus(s paymentStatus) domain.RefundStatus {
	switch s {
	case statusSuccess:
		return domain.RefundSuccess
	case statusFailure, statusDeclined:
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

// paymentsMetadata is the connector metadata blob threaded through follow-up
// flows: the order id and transaction id address every later call, and the
// opening transaction kind steers status interpretation on sync.
type paymentsMetadata struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	PsyncFlow     transactionType `json:"psync_flow"`
}

type paymentInstrumentRef struct {
	PaymentInstrumentID string `json:"paymentInstrumentId,omitempty"`
}

type transaction struct {
	TransactionID string          `json:"transactionId"`
	Type          transactionType `json:"type"`
	Currency      string          `json:"currency"`
	Status        paymentStatus   `json:"status"`
}

// orderResponse is the reply to an order-opening call (preauth or debit).
type orderResponse struct {
	OrderID           string                `json:"orderId"`
	TransactionType   transactionType       `json:"transactionType"`
	Transactions      []transaction         `json:"transactions"`
	PaymentInstrument *paymentInstrumentRef `json:"paymentInstrument,omitempty"`
	RedirectURL       string                `json:"redirectUrl,omitempty"`
}

func translateOrder(resp *orderResponse) (domain.AttemptStatus, domain.PaymentsResponseData, error) {
	if len(resp.Transactions) == 0 {
		return "", domain.PaymentsResponseData{}, fmt.Errorf("nexinets: order %s has no transactions: %w",
			resp.OrderID, domain.ErrResponseHandlingFailed)
	}
	txn := resp.Transactions[0]

	meta, err := json.Marshal(paymentsMetadata{
		TransactionID: txn.TransactionID,
		OrderID:       resp.OrderID,
		PsyncFlow:     resp.TransactionType,
	})
	if err != nil {
		return "", domain.PaymentsResponseData{}, fmt.Errorf("nexinets: %w: %s", domain.ErrResponseHandlingFailed, err)
	}

	data := domain.PaymentsResponseData{
		ConnectorMetadata:            meta,
		ConnectorResponseReferenceID: resp.OrderID,
	}
	switch resp.TransactionType {
	case txnPreauth:
		// The preauth transaction is not yet addressable on its own.
	case txnDebit:
		data.ResourceID = txn.TransactionID
	default:
		return "", domain.PaymentsResponseData{}, fmt.Errorf("nexinets: unexpected order transaction type %q: %w",
			resp.TransactionType, domain.ErrResponseHandlingFailed)
	}
	if resp.RedirectURL != "" {
		data.Redirection = domain.NewGetRedirect(resp.RedirectURL)
	}
	if resp.PaymentInstrument != nil && resp.PaymentInstrument.PaymentInstrumentID != "" {
		data.MandateReference = domain.MandateIDFromConnector(resp.PaymentInstrument.PaymentInstrumentID)
	}
	return mapAttemptStatus(txn.Status, resp.TransactionType), data, nil
}

type orderRef struct {
	OrderID string `json:"orderId"`
}

// transactionResponse is the reply to capture, cancel and transaction sync
// calls.
type transactionResponse struct {
	TransactionID string          `json:"transactionId"`
	Status        paymentStatus   `json:"status"`
	Order         orderRef        `json:"order"`
	Type          transactionType `json:"type"`
}

func translateTransaction(resp *transactionResponse) (domain.AttemptStatus, domain.PaymentsResponseData, error) {
	meta, err := json.Marshal(paymentsMetadata{
		TransactionID: resp.TransactionID,
		OrderID:       resp.Order.OrderID,
		PsyncFlow:     resp.Type,
	})
	if err != nil {
		return "", domain.PaymentsResponseData{}, fmt.Errorf("nexinets: %w: %s", domain.ErrResponseHandlingFailed, err)
	}
	data := domain.PaymentsResponseData{
		ConnectorMetadata:            meta,
		ConnectorResponseReferenceID: resp.Order.OrderID,
	}
	if resp.Type == txnDebit || resp.Type == txnCapture {
		data.ResourceID = resp.TransactionID
	}
	return mapAttemptStatus(resp.Status, resp.Type), data, nil
}

type refundResponse struct {
	TransactionID string        `json:"transactionId"`
	Status        paymentStatus `json:"status"`
	Order         orderRef      `json:"order"`
	Type          string        `json:"type"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type apiErrorResponse struct {
	Status  int           `json:"status"`
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Errors  []errorDetail `json:"errors,omitempty"`
}

func toErrorResponse(statusCode int, body []byte) domain.ErrorResponse {
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code == 0 {
		return domain.ErrorResponse{
			Code:       domain.NoErrorCode,
			Message:    domain.NoErrorMessage,
			Reason:     string(body),
			StatusCode: statusCode,
		}
	}
	var details []string
	for _, e := range resp.Errors {
		if e.Field != "" {
			details = append(details, e.Field+": "+e.Message)
		} else {
			details = append(details, e.Message)
		}
	}
	return domain.ErrorResponse{
		Code:       strconv.Itoa(resp.Code),
		Message:    resp.Message,
		Reason:     strings.Join(details, "; "),
		StatusCode: statusCode,
	}
}
