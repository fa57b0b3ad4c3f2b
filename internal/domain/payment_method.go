package domain

// PaymentMethod is the closed union of payment method data a caller can
// present. Every connector transform must account for every variant; variants
// a connector does not support yield a NotImplementedError, never a
// best-effort encoding.
type PaymentMethod interface {
	isPaymentMethod()
	// Name is the human-readable variant name used in error reporting.
	Name() string
}

// Card is a plain card presentation with the PAN, expiry and CVC.
type Card struct {
	Number     Secret
	ExpMonth   Secret
	ExpYear    Secret
	CVC        Secret
	HolderName Secret
}

// ExpiryYear4Digit normalizes a 2- or 4-digit expiry year to 4 digits.
func (c Card) ExpiryYear4Digit() Secret {
	year := c.ExpYear.Peek()
	if len(year) == 2 {
		return NewSecret("20" + year)
	}
	return c.ExpYear
}

// ExpiryYear2Digit normalizes a 2- or 4-digit expiry year to 2 digits.
func (c Card) ExpiryYear2Digit() Secret {
	year := c.ExpYear.Peek()
	if len(year) == 4 {
		return NewSecret(year[2:])
	}
	return c.ExpYear
}

// WalletKind enumerates the wallet sub-variants.
type WalletKind string

const (
	WalletGooglePay      WalletKind = "google_pay"
	WalletApplePay       WalletKind = "apple_pay"
	WalletPaypalRedirect WalletKind = "paypal_redirect"
	WalletMbWayRedirect  WalletKind = "mbway_redirect"
	WalletAliPayRedirect WalletKind = "ali_pay_redirect"
	WalletWeChatPay      WalletKind = "we_chat_pay"
	WalletSamsungPay     WalletKind = "samsung_pay"
	WalletCashappQr      WalletKind = "cashapp_qr"
	WalletRevolutPay     WalletKind = "revolut_pay"
)

// GooglePayToken is the opaque tokenization payload handed over by the
// Google Pay SDK; connectors decompose or forward it as their API requires.
type GooglePayToken struct {
	Token Secret
	// Card network and display description, when the SDK supplied them.
	Network     string
	Description string
}

// ApplePayToken carries the Apple Pay payment data and payment method
// descriptor.
type ApplePayToken struct {
	// PaymentData is the base64/JSON payment token as received from the SDK.
	PaymentData           Secret
	DisplayName           string
	Network               string
	TokenType             string
	TransactionIdentifier string
}

// Wallet is a wallet presentation; exactly the field matching Kind is set.
type Wallet struct {
	Kind      WalletKind
	GooglePay *GooglePayToken
	ApplePay  *ApplePayToken
}

// BankRedirectKind enumerates the bank redirect rails.
type BankRedirectKind string

const (
	BankRedirectEps            BankRedirectKind = "eps"
	BankRedirectEft            BankRedirectKind = "eft"
	BankRedirectGiropay        BankRedirectKind = "giropay"
	BankRedirectIdeal          BankRedirectKind = "ideal"
	BankRedirectSofort         BankRedirectKind = "sofort"
	BankRedirectPrzelewy24     BankRedirectKind = "przelewy24"
	BankRedirectInterac        BankRedirectKind = "interac"
	BankRedirectTrustly        BankRedirectKind = "trustly"
	BankRedirectBlik           BankRedirectKind = "blik"
	BankRedirectBancontactCard BankRedirectKind = "bancontact_card"
)

// BankName identifies a consumer bank for rails that require one (iDEAL).
type BankName string

const (
	BankAbnAmro     BankName = "abn_amro"
	BankAsnBank     BankName = "asn_bank"
	BankBunq        BankName = "bunq"
	BankIng         BankName = "ing"
	BankKnab        BankName = "knab"
	BankRabobank    BankName = "rabobank"
	BankRegiobank   BankName = "regiobank"
	BankSnsBank     BankName = "sns_bank"
	BankTriodosBank BankName = "triodos_bank"
	BankVanLanschot BankName = "van_lanschot"
)

// BankRedirect is a bank redirect presentation. Optional fields are only
// meaningful for specific kinds (BankName for iDEAL, BIC/IBAN for Giropay).
type BankRedirect struct {
	Kind     BankRedirectKind
	BankName BankName
	BIC      Secret
	IBAN     Secret
}

// PayLaterKind enumerates buy-now-pay-later providers.
type PayLaterKind string

const (
	PayLaterKlarna   PayLaterKind = "klarna"
	PayLaterAffirm   PayLaterKind = "affirm"
	PayLaterAfterpay PayLaterKind = "afterpay_clearpay"
)

// PayLater is a pay-later presentation.
type PayLater struct {
	Kind PayLaterKind
}

// MandatePayment references a previously stored credential; the mandate id
// travels in the request data, not here.
type MandatePayment struct{}

// Remaining variants carry no connector-relevant payload in this layer but
// must still be matched exhaustively.
type (
	BankDebit                          struct{}
	BankTransfer                       struct{}
	CardRedirect                       struct{}
	Crypto                             struct{}
	Reward                             struct{}
	Upi                                struct{}
	Voucher                            struct{}
	GiftCard                           struct{}
	OpenBanking                        struct{}
	CardToken                          struct{}
	NetworkToken                       struct{}
	RealTimePayment                    struct{}
	MobilePayment                      struct{}
	CardDetailsForNetworkTransactionID struct{}
)

func (Card) isPaymentMethod()                               {}
func (Wallet) isPaymentMethod()                             {}
func (BankRedirect) isPaymentMethod()                       {}
func (PayLater) isPaymentMethod()                           {}
func (MandatePayment) isPaymentMethod()                     {}
func (BankDebit) isPaymentMethod()                          {}
func (BankTransfer) isPaymentMethod()                       {}
func (CardRedirect) isPaymentMethod()                       {}
func (Crypto) isPaymentMethod()                             {}
func (Reward) isPaymentMethod()                             {}
func (Upi) isPaymentMethod()                                {}
func (Voucher) isPaymentMethod()                            {}
func (GiftCard) isPaymentMethod()                           {}
func (OpenBanking) isPaymentMethod()                        {}
func (CardToken) isPaymentMethod()                          {}
func (NetworkToken) isPaymentMethod()                       {}
func (RealTimePayment) isPaymentMethod()                    {}
func (MobilePayment) isPaymentMethod()                      {}
func (CardDetailsForNetworkTransactionID) isPaymentMethod() {}

func (Card) Name() string           { return "card" }
func (w Wallet) Name() string       { return "wallet." + string(w.Kind) }
func (b BankRedirect) Name() string { return "bank_redirect." + string(b.Kind) }
func (p PayLater) Name() string     { return "pay_later." + string(p.Kind) }
func (MandatePayment) Name() string { return "mandate_payment" }
func (BankDebit) Name() string      { return "bank_debit" }
func (BankTransfer) Name() string   { return "bank_transfer" }
func (CardRedirect) Name() string   { return "card_redirect" }
func (Crypto) Name() string         { return "crypto" }
func (Reward) Name() string         { return "reward" }
func (Upi) Name() string            { return "upi" }
func (Voucher) Name() string        { return "voucher" }
func (GiftCard) Name() string       { return "gift_card" }
func (OpenBanking) Name() string    { return "open_banking" }
func (CardToken) Name() string      { return "card_token" }
func (NetworkToken) Name() string   { return "network_token" }
func (RealTimePayment) Name() string {
	return "real_time_payment"
}
func (MobilePayment) Name() string { return "mobile_payment" }
func (CardDetailsForNetworkTransactionID) Name() string {
	return "card_details_for_network_transaction_id"
}

// AllPaymentMethodVariants returns one value of every union variant; tests
// use it to assert exhaustive matcher coverage.
func AllPaymentMethodVariants() []PaymentMethod {
	return []PaymentMethod{
		Card{},
		Wallet{Kind: WalletGooglePay, GooglePay: &GooglePayToken{}},
		Wallet{Kind: WalletApplePay, ApplePay: &ApplePayToken{}},
		Wallet{Kind: WalletPaypalRedirect},
		Wallet{Kind: WalletMbWayRedirect},
		Wallet{Kind: WalletAliPayRedirect},
		Wallet{Kind: WalletWeChatPay},
		Wallet{Kind: WalletSamsungPay},
		Wallet{Kind: WalletCashappQr},
		Wallet{Kind: WalletRevolutPay},
		BankRedirect{Kind: BankRedirectEps},
		BankRedirect{Kind: BankRedirectEft},
		BankRedirect{Kind: BankRedirectGiropay},
		BankRedirect{Kind: BankRedirectIdeal},
		BankRedirect{Kind: BankRedirectSofort},
		BankRedirect{Kind: BankRedirectPrzelewy24},
		BankRedirect{Kind: BankRedirectInterac},
		BankRedirect{Kind: BankRedirectTrustly},
		BankRedirect{Kind: BankRedirectBlik},
		BankRedirect{Kind: BankRedirectBancontactCard},
		PayLater{Kind: PayLaterKlarna},
		PayLater{Kind: PayLaterAffirm},
		PayLater{Kind: PayLaterAfterpay},
		MandatePayment{},
		BankDebit{},
		BankTransfer{},
		CardRedirect{},
		Crypto{},
		Reward{},
		Upi{},
		Voucher{},
		GiftCard{},
		OpenBanking{},
		CardToken{},
		NetworkToken{},
		RealTimePayment{},
		MobilePayment{},
		CardDetailsForNetworkTransactionID{},
	}
}
