package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinorUnit is the canonical amount representation: an integer count of the
// currency's smallest denomination (cents for USD, yen for JPY). Every
// connector-facing representation is a derived view of this value.
type MinorUnit int64

// Connector-facing amount views. Which one a connector uses is part of its
// wire contract, not a choice made per call.
type (
	// StringMajorUnit renders the amount in major units with exactly the
	// currency's number of decimal digits, e.g. 1000 USD cents -> "10.00".
	StringMajorUnit string
	// FloatMajorUnit renders the amount in major units as a float. Lossy
	// above the float64 mantissa; that bound is connector-imposed.
	FloatMajorUnit float64
	// StringMinorUnit renders the minor-unit integer as a decimal string.
	StringMinorUnit string
)

// Currency is an ISO 4217 alphabetic code.
type Currency string

const (
	AED Currency = "AED"
	AUD Currency = "AUD"
	BHD Currency = "BHD"
	CAD Currency = "CAD"
	CHF Currency = "CHF"
	CLP Currency = "CLP"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JOD Currency = "JOD"
	JPY Currency = "JPY"
	KRW Currency = "KRW"
	KWD Currency = "KWD"
	OMR Currency = "OMR"
	PLN Currency = "PLN"
	SAR Currency = "SAR"
	SEK Currency = "SEK"
	TND Currency = "TND"
	USD Currency = "USD"
	VND Currency = "VND"
)

// zeroDecimalCurrencies and threeDecimalCurrencies cover the exceptions to
// the default exponent of 2. Unknown currencies get the default.
var zeroDecimalCurrencies = map[Currency]struct{}{
	CLP: {}, JPY: {}, KRW: {}, VND: {},
}

var threeDecimalCurrencies = map[Currency]struct{}{
	BHD: {}, JOD: {}, KWD: {}, OMR: {}, TND: {},
}

// Exponent returns the number of minor-unit decimal digits for the currency.
func (c Currency) Exponent() int {
	if _, ok := zeroDecimalCurrencies[c]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[c]; ok {
		return 3
	}
	return 2
}

func (c Currency) String() string {
	return string(c)
}

func pow10(exp int) int64 {
	n := int64(1)
	for i := 0; i < exp; i++ {
		n *= 10
	}
	return n
}

// ToStringMajorUnit converts a minor-unit amount into the exact major-unit
// decimal string. Pure integer math; no floating point involved.
func (m MinorUnit) ToStringMajorUnit(currency Currency) StringMajorUnit {
	exp := currency.Exponent()
	if exp == 0 {
		return StringMajorUnit(strconv.FormatInt(int64(m), 10))
	}
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	scale := pow10(exp)
	whole := v / scale
	frac := v % scale
	return StringMajorUnit(fmt.Sprintf("%s%d.%0*d", sign, whole, exp, frac))
}

// MinorUnitFromStringMajor is the inverse of ToStringMajorUnit. The fraction
// part must not exceed the currency's exponent; shorter fractions are padded.
func MinorUnitFromStringMajor(s StringMajorUnit, currency Currency) (MinorUnit, error) {
	exp := currency.Exponent()
	str := string(s)
	negative := strings.HasPrefix(str, "-")
	if negative {
		str = str[1:]
	}
	wholePart, fracPart, _ := strings.Cut(str, ".")
	if wholePart == "" {
		return 0, fmt.Errorf("invalid major unit amount %q", s)
	}
	if len(fracPart) > exp {
		return 0, fmt.Errorf("amount %q has more than %d decimal digits for %s", s, exp, currency)
	}
	fracPart += strings.Repeat("0", exp-len(fracPart))
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid major unit amount %q: %w", s, err)
	}
	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid major unit amount %q: %w", s, err)
		}
	}
	v := whole*pow10(exp) + frac
	if negative {
		v = -v
	}
	return MinorUnit(v), nil
}

// ToFloatMajorUnit converts to a float major-unit view. Exact for amounts
// within the float64 mantissa; connectors that use this form accept the
// documented precision bound.
func (m MinorUnit) ToFloatMajorUnit(currency Currency) FloatMajorUnit {
	return FloatMajorUnit(float64(m) / float64(pow10(currency.Exponent())))
}

// MinorUnitFromFloatMajor is the inverse of ToFloatMajorUnit.
func MinorUnitFromFloatMajor(f FloatMajorUnit, currency Currency) MinorUnit {
	return MinorUnit(math.Round(float64(f) * float64(pow10(currency.Exponent()))))
}

// ToStringMinorUnit renders the minor-unit integer as a decimal string.
func (m MinorUnit) ToStringMinorUnit() StringMinorUnit {
	return StringMinorUnit(strconv.FormatInt(int64(m), 10))
}

// MinorUnitFromStringMinor is the inverse of ToStringMinorUnit. The currency
// is not needed for the conversion but kept for interface symmetry with the
// other views.
func MinorUnitFromStringMinor(s StringMinorUnit, _ Currency) (MinorUnit, error) {
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid minor unit amount %q: %w", s, err)
	}
	return MinorUnit(v), nil
}
