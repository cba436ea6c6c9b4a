package purchase

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minimumCharge is the smallest amount the card processor accepts per currency.
var minimumCharge = map[string]decimal.Decimal{
	"usd": decimal.RequireFromString("0.50"),
	"eur": decimal.RequireFromString("0.50"),
	"cad": decimal.RequireFromString("0.50"),
	"aud": decimal.RequireFromString("0.50"),
	"chf": decimal.RequireFromString("0.50"),
	"sgd": decimal.RequireFromString("0.50"),
	"brl": decimal.RequireFromString("0.50"),
	"nzd": decimal.RequireFromString("0.50"),
	"inr": decimal.RequireFromString("0.50"),
	"gbp": decimal.RequireFromString("0.30"),
	"jpy": decimal.NewFromInt(50),
	"mxn": decimal.NewFromInt(10),
	"hkd": decimal.NewFromInt(4),
	"sek": decimal.NewFromInt(3),
	"nok": decimal.NewFromInt(3),
	"dkk": decimal.RequireFromString("2.50"),
}

var defaultMinimum = decimal.RequireFromString("0.50")

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinimumCharge returns the smallest chargeable amount in currency.
func MinimumCharge(currency string) decimal.Decimal {
	if m, ok := minimumCharge[strings.ToLower(currency)]; ok {
		return m
	}
	return defaultMinimum
}

// Quote is the amount to charge for a course.
type Quote struct {
	Amount   decimal.Decimal
	Original decimal.NullDecimal
	Adjusted bool
	Currency string
}

// Exact quotes net without any adjustment.
func Exact(net decimal.Decimal, currency string) Quote {
	return Quote{Amount: net, Currency: strings.ToLower(currency)}
}

// Chargeable quotes net, raised to the currency minimum when below it. The
// intended amount is kept in Original when raised.
func Chargeable(net decimal.Decimal, currency string) Quote {
	q := Exact(net, currency)
	floor := MinimumCharge(q.Currency)
	if net.LessThan(floor) {
		q.Original = decimal.NewNullDecimal(net)
		q.Amount = floor
		q.Adjusted = true
	}
	return q
}

// MinorUnits converts amount to the smallest unit of currency.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Major formats amount with the precision of currency.
func Major(amount decimal.Decimal, currency string) string {
	if zeroDecimal[strings.ToLower(currency)] {
		return amount.StringFixed(0)
	}
	return amount.StringFixed(2)
}
