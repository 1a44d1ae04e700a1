package orderbook

import (
	"github.com/shopspring/decimal"
)

// PriceExp is the decimal exponent of one tick: prices are carried as
// integer nano units, the convention of the MBO feed.
const PriceExp = -9

// Price is a fixed-point price in ticks of 1e-9.
type Price int64

// ParsePrice parses decimal text into ticks without going through float64.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return fromDecimal(d), nil
}

// PriceFromFloat rounds f to the nearest tick.
func PriceFromFloat(f float64) Price {
	return fromDecimal(decimal.NewFromFloat(f))
}

func fromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(-PriceExp).Round(0).IntPart())
}

// Decimal returns the exact decimal value of p.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), PriceExp)
}

// Float64 returns p for display. It is never used as a map key.
func (p Price) Float64() float64 {
	return p.Decimal().InexactFloat64()
}

// StringFixed formats p with a fixed number of decimal places.
func (p Price) StringFixed(places int32) string {
	return p.Decimal().StringFixed(places)
}

func (p Price) String() string {
	return p.Decimal().String()
}
