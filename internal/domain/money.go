package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MinPrice is the lowest price a simulated stock can reach
const MinPrice = 0.01

var (
	hundred  = decimal.NewFromInt(100)
	maxCoins = decimal.NewFromInt(math.MaxInt64)
)

// Round2 rounds a value half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Amount returns round2(price * quantity) computed exactly in decimal.
func Amount(price float64, quantity int64) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity)).Round(2).Float64()
	return f
}

// DebitCoins converts an order amount to the whole coins debited from a balance.
// Fractions are rounded up so a buyer never pays less than the amount.
func DebitCoins(amount float64) (int64, error) {
	return coins(decimal.NewFromFloat(amount).Round(2).Ceil())
}

// CreditCoins converts an order amount to the whole coins credited to a balance.
// Fractions are truncated so a seller never receives more than the amount.
func CreditCoins(amount float64) (int64, error) {
	return coins(decimal.NewFromFloat(amount).Round(2).Floor())
}

// coins rejects amounts a balance counter cannot hold.
func coins(d decimal.Decimal) (int64, error) {
	if d.GreaterThan(maxCoins) || d.IsNegative() {
		return 0, fmt.Errorf("%w: amount %s is out of the coin range", ErrInvalidArgument, d.String())
	}
	return d.IntPart(), nil
}

// Percent returns round2(part / base * 100); a zero base yields 0.
func Percent(part, base float64) float64 {
	b := decimal.NewFromFloat(base)
	if b.IsZero() {
		return 0
	}
	f, _ := decimal.NewFromFloat(part).Div(b).Mul(hundred).Round(2).Float64()
	return f
}

// WeightedAverage returns round2((s1*p1 + s2*p2) / (s1+s2)).
func WeightedAverage(shares1 int64, price1 float64, shares2 int64, price2 float64) float64 {
	total := shares1 + shares2
	if total == 0 {
		return 0
	}
	cost := decimal.NewFromFloat(price1).Mul(decimal.NewFromInt(shares1)).
		Add(decimal.NewFromFloat(price2).Mul(decimal.NewFromInt(shares2)))
	f, _ := cost.Div(decimal.NewFromInt(total)).Round(2).Float64()
	return f
}
