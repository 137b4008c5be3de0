package tax

import (
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	moneyPlaces = 2

	// MaxFractionDigits is the finest precision accepted on input.
	MaxFractionDigits = 4

	// A coefficient wider than this cannot be a valid amount at any
	// exponent the checks accept.
	maxCoefficientBits = 128

	amountMaxExponent = 15
	rateMaxExponent   = 2
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	maxRate       = decimal.NewFromInt(100)

	// MaxAmount is the largest money value accepted on input.
	MaxAmount = decimal.New(1, amountMaxExponent)

	bigTen = big.NewInt(10)
)

// CheckAmount returns the reason d is not an acceptable money input, or ""
// when it is. It inspects coefficient and exponent before comparing, so an
// input like 1e50000000 is rejected without being expanded.
func CheckAmount(d decimal.Decimal) string {
	return checkBounded(d, MaxAmount, amountMaxExponent)
}

func checkRate(d decimal.Decimal) string {
	return checkBounded(d, maxRate, rateMaxExponent)
}

func checkBounded(d, ceiling decimal.Decimal, maxExp int32) string {
	switch d.Sign() {
	case 0:
		return ""
	case -1:
		return "must be greater than or equal to 0"
	}
	coef := d.Coefficient()
	if coef.BitLen() > maxCoefficientBits {
		return "has too many digits"
	}
	coef, exp := trimZeros(coef, d.Exponent())
	if exp < -MaxFractionDigits {
		return "must have at most " + strconv.Itoa(MaxFractionDigits) + " decimal places"
	}
	if exp > maxExp || decimal.NewFromBigInt(coef, exp).GreaterThan(ceiling) {
		return "must be at most " + ceiling.String()
	}
	return ""
}

// trimZeros drops trailing zero digits of a negative-exponent coefficient,
// so 1.50000 is judged as 1.5. coef must be non-zero.
func trimZeros(coef *big.Int, exp int32) (*big.Int, int32) {
	q, r := new(big.Int), new(big.Int)
	for exp < 0 {
		q.QuoRem(coef, bigTen, r)
		if r.Sign() != 0 {
			break
		}
		coef, q = q, coef
		exp++
	}
	return coef, exp
}

// RoundMoney is the single rounding rule for every amount handed back to a
// caller: half-up to two fractional digits. Internal sums stay unrounded.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// percentOf returns amount * rate / 100. Shift keeps the division exact.
func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Shift(-2)
}

func monthly(annual decimal.Decimal) decimal.Decimal {
	return annual.Div(monthsPerYear)
}

func sumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
