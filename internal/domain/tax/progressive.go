package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type BracketContribution struct {
	Bracket       Bracket         `json:"bracket"`
	TaxForBracket decimal.Decimal `json:"tax_for_bracket"`
}

// ProgressiveCalculator applies a bracket table to a taxable amount. It holds
// no state and performs no rounding: the breakdown always sums to the tax.
type ProgressiveCalculator struct{}

// Calculate returns the tax due on taxableIncome and the per-bracket
// contributions. want is the granularity the caller's income is expressed
// in; a table of a different granularity is a configuration error.
func (c ProgressiveCalculator) Calculate(taxableIncome decimal.Decimal, table BracketTable, want Granularity) (decimal.Decimal, []BracketContribution, error) {
	if table.Granularity != want {
		return decimal.Zero, nil, &ConfigurationError{
			Year:   table.Year,
			Key:    bracketsKey,
			Reason: fmt.Sprintf("table is %s but %s income was supplied", table.Granularity, want),
		}
	}
	if err := table.Validate(); err != nil {
		return decimal.Zero, nil, err
	}
	if taxableIncome.IsNegative() {
		return decimal.Zero, nil, newValidationError("taxable_income", "must not be negative")
	}

	breakdown := []BracketContribution{}
	if taxableIncome.IsZero() {
		return decimal.Zero, breakdown, nil
	}

	tax := decimal.Zero
	for _, b := range table.Brackets {
		amount := percentOf(b.portion(taxableIncome), b.Rate)
		tax = tax.Add(amount)
		breakdown = append(breakdown, BracketContribution{Bracket: b, TaxForBracket: amount})
	}
	return tax, breakdown, nil
}

// Breakdown exposes the per-bracket table on its own, for display.
func (c ProgressiveCalculator) Breakdown(taxableIncome decimal.Decimal, table BracketTable, want Granularity) ([]BracketContribution, error) {
	_, breakdown, err := c.Calculate(taxableIncome, table, want)
	return breakdown, err
}

func roundBreakdown(in []BracketContribution) []BracketContribution {
	out := make([]BracketContribution, len(in))
	for i, c := range in {
		out[i] = BracketContribution{Bracket: c.Bracket, TaxForBracket: RoundMoney(c.TaxForBracket)}
	}
	return out
}
