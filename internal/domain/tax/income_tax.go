package tax

import "github.com/shopspring/decimal"

type IncomeTaxRequest struct {
	TaxableIncome decimal.Decimal `json:"taxable_income" validate:"amount"`
	TaxYear       int             `json:"tax_year,omitempty" validate:"omitempty,taxyear"`
}

// IncomeTaxResult is the tax on an annual taxable amount. EffectiveRate is
// a percentage.
type IncomeTaxResult struct {
	TaxYear       int                   `json:"tax_year"`
	TaxableIncome decimal.Decimal       `json:"taxable_income"`
	AnnualTax     decimal.Decimal       `json:"annual_tax"`
	MonthlyTax    decimal.Decimal       `json:"monthly_tax"`
	EffectiveRate decimal.Decimal       `json:"effective_rate"`
	TaxBreakdown  []BracketContribution `json:"tax_breakdown"`
}

func computeIncomeTax(calc ProgressiveCalculator, table BracketTable, taxableIncome decimal.Decimal) (IncomeTaxResult, error) {
	annual, breakdown, err := calc.Calculate(taxableIncome, table, Annual)
	if err != nil {
		return IncomeTaxResult{}, err
	}
	rate := decimal.Zero
	if taxableIncome.IsPositive() {
		rate = annual.Shift(2).Div(taxableIncome)
	}
	return IncomeTaxResult{
		TaxYear:       table.Year,
		TaxableIncome: RoundMoney(taxableIncome),
		AnnualTax:     RoundMoney(annual),
		MonthlyTax:    RoundMoney(monthly(annual)),
		EffectiveRate: RoundMoney(rate),
		TaxBreakdown:  roundBreakdown(breakdown),
	}, nil
}
