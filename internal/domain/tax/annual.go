package tax

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// MonthlyPayroll is one month as reported to the reconciliation.
// TotalDeductions must already include the employee social security
// contribution; MonthlyFromPayroll builds it that way.
type MonthlyPayroll struct {
	Month           int             `json:"month"`
	TotalIncome     decimal.Decimal `json:"total_income" validate:"amount"`
	TotalDeductions decimal.Decimal `json:"total_deductions" validate:"amount"`
	IncomeTax       decimal.Decimal `json:"income_tax" validate:"amount"`
}

func MonthlyFromPayroll(month int, r PayrollResult) MonthlyPayroll {
	return MonthlyPayroll{
		Month:           month,
		TotalIncome:     r.TotalIncome,
		TotalDeductions: r.Deductions.TotalDeductions.Add(r.SocialSecurity.EmployeeContribution),
		IncomeTax:       r.IncomeTax,
	}
}

type AnnualRequest struct {
	EmployeeID      string           `json:"employee_id" validate:"required,max=64"`
	TaxYear         int              `json:"tax_year,omitempty" validate:"omitempty,taxyear"`
	MonthlyPayrolls []MonthlyPayroll `json:"monthly_payrolls" validate:"dive"`
}

type AnnualSummary struct {
	EmployeeID       string                `json:"employee_id"`
	TaxYear          int                   `json:"tax_year"`
	TotalIncome      decimal.Decimal       `json:"total_income"`
	TotalDeductions  decimal.Decimal       `json:"total_deductions"`
	TaxableIncome    decimal.Decimal       `json:"taxable_income"`
	TaxLiability     decimal.Decimal       `json:"tax_liability"`
	TaxPaid          decimal.Decimal       `json:"tax_paid"`
	TaxDifference    decimal.Decimal       `json:"tax_difference"`
	RefundDue        decimal.Decimal       `json:"refund_due"`
	AdditionalTaxDue decimal.Decimal       `json:"additional_tax_due"`
	TaxBreakdown     []BracketContribution `json:"tax_breakdown"`
}

type AnnualReconciler struct {
	configs   YearConfigSource
	employees EmployeeDirectory
	calc      ProgressiveCalculator
}

func NewAnnualReconciler(configs YearConfigSource, employees EmployeeDirectory) *AnnualReconciler {
	return &AnnualReconciler{configs: configs, employees: employees}
}

func (a *AnnualReconciler) CalculateAnnualTax(ctx context.Context, employeeID string, year int, months []MonthlyPayroll) (AnnualSummary, error) {
	if issues := monthIssues(months); len(issues) > 0 {
		return AnnualSummary{}, &ValidationError{Fields: issues}
	}
	if err := requireEmployee(ctx, a.employees, employeeID); err != nil {
		return AnnualSummary{}, err
	}
	cfg, err := a.configs.Get(ctx, year)
	if err != nil {
		return AnnualSummary{}, err
	}
	return a.reconcile(cfg, employeeID, months)
}

func (a *AnnualReconciler) reconcile(cfg YearConfig, employeeID string, months []MonthlyPayroll) (AnnualSummary, error) {
	income, deductions, paid := decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range months {
		income = income.Add(m.TotalIncome)
		deductions = deductions.Add(m.TotalDeductions)
		paid = paid.Add(m.IncomeTax)
	}
	taxable := nonNegative(income.Sub(deductions))

	liability, breakdown, err := a.calc.Calculate(taxable, cfg.Brackets, Annual)
	if err != nil {
		return AnnualSummary{}, err
	}

	// Liability and paid are each rounded once; the difference is derived
	// from the rounded pair so paid + due - refund == liability exactly.
	roundedLiability := RoundMoney(liability)
	roundedPaid := RoundMoney(paid)
	diff := roundedLiability.Sub(roundedPaid)

	summary := AnnualSummary{
		EmployeeID:       employeeID,
		TaxYear:          cfg.Year,
		TotalIncome:      RoundMoney(income),
		TotalDeductions:  RoundMoney(deductions),
		TaxableIncome:    RoundMoney(taxable),
		TaxLiability:     roundedLiability,
		TaxPaid:          roundedPaid,
		TaxDifference:    diff,
		RefundDue:        decimal.Zero,
		AdditionalTaxDue: decimal.Zero,
		TaxBreakdown:     roundBreakdown(breakdown),
	}
	switch diff.Sign() {
	case 1:
		summary.AdditionalTaxDue = diff
	case -1:
		summary.RefundDue = diff.Neg()
	}
	return summary, nil
}

// monthIssues reports a month list that is not exactly January..December.
// Out of range months are reported once and left out of the duplicate check.
func monthIssues(months []MonthlyPayroll) []FieldError {
	var issues []FieldError
	if len(months) != 12 {
		issues = append(issues, FieldError{
			Field:  "monthly_payrolls",
			Reason: fmt.Sprintf("must contain exactly 12 entries, got %d", len(months)),
		})
	}
	numbers := lo.Map(months, func(m MonthlyPayroll, _ int) int { return m.Month })
	for i, n := range numbers {
		if n < 1 || n > 12 {
			issues = append(issues, FieldError{
				Field:  fmt.Sprintf("monthly_payrolls[%d].month", i),
				Reason: "must be between 1 and 12",
			})
		}
	}
	dups := lo.FindDuplicates(lo.Filter(numbers, func(n int, _ int) bool { return n >= 1 && n <= 12 }))
	sort.Ints(dups)
	for _, n := range dups {
		issues = append(issues, FieldError{
			Field:  "monthly_payrolls",
			Reason: fmt.Sprintf("month %d appears more than once", n),
		})
	}
	return issues
}
