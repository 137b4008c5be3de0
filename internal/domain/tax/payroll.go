package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is an ad hoc income or deduction line supplied with one calculation.
type Item struct {
	Type        string          `json:"type" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount" validate:"amount"`
	Description string          `json:"description,omitempty" validate:"max=255"`
}

type PayrollRequest struct {
	EmployeeID           string          `json:"employee_id" validate:"required,max=64"`
	GrossSalary          decimal.Decimal `json:"gross_salary" validate:"amount"`
	TaxYear              int             `json:"tax_year,omitempty" validate:"omitempty,taxyear"`
	AdditionalIncome     []Item          `json:"additional_income,omitempty" validate:"dive"`
	AdditionalDeductions []Item          `json:"additional_deductions,omitempty" validate:"dive"`
}

type PayrollDeductions struct {
	PersonalAllowance decimal.Decimal `json:"personal_allowance"`
	StandardDeduction decimal.Decimal `json:"standard_deduction"`
	Additional        []NamedAmount   `json:"additional"`
	TotalDeductions   decimal.Decimal `json:"total_deductions"`
}

type SocialSecurity struct {
	EmployeeContribution decimal.Decimal `json:"employee_contribution"`
	EmployerContribution decimal.Decimal `json:"employer_contribution"`
}

// PayrollResult is one month's computed payroll. TaxableIncome and
// AnnualIncomeTax are annualized figures; everything else is monthly.
type PayrollResult struct {
	EmployeeID           string                `json:"employee_id"`
	TaxYear              int                   `json:"tax_year"`
	GrossSalary          decimal.Decimal       `json:"gross_salary"`
	TotalIncome          decimal.Decimal       `json:"total_income"`
	TaxableIncome        decimal.Decimal       `json:"taxable_income"`
	AnnualIncomeTax      decimal.Decimal       `json:"annual_income_tax"`
	IncomeTax            decimal.Decimal       `json:"income_tax"`
	AdditionalDeductions decimal.Decimal       `json:"additional_deductions"`
	NetSalary            decimal.Decimal       `json:"net_salary"`
	Deductions           PayrollDeductions     `json:"deductions"`
	SocialSecurity       SocialSecurity        `json:"social_security"`
	TaxBreakdown         []BracketContribution `json:"tax_breakdown"`
}

// payrollFigures holds the unrounded intermediate values. The accounting
// identity holds exactly on these.
type payrollFigures struct {
	gross                decimal.Decimal
	totalIncome          decimal.Decimal
	personalAllowance    decimal.Decimal
	standardDeduction    decimal.Decimal
	additional           []NamedAmount
	totalDeductions      decimal.Decimal
	employeeSS           decimal.Decimal
	employerSS           decimal.Decimal
	taxableIncome        decimal.Decimal
	annualTax            decimal.Decimal
	incomeTax            decimal.Decimal
	additionalDeductions decimal.Decimal
	netSalary            decimal.Decimal
	breakdown            []BracketContribution
}

type PayrollCalculator struct {
	configs   YearConfigSource
	employees EmployeeDirectory
	calc      ProgressiveCalculator
}

func NewPayrollCalculator(configs YearConfigSource, employees EmployeeDirectory) *PayrollCalculator {
	return &PayrollCalculator{configs: configs, employees: employees}
}

// CalculatePayroll expects req.TaxYear to be set.
func (p *PayrollCalculator) CalculatePayroll(ctx context.Context, req PayrollRequest) (PayrollResult, error) {
	if err := requireEmployee(ctx, p.employees, req.EmployeeID); err != nil {
		return PayrollResult{}, err
	}
	cfg, err := p.configs.Get(ctx, req.TaxYear)
	if err != nil {
		return PayrollResult{}, err
	}
	figures, err := p.compute(cfg, req)
	if err != nil {
		return PayrollResult{}, err
	}
	return figures.result(req.EmployeeID, req.TaxYear), nil
}

func (p *PayrollCalculator) compute(cfg YearConfig, req PayrollRequest) (payrollFigures, error) {
	d := cfg.Deductions
	f := payrollFigures{gross: req.GrossSalary}

	f.totalIncome = req.GrossSalary.Add(sumItems(req.AdditionalIncome))

	ssBase := decimal.Min(req.GrossSalary, d.SocialSecurityWageCap)
	f.employeeSS = percentOf(ssBase, d.SocialSecurityRate)
	f.employerSS = percentOf(ssBase, d.SocialSecurityEmployerRate)

	f.personalAllowance = monthly(d.PersonalAllowance)
	f.standardDeduction = monthly(d.StandardDeductionCap)
	if d.StandardDeductionRate != nil {
		f.standardDeduction = decimal.Min(percentOf(f.totalIncome, *d.StandardDeductionRate), f.standardDeduction)
	}
	f.totalDeductions = f.personalAllowance.Add(f.standardDeduction)
	f.additional = make([]NamedAmount, 0, len(d.Additional))
	for _, a := range d.Additional {
		m := monthly(a.Amount)
		f.additional = append(f.additional, NamedAmount{Key: a.Key, Amount: m})
		f.totalDeductions = f.totalDeductions.Add(m)
	}

	monthlyTaxable := nonNegative(f.totalIncome.Sub(f.totalDeductions).Sub(f.employeeSS))
	f.taxableIncome = monthlyTaxable.Mul(monthsPerYear)

	annualTax, breakdown, err := p.calc.Calculate(f.taxableIncome, cfg.Brackets, Annual)
	if err != nil {
		return payrollFigures{}, err
	}
	f.annualTax = annualTax
	f.breakdown = breakdown
	f.incomeTax = monthly(annualTax)

	f.additionalDeductions = sumItems(req.AdditionalDeductions)
	f.netSalary = f.totalIncome.
		Sub(f.totalDeductions).
		Sub(f.employeeSS).
		Sub(f.incomeTax).
		Sub(f.additionalDeductions)
	return f, nil
}

func (f payrollFigures) result(employeeID string, year int) PayrollResult {
	additional := make([]NamedAmount, len(f.additional))
	for i, a := range f.additional {
		additional[i] = NamedAmount{Key: a.Key, Amount: RoundMoney(a.Amount)}
	}
	return PayrollResult{
		EmployeeID:           employeeID,
		TaxYear:              year,
		GrossSalary:          RoundMoney(f.gross),
		TotalIncome:          RoundMoney(f.totalIncome),
		TaxableIncome:        RoundMoney(f.taxableIncome),
		AnnualIncomeTax:      RoundMoney(f.annualTax),
		IncomeTax:            RoundMoney(f.incomeTax),
		AdditionalDeductions: RoundMoney(f.additionalDeductions),
		NetSalary:            RoundMoney(f.netSalary),
		Deductions: PayrollDeductions{
			PersonalAllowance: RoundMoney(f.personalAllowance),
			StandardDeduction: RoundMoney(f.standardDeduction),
			Additional:        additional,
			TotalDeductions:   RoundMoney(f.totalDeductions),
		},
		SocialSecurity: SocialSecurity{
			EmployeeContribution: RoundMoney(f.employeeSS),
			EmployerContribution: RoundMoney(f.employerSS),
		},
		TaxBreakdown: roundBreakdown(f.breakdown),
	}
}

func requireEmployee(ctx context.Context, employees EmployeeDirectory, employeeID string) error {
	exists, err := employees.EmployeeExists(ctx, employeeID)
	if err != nil {
		return infraError("check employee", err)
	}
	if !exists {
		return &NotFoundError{Entity: "employee", ID: employeeID}
	}
	return nil
}
