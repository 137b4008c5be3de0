package tax

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// RenderPayrollStatement writes a one-page PDF of an already computed
// payroll result.
func RenderPayrollStatement(w io.Writer, r PayrollResult) error {
	pdf := newStatement(fmt.Sprintf("Payroll statement %d", r.TaxYear), r.EmployeeID)

	section(pdf, "Income")
	line(pdf, "Gross salary", r.GrossSalary)
	line(pdf, "Total income", r.TotalIncome)

	section(pdf, "Deductions")
	line(pdf, "Personal allowance", r.Deductions.PersonalAllowance)
	line(pdf, "Standard deduction", r.Deductions.StandardDeduction)
	for _, a := range r.Deductions.Additional {
		line(pdf, a.Key, a.Amount)
	}
	line(pdf, "Total deductions", r.Deductions.TotalDeductions)
	line(pdf, "Social security (employee)", r.SocialSecurity.EmployeeContribution)
	line(pdf, "Social security (employer)", r.SocialSecurity.EmployerContribution)
	line(pdf, "Other deductions", r.AdditionalDeductions)

	section(pdf, "Tax")
	line(pdf, "Annualized taxable income", r.TaxableIncome)
	line(pdf, "Annual income tax", r.AnnualIncomeTax)
	line(pdf, "Monthly income tax", r.IncomeTax)
	breakdownTable(pdf, r.TaxBreakdown)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Net salary", r.NetSalary)

	return pdf.Output(w)
}

func RenderAnnualStatement(w io.Writer, s AnnualSummary) error {
	pdf := newStatement(fmt.Sprintf("Annual tax reconciliation %d", s.TaxYear), s.EmployeeID)

	section(pdf, "Year totals")
	line(pdf, "Total income", s.TotalIncome)
	line(pdf, "Total deductions", s.TotalDeductions)
	line(pdf, "Taxable income", s.TaxableIncome)

	section(pdf, "Reconciliation")
	line(pdf, "Tax liability", s.TaxLiability)
	line(pdf, "Tax paid", s.TaxPaid)
	line(pdf, "Difference", s.TaxDifference)
	line(pdf, "Refund due", s.RefundDue)
	line(pdf, "Additional tax due", s.AdditionalTaxDue)
	breakdownTable(pdf, s.TaxBreakdown)

	return pdf.Output(w)
}

func newStatement(title, employeeID string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, title)
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, "Employee: "+employeeID)
	pdf.Ln(10)
	return pdf
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
}

func line(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal) {
	pdf.CellFormat(110, 7, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, amount.StringFixed(moneyPlaces), "", 1, "R", false, 0, "")
}

func breakdownTable(pdf *gofpdf.Fpdf, breakdown []BracketContribution) {
	if len(breakdown) == 0 {
		return
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 10)
	for _, h := range []string{"From", "To", "Rate %", "Tax"} {
		pdf.CellFormat(40, 6, h, "B", 0, "R", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	for _, c := range breakdown {
		upper := "and above"
		if c.Bracket.UpperBound != nil {
			upper = c.Bracket.UpperBound.StringFixed(moneyPlaces)
		}
		pdf.CellFormat(40, 6, c.Bracket.LowerBound.StringFixed(moneyPlaces), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, upper, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, c.Bracket.Rate.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, c.TaxForBracket.StringFixed(moneyPlaces), "", 1, "R", false, 0, "")
	}
}
