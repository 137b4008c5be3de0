package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"hrms/internal/domain/tax"
)

func render(cmd *cobra.Command, v any, table func(io.Writer)) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table", "":
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func row(w io.Writer, label string, amount decimal.Decimal) {
	fmt.Fprintf(w, "%s\t%s\t\n", label, amount.StringFixed(2))
}

func printBreakdown(w io.Writer, breakdown []tax.BracketContribution) {
	if len(breakdown) == 0 {
		return
	}
	fmt.Fprintln(w, "\t\t")
	for _, b := range breakdown {
		upper := "and above"
		if b.Bracket.UpperBound != nil {
			upper = "to " + b.Bracket.UpperBound.StringFixed(2)
		}
		fmt.Fprintf(w, "%s %s @ %s%%\t%s\t\n", b.Bracket.LowerBound.StringFixed(2), upper, b.Bracket.Rate.String(), b.TaxForBracket.StringFixed(2))
	}
}

func printPayroll(w io.Writer, r tax.PayrollResult) {
	fmt.Fprintf(w, "Employee %s, tax year %d\t\t\n", r.EmployeeID, r.TaxYear)
	row(w, "Gross salary", r.GrossSalary)
	row(w, "Total income", r.TotalIncome)
	row(w, "Personal allowance", r.Deductions.PersonalAllowance)
	row(w, "Standard deduction", r.Deductions.StandardDeduction)
	for _, a := range r.Deductions.Additional {
		row(w, a.Key, a.Amount)
	}
	row(w, "Total deductions", r.Deductions.TotalDeductions)
	row(w, "Social security (employee)", r.SocialSecurity.EmployeeContribution)
	row(w, "Social security (employer)", r.SocialSecurity.EmployerContribution)
	row(w, "Annual taxable income", r.TaxableIncome)
	row(w, "Annual income tax", r.AnnualIncomeTax)
	row(w, "Monthly income tax", r.IncomeTax)
	row(w, "Other deductions", r.AdditionalDeductions)
	row(w, "Net salary", r.NetSalary)
	printBreakdown(w, r.TaxBreakdown)
}

func printIncomeTax(w io.Writer, r tax.IncomeTaxResult) {
	fmt.Fprintf(w, "Tax year %d\t\t\n", r.TaxYear)
	row(w, "Taxable income", r.TaxableIncome)
	row(w, "Annual tax", r.AnnualTax)
	row(w, "Monthly tax", r.MonthlyTax)
	fmt.Fprintf(w, "Effective rate\t%s%%\t\n", r.EffectiveRate.StringFixed(2))
	printBreakdown(w, r.TaxBreakdown)
}

func printAnnual(w io.Writer, s tax.AnnualSummary) {
	fmt.Fprintf(w, "Employee %s, tax year %d\t\t\n", s.EmployeeID, s.TaxYear)
	row(w, "Total income", s.TotalIncome)
	row(w, "Total deductions", s.TotalDeductions)
	row(w, "Taxable income", s.TaxableIncome)
	row(w, "Tax liability", s.TaxLiability)
	row(w, "Tax paid", s.TaxPaid)
	row(w, "Difference", s.TaxDifference)
	row(w, "Refund due", s.RefundDue)
	row(w, "Additional tax due", s.AdditionalTaxDue)
	printBreakdown(w, s.TaxBreakdown)
}
