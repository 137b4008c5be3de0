package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hrms/internal/domain/auth"
	"hrms/internal/domain/tax"
)

var payrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Calculate one month's payroll for an employee",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService(cmd)
		if err != nil {
			return err
		}
		employee, _ := cmd.Flags().GetString("employee")
		gross, _ := cmd.Flags().GetString("gross")
		incomes, _ := cmd.Flags().GetStringArray("income")
		deductions, _ := cmd.Flags().GetStringArray("deduction")
		year, _ := cmd.Flags().GetInt("year")

		req := tax.PayrollRequest{EmployeeID: employee, TaxYear: year}
		if req.GrossSalary, err = decimal.NewFromString(gross); err != nil {
			return fmt.Errorf("--gross: %w", err)
		}
		if req.AdditionalIncome, err = parseItems(incomes); err != nil {
			return fmt.Errorf("--income: %w", err)
		}
		if req.AdditionalDeductions, err = parseItems(deductions); err != nil {
			return fmt.Errorf("--deduction: %w", err)
		}

		res, err := svc.CalculatePayroll(context.Background(), req)
		if err != nil {
			return err
		}
		if pdfPath, _ := cmd.Flags().GetString("pdf"); pdfPath != "" {
			if err := writeStatement(pdfPath, func(w io.Writer) error { return tax.RenderPayrollStatement(w, res) }); err != nil {
				return err
			}
		}
		return render(cmd, res, func(w io.Writer) { printPayroll(w, res) })
	},
}

var incomeTaxCmd = &cobra.Command{
	Use:   "income-tax",
	Short: "Calculate income tax on an annual taxable amount",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService(cmd)
		if err != nil {
			return err
		}
		income, _ := cmd.Flags().GetString("income")
		year, _ := cmd.Flags().GetInt("year")

		taxable, err := decimal.NewFromString(income)
		if err != nil {
			return fmt.Errorf("--income: %w", err)
		}
		res, err := svc.CalculateIncomeTax(context.Background(), tax.IncomeTaxRequest{TaxableIncome: taxable, TaxYear: year})
		if err != nil {
			return err
		}
		return render(cmd, res, func(w io.Writer) { printIncomeTax(w, res) })
	},
}

// annualInput is the file format for the annual command.
type annualInput struct {
	EmployeeID string `yaml:"employee_id"`
	TaxYear    int    `yaml:"tax_year"`
	Months     []struct {
		Month           int             `yaml:"month"`
		TotalIncome     decimal.Decimal `yaml:"total_income"`
		TotalDeductions decimal.Decimal `yaml:"total_deductions"`
		IncomeTax       decimal.Decimal `yaml:"income_tax"`
	} `yaml:"monthly_payrolls"`
}

var annualCmd = &cobra.Command{
	Use:   "annual [input-file]",
	Short: "Reconcile twelve months of withheld tax",
	Long: "Reconciles the monthly payrolls in input-file (YAML or JSON). With\n" +
		"--gross instead of a file, twelve identical months are calculated first.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService(cmd)
		if err != nil {
			return err
		}
		year, _ := cmd.Flags().GetInt("year")
		employee, _ := cmd.Flags().GetString("employee")
		gross, _ := cmd.Flags().GetString("gross")

		req := tax.AnnualRequest{EmployeeID: employee, TaxYear: year}
		switch {
		case len(args) == 1:
			if req, err = readAnnualInput(args[0]); err != nil {
				return err
			}
			if year != 0 {
				req.TaxYear = year
			}
		case gross != "":
			if req.MonthlyPayrolls, err = monthsFromGross(svc, employee, year, gross); err != nil {
				return err
			}
		default:
			return fmt.Errorf("either an input file or --gross is required")
		}

		sum, err := svc.CalculateAnnualSummary(context.Background(), req)
		if err != nil {
			return err
		}
		if pdfPath, _ := cmd.Flags().GetString("pdf"); pdfPath != "" {
			if err := writeStatement(pdfPath, func(w io.Writer) error { return tax.RenderAnnualStatement(w, sum) }); err != nil {
				return err
			}
		}
		return render(cmd, sum, func(w io.Writer) { printAnnual(w, sum) })
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [payload.json]",
	Short: "Check a payroll calculation payload without calculating",
	Long:  "Reads a JSON payload from the file, or stdin when omitted, and lists every problem.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		dec := json.NewDecoder(in)
		dec.UseNumber()
		var payload map[string]any
		if err := dec.Decode(&payload); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}

		issues := tax.NewInputValidator(0, 0).Validate(payload)
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "payload is valid")
			return nil
		}
		for _, issue := range issues {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", issue.Field, issue.Reason)
		}
		return fmt.Errorf("%d validation issue(s)", len(issues))
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("JWT_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("--secret or JWT_SECRET is required")
		}
		if _, ok := auth.RolePermissions[role]; !ok {
			return fmt.Errorf("unknown role %q", role)
		}
		token, err := auth.GenerateToken(secret, auth.Claims{UserID: user, RoleName: role}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	payrollCmd.Flags().String("employee", "", "Employee id (required)")
	payrollCmd.Flags().String("gross", "", "Monthly gross salary (required)")
	payrollCmd.Flags().StringArray("income", nil, "Additional income as type=amount (repeatable)")
	payrollCmd.Flags().StringArray("deduction", nil, "Additional deduction as type=amount (repeatable)")
	payrollCmd.Flags().String("pdf", "", "Also write a PDF statement to this path")
	_ = payrollCmd.MarkFlagRequired("employee")
	_ = payrollCmd.MarkFlagRequired("gross")

	incomeTaxCmd.Flags().String("income", "", "Annual taxable income (required)")
	_ = incomeTaxCmd.MarkFlagRequired("income")

	annualCmd.Flags().String("employee", "", "Employee id, used with --gross")
	annualCmd.Flags().String("gross", "", "Monthly gross salary for twelve identical months")
	annualCmd.Flags().String("pdf", "", "Also write a PDF statement to this path")

	tokenCmd.Flags().String("user", "local-user", "User id claim")
	tokenCmd.Flags().String("role", auth.RolePayroll, "Role claim")
	tokenCmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	tokenCmd.Flags().String("secret", "", "Signing secret (default: JWT_SECRET)")
}

func loadService(cmd *cobra.Command) (*tax.Service, error) {
	path, _ := cmd.Flags().GetString("settings")
	fixture, err := tax.ReadFixtureFile(path)
	if err != nil {
		return nil, err
	}
	store, err := tax.NewMemoryStoreFromFixture(fixture)
	if err != nil {
		return nil, err
	}
	return tax.NewService(store, store, tax.Options{}), nil
}

func parseItems(raw []string) ([]tax.Item, error) {
	items := make([]tax.Item, 0, len(raw))
	for _, r := range raw {
		typ, amount, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("%q is not type=amount", r)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", r, err)
		}
		items = append(items, tax.Item{Type: strings.TrimSpace(typ), Amount: d})
	}
	return items, nil
}

func readAnnualInput(path string) (tax.AnnualRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tax.AnnualRequest{}, err
	}
	// JSON is a subset of YAML, so one decoder covers both.
	var in annualInput
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return tax.AnnualRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	req := tax.AnnualRequest{EmployeeID: in.EmployeeID, TaxYear: in.TaxYear}
	for _, m := range in.Months {
		req.MonthlyPayrolls = append(req.MonthlyPayrolls, tax.MonthlyPayroll{
			Month:           m.Month,
			TotalIncome:     m.TotalIncome,
			TotalDeductions: m.TotalDeductions,
			IncomeTax:       m.IncomeTax,
		})
	}
	return req, nil
}

func monthsFromGross(svc *tax.Service, employee string, year int, gross string) ([]tax.MonthlyPayroll, error) {
	amount, err := decimal.NewFromString(gross)
	if err != nil {
		return nil, fmt.Errorf("--gross: %w", err)
	}
	res, err := svc.CalculatePayroll(context.Background(), tax.PayrollRequest{EmployeeID: employee, GrossSalary: amount, TaxYear: year})
	if err != nil {
		return nil, err
	}
	months := make([]tax.MonthlyPayroll, 12)
	for i := range months {
		months[i] = tax.MonthlyFromPayroll(i+1, res)
	}
	return months, nil
}

func writeStatement(path string, renderPDF func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := renderPDF(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
