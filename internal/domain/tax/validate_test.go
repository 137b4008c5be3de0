package tax

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))
	return payload
}

func fieldNames(issues []FieldError) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestValidateNegativeGrossSalary(t *testing.T) {
	v := NewInputValidator(0, 0)
	issues := v.Validate(map[string]any{"gross_salary": -100})
	require.NotEmpty(t, issues)
	assert.Contains(t, fieldNames(issues), "gross_salary")
}

func TestValidateValidPayload(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	issues := v.Validate(decodePayload(t, `{
		"employee_id": "E001",
		"gross_salary": 50000.50,
		"tax_year": 2024,
		"additional_income": [{"type": "bonus", "amount": "100.25", "description": "Q1"}],
		"additional_deductions": []
	}`))
	require.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	issues := v.Validate(decodePayload(t, `{
		"gross_salary": "lots",
		"tax_year": 1999,
		"currency": "EUR",
		"additional_income": [{"amount": -1}, "bonus"],
		"additional_deductions": [{"type": "loan", "amount": 5, "note": "x"}]
	}`))
	assert.Equal(t, []string{
		"additional_deductions[0].note",
		"additional_income[0].amount",
		"additional_income[0].type",
		"additional_income[1]",
		"currency",
		"employee_id",
		"gross_salary",
		"tax_year",
	}, fieldNames(issues))
}

func TestValidateReasons(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	issues := v.Validate(decodePayload(t, `{"employee_id": "E1", "gross_salary": -1, "tax_year": 2200}`))
	require.Len(t, issues, 2)
	assert.Equal(t, FieldError{Field: "gross_salary", Reason: "must be greater than or equal to 0"}, issues[0])
	assert.Equal(t, FieldError{Field: "tax_year", Reason: "must be between 2000 and 2100"}, issues[1])
}

func TestValidateWrongTypes(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	issues := v.Validate(map[string]any{
		"employee_id":       true,
		"gross_salary":      map[string]any{},
		"tax_year":          2024.5,
		"additional_income": "none",
	})
	assert.Equal(t, []string{"additional_income", "employee_id", "gross_salary", "tax_year"}, fieldNames(issues))
}

func TestValidateAnnualPayload(t *testing.T) {
	v := NewInputValidator(2000, 2100)

	issues := v.ValidateAnnual(decodePayload(t, `{"employee_id": "E001", "monthly_payrolls": [
		{"month": 1, "total_income": 10, "total_deductions": 0, "income_tax": 0},
		{"month": 1, "total_income": 10, "total_deductions": 0, "income_tax": -2}
	]}`))
	assert.Equal(t, []string{
		"monthly_payrolls",
		"monthly_payrolls",
		"monthly_payrolls[1].income_tax",
	}, fieldNames(issues))

	issues = v.ValidateAnnual(decodePayload(t, `{"monthly_payrolls": 3}`))
	assert.Equal(t, []string{"employee_id", "monthly_payrolls"}, fieldNames(issues))
}

func TestValidateIncomeTaxPayload(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	assert.Empty(t, v.ValidateIncomeTax(decodePayload(t, `{"taxable_income": 600000}`)))
	assert.Equal(t, []string{"taxable_income"}, fieldNames(v.ValidateIncomeTax(decodePayload(t, `{"taxable_income": -1}`))))
	assert.Equal(t, []string{"taxable_income"}, fieldNames(v.ValidateIncomeTax(map[string]any{})))
}

func TestValidateSetting(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	assert.Empty(t, v.ValidateSetting(standardSettings()[0]))

	issues := v.ValidateSetting(Setting{Key: KeySocialSecurityRate, Value: dec("120"), Kind: KindLimit, EffectiveYear: 1990})
	assert.Equal(t, []string{"effective_year", "kind"}, fieldNames(issues))

	issues = v.ValidateSetting(Setting{Key: "levy", Value: dec("120"), Kind: KindRate, EffectiveYear: 2024})
	assert.Equal(t, []string{"value"}, fieldNames(issues))
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		in     string
		reason string
	}{
		{"0", ""},
		{"0e99999999", ""},
		{"50000.5", ""},
		{"1.50000000", ""},
		{"0.0001", ""},
		{"1000000000000000", ""},
		{"1e15", ""},
		{"1000000000000000.0001", "must be at most 1000000000000000"},
		{"1e16", "must be at most 1000000000000000"},
		{"1e50000000", "must be at most 1000000000000000"},
		{"0.00001", "must have at most 4 decimal places"},
		{"1e-400", "must have at most 4 decimal places"},
		{"-1e-400", "must be greater than or equal to 0"},
		{"-0.01", "must be greater than or equal to 0"},
		{"1" + strings.Repeat("0", 60) + "e-60", "has too many digits"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.reason, CheckAmount(dec(tc.in)))
		})
	}
}

func TestReadPayrollRejectsOutOfRangeNumbers(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	tests := map[string]struct {
		body   string
		field  string
		reason string
	}{
		"huge exponent":      {`{"employee_id":"E001","gross_salary":1e50000000}`, "gross_salary", "must be at most 1000000000000000"},
		"huge string":        {`{"employee_id":"E001","gross_salary":"9e2147483647"}`, "gross_salary", "must be at most 1000000000000000"},
		"tiny negative":      {`{"employee_id":"E001","gross_salary":-1e-400}`, "gross_salary", "must be greater than or equal to 0"},
		"fraction digits":    {`{"employee_id":"E001","gross_salary":100.123456}`, "gross_salary", "must have at most 4 decimal places"},
		"item exponent":      {`{"employee_id":"E001","gross_salary":1,"additional_income":[{"type":"bonus","amount":1e999999}]}`, "additional_income[0].amount", "must be at most 1000000000000000"},
		"year exponent":      {`{"employee_id":"E001","gross_salary":1,"tax_year":1e50000000}`, "tax_year", "must be an integer"},
		"year tiny exponent": {`{"employee_id":"E001","gross_salary":1,"tax_year":2024e-50000000}`, "tax_year", "must be an integer"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, issues := v.ReadPayroll(decodePayload(t, tc.body))
			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, []FieldError{{Field: tc.field, Reason: tc.reason}}, issues)
		})
	}
}

func TestReadAnnualRejectsOutOfRangeNumbers(t *testing.T) {
	v := NewInputValidator(2000, 2100)
	_, issues := v.ReadAnnual(decodePayload(t, `{"employee_id":"E001","monthly_payrolls":[
		{"month": 1e50000000, "total_income": 1e50000000, "total_deductions": -1e-400, "income_tax": 0.000001}
	]}`))
	assert.Contains(t, fieldNames(issues), "monthly_payrolls[0].month")
	assert.Contains(t, fieldNames(issues), "monthly_payrolls[0].total_income")
	assert.Contains(t, fieldNames(issues), "monthly_payrolls[0].total_deductions")
	assert.Contains(t, fieldNames(issues), "monthly_payrolls[0].income_tax")
}

func TestTypedRequestsRejectOutOfRangeNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := time.Now()
	_, err := svc.CalculatePayroll(ctx, PayrollRequest{EmployeeID: "E001", GrossSalary: dec("1e50000000")})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []FieldError{{Field: "gross_salary", Reason: "must be at most 1000000000000000"}}, vErr.Fields)

	_, err = svc.CalculateIncomeTax(ctx, IncomeTaxRequest{TaxableIncome: dec("-1e-400")})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []FieldError{{Field: "taxable_income", Reason: "must be greater than or equal to 0"}}, vErr.Fields)

	_, err = svc.Breakdown(ctx, testYear, dec("1e50000000"))
	require.ErrorIs(t, err, ErrValidation)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSettingAndBracketValuesAreBounded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSetting(ctx, Setting{Key: "levy", Value: dec("1e50000000"), Kind: KindRate, EffectiveYear: testYear, Enabled: true})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"value"}, fieldNames(vErr.Fields))

	brackets := standardBrackets()
	brackets[2].Rate = dec("1e50000000")
	require.ErrorIs(t, svc.ReplaceBrackets(ctx, testYear, brackets), ErrValidation)

	brackets = standardBrackets()
	brackets[1].UpperBound = bound("1e50000000")
	require.ErrorIs(t, svc.ReplaceBrackets(ctx, testYear, brackets), ErrValidation)

	_, err = Assemble(testYear, []Setting{{Key: "levy", Value: dec("1e50000000"), Kind: KindDeduction, EffectiveYear: testYear, Enabled: true}})
	require.ErrorIs(t, err, ErrConfiguration)
}
