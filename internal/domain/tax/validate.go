package tax

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	DefaultMinYear = 2000
	DefaultMaxYear = 2100
)

// InputValidator checks request shape and ranges. It never returns an
// error: every violation comes back as a FieldError so callers can show all
// of them at once.
type InputValidator struct {
	MinYear int
	MaxYear int

	v *validator.Validate
}

func NewInputValidator(minYear, maxYear int) *InputValidator {
	if minYear <= 0 {
		minYear = DefaultMinYear
	}
	if maxYear < minYear {
		maxYear = DefaultMaxYear
	}
	iv := &InputValidator{MinYear: minYear, MaxYear: maxYear}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && CheckAmount(d) == ""
	})
	_ = v.RegisterValidation("taxyear", func(fl validator.FieldLevel) bool {
		year := fl.Field().Int()
		return year >= int64(iv.MinYear) && year <= int64(iv.MaxYear)
	})
	iv.v = v
	return iv
}

// ValidateRequest checks a typed payroll request.
func (iv *InputValidator) ValidateRequest(req PayrollRequest) []FieldError {
	return iv.structIssues(req, nil)
}

func (iv *InputValidator) ValidateIncomeTaxRequest(req IncomeTaxRequest) []FieldError {
	return iv.structIssues(req, nil)
}

func (iv *InputValidator) ValidateAnnualRequest(req AnnualRequest) []FieldError {
	issues := iv.structIssues(req, nil)
	return mergeIssues(issues, monthIssues(req.MonthlyPayrolls))
}

func (iv *InputValidator) ValidateSetting(s Setting) []FieldError {
	issues := iv.structIssues(s, nil)
	if known, ok := lookupKnownKey(s.Key); ok && s.Kind.Valid() && known.Kind != s.Kind {
		issues = append(issues, FieldError{Field: "kind", Reason: "must be " + known.Kind.String() + " for key " + s.Key})
	}
	if s.Kind == KindRate && CheckAmount(s.Value) == "" {
		if reason := valueIssue(s); reason != "" {
			issues = append(issues, FieldError{Field: "value", Reason: reason})
		}
	}
	return sortIssues(issues)
}

// Validate checks a decoded payroll calculation payload. Numbers may be
// json.Number, float64, int or numeric strings.
func (iv *InputValidator) Validate(payload map[string]any) []FieldError {
	_, issues := iv.ReadPayroll(payload)
	return issues
}

// ReadPayroll converts a decoded payload into a PayrollRequest. The request
// is only meaningful when no issues come back.
func (iv *InputValidator) ReadPayroll(payload map[string]any) (PayrollRequest, []FieldError) {
	r := newPayloadReader()
	r.unknown(payload, "", "employee_id", "gross_salary", "tax_year", "additional_income", "additional_deductions")

	req := PayrollRequest{}
	req.EmployeeID, _ = r.identifier(payload, "employee_id", true)
	req.GrossSalary, _ = r.money(payload, "gross_salary", "gross_salary", true)
	req.TaxYear, _ = r.integer(payload, "tax_year", "tax_year", false)
	req.AdditionalIncome = r.items(payload, "additional_income")
	req.AdditionalDeductions = r.items(payload, "additional_deductions")

	return req, mergeIssues(r.issues, iv.structIssues(req, r.flagged))
}

func (iv *InputValidator) ValidateIncomeTax(payload map[string]any) []FieldError {
	_, issues := iv.ReadIncomeTax(payload)
	return issues
}

func (iv *InputValidator) ReadIncomeTax(payload map[string]any) (IncomeTaxRequest, []FieldError) {
	r := newPayloadReader()
	r.unknown(payload, "", "taxable_income", "tax_year")

	req := IncomeTaxRequest{}
	req.TaxableIncome, _ = r.money(payload, "taxable_income", "taxable_income", true)
	req.TaxYear, _ = r.integer(payload, "tax_year", "tax_year", false)

	return req, mergeIssues(r.issues, iv.structIssues(req, r.flagged))
}

func (iv *InputValidator) ValidateAnnual(payload map[string]any) []FieldError {
	_, issues := iv.ReadAnnual(payload)
	return issues
}

func (iv *InputValidator) ReadAnnual(payload map[string]any) (AnnualRequest, []FieldError) {
	r := newPayloadReader()
	r.unknown(payload, "", "employee_id", "tax_year", "monthly_payrolls")

	req := AnnualRequest{}
	req.EmployeeID, _ = r.identifier(payload, "employee_id", true)
	req.TaxYear, _ = r.integer(payload, "tax_year", "tax_year", false)

	entries, _ := r.objects(payload, "monthly_payrolls", true)
	for i, entry := range entries {
		m := MonthlyPayroll{}
		if entry != nil {
			path := fmt.Sprintf("monthly_payrolls[%d]", i)
			r.unknown(entry, path, "month", "total_income", "total_deductions", "income_tax")
			m.Month, _ = r.integer(entry, "month", path+".month", true)
			m.TotalIncome, _ = r.money(entry, "total_income", path+".total_income", true)
			m.TotalDeductions, _ = r.money(entry, "total_deductions", path+".total_deductions", true)
			m.IncomeTax, _ = r.money(entry, "income_tax", path+".income_tax", true)
		}
		req.MonthlyPayrolls = append(req.MonthlyPayrolls, m)
	}

	issues := mergeIssues(r.issues, iv.structIssues(req, r.flagged))
	return req, mergeIssues(issues, unflagged(monthIssues(req.MonthlyPayrolls), r.flagged))
}

func (iv *InputValidator) structIssues(s any, skip map[string]bool) []FieldError {
	err := iv.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Reason: err.Error()}}
	}
	var issues []FieldError
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		if flaggedAncestor(skip, path) {
			continue
		}
		issues = append(issues, FieldError{Field: path, Reason: iv.reason(fe)})
	}
	return issues
}

func (iv *InputValidator) reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "len":
		return "must contain exactly " + fe.Param() + " entries"
	case "amount":
		if d, ok := fe.Value().(decimal.Decimal); ok {
			if reason := CheckAmount(d); reason != "" {
				return reason
			}
		}
		return "is not a valid amount"
	case "taxyear":
		return fmt.Sprintf("must be between %d and %d", iv.MinYear, iv.MaxYear)
	default:
		return "is invalid"
	}
}

// fieldPath drops the root struct name from a validator namespace:
// "PayrollRequest.additional_income[0].type" -> "additional_income[0].type".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// flaggedAncestor reports whether path or any enclosing path was already
// reported: "a[1].type" is covered by "a[1]" and by "a".
func flaggedAncestor(flagged map[string]bool, path string) bool {
	for p := path; p != ""; {
		if flagged[p] {
			return true
		}
		i := strings.LastIndexAny(p, ".[")
		if i < 0 {
			return false
		}
		p = p[:i]
	}
	return false
}

func unflagged(issues []FieldError, flagged map[string]bool) []FieldError {
	var out []FieldError
	for _, issue := range issues {
		if !flaggedAncestor(flagged, issue.Field) {
			out = append(out, issue)
		}
	}
	return out
}

func mergeIssues(a, b []FieldError) []FieldError {
	out := make([]FieldError, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return sortIssues(out)
}

func sortIssues(issues []FieldError) []FieldError {
	if issues == nil {
		return []FieldError{}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Field == issues[j].Field {
			return issues[i].Reason < issues[j].Reason
		}
		return issues[i].Field < issues[j].Field
	})
	return issues
}

// payloadReader pulls typed values out of a decoded JSON object and records
// a FieldError for each value of the wrong shape. Paths it has already
// reported are remembered so struct rules do not report them twice.
type payloadReader struct {
	issues  []FieldError
	flagged map[string]bool
}

func newPayloadReader() *payloadReader {
	return &payloadReader{flagged: map[string]bool{}}
}

func (r *payloadReader) add(path, reason string) {
	r.issues = append(r.issues, FieldError{Field: path, Reason: reason})
	r.flagged[path] = true
}

func (r *payloadReader) unknown(payload map[string]any, prefix string, allowed ...string) {
	known := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		known[a] = true
	}
	for key := range payload {
		if known[key] {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		r.add(path, "is not a recognized field")
	}
}

func (r *payloadReader) identifier(payload map[string]any, field string, required bool) (string, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		if required {
			r.add(field, "is required")
		}
		return "", false
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			r.add(field, "is required")
			return "", false
		}
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	case float64:
		if v != math.Trunc(v) {
			r.add(field, "must be a string or an integer")
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		r.add(field, "must be a string or an integer")
		return "", false
	}
}

func (r *payloadReader) money(payload map[string]any, field, path string, required bool) (decimal.Decimal, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		if required {
			r.add(path, "is required")
		}
		return decimal.Zero, false
	}
	d, err := toDecimal(raw)
	if err != nil {
		r.add(path, "must be a number")
		return decimal.Zero, false
	}
	if reason := CheckAmount(d); reason != "" {
		r.add(path, reason)
		return decimal.Zero, false
	}
	return d, true
}

func (r *payloadReader) integer(payload map[string]any, field, path string, required bool) (int, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		if required {
			r.add(path, "is required")
		}
		return 0, false
	}
	d, err := toDecimal(raw)
	if err != nil || !smallInteger(d) {
		r.add(path, "must be an integer")
		return 0, false
	}
	return int(d.IntPart()), true
}

// smallInteger reports whether d is a whole number within int32. Coefficient
// and exponent are bounded first so IsInteger and the comparison stay cheap.
func smallInteger(d decimal.Decimal) bool {
	if d.Sign() == 0 {
		return true
	}
	if d.Exponent() > 9 || d.Exponent() < -9 || d.Coefficient().BitLen() > 64 {
		return false
	}
	return d.IsInteger() && d.Abs().LessThanOrEqual(decimal.NewFromInt(math.MaxInt32))
}

// objects returns the array under field with a nil in place of every entry
// that is not an object. The bool is false when field is absent or not an
// array.
func (r *payloadReader) objects(payload map[string]any, field string, required bool) ([]map[string]any, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		if required {
			r.add(field, "is required")
		}
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		r.add(field, "must be an array")
		return nil, false
	}
	out := make([]map[string]any, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			r.add(fmt.Sprintf("%s[%d]", field, i), "must be an object")
			continue
		}
		out[i] = obj
	}
	return out, true
}

func (r *payloadReader) items(payload map[string]any, field string) []Item {
	entries, ok := r.objects(payload, field, false)
	if !ok {
		return nil
	}
	items := make([]Item, 0, len(entries))
	for i, entry := range entries {
		if entry == nil {
			items = append(items, Item{})
			continue
		}
		path := fmt.Sprintf("%s[%d]", field, i)
		r.unknown(entry, path, "type", "amount", "description")
		item := Item{}
		if raw, ok := entry["type"]; !ok || raw == nil {
			r.add(path+".type", "is required")
		} else if s, ok := raw.(string); !ok {
			r.add(path+".type", "must be a string")
		} else {
			item.Type = strings.TrimSpace(s)
		}
		item.Amount, _ = r.money(entry, "amount", path+".amount", true)
		if raw, ok := entry["description"]; ok && raw != nil {
			if s, ok := raw.(string); ok {
				item.Description = s
			} else {
				r.add(path+".description", "must be a string")
			}
		}
		items = append(items, item)
	}
	return items
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", raw)
	}
}
