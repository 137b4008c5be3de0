package tax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	MinYear int
	MaxYear int
	// Now supplies the default tax year. Defaults to time.Now.
	Now func() time.Time
}

// Service is the boundary of the tax engine: calculations read through the
// year cache and every settings write invalidates the affected years before
// it returns.
type Service struct {
	store     SettingAdminStore
	cache     *ConfigCache
	payroll   *PayrollCalculator
	annual    *AnnualReconciler
	validator *InputValidator
	calc      ProgressiveCalculator
	now       func() time.Time
}

func NewService(store SettingAdminStore, employees EmployeeDirectory, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache := NewConfigCache(store)
	return &Service{
		store:     store,
		cache:     cache,
		payroll:   NewPayrollCalculator(cache, employees),
		annual:    NewAnnualReconciler(cache, employees),
		validator: NewInputValidator(opts.MinYear, opts.MaxYear),
		now:       opts.Now,
	}
}

func (s *Service) Validator() *InputValidator {
	return s.validator
}

func (s *Service) CurrentYear() int {
	return s.now().Year()
}

func (s *Service) defaultYear(year int) int {
	if year == 0 {
		return s.CurrentYear()
	}
	return year
}

func (s *Service) CalculatePayroll(ctx context.Context, req PayrollRequest) (PayrollResult, error) {
	req.TaxYear = s.defaultYear(req.TaxYear)
	if issues := s.validator.ValidateRequest(req); len(issues) > 0 {
		return PayrollResult{}, &ValidationError{Fields: issues}
	}
	return s.payroll.CalculatePayroll(ctx, req)
}

func (s *Service) CalculateIncomeTax(ctx context.Context, req IncomeTaxRequest) (IncomeTaxResult, error) {
	req.TaxYear = s.defaultYear(req.TaxYear)
	if issues := s.validator.ValidateIncomeTaxRequest(req); len(issues) > 0 {
		return IncomeTaxResult{}, &ValidationError{Fields: issues}
	}
	cfg, err := s.cache.Get(ctx, req.TaxYear)
	if err != nil {
		return IncomeTaxResult{}, err
	}
	return computeIncomeTax(s.calc, cfg.Brackets, req.TaxableIncome)
}

func (s *Service) CalculateAnnualSummary(ctx context.Context, req AnnualRequest) (AnnualSummary, error) {
	req.TaxYear = s.defaultYear(req.TaxYear)
	if issues := s.validator.ValidateAnnualRequest(req); len(issues) > 0 {
		return AnnualSummary{}, &ValidationError{Fields: issues}
	}
	return s.annual.CalculateAnnualTax(ctx, req.EmployeeID, req.TaxYear, req.MonthlyPayrolls)
}

// ValidateCalculationInputs never fails; an empty slice means the payload
// is acceptable.
func (s *Service) ValidateCalculationInputs(payload map[string]any) []FieldError {
	return s.validator.Validate(payload)
}

// Breakdown returns the rounded per-bracket tax on an annual taxable amount.
func (s *Service) Breakdown(ctx context.Context, year int, taxableIncome decimal.Decimal) ([]BracketContribution, error) {
	year = s.defaultYear(year)
	if issues := s.validator.ValidateIncomeTaxRequest(IncomeTaxRequest{TaxableIncome: taxableIncome, TaxYear: year}); len(issues) > 0 {
		return nil, &ValidationError{Fields: issues}
	}
	cfg, err := s.cache.Get(ctx, year)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.calc.Breakdown(taxableIncome, cfg.Brackets, Annual)
	if err != nil {
		return nil, err
	}
	return roundBreakdown(breakdown), nil
}

// YearConfig returns the resolved configuration the calculations use.
func (s *Service) YearConfig(ctx context.Context, year int) (YearConfig, error) {
	return s.cache.Get(ctx, s.defaultYear(year))
}

// Warm loads year into the cache ahead of the first calculation.
func (s *Service) Warm(ctx context.Context, year int) error {
	_, err := s.cache.Get(ctx, year)
	return err
}

func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Service) AllowedKeys() []KnownKey {
	return AllowedKeys()
}

func (s *Service) ListSettings(ctx context.Context, filter SettingFilter) ([]Setting, int, error) {
	settings, total, err := s.store.ListSettings(ctx, filter)
	if err != nil {
		return nil, 0, infraError("list tax settings", err)
	}
	return settings, total, nil
}

func (s *Service) GetSetting(ctx context.Context, id string) (Setting, error) {
	setting, err := s.store.GetSetting(ctx, id)
	if err != nil {
		return Setting{}, infraError("get tax setting", err)
	}
	return setting, nil
}

func (s *Service) CreateSetting(ctx context.Context, setting Setting) (Setting, error) {
	if issues := s.validator.ValidateSetting(setting); len(issues) > 0 {
		return Setting{}, &ValidationError{Fields: issues}
	}
	created, err := s.store.CreateSetting(ctx, setting)
	if err != nil {
		return Setting{}, infraError("create tax setting", err)
	}
	s.cache.Invalidate(created.EffectiveYear)
	return created, nil
}

func (s *Service) UpdateSetting(ctx context.Context, setting Setting) (Setting, error) {
	if issues := s.validator.ValidateSetting(setting); len(issues) > 0 {
		return Setting{}, &ValidationError{Fields: issues}
	}
	updated, oldYear, err := s.store.UpdateSetting(ctx, setting)
	if err != nil {
		return Setting{}, infraError("update tax setting", err)
	}
	s.cache.Invalidate(updated.EffectiveYear)
	if oldYear != updated.EffectiveYear {
		s.cache.Invalidate(oldYear)
	}
	return updated, nil
}

func (s *Service) DeleteSetting(ctx context.Context, id string) (Setting, error) {
	deleted, err := s.store.DeleteSetting(ctx, id)
	if err != nil {
		return Setting{}, infraError("delete tax setting", err)
	}
	s.cache.Invalidate(deleted.EffectiveYear)
	return deleted, nil
}

func (s *Service) ToggleSetting(ctx context.Context, id string) (Setting, error) {
	toggled, err := s.store.ToggleSetting(ctx, id)
	if err != nil {
		return Setting{}, infraError("toggle tax setting", err)
	}
	s.cache.Invalidate(toggled.EffectiveYear)
	return toggled, nil
}

// BulkUpsertSettings writes settings for year in one transaction, matching
// existing rows by key. A zero EffectiveYear is taken to mean year.
func (s *Service) BulkUpsertSettings(ctx context.Context, year int, settings []Setting) ([]Setting, error) {
	var issues []FieldError
	if year < s.validator.MinYear || year > s.validator.MaxYear {
		issues = append(issues, FieldError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", s.validator.MinYear, s.validator.MaxYear)})
	}
	if len(settings) == 0 {
		issues = append(issues, FieldError{Field: "settings", Reason: "must not be empty"})
	}
	seen := map[string]int{}
	for i := range settings {
		if settings[i].EffectiveYear == 0 {
			settings[i].EffectiveYear = year
		}
		prefix := fmt.Sprintf("settings[%d].", i)
		if settings[i].EffectiveYear != year {
			issues = append(issues, FieldError{Field: prefix + "effective_year", Reason: fmt.Sprintf("must equal %d", year)})
		}
		if first, ok := seen[settings[i].Key]; ok && settings[i].Key != "" {
			issues = append(issues, FieldError{Field: prefix + "key", Reason: fmt.Sprintf("duplicates settings[%d]", first)})
		} else {
			seen[settings[i].Key] = i
		}
		for _, issue := range s.validator.ValidateSetting(settings[i]) {
			issues = append(issues, FieldError{Field: prefix + issue.Field, Reason: issue.Reason})
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Fields: sortIssues(issues)}
	}

	saved, err := s.store.UpsertSettings(ctx, year, settings)
	if err != nil {
		return nil, infraError("upsert tax settings", err)
	}
	s.cache.Invalidate(year)
	return saved, nil
}

func (s *Service) ListBrackets(ctx context.Context, year int) ([]Bracket, error) {
	brackets, err := s.store.ListBrackets(ctx, year)
	if err != nil {
		return nil, infraError("list tax brackets", err)
	}
	return brackets, nil
}

// ReplaceBrackets swaps the whole table for year. A table that breaks the
// bracket invariant is rejected before the store is touched.
func (s *Service) ReplaceBrackets(ctx context.Context, year int, brackets []Bracket) error {
	if year < s.validator.MinYear || year > s.validator.MaxYear {
		return newValidationError("year", fmt.Sprintf("must be between %d and %d", s.validator.MinYear, s.validator.MaxYear))
	}
	table := BracketTable{Year: year, Granularity: Annual, Brackets: brackets}
	if err := table.Validate(); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return newValidationError("brackets", cfgErr.Reason)
		}
		return err
	}
	if err := s.store.ReplaceBrackets(ctx, year, brackets); err != nil {
		return infraError("replace tax brackets", err)
	}
	s.cache.Invalidate(year)
	return nil
}
