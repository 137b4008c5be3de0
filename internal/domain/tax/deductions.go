package tax

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

type NamedAmount struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
}

// DeductionSet is the resolved view of one year's enabled settings.
type DeductionSet struct {
	Year                       int
	PersonalAllowance          decimal.Decimal
	StandardDeductionCap       decimal.Decimal
	StandardDeductionRate      *decimal.Decimal
	SocialSecurityRate         decimal.Decimal
	SocialSecurityEmployerRate decimal.Decimal
	SocialSecurityWageCap      decimal.Decimal
	// Additional holds every other enabled DEDUCTION setting, sorted by key.
	Additional []NamedAmount
	// Rates and Limits keep uninterpreted RATE/LIMIT settings for display.
	Rates  map[string]decimal.Decimal
	Limits map[string]decimal.Decimal
}

func (d DeductionSet) AdditionalTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range d.Additional {
		total = total.Add(a.Amount)
	}
	return total
}

// DeductionAssembler turns the enabled settings of a year into a
// DeductionSet. Missing required keys never default to zero.
type DeductionAssembler struct {
	store SettingStore
}

func NewDeductionAssembler(store SettingStore) *DeductionAssembler {
	return &DeductionAssembler{store: store}
}

func (a *DeductionAssembler) ComputeDeductions(ctx context.Context, year int) (DeductionSet, error) {
	settings, err := a.store.ListEnabledSettings(ctx, year)
	if err != nil {
		return DeductionSet{}, infraError("list tax settings", err)
	}
	return Assemble(year, settings)
}

// Assemble resolves settings for year. Rows for other years and disabled
// rows are skipped.
func Assemble(year int, settings []Setting) (DeductionSet, error) {
	set := DeductionSet{
		Year:   year,
		Rates:  map[string]decimal.Decimal{},
		Limits: map[string]decimal.Decimal{},
	}
	seen := map[string]bool{}
	var employerRate *decimal.Decimal

	for _, s := range settings {
		if !s.Enabled || s.EffectiveYear != year {
			continue
		}
		if seen[s.Key] {
			return DeductionSet{}, &ConfigurationError{Year: year, Key: s.Key, Reason: "enabled more than once"}
		}
		seen[s.Key] = true

		if known, ok := lookupKnownKey(s.Key); ok && known.Kind != s.Kind {
			return DeductionSet{}, &ConfigurationError{Year: year, Key: s.Key, Reason: "must be a " + known.Kind.String() + " setting, got " + s.Kind.String()}
		}
		if reason := valueIssue(s); reason != "" {
			return DeductionSet{}, &ConfigurationError{Year: year, Key: s.Key, Reason: "value " + reason}
		}

		switch s.Kind {
		case KindDeduction:
			if s.Key == KeyPersonalAllowance {
				set.PersonalAllowance = s.Value
				continue
			}
			set.Additional = append(set.Additional, NamedAmount{Key: s.Key, Amount: s.Value})
		case KindRate:
			switch s.Key {
			case KeySocialSecurityRate:
				set.SocialSecurityRate = s.Value
			case KeySocialSecurityEmployerRate:
				v := s.Value
				employerRate = &v
			case KeyStandardDeductionRate:
				v := s.Value
				set.StandardDeductionRate = &v
			default:
				set.Rates[s.Key] = s.Value
			}
		case KindLimit:
			switch s.Key {
			case KeyStandardDeductionCap:
				set.StandardDeductionCap = s.Value
			case KeySocialSecurityWageCap:
				set.SocialSecurityWageCap = s.Value
			default:
				set.Limits[s.Key] = s.Value
			}
		default:
			return DeductionSet{}, &ConfigurationError{Year: year, Key: s.Key, Reason: "unknown setting kind " + s.Kind.String()}
		}
	}

	for _, k := range knownKeys {
		if k.Required && !seen[k.Key] {
			return DeductionSet{}, &ConfigurationError{Year: year, Key: k.Key, Reason: "required setting is missing or disabled"}
		}
	}

	set.SocialSecurityEmployerRate = set.SocialSecurityRate
	if employerRate != nil {
		set.SocialSecurityEmployerRate = *employerRate
	}
	sort.Slice(set.Additional, func(i, j int) bool { return set.Additional[i].Key < set.Additional[j].Key })
	return set, nil
}
