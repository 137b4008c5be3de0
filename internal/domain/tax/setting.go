package tax

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a tax setting. The set is closed; anything else fails to
// parse.
type Kind uint8

const (
	KindDeduction Kind = iota + 1
	KindRate
	KindLimit
)

var kinds = []Kind{KindDeduction, KindRate, KindLimit}

func (k Kind) String() string {
	switch k {
	case KindDeduction:
		return "DEDUCTION"
	case KindRate:
		return "RATE"
	case KindLimit:
		return "LIMIT"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k >= KindDeduction && k <= KindLimit
}

func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown setting kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid setting kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Setting keys with a fixed meaning. Amounts of DEDUCTION and LIMIT settings
// are annual except social_security_wage_cap, which caps monthly wages.
// RATE values are percentages.
const (
	KeyPersonalAllowance          = "personal_allowance"
	KeyStandardDeductionCap       = "standard_deduction_cap"
	KeyStandardDeductionRate      = "standard_deduction_rate"
	KeySocialSecurityRate         = "social_security_rate"
	KeySocialSecurityEmployerRate = "social_security_employer_rate"
	KeySocialSecurityWageCap      = "social_security_wage_cap"
)

// KnownKey describes a setting key the assembler interprets.
type KnownKey struct {
	Key         string `json:"key"`
	Kind        Kind   `json:"kind"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

var knownKeys = []KnownKey{
	{KeyPersonalAllowance, KindDeduction, true, "Annual personal allowance"},
	{KeyStandardDeductionCap, KindLimit, true, "Annual cap on the standard deduction"},
	{KeyStandardDeductionRate, KindRate, false, "Standard deduction as a percentage of monthly income"},
	{KeySocialSecurityRate, KindRate, true, "Employee social security contribution rate"},
	{KeySocialSecurityEmployerRate, KindRate, false, "Employer social security contribution rate"},
	{KeySocialSecurityWageCap, KindLimit, true, "Monthly wage ceiling for social security"},
}

// valueIssue reports why a setting's value is unusable for its kind.
func valueIssue(s Setting) string {
	if reason := CheckAmount(s.Value); reason != "" {
		return reason
	}
	if s.Kind == KindRate {
		return checkRate(s.Value)
	}
	return ""
}

// AllowedKeys lists the interpreted keys. Other DEDUCTION keys are accepted
// as additional annual deductions.
func AllowedKeys() []KnownKey {
	out := make([]KnownKey, len(knownKeys))
	copy(out, knownKeys)
	return out
}

func lookupKnownKey(key string) (KnownKey, bool) {
	for _, k := range knownKeys {
		if k.Key == key {
			return k, true
		}
	}
	return KnownKey{}, false
}

type Setting struct {
	ID            string          `json:"id" yaml:"id,omitempty"`
	Key           string          `json:"key" yaml:"key" validate:"required,max=100"`
	Value         decimal.Decimal `json:"value" yaml:"value" validate:"amount"`
	Kind          Kind            `json:"kind" yaml:"kind" validate:"required"`
	EffectiveYear int             `json:"effective_year" yaml:"effective_year" validate:"taxyear"`
	Enabled       bool            `json:"enabled" yaml:"enabled"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty" validate:"max=255"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"-"`
}

type SettingFilter struct {
	Year    int
	Enabled *bool
	Limit   int
	Offset  int
}
