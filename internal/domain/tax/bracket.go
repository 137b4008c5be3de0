package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Granularity states which period a bracket table is expressed in. The
// calculator refuses to mix them.
type Granularity uint8

const (
	Annual Granularity = iota + 1
	Monthly
)

func (g Granularity) String() string {
	switch g {
	case Annual:
		return "annual"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("granularity(%d)", uint8(g))
	}
}

// Bracket is one slice of the progressive table. Rate is a percentage
// (5 means 5%). A nil UpperBound marks the unbounded top bracket.
type Bracket struct {
	LowerBound decimal.Decimal  `json:"lower_bound" yaml:"lower_bound"`
	UpperBound *decimal.Decimal `json:"upper_bound" yaml:"upper_bound"`
	Rate       decimal.Decimal  `json:"rate" yaml:"rate"`
}

func (b Bracket) Unbounded() bool {
	return b.UpperBound == nil
}

// portion returns the part of income that falls inside [LowerBound, UpperBound).
func (b Bracket) portion(income decimal.Decimal) decimal.Decimal {
	if income.LessThanOrEqual(b.LowerBound) {
		return decimal.Zero
	}
	if b.Unbounded() {
		return income.Sub(b.LowerBound)
	}
	return decimal.Min(income, *b.UpperBound).Sub(b.LowerBound)
}

type BracketTable struct {
	Year        int
	Granularity Granularity
	Brackets    []Bracket
}

const bracketsKey = "tax_brackets"

// Validate checks the structural invariant: starts at zero, ascending,
// contiguous, rates within 0..100, bounds within MaxAmount, and exactly one
// unbounded bracket which is the last one. Values are range-checked before
// any comparison between brackets.
func (t BracketTable) Validate() error {
	fail := func(format string, args ...any) error {
		return &ConfigurationError{Year: t.Year, Key: bracketsKey, Reason: fmt.Sprintf(format, args...)}
	}
	if t.Granularity != Annual && t.Granularity != Monthly {
		return fail("unknown granularity %s", t.Granularity)
	}
	if len(t.Brackets) == 0 {
		return fail("no brackets configured")
	}
	for i, b := range t.Brackets {
		if reason := checkRate(b.Rate); reason != "" {
			return fail("bracket %d rate %s", i, reason)
		}
		if reason := CheckAmount(b.LowerBound); reason != "" {
			return fail("bracket %d lower bound %s", i, reason)
		}
		if b.UpperBound != nil {
			if reason := CheckAmount(*b.UpperBound); reason != "" {
				return fail("bracket %d upper bound %s", i, reason)
			}
		}
	}
	if !t.Brackets[0].LowerBound.IsZero() {
		return fail("first bracket must start at 0, starts at %s", t.Brackets[0].LowerBound)
	}
	for i, b := range t.Brackets {
		last := i == len(t.Brackets)-1
		if b.Unbounded() {
			if !last {
				return fail("bracket %d is unbounded but not the last bracket", i)
			}
			continue
		}
		if last {
			return fail("top bracket must be unbounded")
		}
		if !b.UpperBound.GreaterThan(b.LowerBound) {
			return fail("bracket %d upper bound %s not above lower bound %s", i, *b.UpperBound, b.LowerBound)
		}
		next := t.Brackets[i+1].LowerBound
		if !next.Equal(*b.UpperBound) {
			return fail("bracket %d ends at %s but bracket %d starts at %s", i, *b.UpperBound, i+1, next)
		}
	}
	return nil
}

// Top returns the unbounded bracket. Only meaningful on a valid table.
func (t BracketTable) Top() Bracket {
	return t.Brackets[len(t.Brackets)-1]
}
