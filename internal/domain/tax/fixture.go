package tax

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML form of a settings snapshot. It seeds the database,
// backs the CLI and feeds tests.
//
//	employees: [E001]
//	years:
//	  - year: 2024
//	    brackets:
//	      - {lower_bound: 0, upper_bound: 150000, rate: 0}
//	      - {lower_bound: 150000, upper_bound: null, rate: 5}
//	    settings:
//	      - {key: personal_allowance, value: 60000, kind: DEDUCTION, enabled: true}
type Fixture struct {
	Employees []string      `yaml:"employees"`
	Years     []FixtureYear `yaml:"years"`
}

type FixtureYear struct {
	Year     int       `yaml:"year"`
	Brackets []Bracket `yaml:"brackets"`
	Settings []Setting `yaml:"settings"`
}

// FixtureWriter is what a fixture is loaded into. Both Store and
// MemoryStore satisfy it.
type FixtureWriter interface {
	UpsertEmployee(ctx context.Context, employeeID string) error
	UpsertSettings(ctx context.Context, year int, settings []Setting) ([]Setting, error)
	ReplaceBrackets(ctx context.Context, year int, brackets []Bracket) error
}

func DecodeFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode settings fixture: %w", err)
	}
	for _, y := range f.Years {
		table := BracketTable{Year: y.Year, Granularity: Annual, Brackets: y.Brackets}
		if len(y.Brackets) > 0 {
			if err := table.Validate(); err != nil {
				return Fixture{}, err
			}
		}
		for _, s := range y.Settings {
			if !s.Kind.Valid() {
				return Fixture{}, &ConfigurationError{Year: y.Year, Key: s.Key, Reason: "setting kind is missing"}
			}
		}
	}
	return f, nil
}

func ReadFixtureFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer file.Close()
	return DecodeFixture(file)
}

// Apply writes every employee, setting and bracket table in the fixture.
// Settings are matched on key and year, so applying twice is harmless.
func (f Fixture) Apply(ctx context.Context, w FixtureWriter) error {
	for _, id := range f.Employees {
		if err := w.UpsertEmployee(ctx, id); err != nil {
			return fmt.Errorf("seed employee %s: %w", id, err)
		}
	}
	for _, y := range f.Years {
		if len(y.Settings) > 0 {
			if _, err := w.UpsertSettings(ctx, y.Year, y.Settings); err != nil {
				return fmt.Errorf("seed settings for %d: %w", y.Year, err)
			}
		}
		if len(y.Brackets) > 0 {
			if err := w.ReplaceBrackets(ctx, y.Year, y.Brackets); err != nil {
				return fmt.Errorf("seed brackets for %d: %w", y.Year, err)
			}
		}
	}
	return nil
}

// NewMemoryStoreFromFixture returns a MemoryStore holding the fixture.
func NewMemoryStoreFromFixture(f Fixture) (*MemoryStore, error) {
	m := NewMemoryStore()
	if err := f.Apply(context.Background(), m); err != nil {
		return nil, err
	}
	return m, nil
}
