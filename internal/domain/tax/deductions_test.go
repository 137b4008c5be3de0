package tax

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleResolvesKnownKeys(t *testing.T) {
	set, err := Assemble(testYear, standardSettings())
	require.NoError(t, err)

	assert.True(t, dec("60000").Equal(set.PersonalAllowance))
	assert.True(t, dec("24000").Equal(set.StandardDeductionCap))
	assert.Nil(t, set.StandardDeductionRate)
	assert.True(t, dec("5").Equal(set.SocialSecurityRate))
	assert.True(t, dec("5").Equal(set.SocialSecurityEmployerRate), "employer rate defaults to employee rate")
	assert.True(t, dec("15000").Equal(set.SocialSecurityWageCap))
	require.Len(t, set.Additional, 1)
	assert.Equal(t, "spouse_allowance", set.Additional[0].Key)
	assert.True(t, dec("12000").Equal(set.AdditionalTotal()))
}

func TestAssembleMissingRequiredKey(t *testing.T) {
	for _, key := range []string{KeyPersonalAllowance, KeyStandardDeductionCap, KeySocialSecurityRate, KeySocialSecurityWageCap} {
		t.Run(key, func(t *testing.T) {
			var settings []Setting
			for _, s := range standardSettings() {
				if s.Key != key {
					settings = append(settings, s)
				}
			}
			_, err := Assemble(testYear, settings)
			require.ErrorIs(t, err, ErrConfiguration)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, key, cfgErr.Key)
			assert.Equal(t, testYear, cfgErr.Year)
		})
	}
}

func TestAssembleDisabledRequiredKeyIsMissing(t *testing.T) {
	settings := standardSettings()
	settings[0].Enabled = false
	_, err := Assemble(testYear, settings)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestAssembleIgnoresOtherYears(t *testing.T) {
	settings := standardSettings()
	settings = append(settings, Setting{Key: "child_allowance", Value: dec("5000"), Kind: KindDeduction, EffectiveYear: testYear + 1, Enabled: true})
	set, err := Assemble(testYear, settings)
	require.NoError(t, err)
	assert.Len(t, set.Additional, 1)
}

func TestAssembleRejectsBadRows(t *testing.T) {
	tests := []struct {
		name  string
		extra Setting
	}{
		{"duplicate key", Setting{Key: KeyPersonalAllowance, Value: dec("1"), Kind: KindDeduction, EffectiveYear: testYear, Enabled: true}},
		{"kind mismatch", Setting{Key: KeyStandardDeductionRate, Value: dec("1"), Kind: KindLimit, EffectiveYear: testYear, Enabled: true}},
		{"negative value", Setting{Key: "union_dues", Value: dec("-1"), Kind: KindDeduction, EffectiveYear: testYear, Enabled: true}},
		{"rate above 100", Setting{Key: KeySocialSecurityEmployerRate, Value: dec("101"), Kind: KindRate, EffectiveYear: testYear, Enabled: true}},
		{"unknown kind", Setting{Key: "mystery", Value: dec("1"), Kind: Kind(9), EffectiveYear: testYear, Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(testYear, append(standardSettings(), tt.extra))
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestAssembleOptionalRates(t *testing.T) {
	settings := append(standardSettings(),
		Setting{Key: KeyStandardDeductionRate, Value: dec("10"), Kind: KindRate, EffectiveYear: testYear, Enabled: true},
		Setting{Key: KeySocialSecurityEmployerRate, Value: dec("7.5"), Kind: KindRate, EffectiveYear: testYear, Enabled: true},
		Setting{Key: "health_levy_rate", Value: dec("1.5"), Kind: KindRate, EffectiveYear: testYear, Enabled: true},
	)
	set, err := Assemble(testYear, settings)
	require.NoError(t, err)
	require.NotNil(t, set.StandardDeductionRate)
	assert.True(t, dec("10").Equal(*set.StandardDeductionRate))
	assert.True(t, dec("7.5").Equal(set.SocialSecurityEmployerRate))
	assert.True(t, dec("1.5").Equal(set.Rates["health_levy_rate"]))
}

func TestComputeDeductionsWrapsStoreFailure(t *testing.T) {
	_, err := NewDeductionAssembler(downStore{NewMemoryStore()}).ComputeDeductions(context.Background(), testYear)
	require.ErrorIs(t, err, ErrInfrastructure)
	require.ErrorIs(t, err, errStoreDown)
	var infra *InfrastructureError
	require.True(t, errors.As(err, &infra))
	assert.True(t, infra.Retryable())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindDeduction, KindRate, KindLimit} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	parsed, err := ParseKind(" rate ")
	require.NoError(t, err)
	assert.Equal(t, KindRate, parsed)

	_, err = ParseKind("BONUS")
	require.Error(t, err)
}
