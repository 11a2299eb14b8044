package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFractionsValidateDefault(t *testing.T) {
	require.NoError(t, DefaultFractions().Validate())
}

func TestFractionsValidateRejectsNonAscending(t *testing.T) {
	f := Fractions{Z2Upper: 0.9, Z3Upper: 0.5, Z4Upper: 0.88, Z5Upper: 0.95}
	require.ErrorIs(t, f.Validate(), ErrInvalidConfig)
}

func TestFractionsValidateRejectsOutOfRange(t *testing.T) {
	cases := []Fractions{
		{Z2Upper: 0, Z3Upper: 0.8, Z4Upper: 0.88, Z5Upper: 0.95},
		{Z2Upper: 0.7, Z3Upper: 0.8, Z4Upper: 0.88, Z5Upper: 1},
		{Z2Upper: -0.1, Z3Upper: 0.8, Z4Upper: 0.88, Z5Upper: 0.95},
	}
	for _, f := range cases {
		require.ErrorIs(t, f.Validate(), ErrInvalidConfig)
	}
}

func TestBoundsFor(t *testing.T) {
	b := DefaultFractions().BoundsFor(190)
	require.InDelta(t, 133.0, b.Z2Upper, 1e-9)
	require.InDelta(t, 152.0, b.Z3Upper, 1e-9)
	require.InDelta(t, 167.2, b.Z4Upper, 1e-9)
	require.InDelta(t, 180.5, b.Z5Upper, 1e-9)
}

func TestZoneOfMonotonic(t *testing.T) {
	b := DefaultFractions().BoundsFor(190)
	prev := 0
	for hr := 1; hr < 250; hr++ {
		zone := b.ZoneOf(float64(hr))
		require.GreaterOrEqual(t, zone, prev, "zone dropped at hr=%d", hr)
		prev = zone
	}
}

func TestZoneOfNeverReturnsOne(t *testing.T) {
	b := DefaultFractions().BoundsFor(190)
	require.Equal(t, 2, b.ZoneOf(40))
	require.Equal(t, 2, b.ZoneOf(133))
	require.Equal(t, 3, b.ZoneOf(134))
	require.Equal(t, 6, b.ZoneOf(200))
}

func TestContextValidate(t *testing.T) {
	require.NoError(t, DefaultContext().Validate())

	c := DefaultContext()
	c.MaxHR = 0
	require.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = DefaultContext()
	c.FTP = -10
	require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}
