package lensing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/gw-lensing/internal/conditioner"
	"github.com/roman-kulish/gw-lensing/internal/lens"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

func series(t *testing.T, samples []float64, dt float64) *strain.Series {
	t.Helper()

	s, err := strain.New(samples, 1126259446, dt, strain.WithName("H1 processed"), strain.WithChannel("H1:TEST"))
	require.NoError(t, err)
	return s
}

func TestTimeDelay(t *testing.T) {
	assert.Equal(t, 1_382_400.0, TimeDelay(1.6))
	assert.Equal(t, 2_764_800.0, TimeDelay(3.2))
	assert.Equal(t, 2*TimeDelay(0.7), TimeDelay(1.4))
}

func TestMagnification(t *testing.T) {
	assert.InDelta(t, 1.64, Magnification(1.6), 1e-12)

	prev, prevPrimary := Magnification(0.01), 0.0
	for r := 0.05; r < 10; r += 0.05 {
		mu := Magnification(r)
		primary, secondary := ImageScales(mu)

		assert.Greater(t, mu, prev, "r=%g", r)
		assert.Greater(t, primary, prevPrimary, "r=%g", r)
		assert.GreaterOrEqual(t, mu, 1.0)
		assert.InDelta(t, mu, primary*primary, 1e-9)
		assert.InDelta(t, mu-1, secondary*secondary, 1e-9)

		prev, prevPrimary = mu, primary
	}
}

func TestParseShiftPolicy(t *testing.T) {
	p, err := ParseShiftPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ShiftCircular, p)

	p, err = ParseShiftPolicy("truncate")
	require.NoError(t, err)
	assert.Equal(t, ShiftTruncate, p)

	_, err = ParseShiftPolicy("zero-pad")
	assert.Error(t, err)

	var policy ShiftPolicy
	require.NoError(t, policy.UnmarshalText([]byte("circular")))
	assert.Equal(t, ShiftCircular, policy)
	assert.Error(t, policy.UnmarshalText([]byte("bogus")))
}

func TestShift(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}

	testCases := []struct {
		name   string
		n      int
		policy ShiftPolicy
		want   []float64
	}{
		{"circular none", 0, ShiftCircular, []float64{1, 2, 3, 4, 5}},
		{"circular delay", 2, ShiftCircular, []float64{4, 5, 1, 2, 3}},
		{"circular full turn", 10, ShiftCircular, []float64{1, 2, 3, 4, 5}},
		{"circular advance", -1, ShiftCircular, []float64{2, 3, 4, 5, 1}},
		{"truncate delay", 2, ShiftTruncate, []float64{0, 0, 1, 2, 3}},
		{"truncate advance", -2, ShiftTruncate, []float64{3, 4, 5, 0, 0}},
		{"truncate past end", 5, ShiftTruncate, []float64{0, 0, 0, 0, 0}},
		{"truncate min int", math.MinInt64, ShiftTruncate, []float64{0, 0, 0, 0, 0}},
		{"truncate max int", math.MaxInt64, ShiftTruncate, []float64{0, 0, 0, 0, 0}},
		{"circular min int", math.MinInt64, ShiftCircular, []float64{4, 5, 1, 2, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Shift(x, tc.n, tc.policy))
		})
	}

	assert.Equal(t, []float64{1, 2, 3, 4, 5}, x, "input must not be modified")
	assert.Empty(t, Shift(nil, 3, ShiftCircular))
}

func TestApply_InvalidLens(t *testing.T) {
	s := series(t, []float64{1, 2, 3}, 1)

	for _, r := range []float64{0, -1, math.NaN()} {
		_, err := Apply(s, lens.Params{EinsteinRadius: r})

		var ile *InvalidLensParameterError
		require.ErrorAs(t, err, &ile, "r=%g", r)
		assert.Equal(t, "einsteinRadius", ile.Field)
	}

	_, err := Apply(s, lens.Params{EinsteinRadius: 1, Ellipticity: 1.5})
	var ile *InvalidLensParameterError
	assert.ErrorAs(t, err, &ile)

	// lens parameters are checked before the signal
	_, err = Apply(nil, lens.Params{})
	assert.ErrorAs(t, err, &ile)

	_, err = Apply(nil, lens.DefaultParams())
	assert.ErrorIs(t, err, strain.ErrEmpty)

	_, err = Apply(s, lens.DefaultParams(), WithShiftPolicy("mirror"))
	assert.Error(t, err)
}

func TestApply_PreservesTimeBase(t *testing.T) {
	s := series(t, []float64{0, 1, 0, -1, 0, 1, 0, -1}, 1.0/4096)
	orig := s.Clone()

	l, err := Apply(s, lens.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, orig, s, "input must not be modified")
	assert.Equal(t, s.Len(), l.Len())
	assert.Equal(t, s.T0, l.T0)
	assert.Equal(t, s.Dt, l.Dt)
	assert.Equal(t, s.Unit, l.Unit)
	assert.Equal(t, "lensed H1 processed", l.Name)
	assert.Equal(t, ShiftCircular, l.Policy)
	assert.Equal(t, 1_382_400.0, l.DelaySeconds)
	// 5,662,310,400 samples is a whole number of turns of the 8 sample buffer
	assert.Equal(t, 0, l.ShiftSamples)
}

func TestEffectiveShift(t *testing.T) {
	testCases := []struct {
		name   string
		lag    float64
		size   int
		policy ShiftPolicy
		want   int
	}{
		{"circular within", 3.4, 8, ShiftCircular, 3},
		{"circular rounds up", 7.6, 8, ShiftCircular, 0},
		{"circular wraps", 21, 8, ShiftCircular, 5},
		{"circular beyond int range", 1e30, 8, ShiftCircular, 0},
		{"truncate within", 2.5, 8, ShiftTruncate, 3},
		{"truncate capped", 9, 8, ShiftTruncate, 8},
		{"truncate beyond int range", 1e30, 8, ShiftTruncate, 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, effectiveShift(tc.lag, tc.size, tc.policy))
		})
	}
}

func TestApply_LargeRadius(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	s := series(t, x, 1.0/4096)

	// the lag in samples is far beyond the int range
	p := lens.Params{EinsteinRadius: 1e15}
	require.Greater(t, TimeDelay(p.EinsteinRadius)*4096, float64(math.MaxInt64))

	l, err := Apply(s, p, WithShiftPolicy(ShiftTruncate))
	require.NoError(t, err)
	assert.Equal(t, len(x), l.ShiftSamples)
	for i, v := range x {
		assert.InEpsilon(t, l.PrimaryScale*v, l.Samples[i], 1e-12)
	}

	l, err = Apply(s, p)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.ShiftSamples, 0)
	assert.Less(t, l.ShiftSamples, len(x))
	assert.True(t, l.IsFinite())
}

func TestApply_UnrepresentableRadius(t *testing.T) {
	s := series(t, []float64{1, 2, 3, 4}, 1.0/4096)

	for _, r := range []float64{1e200, math.MaxFloat64} {
		l, err := Apply(s, lens.Params{EinsteinRadius: r})

		var ile *InvalidLensParameterError
		require.ErrorAs(t, err, &ile, "r=%g", r)
		assert.Equal(t, "einsteinRadius", ile.Field)
		assert.Equal(t, r, ile.Value)
		assert.Nil(t, l)
	}
}

func TestApply_Truncate(t *testing.T) {
	// one arcsecond delays by 864000s, three samples at this rate
	s := series(t, []float64{1, 2, 3, 4, 5, 6}, 288_000)
	p := lens.Params{EinsteinRadius: 1}

	l, err := Apply(s, p, WithShiftPolicy(ShiftTruncate))
	require.NoError(t, err)
	require.Equal(t, 3, l.ShiftSamples)
	assert.Equal(t, ShiftTruncate, l.Policy)

	primary, secondary := ImageScales(1.25)
	want := []float64{
		primary * 1,
		primary * 2,
		primary * 3,
		primary*4 + secondary*1,
		primary*5 + secondary*2,
		primary*6 + secondary*3,
	}
	assert.InDeltaSlice(t, want, l.Samples, 1e-12)

	l, err = Apply(s, p)
	require.NoError(t, err)
	assert.InDelta(t, primary*1+secondary*4, l.Samples[0], 1e-12)
}

func TestApply_ZeroRadiusLimit(t *testing.T) {
	s := series(t, []float64{0.5, -1, 2, 0.25, -0.75}, 1.0/4096)

	l, err := Apply(s, lens.Params{EinsteinRadius: 1e-9})
	require.NoError(t, err)
	assert.Equal(t, 0.0, l.SecondaryScale)
	assert.InDeltaSlice(t, s.Samples, l.Samples, 1e-12)

	l, err = Apply(s, lens.Params{EinsteinRadius: 1e-4})
	require.NoError(t, err)
	assert.Less(t, l.SecondaryScale, 1e-4)
	assert.InDeltaSlice(t, s.Samples, l.Samples, 1e-3)
}

func TestApply_Deterministic(t *testing.T) {
	s := series(t, []float64{3, 1, 4, 1, 5, 9, 2, 6}, 1.0/4096)

	first, err := Apply(s, lens.DefaultParams())
	require.NoError(t, err)
	second, err := Apply(s, lens.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, first.Samples, second.Samples)
}

func TestConditionAndApply(t *testing.T) {
	const (
		sampleRate = 4096
		seconds    = 32
	)

	x := make([]float64, seconds*sampleRate)
	for i := range x {
		x[i] = 1e-21 * math.Sin(2*math.Pi*150*float64(i)/sampleRate)
	}
	raw := series(t, x, 1.0/sampleRate)

	res, err := conditioner.Condition(raw, conditioner.DefaultParams())
	require.NoError(t, err)
	require.True(t, res.Cropped)

	conditioned := res.Signal
	assert.InDelta(t, 24, conditioned.Duration(), 1e-9)

	p := lens.Params{EinsteinRadius: 1.6, Ellipticity: 0.2, Angle: 45}
	l, err := Apply(conditioned, p)
	require.NoError(t, err)

	assert.True(t, l.IsFinite())
	assert.Equal(t, conditioned.Len(), l.Len())
	assert.Equal(t, conditioned.T0, l.T0)
	assert.Greater(t, l.Peak(), conditioned.Peak())
}
