package conditioner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/gw-lensing/internal/dsp"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

const (
	testSampleRate = 1024.0
	testT0         = 1126259446.0
)

func noisySine(t *testing.T, seconds float64, name string) *strain.Series {
	t.Helper()

	n := int(seconds * testSampleRate)
	rng := rand.New(rand.NewSource(42))
	x := make([]float64, n)
	for i := range x {
		x[i] = 1e-21 * (math.Sin(2*math.Pi*120*float64(i)/testSampleRate) + 0.5*rng.NormFloat64())
	}

	s, err := strain.New(x, testT0, 1/testSampleRate, strain.WithName(name), strain.WithChannel("H1:TEST"))
	require.NoError(t, err)
	return s
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.NoError(t, p.Validate(4096))
	assert.Equal(t, 30.0, p.LowCutoff)
	assert.Equal(t, 400.0, p.HighCutoff)
	assert.Equal(t, dsp.WindowHann, p.Window)
	assert.Equal(t, 4096*4, p.MinSampleCount(4096))
}

func TestParams_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Params)
		filter bool
	}{
		{"zero low cutoff", func(p *Params) { p.LowCutoff = 0 }, true},
		{"inverted band", func(p *Params) { p.LowCutoff, p.HighCutoff = 400, 30 }, true},
		{"high at nyquist", func(p *Params) { p.HighCutoff = testSampleRate / 2 }, true},
		{"high above nyquist", func(p *Params) { p.HighCutoff = 600 }, true},
		{"odd order", func(p *Params) { p.FilterOrder = 3 }, true},
		{"nan cutoff", func(p *Params) { p.HighCutoff = math.NaN() }, true},
		{"zero window", func(p *Params) { p.WhitenWindow = 0 }, false},
		{"overlap equals window", func(p *Params) { p.WhitenOverlap = p.WhitenWindow }, false},
		{"negative overlap", func(p *Params) { p.WhitenOverlap = -1 }, false},
		{"negative crop", func(p *Params) { p.CropDuration = -1 }, false},
		{"unknown window", func(p *Params) { p.Window = "tukey" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.modify(&p)

			err := p.Validate(testSampleRate)
			require.Error(t, err)

			var fde *FilterDesignError
			var pe *ParamsError
			if tc.filter {
				assert.ErrorAs(t, err, &fde)
			} else {
				assert.ErrorAs(t, err, &pe)
			}
		})
	}
}

func TestCondition_InvalidInput(t *testing.T) {
	_, err := Condition(nil, DefaultParams())
	assert.ErrorIs(t, err, strain.ErrEmpty)

	_, err = Condition(&strain.Series{Samples: []float64{1, 2}}, DefaultParams())
	assert.ErrorIs(t, err, strain.ErrInvalidSampleInterval)
}

func TestCondition_InsufficientData(t *testing.T) {
	raw := noisySine(t, 2, "short")

	_, err := Condition(raw, DefaultParams())

	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, raw.Len(), ide.Have)
	assert.Equal(t, int(4*testSampleRate), ide.Need)

	tiny, err := strain.New(make([]float64, 50), 0, 1/testSampleRate)
	require.NoError(t, err)
	p := DefaultParams()
	p.WhitenWindow, p.WhitenOverlap = 0.01, 0
	_, err = Condition(tiny, p)
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, MinSamples, ide.Need)
}

func TestCondition_TooShortForFilter(t *testing.T) {
	p := DefaultParams()
	sos, err := dsp.ButterworthBandpass(p.FilterOrder, p.LowCutoff, p.HighCutoff, testSampleRate)
	require.NoError(t, err)

	tests := []struct {
		name    string
		samples int
		filter  bool
	}{
		{name: "shorter than padding", samples: sos.PadLength() - 1, filter: true},
		{name: "equal to padding", samples: sos.PadLength(), filter: true},
		{name: "longer than padding", samples: sos.PadLength() + 1, filter: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := strain.New(make([]float64, tt.samples), testT0, 1/testSampleRate)
			require.NoError(t, err)

			_, err = Condition(raw, p)
			var fde *FilterDesignError
			var ide *InsufficientDataError
			if tt.filter {
				require.ErrorAs(t, err, &fde)
				assert.Equal(t, p.FilterOrder, fde.Order)
				assert.Contains(t, fde.Reason, "signal too short")
				return
			}
			require.ErrorAs(t, err, &ide)
			assert.Equal(t, tt.samples, ide.Have)
		})
	}
}

func TestCondition_FilterDesignError(t *testing.T) {
	raw := noisySine(t, 16, "H1")

	p := DefaultParams()
	p.HighCutoff = 600

	_, err := Condition(raw, p)

	var fde *FilterDesignError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, 600.0, fde.High)
	assert.Equal(t, testSampleRate, fde.SampleRate)
}

func TestCondition_Crop(t *testing.T) {
	testCases := []struct {
		name     string
		duration float64
		crop     float64
		want     float64
		cropped  bool
	}{
		{"duration above twice the crop", 16, 4, 8, true},
		{"one sample to spare", 8 + 1/testSampleRate, 4, 1 / testSampleRate, true},
		{"duration equals twice the crop", 8, 4, 8, false},
		{"duration below twice the crop", 6, 4, 6, false},
		{"no crop", 6, 0, 6, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := noisySine(t, tc.duration, "H1")

			p := DefaultParams()
			p.CropDuration = tc.crop

			res, err := Condition(raw, p)
			require.NoError(t, err)

			assert.Equal(t, tc.cropped, res.Cropped)
			assert.InDelta(t, tc.want, res.Signal.Duration(), 1e-9)

			if tc.cropped {
				assert.InDelta(t, raw.T0+tc.crop, res.Signal.T0, 1e-6)
				assert.InDelta(t, raw.End()-tc.crop, res.Signal.End(), 1e-6)
				assert.Empty(t, res.Warnings)
				return
			}

			assert.Equal(t, raw.T0, res.Signal.T0)
			if tc.crop > 0 {
				require.Len(t, res.Warnings, 1)
				var w *CropSkippedWarning
				require.ErrorAs(t, res.Warnings[0], &w)
				assert.Equal(t, tc.crop, w.Crop)
			}
		})
	}
}

func TestCondition_Output(t *testing.T) {
	raw := noisySine(t, 16, "H1")
	orig := raw.Clone()

	res, err := Condition(raw, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, orig, raw, "input must not be modified")

	out := res.Signal
	assert.Equal(t, "H1 processed", out.Name)
	assert.Equal(t, raw.Unit, out.Unit)
	assert.Equal(t, raw.Channel, out.Channel)
	assert.Equal(t, raw.Dt, out.Dt)
	assert.True(t, out.IsFinite())

	// whitening brings the 1e-21 scale strain to order unity
	assert.Greater(t, out.Peak(), 0.1)
	assert.Less(t, out.Peak(), 100.0)

	unnamed := raw.Clone()
	unnamed.Name = ""
	res, err = Condition(unnamed, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "processed", res.Signal.Name)
}

func TestCondition_Deterministic(t *testing.T) {
	raw := noisySine(t, 12, "H1")

	first, err := Condition(raw, DefaultParams())
	require.NoError(t, err)
	second, err := Condition(raw, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, first.Signal.Samples, second.Signal.Samples)
}
