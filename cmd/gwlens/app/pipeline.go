package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/gw-lensing/internal/conditioner"
	"github.com/roman-kulish/gw-lensing/internal/gwosc"
	"github.com/roman-kulish/gw-lensing/internal/lens"
	"github.com/roman-kulish/gw-lensing/internal/lensing"
	"github.com/roman-kulish/gw-lensing/internal/plot"
	"github.com/roman-kulish/gw-lensing/internal/storage"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

// Pipeline stage names, in execution order.
const (
	StageLoad      = "data loading"
	StageCondition = "waveform processing"
	StageLensModel = "lens modeling"
	StageLensing   = "lensing application"
	StagePlot      = "visualization"

	secondsPerDay = 86400
)

// stageThresholds are the expected maximum durations of the pipeline stages.
var stageThresholds = map[string]time.Duration{
	StageLoad:      10 * time.Second,
	StageCondition: 8 * time.Second,
	StageLensModel: 3 * time.Second,
	StageLensing:   5 * time.Second,
	StagePlot:      6 * time.Second,
}

// StrainLoader fetches raw detector strain. *gwosc.Client is a StrainLoader.
type StrainLoader interface {
	Fetch(ctx context.Context, req gwosc.Request) (*strain.Series, error)
}

// WithLedger records every run in store.
func WithLedger(store storage.Store) func(*Pipeline) {
	return func(p *Pipeline) {
		p.ledger = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline runs the five analysis stages: load, condition, build the lens
// model, apply lensing and plot.
type Pipeline struct {
	config *Config
	loader StrainLoader
	ledger storage.Store
	logger *slog.Logger
}

// NewPipeline validates config and creates a pipeline reading strain from
// loader.
func NewPipeline(config *Config, loader StrainLoader, options ...func(*Pipeline)) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := Pipeline{
		config: config,
		loader: loader,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(&p)
	}
	return &p, nil
}

// Report is what a run produced.
type Report struct {
	RunID       string // Empty without a ledger
	Raw         *strain.Series
	Conditioned *strain.Series
	Cropped     bool
	Model       *lens.Model
	Lensed      *lensing.Lensed
	PlotPath    string // Empty when plotting is disabled
	Stages      []storage.StageTiming
}

// Run executes the pipeline. Stages stop at the first error, which is
// returned wrapped with the stage name.
func (p *Pipeline) Run(ctx context.Context) (report *Report, err error) {
	cfg := p.config
	report = &Report{}

	if p.ledger != nil {
		if report.RunID, err = p.ledger.CreateRun(ctx, cfg.Source.Event, cfg.Source.Detector, cfg); err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		defer func() {
			err = errors.Join(err, p.record(context.WithoutCancel(ctx), report, err))
		}()
	}

	logger := p.logger.With(slog.String("event", cfg.Source.Event), slog.String("detector", cfg.Source.Detector))
	if report.RunID != "" {
		logger = logger.With(slog.String("run", report.RunID))
	}

	err = p.stage(logger, report, StageLoad, func() (err error) {
		if report.Raw, err = p.loader.Fetch(ctx, cfg.Source.Request()); err != nil {
			return err
		}
		logger.Info("strain loaded",
			slog.String("samples", humanize.Comma(int64(report.Raw.Len()))),
			slog.Float64("sampleRate", report.Raw.SampleRate()),
			slog.String("series", report.Raw.String()))
		return nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(logger, report, StageCondition, func() error {
		raw := report.Raw
		logger.Info(fmt.Sprintf("processing %.2fs of data from GPS %.1f to %.1f", raw.Duration(), raw.T0, raw.End()))

		result, err := conditioner.Condition(raw, cfg.Conditioning.Params())
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			logger.Warn(w.Error())
		}
		report.Conditioned, report.Cropped = result.Signal, result.Cropped
		return nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(logger, report, StageLensModel, func() (err error) {
		if report.Model, err = lens.NewModel(cfg.Lens); err != nil {
			return err
		}
		m := report.Model
		logger.Info("creating lens model with parameters:")
		logger.Info(fmt.Sprintf("• Einstein radius: %g arcsec", m.EinsteinRadius))
		logger.Info(fmt.Sprintf("• Center: (%g, %g)", m.Center[0], m.Center[1]))
		logger.Info(fmt.Sprintf("• Ellipticity: %g", m.Ellipticity))
		logger.Info(fmt.Sprintf("• Angle: %g°", m.Angle))
		logger.Debug(m.String())
		return nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(logger, report, StageLensing, func() (err error) {
		logger.Info(fmt.Sprintf("applying lensing with Einstein radius %g arcsec", report.Model.EinsteinRadius))

		report.Lensed, err = lensing.Apply(report.Conditioned, report.Model.Params, lensing.WithShiftPolicy(cfg.Lensing.ShiftPolicy))
		if err != nil {
			return err
		}
		l := report.Lensed
		logger.Info("lensing applied",
			slog.Group("lensing",
				slog.Float64("delay", l.DelaySeconds),
				slog.Int("shift", l.ShiftSamples),
				slog.Float64("magnification", l.Magnification),
				slog.String("policy", l.Policy.String())))
		return nil
	})
	if err != nil {
		return report, err
	}

	if !cfg.Plot.Enabled {
		logger.Info("plotting disabled")
		return report, nil
	}

	err = p.stage(logger, report, StagePlot, func() error {
		path := cfg.Plot.OutputPath(cfg.Source.Event)
		if err := p.plot(path, report); err != nil {
			return err
		}
		report.PlotPath = path
		logger.Info("figure saved", slog.String("path", path))
		return nil
	})
	if err != nil {
		return report, err
	}

	logger.Info("pipeline completed successfully")
	return report, nil
}

// stage runs fn, times it and logs the outcome against the expected duration.
func (p *Pipeline) stage(logger *slog.Logger, report *Report, name string, fn func() error) error {
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)

	report.Stages = append(report.Stages, storage.StageTiming{Stage: name, StartedAt: started.UTC(), Elapsed: elapsed})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	attrs := []any{slog.String("stage", name), slog.Duration("elapsed", elapsed)}
	if limit, ok := stageThresholds[name]; ok && elapsed > limit {
		logger.Warn(name+" took longer than expected", append(attrs, slog.Duration("expected", limit))...)
		return nil
	}
	logger.Info(fmt.Sprintf("%s completed in %.2fs", name, elapsed.Seconds()), attrs...)
	return nil
}

func (p *Pipeline) plot(path string, report *Report) error {
	renderer, err := plot.NewRenderer(plot.RenderConfig{
		Width:  p.config.Plot.Width,
		Height: p.config.Plot.Height,
		Theme:  p.config.Plot.Theme,
	})
	if err != nil {
		return err
	}

	img, err := renderer.Render(plot.Figure{
		Title: "Gravitational Wave Lensing: " + p.config.Source.Event,
		Traces: []plot.Trace{
			{Label: "Original", Series: report.Conditioned},
			{Label: "Lensed", Series: report.Lensed.Series},
		},
		Notes: figureNotes(report),
	})
	if err != nil {
		return err
	}
	return plot.Save(path, img)
}

func figureNotes(report *Report) []string {
	m, l, s := report.Model, report.Lensed, report.Conditioned

	return []string{
		fmt.Sprintf("Lens: θE = %g\", e = %g, φ = %g°, q = %.3f, z = %g", m.EinsteinRadius, m.Ellipticity, m.Angle, m.AxisRatio, m.Redshift),
		fmt.Sprintf("Time delay: %s s (%s days), %s samples %s shift",
			humanize.Commaf(l.DelaySeconds), humanize.Ftoa(l.DelaySeconds/secondsPerDay),
			humanize.Comma(int64(l.ShiftSamples)), l.Policy),
		fmt.Sprintf("Magnification: μ = %.3f, primary ×%.3f, secondary ×%.3f", l.Magnification, l.PrimaryScale, l.SecondaryScale),
		fmt.Sprintf("Data: %s samples at %s, GPS %.1f to %.1f",
			humanize.Comma(int64(s.Len())), humanize.SIWithDigits(s.SampleRate(), 3, "Hz"), s.T0, s.End()),
	}
}

// record writes the stage timings, the lensing outcome and the final status
// of the run to the ledger.
func (p *Pipeline) record(ctx context.Context, report *Report, runErr error) error {
	var errs []error

	if err := p.ledger.RecordStages(ctx, report.RunID, report.Stages); err != nil {
		errs = append(errs, fmt.Errorf("recording stages: %w", err))
	}

	if l := report.Lensed; l != nil {
		outcome := storage.Outcome{
			DelaySeconds:    l.DelaySeconds,
			ShiftSamples:    l.ShiftSamples,
			Magnification:   l.Magnification,
			PrimaryScale:    l.PrimaryScale,
			SecondaryScale:  l.SecondaryScale,
			ShiftPolicy:     l.Policy.String(),
			ConditionedPeak: report.Conditioned.Peak(),
			LensedPeak:      l.Peak(),
			Samples:         l.Len(),
			SampleRate:      l.SampleRate(),
		}
		if err := p.ledger.RecordOutcome(ctx, report.RunID, &outcome); err != nil {
			errs = append(errs, fmt.Errorf("recording outcome: %w", err))
		}
	}

	if err := p.ledger.FinishRun(ctx, report.RunID, runErr); err != nil {
		errs = append(errs, fmt.Errorf("finishing run: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Error("failed to update run ledger", slog.String("run", report.RunID), slog.String("error", err.Error()))
		return err
	}
	return nil
}
