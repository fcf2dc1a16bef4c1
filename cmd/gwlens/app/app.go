package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/gw-lensing/internal/gwosc"
	"github.com/roman-kulish/gw-lensing/internal/lensing"
	"github.com/roman-kulish/gw-lensing/internal/storage"
)

const defaultHistoryLimit = 20

// NewRunCommand returns the command executing the pipeline. Flags override
// values read from the configuration file.
func NewRunCommand(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	var (
		configPath     string
		event          string
		detector       string
		einsteinRadius float64
		shiftPolicy    string
		output         string
		noPlot         bool
		noLedger       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load strain, condition it, apply lensing and plot the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := NewConfig()
			if configPath != "" {
				var err error
				if config, err = LoadConfig(configPath); err != nil {
					return fmt.Errorf("failed to load configuration file %s: %w", configPath, err)
				}
			}

			flags := cmd.Flags()
			if flags.Changed("event") {
				config.Source.Event = event
			}
			if flags.Changed("detector") {
				config.Source.Detector = detector
			}
			if flags.Changed("einstein-radius") {
				config.Lens.EinsteinRadius = einsteinRadius
			}
			if flags.Changed("shift-policy") {
				config.Lensing.ShiftPolicy = lensing.ShiftPolicy(shiftPolicy)
			}
			if flags.Changed("output") {
				config.Plot.Output = output
			}
			if noPlot {
				config.Plot.Enabled = false
			}
			if noLedger {
				config.Storage.Enabled = false
			}

			level, err := config.Settings.Level()
			if err != nil {
				return err
			}
			logLevel.Set(level)

			return Run(cmd.Context(), config, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	flags.StringVar(&event, "event", defaultEvent, "Gravitational-wave event name")
	flags.StringVar(&detector, "detector", defaultDetector, "Detector (H1, L1, V1)")
	flags.Float64Var(&einsteinRadius, "einstein-radius", 1.6, "Einstein radius in arcseconds")
	flags.StringVar(&shiftPolicy, "shift-policy", string(lensing.ShiftCircular), "Secondary image shift: circular or truncate")
	flags.StringVarP(&output, "output", "o", "", "Figure path, .png or .jpg")
	flags.BoolVar(&noPlot, "no-plot", false, "Skip the figure")
	flags.BoolVar(&noLedger, "no-ledger", false, "Do not record the run")

	return cmd
}

// Run executes the pipeline described by config.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	clientOptions := []func(*gwosc.Client){
		gwosc.WithHTTPClient(&http.Client{Timeout: time.Duration(config.Source.Timeout)}),
		gwosc.WithRateLimit(config.Source.RateLimit),
		gwosc.WithLogger(logger),
	}
	if config.Source.BaseURL != "" {
		clientOptions = append(clientOptions, gwosc.WithBaseURL(config.Source.BaseURL))
	}
	loader := gwosc.NewClient(clientOptions...)

	options := []func(*Pipeline){WithLogger(logger)}
	if config.Storage.Enabled {
		store := storage.NewSqliteStore(config.Storage.Path)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close run ledger", slog.String("error", err.Error()))
			}
		}()
		options = append(options, WithLedger(store))
	}

	p, err := NewPipeline(config, loader, options...)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	l := report.Lensed
	logger.Info("lensing summary",
		slog.String("run", report.RunID),
		slog.String("delay", fmt.Sprintf("%s s", humanize.Commaf(l.DelaySeconds))),
		slog.Float64("magnification", l.Magnification),
		slog.Float64("peakRatio", l.Peak()/report.Conditioned.Peak()),
		slog.String("figure", report.PlotPath))
	return nil
}

// NewHistoryCommand returns the command listing recorded runs.
func NewHistoryCommand(logger *slog.Logger) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := storage.NewSqliteStore(dbPath)
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close run ledger", slog.String("error", err.Error()))
				}
			}()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("reading run ledger %s: %w", dbPath, err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dbPath, "db", defaultLedger, "Path to the run ledger")
	flags.IntVar(&limit, "limit", defaultHistoryLimit, "Maximum number of runs, 0 lists all")

	return cmd
}

func printRuns(out io.Writer, runs []*storage.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "RUN\tSTARTED\tEVENT\tDETECTOR\tSTATUS\tDELAY\tMAGNIFICATION\tSHIFT")
	for _, r := range runs {
		delay, magnification, shift := "-", "-", "-"
		if o := r.Outcome; o != nil {
			delay = humanize.Commaf(o.DelaySeconds) + " s"
			magnification = fmt.Sprintf("%.3f", o.Magnification)
			shift = o.ShiftPolicy
		}

		status := string(r.Status)
		if r.Error != nil {
			status += ": " + *r.Error
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Event, r.Detector, status, delay, magnification, shift)
	}
	return w.Flush()
}
