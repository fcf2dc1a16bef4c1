package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/gw-lensing/internal/conditioner"
	"github.com/roman-kulish/gw-lensing/internal/dsp"
	"github.com/roman-kulish/gw-lensing/internal/gwosc"
	"github.com/roman-kulish/gw-lensing/internal/lens"
	"github.com/roman-kulish/gw-lensing/internal/lensing"
	"github.com/roman-kulish/gw-lensing/internal/plot"
)

const (
	defaultEvent     = "GW150914"
	defaultDetector  = "H1"
	defaultLogLevel  = "info"
	defaultRateLimit = 2 // requests per second
	defaultTimeout   = time.Minute
	defaultLedger    = "gwlens.db"
	defaultPlotDir   = "plots"
)

// Duration is a time.Duration written as a string ("4s", "1m30s") in
// configuration files.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Seconds returns the duration as a floating point number of seconds.
func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the pipeline configuration
type Config struct {
	Settings     Settings           `yaml:"settings" toml:"settings" json:"settings"`
	Source       SourceConfig       `yaml:"source" toml:"source" json:"source"`
	Conditioning ConditioningConfig `yaml:"conditioning" toml:"conditioning" json:"conditioning"`
	Lens         lens.Params        `yaml:"lens" toml:"lens" json:"lens"`
	Lensing      LensingConfig      `yaml:"lensing" toml:"lensing" json:"lensing"`
	Plot         PlotConfig         `yaml:"plot" toml:"plot" json:"plot"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage" json:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" toml:"logLevel" json:"logLevel" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// Level returns the configured log level.
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// SourceConfig selects the strain to analyse.
type SourceConfig struct {
	Event      string   `yaml:"event" toml:"event" json:"event" validate:"required"`
	Detector   string   `yaml:"detector" toml:"detector" json:"detector" validate:"required,len=2"`
	BaseURL    string   `yaml:"baseURL" toml:"baseURL" json:"baseURL" validate:"omitempty,url"`
	SampleRate float64  `yaml:"sampleRate" toml:"sampleRate" json:"sampleRate" validate:"gt=0"`
	Duration   float64  `yaml:"duration" toml:"duration" json:"duration" validate:"gt=0"` // Length of the strain file in seconds
	GPSStart   float64  `yaml:"gpsStart" toml:"gpsStart" json:"gpsStart" validate:"gte=0"`
	GPSEnd     float64  `yaml:"gpsEnd" toml:"gpsEnd" json:"gpsEnd" validate:"gte=0"`
	RateLimit  float64  `yaml:"rateLimit" toml:"rateLimit" json:"rateLimit" validate:"gt=0"` // Requests per second
	Timeout    Duration `yaml:"timeout" toml:"timeout" json:"timeout" validate:"gt=0"`
}

// Request returns the loader request for the source.
func (s SourceConfig) Request() gwosc.Request {
	return gwosc.Request{
		Event:      s.Event,
		Detector:   s.Detector,
		SampleRate: s.SampleRate,
		Duration:   s.Duration,
		Start:      s.GPSStart,
		End:        s.GPSEnd,
	}
}

// ConditioningConfig holds the bandpass, whitening and cropping settings.
type ConditioningConfig struct {
	LowCutoff     float64            `yaml:"lowCutoff" toml:"lowCutoff" json:"lowCutoff"`
	HighCutoff    float64            `yaml:"highCutoff" toml:"highCutoff" json:"highCutoff"`
	FilterOrder   int                `yaml:"filterOrder" toml:"filterOrder" json:"filterOrder"`
	WhitenWindow  Duration           `yaml:"whitenWindow" toml:"whitenWindow" json:"whitenWindow"`
	WhitenOverlap Duration           `yaml:"whitenOverlap" toml:"whitenOverlap" json:"whitenOverlap"`
	Window        dsp.WindowFunction `yaml:"window" toml:"window" json:"window"`
	Crop          Duration           `yaml:"crop" toml:"crop" json:"crop"`
}

// Params converts the configuration to conditioner parameters.
func (c ConditioningConfig) Params() conditioner.Params {
	return conditioner.Params{
		LowCutoff:     c.LowCutoff,
		HighCutoff:    c.HighCutoff,
		FilterOrder:   c.FilterOrder,
		WhitenWindow:  c.WhitenWindow.Seconds(),
		WhitenOverlap: c.WhitenOverlap.Seconds(),
		Window:        c.Window,
		CropDuration:  c.Crop.Seconds(),
	}
}

// LensingConfig holds the lensing transformer settings.
type LensingConfig struct {
	ShiftPolicy lensing.ShiftPolicy `yaml:"shiftPolicy" toml:"shiftPolicy" json:"shiftPolicy"`
}

// PlotConfig holds the comparison figure settings.
type PlotConfig struct {
	Enabled bool            `yaml:"enabled" toml:"enabled" json:"enabled"`
	Output  string          `yaml:"output" toml:"output" json:"output"` // Defaults to plots/<event>_lensing.png
	Theme   plot.ColorTheme `yaml:"theme" toml:"theme" json:"theme"`
	Width   int             `yaml:"width" toml:"width" json:"width" validate:"gte=0"`
	Height  int             `yaml:"height" toml:"height" json:"height" validate:"gte=0"`
}

// OutputPath returns the figure path for the event.
func (p PlotConfig) OutputPath(event string) string {
	if p.Output != "" {
		return p.Output
	}
	return filepath.Join(defaultPlotDir, event+"_lensing.png")
}

// StorageConfig represents the run ledger settings
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Path    string `yaml:"path" toml:"path" json:"path" validate:"required_if=Enabled true"`
}

// NewConfig returns the default configuration: GW150914 seen by H1, the
// default lens and conditioning, a circular shift, a PNG figure and a ledger
// in the working directory.
func NewConfig() *Config {
	cp := conditioner.DefaultParams()

	return &Config{
		Settings: Settings{LogLevel: defaultLogLevel},
		Source: SourceConfig{
			Event:      defaultEvent,
			Detector:   defaultDetector,
			BaseURL:    gwosc.DefaultBaseURL,
			SampleRate: 4096,
			Duration:   32,
			RateLimit:  defaultRateLimit,
			Timeout:    Duration(defaultTimeout),
		},
		Conditioning: ConditioningConfig{
			LowCutoff:     cp.LowCutoff,
			HighCutoff:    cp.HighCutoff,
			FilterOrder:   cp.FilterOrder,
			WhitenWindow:  seconds(cp.WhitenWindow),
			WhitenOverlap: seconds(cp.WhitenOverlap),
			Window:        cp.Window,
			Crop:          seconds(cp.CropDuration),
		},
		Lens:    lens.DefaultParams(),
		Lensing: LensingConfig{ShiftPolicy: lensing.ShiftCircular},
		Plot: PlotConfig{
			Enabled: true,
			Theme:   plot.DefaultTheme,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    defaultLedger,
		},
	}
}

func seconds(s float64) Duration {
	return Duration(s * float64(time.Second))
}

// LoadConfig reads the configuration file at path over the defaults. YAML and
// TOML files are accepted, the format follows the file extension.
func LoadConfig(path string) (config *Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	config = NewConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(f, config)
	case ".toml":
		err = decodeTOML(f, config)
	default:
		err = fmt.Errorf("unsupported configuration format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeYAML(r io.Reader, config *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding YAML: %w", err)
	}
	return nil
}

func decodeTOML(r io.Reader, config *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("decoding TOML: %w", err)
	}
	return nil
}

// Validate checks the configuration. Conditioning parameters that depend on
// the sample rate are checked against the configured source rate.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if c.Source.GPSEnd > 0 && c.Source.GPSEnd <= c.Source.GPSStart {
		return fmt.Errorf("invalid GPS window [%g, %g)", c.Source.GPSStart, c.Source.GPSEnd)
	}
	if err := c.Conditioning.Params().Validate(c.Source.SampleRate); err != nil {
		return err
	}
	if err := c.Lens.Validate(); err != nil {
		return err
	}
	if _, err := lensing.ParseShiftPolicy(string(c.Lensing.ShiftPolicy)); err != nil {
		return err
	}
	if c.Plot.Enabled {
		if err := c.Plot.Theme.Validate(); err != nil {
			return err
		}
		if _, err := plot.FormatFromPath(c.Plot.OutputPath(c.Source.Event)); err != nil {
			return err
		}
	}
	return nil
}
