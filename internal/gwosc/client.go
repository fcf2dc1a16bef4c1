// Package gwosc loads detector strain from the Gravitational Wave Open Science
// Center. Events are resolved through the event API and the matching strain
// text file is downloaded and parsed into a strain.Series.
package gwosc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/roman-kulish/gw-lensing/internal/strain"
)

const (
	// DefaultBaseURL is the GWOSC web service root.
	DefaultBaseURL = "https://gwosc.org"

	// MinSamples is the fewest samples a fetch may return.
	MinSamples = 100

	defaultTimeout    = 60 * time.Second
	defaultRateLimit  = 2 // requests per second
	defaultDetector   = "H1"
	defaultSampleRate = 4096
	defaultDuration   = 32
	defaultFormat     = "txt"
	maxErrorBody      = 512
)

// ErrStrainNotFound is returned when the event has no strain file matching
// the request.
var ErrStrainNotFound = errors.New("strain file not found")

// HTTPError is returned for non-200 responses.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Request selects the strain to load. Zero values select the defaults: H1,
// 4096 Hz, the 32s file around the event, text format, no cropping.
type Request struct {
	Event      string  `validate:"required"`
	Detector   string  `validate:"required,len=2"`
	SampleRate float64 `validate:"gt=0"`
	Duration   float64 `validate:"gt=0"`
	Format     string  `validate:"oneof=txt"`
	Start      float64 `validate:"gte=0"` // Optional GPS start of the returned window
	End        float64 `validate:"gte=0"` // Optional GPS end of the returned window
}

func (r Request) withDefaults() Request {
	if r.Detector == "" {
		r.Detector = defaultDetector
	}
	if r.SampleRate == 0 {
		r.SampleRate = defaultSampleRate
	}
	if r.Duration == 0 {
		r.Duration = defaultDuration
	}
	if r.Format == "" {
		r.Format = defaultFormat
	}
	return r
}

// WithBaseURL overrides the service root.
func WithBaseURL(baseURL string) func(*Client) {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) func(*Client) {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit sets the maximum request rate per second.
func WithRateLimit(perSecond float64) func(*Client) {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the GWOSC event API.
type Client struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewClient creates a new Client.
func NewClient(options ...func(*Client)) *Client {
	c := Client{
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(defaultRateLimit, 1),
		validate: validator.New(),
		logger:   slog.Default(),
	}

	for _, option := range options {
		option(&c)
	}
	return &c
}

// Event resolves the latest catalogue version of the named event.
func (c *Client) Event(ctx context.Context, name string) (*Event, error) {
	endpoint, err := url.JoinPath(c.baseURL, "eventapi", "json", "event", name)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", name, err)
	}

	event, err := c.event(ctx, endpoint+"/")
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", name, err)
	}

	// the summary may omit strain files, the versioned document lists them
	if len(event.Strain) == 0 && event.JSONURL != "" {
		if event, err = c.event(ctx, event.JSONURL); err != nil {
			return nil, fmt.Errorf("event %s: %w", name, err)
		}
	}

	c.logger.Debug("event resolved",
		slog.String("event", event.CommonName),
		slog.Int("version", event.Version),
		slog.Float64("gps", event.GPS),
		slog.Int("strainFiles", len(event.Strain)))

	return event, nil
}

func (c *Client) event(ctx context.Context, endpoint string) (*Event, error) {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp EventResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	if err := c.validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("invalid event document %s: %w", endpoint, err)
	}

	event, ok := resp.latest()
	if !ok {
		return nil, fmt.Errorf("no events in %s", endpoint)
	}
	return &event, nil
}

// Fetch downloads the strain selected by req.
func (c *Client) Fetch(ctx context.Context, req Request) (*strain.Series, error) {
	req = req.withDefaults()
	if err := c.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("invalid strain request: %w", err)
	}

	event, err := c.Event(ctx, req.Event)
	if err != nil {
		return nil, err
	}

	file, ok := event.find(req)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s %gs @ %g Hz %s", ErrStrainNotFound, req.Event, req.Detector, req.Duration, req.SampleRate, req.Format)
	}

	series, err := c.download(ctx, event, file)
	if err != nil {
		return nil, fmt.Errorf("strain %s %s: %w", req.Event, req.Detector, err)
	}

	if req.Start > 0 || req.End > 0 {
		start, end := req.Start, req.End
		if start == 0 {
			start = series.T0
		}
		if end == 0 {
			end = series.End()
		}
		if series, err = series.Crop(start, end); err != nil {
			return nil, fmt.Errorf("strain %s %s: %w", req.Event, req.Detector, err)
		}
	}

	if series.Len() < MinSamples {
		return nil, fmt.Errorf("strain %s %s: only %d samples, at least %d required, try a longer window", req.Event, req.Detector, series.Len(), MinSamples)
	}
	return series, nil
}

func (c *Client) download(ctx context.Context, event *Event, file StrainFile) (*strain.Series, error) {
	started := time.Now()

	body, err := c.get(ctx, file.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	counter := countingReader{r: body}
	header, samples, err := ParseText(&counter)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file.URL, err)
	}

	fs, t0 := header.SampleRate, header.GPSStart
	if fs == 0 {
		fs = file.SamplingRate
	}
	if t0 == 0 {
		t0 = file.GPSStart
	}

	c.logger.Info("strain downloaded",
		slog.String("url", file.URL),
		slog.String("size", humanize.Bytes(counter.n)),
		slog.Int("samples", len(samples)),
		slog.Duration("elapsed", time.Since(started)))

	series, err := strain.New(samples, t0, 1/fs,
		strain.WithName(fmt.Sprintf("%s %s", event.CommonName, file.Detector)),
		strain.WithChannel(channelName(file)))
	if err != nil {
		return nil, err
	}
	return series, nil
}

// get issues a rate-limited GET request. The caller closes the body.
func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	c.logger.Debug("request", slog.String("url", endpoint))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{URL: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

// channelName follows the GWOSC channel naming, e.g. H1:GWOSC-4KHZ_R1_STRAIN.
func channelName(file StrainFile) string {
	return fmt.Sprintf("%s:GWOSC-%dKHZ_R1_STRAIN", file.Detector, int(file.SamplingRate/1024))
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}
