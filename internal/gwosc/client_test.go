package gwosc

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 1024
	testDuration   = 4
	testGPSStart   = 1126259447
)

func strainText(n int) string {
	var sb strings.Builder
	sb.WriteString("# Gravitational wave strain for GW150914_R1 for H1 (see https://gwosc.org)\n")
	fmt.Fprintf(&sb, "# This file has %d samples per second\n", testSampleRate)
	fmt.Fprintf(&sb, "# starting GPS %d duration %d\n", testGPSStart, testDuration)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%.18e\n", 1e-21*math.Sin(float64(i)))
	}
	return sb.String()
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newServer serves a summary event document without strain files, the
// versioned document it points to, and the strain file itself.
func newServer(t *testing.T, samples int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/eventapi/json/event/GW150914/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"events": {
			"GW150914-v2": {"commonName": "GW150914", "version": 2, "GPS": 1126259462.4, "jsonurl": "%[1]s/v2", "strain": []},
			"GW150914-v3": {"commonName": "GW150914", "version": 3, "GPS": 1126259462.4, "catalog.shortName": "GWTC-1-confident", "jsonurl": "%[1]s/v3", "strain": []}
		}}`, srv.URL)
	})

	mux.HandleFunc("/v3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"events": {"GW150914-v3": {
			"commonName": "GW150914", "version": 3, "GPS": 1126259462.4, "jsonurl": "%[1]s/v3",
			"strain": [
				{"GPSstart": 1126257415, "detector": "H1", "duration": 4096, "format": "hdf5", "sampling_rate": 4096, "url": "%[1]s/big.hdf5"},
				{"GPSstart": %[2]d, "detector": "L1", "duration": %[3]d, "format": "txt", "sampling_rate": %[4]d, "url": "%[1]s/L1.txt.gz"},
				{"GPSstart": %[2]d, "detector": "H1", "duration": %[3]d, "format": "txt", "sampling_rate": %[4]d, "url": "%[1]s/H1.txt.gz"}
			]
		}}}`, srv.URL, testGPSStart, testDuration, testSampleRate)
	})

	mux.HandleFunc("/H1.txt.gz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gzipped(t, strainText(samples)))
	})

	return srv
}

func TestParseText(t *testing.T) {
	plain := strainText(10)

	for name, input := range map[string][]byte{
		"plain":   []byte(plain),
		"gzipped": gzipped(t, plain),
	} {
		t.Run(name, func(t *testing.T) {
			header, samples, err := ParseText(bytes.NewReader(input))
			require.NoError(t, err)

			assert.Equal(t, float64(testSampleRate), header.SampleRate)
			assert.Equal(t, float64(testGPSStart), header.GPSStart)
			assert.Len(t, header.Comments, 3)
			require.Len(t, samples, 10)
			assert.InDelta(t, 1e-21*math.Sin(3), samples[3], 1e-35)
		})
	}

	_, _, err := ParseText(strings.NewReader("# header\n1.0\nnot-a-number\n"))
	assert.ErrorContains(t, err, "line 3")

	header, samples, err := ParseText(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Zero(t, header.SampleRate)
}

func TestClient_Fetch(t *testing.T) {
	srv := newServer(t, testSampleRate*testDuration)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))

	s, err := c.Fetch(context.Background(), Request{
		Event:      "GW150914",
		SampleRate: testSampleRate,
		Duration:   testDuration,
	})
	require.NoError(t, err)

	assert.Equal(t, testSampleRate*testDuration, s.Len())
	assert.Equal(t, float64(testGPSStart), s.T0)
	assert.Equal(t, 1.0/testSampleRate, s.Dt)
	assert.Equal(t, "GW150914 H1", s.Name)
	assert.Equal(t, "H1:GWOSC-1KHZ_R1_STRAIN", s.Channel)
	assert.Equal(t, "strain", s.Unit)
}

func TestClient_FetchWindow(t *testing.T) {
	srv := newServer(t, testSampleRate*testDuration)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))

	req := Request{
		Event:      "GW150914",
		SampleRate: testSampleRate,
		Duration:   testDuration,
		Start:      testGPSStart + 1,
		End:        testGPSStart + 3,
	}

	s, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2*testSampleRate, s.Len())
	assert.Equal(t, float64(testGPSStart+1), s.T0)

	// 51 samples
	req.End = testGPSStart + 1.05
	_, err = c.Fetch(context.Background(), req)
	assert.ErrorContains(t, err, "at least 100 required")
}

func TestClient_FetchErrors(t *testing.T) {
	srv := newServer(t, 50)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	ctx := context.Background()

	t.Run("too few samples", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{Event: "GW150914", SampleRate: testSampleRate, Duration: testDuration})
		assert.ErrorContains(t, err, "only 50 samples")
	})

	t.Run("no matching file", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{Event: "GW150914", Detector: "V1", SampleRate: testSampleRate, Duration: testDuration})
		assert.ErrorIs(t, err, ErrStrainNotFound)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{Event: "GW000000"})

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{Event: "GW150914", Detector: "L1", SampleRate: testSampleRate, Duration: testDuration})

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.True(t, strings.HasSuffix(httpErr.URL, "/L1.txt.gz"))
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{})
		assert.ErrorContains(t, err, "invalid strain request")
	})

	t.Run("cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Fetch(cancelled, Request{Event: "GW150914"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_InvalidEventDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": {"GW150914-v1": {"commonName": "", "version": 1, "GPS": 1126259462.4}}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(WithBaseURL(srv.URL)).Event(context.Background(), "GW150914")
	assert.ErrorContains(t, err, "invalid event document")
}

func TestEventResponse_Latest(t *testing.T) {
	resp := EventResponse{Events: map[string]Event{
		"GW150914-v1": {CommonName: "GW150914", Version: 1},
		"GW150914-v3": {CommonName: "GW150914", Version: 3},
		"GW150914-v2": {CommonName: "GW150914", Version: 2},
	}}

	e, ok := resp.latest()
	require.True(t, ok)
	assert.Equal(t, 3, e.Version)

	_, ok = (&EventResponse{}).latest()
	assert.False(t, ok)
}
