package gwosc

import (
	"fmt"
	"sort"
	"strings"
)

// EventResponse is the body of the event API endpoint. Events are keyed by
// "<name>-v<version>".
type EventResponse struct {
	Events map[string]Event `json:"events" validate:"required,min=1,dive"`
}

// Event is a single catalogue version of a gravitational-wave event.
type Event struct {
	CommonName string       `json:"commonName" validate:"required"`
	Version    int          `json:"version" validate:"gte=1"`
	GPS        float64      `json:"GPS" validate:"gt=0"`
	Catalog    string       `json:"catalog.shortName"`
	JSONURL    string       `json:"jsonurl" validate:"omitempty,url"`
	Strain     []StrainFile `json:"strain" validate:"dive"`
}

// StrainFile describes one downloadable strain file.
type StrainFile struct {
	GPSStart     float64 `json:"GPSstart" validate:"gt=0"`
	Detector     string  `json:"detector" validate:"required"`
	Duration     float64 `json:"duration" validate:"gt=0"`
	Format       string  `json:"format" validate:"required"`
	SamplingRate float64 `json:"sampling_rate" validate:"gt=0"`
	URL          string  `json:"url" validate:"required,url"`
}

func (f StrainFile) String() string {
	return fmt.Sprintf("%s %s %gs @ %g Hz from GPS %g", f.Detector, f.Format, f.Duration, f.SamplingRate, f.GPSStart)
}

// latest returns the highest version of the event.
func (r *EventResponse) latest() (Event, bool) {
	keys := make([]string, 0, len(r.Events))
	for k := range r.Events {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		best  Event
		found bool
	)
	for _, k := range keys {
		if e := r.Events[k]; !found || e.Version > best.Version {
			best, found = e, true
		}
	}
	return best, found
}

// find returns the strain file matching the request.
func (e Event) find(req Request) (StrainFile, bool) {
	for _, f := range e.Strain {
		if strings.EqualFold(f.Detector, req.Detector) &&
			strings.EqualFold(f.Format, req.Format) &&
			f.SamplingRate == req.SampleRate &&
			f.Duration == req.Duration {
			return f, true
		}
	}
	return StrainFile{}, false
}
