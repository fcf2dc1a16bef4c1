package gwosc

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	sampleRateRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+samples per second`)
	startRe      = regexp.MustCompile(`starting GPS\s+(\d+(?:\.\d+)?)`)
)

// Header is the metadata carried in the comment lines of a strain text file:
//
//	# Gravitational wave strain for GW150914_R1 for H1 (see https://gwosc.org)
//	# This file has 4096 samples per second
//	# starting GPS 1126259447 duration 32
type Header struct {
	SampleRate float64
	GPSStart   float64
	Comments   []string
}

// ParseText reads a strain text file, optionally gzip compressed, with one
// sample per line after the header comments.
func ParseText(r io.Reader) (*Header, []float64, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("reading strain file: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var (
		header  Header
		samples []float64
		line    int
	)

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(text, "#"))
			header.Comments = append(header.Comments, comment)

			if m := sampleRateRe.FindStringSubmatch(comment); m != nil {
				header.SampleRate, _ = strconv.ParseFloat(m[1], 64)
			}
			if m := startRe.FindStringSubmatch(comment); m != nil {
				header.GPSStart, _ = strconv.ParseFloat(m[1], 64)
			}
			continue
		}

		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading strain file: %w", err)
	}

	return &header, samples, nil
}
