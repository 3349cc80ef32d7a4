package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/verte-zerg/gazemap/internal/model"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("no samples to export")

var csvHeader = []string{"x", "y", "timestamp", "page"}

// CSV serializes samples in capture order.
func CSV(samples []model.GazeSample, page string, now time.Time) (model.Artifact, error) {
	if len(samples) == 0 {
		return model.Artifact{}, ErrEmpty
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to write csv header: %w", err)
	}
	row := make([]string, 4)
	for _, s := range samples {
		row[0] = formatFloat(s.X)
		row[1] = formatFloat(s.Y)
		row[2] = strconv.FormatInt(s.Timestamp, 10)
		row[3] = s.Page
		if err := w.Write(row); err != nil {
			return model.Artifact{}, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to flush csv: %w", err)
	}
	return model.Artifact{
		Kind:     model.ArtifactCSV,
		Page:     page,
		Filename: CSVName(page, now),
		Bytes:    buf.Bytes(),
		Rows:     len(samples),
	}, nil
}

// ParseCSV reads samples back from an export.
func ParseCSV(r io.Reader) ([]model.GazeSample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv column %q, want %q", header[i], name)
		}
	}

	var samples []model.GazeSample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		x, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x %q: %w", rec[0], err)
		}
		y, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y %q: %w", rec[1], err)
		}
		ts, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", rec[2], err)
		}
		samples = append(samples, model.GazeSample{X: x, Y: y, Timestamp: ts, Page: rec[3]})
	}
	return samples, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
