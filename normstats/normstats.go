// Package normstats computes per-feature normalization statistics over a
// sampler CSV so later consumers can z-score live readings the same way.
package normstats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"perfsampler/collector"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FeatureOrder lists the numeric columns in the order they appear in the
// CSV and in every slice of Stats.
var FeatureOrder = collector.Header[1:]

// Stats holds the mean and standard deviation of each feature.
type Stats struct {
	FeatureOrder []string  `yaml:"feature_order"`
	Mean         []float64 `yaml:"mean"`
	Std          []float64 `yaml:"std"`
}

// ErrNoSamples is returned when there is nothing to compute statistics over.
var ErrNoSamples = errors.New("no samples loaded")

// ReadCSV loads the numeric columns of a sampler output file. The header
// row is skipped, as are rows that do not parse as CSV or do not carry
// exactly three numeric values after the timestamp.
func ReadCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]float64
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if row, ok := parseRow(rec); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func parseRow(rec []string) ([]float64, bool) {
	if len(rec) != len(FeatureOrder)+1 {
		return nil, false
	}
	row := make([]float64, len(FeatureOrder))
	for i, field := range rec[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		row[i] = v
	}
	return row, true
}

// Compute returns the mean and population standard deviation of each
// feature. A feature that never varies gets a standard deviation of 1 so
// Normalize never divides by zero.
func Compute(rows [][]float64) (*Stats, error) {
	if len(rows) == 0 {
		return nil, ErrNoSamples
	}
	n := len(FeatureOrder)
	st := &Stats{
		FeatureOrder: append([]string(nil), FeatureOrder...),
		Mean:         make([]float64, n),
		Std:          make([]float64, n),
	}
	for _, row := range rows {
		for i := 0; i < n; i++ {
			st.Mean[i] += row[i]
		}
	}
	for i := range st.Mean {
		st.Mean[i] /= float64(len(rows))
	}
	for _, row := range rows {
		for i := 0; i < n; i++ {
			d := row[i] - st.Mean[i]
			st.Std[i] += d * d
		}
	}
	for i := range st.Std {
		st.Std[i] = math.Sqrt(st.Std[i] / float64(len(rows)))
		if st.Std[i] == 0 {
			st.Std[i] = 1
		}
	}
	return st, nil
}

// FromFile is ReadCSV followed by Compute.
func FromFile(path string) (*Stats, error) {
	rows, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return Compute(rows)
}

// Normalize z-scores values, which must be in FeatureOrder.
func (s *Stats) Normalize(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) || len(values) != len(s.Std) {
		return nil, fmt.Errorf("expected %d values, got %d", len(s.Mean), len(values))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		std := s.Std[i]
		if std == 0 {
			std = 1
		}
		out[i] = (v - s.Mean[i]) / std
	}
	return out, nil
}

// Write stores the statistics as YAML at path.
func (s *Stats) Write(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

// Load reads statistics written by Write and checks they are consistent.
func Load(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	var s Stats
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if len(s.Mean) == 0 || len(s.Std) == 0 {
		return nil, fmt.Errorf("stats %s are empty or malformed", path)
	}
	if len(s.Mean) != len(s.Std) {
		return nil, fmt.Errorf("stats %s: mean and std size mismatch", path)
	}
	return &s, nil
}
