package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"perfsampler/collector"
)

// CSV writes samples to a flat file, one row per sample, after a header row.
type CSV struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// NewCSV creates (or truncates) the file at path and writes the header.
// The header is flushed before NewCSV returns, so a run that fails on its
// first tick still leaves a well-formed, empty table behind.
// The caller must call Close() when sampling is over.
func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	c := &CSV{path: path, f: f, w: csv.NewWriter(f)}
	if err := c.write(collector.Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return c, nil
}

// Append writes one row and flushes it to the file.
func (c *CSV) Append(_ context.Context, s Sample) error {
	if c.f == nil {
		return fmt.Errorf("csv store %s is closed", c.path)
	}
	if err := c.write(s.Record()); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

func (c *CSV) write(record []string) error {
	if err := c.w.Write(record); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes any buffered row and closes the file.
func (c *CSV) Close() error {
	if c.f == nil {
		return nil
	}
	c.w.Flush()
	flushErr := c.w.Error()
	closeErr := c.f.Close()
	c.f = nil
	if flushErr != nil {
		return fmt.Errorf("flush csv file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close csv file: %w", closeErr)
	}
	return nil
}
