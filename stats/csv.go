package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

var csvHeader = []string{"round", "height", "difficulty", "miner_id", "visibility", "block_hash", "parent_hash"}

// CSVSink streams records to a CSV file, one row per block, with a header
// row. This is the format the offline plotting scripts consume.
type CSVSink struct {
	f io.Closer
	w *csv.Writer
}

// NewCSVSink creates (or truncates) the file at path and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: create csv output: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("stats: write csv header: %w", err)
	}
	return &CSVSink{f: f, w: w}, nil
}

func (s *CSVSink) Record(r *Record) error {
	row := []string{
		strconv.FormatUint(r.Round, 10),
		strconv.FormatUint(r.Height, 10),
		r.Difficulty.String(),
		strconv.Itoa(r.Miner),
		r.Visibility,
		r.BlockHash.Hex(),
		r.ParentHash.Hex(),
	}
	return s.w.Write(row)
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("stats: flush csv output: %w", err)
	}
	return s.f.Close()
}
