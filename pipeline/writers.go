package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-price-pilot/models"
)

const summaryRow = "summary"

var csvHeader = []string{
	"baseline_id", "row", "marketplace", "status", "price_count", "lowest", "average", "highest",
	"optimal_price", "suggested_price", "calibrated_elasticity", "expected_profit", "profit_delta_percent",
	"warning", "error", "url", "timestamp",
}

// CSVWriter writes one row per marketplace followed by a summary row per run.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends the rows of one run.
func (cw *CSVWriter) Write(run *models.RunResult) error {
	if run == nil {
		return nil
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, r := range run.Marketplaces {
		if r == nil {
			continue
		}
		record := []string{
			run.BaselineID,
			"marketplace",
			r.Marketplace,
			string(r.Status),
			strconv.Itoa(len(r.Prices)),
			formatOptional(r.Lowest),
			formatOptional(r.Average),
			formatOptional(r.Highest),
			"", "", "", "", "", "",
			r.ErrorMessage,
			r.URL,
			r.ScrapedAt.Format(time.RFC3339),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	if err := cw.writer.Write(summaryRecord(run)); err != nil {
		return fmt.Errorf("write csv summary: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func summaryRecord(run *models.RunResult) []string {
	record := []string{
		run.BaselineID,
		summaryRow,
		"",
		"",
		"",
		formatOptional(run.Market.Lowest),
		formatOptional(run.Market.Average),
		formatOptional(run.Market.Highest),
		"", "", "", "", "", "", "", "",
		run.EndTime.Format(time.RFC3339),
	}
	if p := run.Pricing; p != nil {
		record[8] = formatFloat(p.OptimalPrice)
		record[9] = formatFloat(p.SuggestedPrice)
		record[10] = strconv.FormatFloat(p.CalibratedElasticity, 'f', 4, 64)
		record[11] = formatFloat(p.ExpectedProfit)
		record[12] = formatFloat(p.ProfitDeltaPercent)
		record[13] = p.Warning
	}
	return record
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes one RunResult per line.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends the run in JSONL format.
func (jw *JSONWriter) Write(run *models.RunResult) error {
	if run == nil {
		return nil
	}
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(run); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewWriter builds the writer for format: csv, json or dual. Dual writes a sibling .json file.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// formatOptional renders absent values as an empty cell, never as 0.
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
