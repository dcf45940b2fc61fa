package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-price-pilot/models"
)

func sampleRun() *models.RunResult {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.RunResult{
		BaselineID: "b-1",
		Query:      models.ProductQuery{RawName: "Desk Lamp", SimplifiedName: "Desk Lamp", Keywords: []string{"desk", "lamp"}},
		Marketplaces: []*models.MarketplaceResult{
			{
				Marketplace: "amazon",
				Status:      models.StatusSuccess,
				Prices:      []float64{40, 60},
				Lowest:      models.Float(40),
				Average:     models.Float(50),
				Highest:     models.Float(60),
				URL:         "https://www.amazon.com/s?k=Desk+Lamp",
				ScrapedAt:   at,
			},
			{
				Marketplace:  "ebay",
				Status:       models.StatusFailed,
				Prices:       []float64{},
				ErrorMessage: "extract ebay: rate_limited: http status 429",
				ScrapedAt:    at,
			},
		},
		Market: models.MarketStats{Lowest: models.Float(40), Average: models.Float(50), Highest: models.Float(60)},
		Pricing: &models.PricingResult{
			OptimalPrice:   52.5,
			SuggestedPrice: 52.5,
			Warning:        "",
		},
		StartTime: at,
		EndTime:   at.Add(3 * time.Second),
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleRun()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records=%d, want header + 2 marketplaces + summary", len(records))
	}
	if records[0][0] != "baseline_id" || records[0][2] != "marketplace" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "amazon" || records[1][5] != "40.00" || records[1][4] != "2" {
		t.Fatalf("unexpected amazon row: %v", records[1])
	}
	if records[2][3] != "failed" || records[2][5] != "" {
		t.Fatalf("failed row must leave stats empty: %v", records[2])
	}
	summary := records[3]
	if summary[1] != summaryRow || summary[9] != "52.50" || summary[6] != "50.00" {
		t.Fatalf("unexpected summary row: %v", summary)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleRun()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Write(sampleRun()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.RunResult
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.Pricing == nil || decoded.Pricing.SuggestedPrice != 52.5 {
			t.Fatalf("pricing not round-tripped: %+v", decoded.Pricing)
		}
		if decoded.Marketplaces[1].Lowest != nil {
			t.Fatalf("absent lowest decoded as %v", *decoded.Marketplaces[1].Lowest)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "pricing.csv")
	jsonPath := filepath.Join(dir, "pricing.json")

	writer, err := NewWriter("dual", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleRun()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
