package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-price-pilot/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	pingAttempts = 5
	pingDelay    = time.Second
)

type dialect struct {
	name     string
	idColumn string
	numbered bool
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: DriverSQLite, idColumn: "INTEGER PRIMARY KEY AUTOINCREMENT"},
	DriverPostgres: {name: DriverPostgres, idColumn: "BIGSERIAL PRIMARY KEY", numbered: true},
}

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to driver/dsn, verifies the connection and runs schema migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	if err := ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	var err error
	for i := 0; i < pingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("storage: ping: %w", ctx.Err())
		case <-time.After(pingDelay):
		}
	}
	return fmt.Errorf("storage: ping failed after retries: %w", err)
}

func (s *SQLStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS marketplace_results (
			id            ` + s.dialect.idColumn + `,
			baseline_id   TEXT NOT NULL,
			marketplace   TEXT NOT NULL,
			status        TEXT NOT NULL,
			prices        TEXT NOT NULL DEFAULT '[]',
			lowest        DOUBLE PRECISION,
			average       DOUBLE PRECISION,
			highest       DOUBLE PRECISION,
			error_message TEXT NOT NULL DEFAULT '',
			error_type    TEXT NOT NULL DEFAULT '',
			url           TEXT NOT NULL DEFAULT '',
			scraped_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_marketplace_results_baseline ON marketplace_results(baseline_id)`,
		`CREATE TABLE IF NOT EXISTS pricing_results (
			id                    ` + s.dialect.idColumn + `,
			baseline_id           TEXT NOT NULL,
			optimal_price         DOUBLE PRECISION NOT NULL,
			suggested_price       DOUBLE PRECISION NOT NULL,
			calibrated_elasticity DOUBLE PRECISION NOT NULL,
			competitor_factor     DOUBLE PRECISION NOT NULL,
			inflation_adjustment  DOUBLE PRECISION NOT NULL,
			expected_demand       DOUBLE PRECISION NOT NULL,
			expected_profit       DOUBLE PRECISION NOT NULL,
			current_profit        DOUBLE PRECISION NOT NULL,
			profit_delta          DOUBLE PRECISION NOT NULL,
			profit_delta_percent  DOUBLE PRECISION NOT NULL,
			position_vs_market    DOUBLE PRECISION,
			warning               TEXT NOT NULL DEFAULT '',
			iterations_used       INTEGER NOT NULL,
			converged             INTEGER NOT NULL,
			inflation_source      TEXT NOT NULL DEFAULT '',
			created_at            TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_results_baseline ON pricing_results(baseline_id)`,
		`CREATE TABLE IF NOT EXISTS processing_status (
			baseline_id TEXT PRIMARY KEY,
			state       TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			updated_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRun deletes the prior marketplace rows of the baseline, inserts the new ones and the
// pricing row, all or nothing.
func (s *SQLStore) SaveRun(ctx context.Context, baselineID string, results []*models.MarketplaceResult, pricing *models.PricingResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM marketplace_results WHERE baseline_id = ?`), baselineID); err != nil {
		return fmt.Errorf("storage: clear marketplace results: %w", err)
	}

	insertResult := s.rebind(`INSERT INTO marketplace_results
		(baseline_id, marketplace, status, prices, lowest, average, highest, error_message, error_type, url, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, r := range results {
		if r == nil {
			continue
		}
		prices := r.Prices
		if prices == nil {
			prices = []float64{}
		}
		encoded, mErr := json.Marshal(prices)
		if mErr != nil {
			err = fmt.Errorf("storage: encode prices: %w", mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, insertResult,
			baselineID, r.Marketplace, string(r.Status), string(encoded),
			nullFloat(r.Lowest), nullFloat(r.Average), nullFloat(r.Highest), r.ErrorMessage, r.ErrorType, r.URL, formatTime(r.ScrapedAt),
		); err != nil {
			return fmt.Errorf("storage: insert marketplace result %s: %w", r.Marketplace, err)
		}
	}

	if pricing != nil {
		converged := 0
		if pricing.Converged {
			converged = 1
		}
		if _, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO pricing_results
			(baseline_id, optimal_price, suggested_price, calibrated_elasticity, competitor_factor,
			 inflation_adjustment, expected_demand, expected_profit, current_profit, profit_delta,
			 profit_delta_percent, position_vs_market, warning, iterations_used, converged,
			 inflation_source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			baselineID, pricing.OptimalPrice, pricing.SuggestedPrice, pricing.CalibratedElasticity,
			pricing.CompetitorFactor, pricing.InflationAdjustment, pricing.ExpectedDemand,
			pricing.ExpectedProfit, pricing.CurrentProfit, pricing.ProfitDelta,
			pricing.ProfitDeltaPercent, nullFloat(pricing.PositionVsMarket), pricing.Warning,
			pricing.IterationsUsed, converged, pricing.InflationSource, formatTime(pricing.CreatedAt),
		); err != nil {
			return fmt.Errorf("storage: insert pricing result: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// SetStatus upserts the processing status of a baseline.
func (s *SQLStore) SetStatus(ctx context.Context, status models.ProcessingStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO processing_status (baseline_id, state, message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (baseline_id) DO UPDATE SET
			state = excluded.state,
			message = excluded.message,
			updated_at = excluded.updated_at`),
		status.BaselineID, string(status.State), status.Message, formatTime(status.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage: set status: %w", err)
	}
	return nil
}

// Status returns the processing status of a baseline or ErrNotFound.
func (s *SQLStore) Status(ctx context.Context, baselineID string) (*models.ProcessingStatus, error) {
	var (
		state     string
		updatedAt string
		status    = models.ProcessingStatus{BaselineID: baselineID}
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT state, message, updated_at FROM processing_status WHERE baseline_id = ?`), baselineID).
		Scan(&state, &status.Message, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: status: %w", err)
	}
	status.State = models.ProcessingState(state)
	if status.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &status, nil
}

// MarketplaceResults returns the stored results of the latest run in insertion order.
func (s *SQLStore) MarketplaceResults(ctx context.Context, baselineID string) ([]*models.MarketplaceResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT marketplace, status, prices, lowest, average, highest, error_message, error_type, url, scraped_at
		FROM marketplace_results
		WHERE baseline_id = ?
		ORDER BY id`), baselineID)
	if err != nil {
		return nil, fmt.Errorf("storage: marketplace results: %w", err)
	}
	defer rows.Close()

	var results []*models.MarketplaceResult
	for rows.Next() {
		var (
			r                        models.MarketplaceResult
			status, prices, scraped  string
			lowest, average, highest sql.NullFloat64
		)
		if err := rows.Scan(&r.Marketplace, &status, &prices, &lowest, &average, &highest, &r.ErrorMessage, &r.ErrorType, &r.URL, &scraped); err != nil {
			return nil, fmt.Errorf("storage: scan marketplace result: %w", err)
		}
		r.Status = models.MarketplaceStatus(status)
		if err := json.Unmarshal([]byte(prices), &r.Prices); err != nil {
			return nil, fmt.Errorf("storage: decode prices: %w", err)
		}
		r.Lowest, r.Average, r.Highest = nullable(lowest), nullable(average), nullable(highest)
		if r.ScrapedAt, err = parseTime(scraped); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// LatestPricing returns the most recently saved pricing result or ErrNotFound.
func (s *SQLStore) LatestPricing(ctx context.Context, baselineID string) (*models.PricingResult, error) {
	var (
		p         models.PricingResult
		position  sql.NullFloat64
		converged int
		created   string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT optimal_price, suggested_price, calibrated_elasticity,
			competitor_factor, inflation_adjustment, expected_demand, expected_profit, current_profit,
			profit_delta, profit_delta_percent, position_vs_market, warning, iterations_used, converged,
			inflation_source, created_at
		FROM pricing_results
		WHERE baseline_id = ?
		ORDER BY id DESC
		LIMIT 1`), baselineID).Scan(
		&p.OptimalPrice, &p.SuggestedPrice, &p.CalibratedElasticity, &p.CompetitorFactor,
		&p.InflationAdjustment, &p.ExpectedDemand, &p.ExpectedProfit, &p.CurrentProfit,
		&p.ProfitDelta, &p.ProfitDeltaPercent, &position, &p.Warning, &p.IterationsUsed,
		&converged, &p.InflationSource, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: latest pricing: %w", err)
	}
	p.PositionVsMarket = nullable(position)
	p.Converged = converged != 0
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &p, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse time %q: %w", value, err)
	}
	return t, nil
}
