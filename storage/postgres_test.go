//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aluiziolira/go-price-pilot/models"
)

func openPostgres(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	testcontainers.Logger = log.New(io.Discard, "", 0)

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pricer",
				"POSTGRES_PASSWORD": "pricer",
				"POSTGRES_DB":       "pricer",
			},
			// The entrypoint restarts the server once after init.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Errorf("terminate postgres: %v", err)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://pricer:pricer@%s:%s/pricer?sslmode=disable", host, port.Port())
	s, err := Open(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, "b-1", sampleResults(at), &models.PricingResult{
		SuggestedPrice:   100,
		PositionVsMarket: models.Float(-2.5),
		IterationsUsed:   3,
		Converged:        true,
		CreatedAt:        at,
	}))
	require.NoError(t, s.SaveRun(ctx, "b-1", sampleResults(at), &models.PricingResult{
		SuggestedPrice: 104.5,
		Warning:        "optimal price above market range",
		IterationsUsed: 10,
		CreatedAt:      at,
	}))

	got, err := s.MarketplaceResults(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "amazon", got[0].Marketplace)
	require.Equal(t, []float64{10, 20, 30}, got[0].Prices)
	require.Equal(t, 30.0, *got[0].Highest)
	require.True(t, got[0].ScrapedAt.Equal(at))
	require.Equal(t, "ebay", got[1].Marketplace)
	require.Nil(t, got[1].Average)

	latest, err := s.LatestPricing(ctx, "b-1")
	require.NoError(t, err)
	require.Equal(t, 104.5, latest.SuggestedPrice)
	require.False(t, latest.Converged)
	require.Nil(t, latest.PositionVsMarket)
	require.Equal(t, 10, latest.IterationsUsed)

	_, err = s.LatestPricing(ctx, "b-2")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStatusUpsert(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t)

	require.NoError(t, s.SetStatus(ctx, models.ProcessingStatus{BaselineID: "b-1", State: models.StateScraping}))
	require.NoError(t, s.SetStatus(ctx, models.ProcessingStatus{BaselineID: "b-1", State: models.StateCompleted, Message: "suggested price 57.09"}))

	status, err := s.Status(ctx, "b-1")
	require.NoError(t, err)
	require.Equal(t, models.StateCompleted, status.State)
	require.Equal(t, "suggested price 57.09", status.Message)

	_, err = s.Status(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}
