//go:build integration

// Run with: go test -tags=integration ./internal/datastore/...
// Requires a Docker daemon for testcontainers.
package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestMySQLStoreEndToEnd(t *testing.T) {
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("sonoscan_test"),
		tcmysql.WithUsername("sonoscan"),
		tcmysql.WithPassword("sonoscan"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	s := newSettings()
	s.Output.MySQL.Enabled = true
	s.Output.MySQL.Host = host
	s.Output.MySQL.Port = port.Port()
	s.Output.MySQL.Username = "sonoscan"
	s.Output.MySQL.Password = "sonoscan"
	s.Output.MySQL.Database = "sonoscan_test"

	store := &MySQLStore{Settings: s}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	// reopening must not re-run migrations
	require.NoError(t, store.Migrate(ctx))

	id, err := store.LogPrediction(ctx, PredictionInput{
		Filename: "m.png", PredictedLabel: "Benign", Confidence: 0.77,
		Probabilities: map[string]float64{"Normal": 0.1, "Benign": 0.77, "Malignant": 0.13},
	})
	require.NoError(t, err)

	got, err := store.GetPrediction(ctx, id)
	require.NoError(t, err)
	probs, err := got.ProbabilityMap()
	require.NoError(t, err)
	assert.InDelta(t, 0.77, probs["Benign"], 1e-12)

	require.NoError(t, store.UpdatePredictionReportPath(ctx, id, "r.html"))
	require.NoError(t, store.UpdatePredictionReportPath(ctx, id, "r.html"))

	_, err = store.CreateUser(ctx, "alice", []byte("h"))
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "alice", []byte("h"))
	assert.True(t, errors.IsConflict(err))
}
