//go:build integration

package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/testutil"
)

func TestPostgresStore_AssessmentRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	f := newFixture(t)
	gate := rolegate.NewMemoryStore()
	require.NoError(t, rolegate.Seed(ctx, gate, rolegate.RiskAssessor, []string{assessor}))
	svc := NewService(store, gate).
		WithClock(func() time.Time { return f.now }).
		WithSources(fakeSources{"chainlink": true})

	_, err := svc.AssessRisk(ctx, assessor, "BTC", f.params(8000, 3000, 2000, 5000, 6000), "chainlink")
	require.NoError(t, err)
	score, err := svc.AssessRisk(ctx, assessor, "BTC", f.params(9000, 3000, 2000, 5000, 6000))
	require.NoError(t, err)

	p, err := svc.GetRiskProfile(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, score, p.AggregatedRiskScore)
	assert.Equal(t, uint64(2), p.AssessmentCount)
	assert.Equal(t, []string{"chainlink"}, p.OracleSources, "sources are kept when none are passed")

	history, err := svc.GetHistoricalScores(ctx, "BTC", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, score, history[1])

	require.NoError(t, svc.SetRiskThreshold(ctx, assessor, "BTC", 5000))
	th, err := svc.GetRiskThreshold(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), th)
}
