package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
)

var zeroTime time.Time

const (
	assessor = "0x1111111111111111111111111111111111111111"
	outsider = "0x2222222222222222222222222222222222222222"
)

type fakeSources map[string]bool

func (f fakeSources) IsActive(_ context.Context, name string) (bool, error) {
	return f[name], nil
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	rec   *events.Recorder
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gate := rolegate.NewMemoryStore()
	require.NoError(t, rolegate.Seed(context.Background(), gate, rolegate.RiskAssessor, []string{assessor}))

	f := &fixture{
		store: NewMemoryStore(),
		rec:   events.NewRecorder(),
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, gate).
		WithEmitter(f.rec).
		WithClock(func() time.Time { return f.now }).
		WithSources(fakeSources{"chainlink": true, "retired": false})
	return f
}

func (f *fixture) params(v, l, m, r, a uint64) Parameters {
	return Parameters{
		VolatilityScore:   v,
		LiquidityScore:    l,
		MarketCapScore:    m,
		RegulatoryScore:   r,
		AIConfidenceScore: a,
		LastUpdated:       f.now.Add(-5 * time.Minute),
		IsActive:          true,
	}
}

func TestAssessRisk_UpdatesProfileAndLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	score, err := f.svc.AssessRisk(ctx, assessor, "BTC", f.params(5000, 5000, 5000, 5000, 5000), "chainlink")
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), score)

	_, err = f.svc.AssessRisk(ctx, assessor, "BTC", f.params(8000, 8000, 8000, 8000, 8000))
	require.NoError(t, err)

	p, err := f.svc.GetRiskProfile(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", p.AssetID)
	assert.Equal(t, AssetKey("BTC"), p.AssetKey)
	assert.Equal(t, uint64(8000), p.AggregatedRiskScore)
	assert.Equal(t, uint64(2), p.AssessmentCount)
	assert.True(t, p.Verified)
	assert.Equal(t, []string{"chainlink"}, p.OracleSources, "sources persist when a later assessment cites none")

	history, err := f.svc.GetHistoricalScores(ctx, "BTC", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5000, 8000}, history)

	assessed := f.rec.OfType(events.RiskAssessed)
	require.Len(t, assessed, 2)
	assert.Equal(t, "BTC", assessed[0].Data["assetId"])
	assert.Equal(t, uint64(5000), assessed[0].Data["score"])
	assert.Equal(t, f.now.Unix(), assessed[0].Data["timestamp"])
}

func TestAssessRisk_Unauthorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AssessRisk(context.Background(), outsider, "BTC", f.params(1, 1, 1, 1, 1))
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = f.svc.GetRiskProfile(context.Background(), "BTC")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestAssessRisk_Staleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.params(1000, 1000, 1000, 1000, 1000)
	p.LastUpdated = f.now.Add(-time.Hour)
	_, err := f.svc.AssessRisk(ctx, assessor, "ETH", p)
	require.NoError(t, err, "exactly one hour old is still fresh")

	p.LastUpdated = f.now.Add(-time.Hour - time.Second)
	_, err = f.svc.AssessRisk(ctx, assessor, "ETH", p)
	assert.True(t, errors.Is(err, ErrStaleData))
	assert.True(t, errors.Is(err, apperr.ErrExpired))

	p.LastUpdated = f.now.Add(time.Second)
	_, err = f.svc.AssessRisk(ctx, assessor, "ETH", p)
	assert.True(t, errors.Is(err, ErrInvalidRiskScore), "future timestamps are rejected")

	history, _ := f.svc.GetHistoricalScores(ctx, "ETH", 10)
	assert.Len(t, history, 1, "rejected assessments leave no ledger entry")
}

func TestAssessRisk_OutOfRangeParameter(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AssessRisk(context.Background(), assessor, "BTC", f.params(10001, 0, 0, 0, 0))
	assert.True(t, errors.Is(err, ErrInvalidRiskScore))
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestAssessRisk_InactiveSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AssessRisk(context.Background(), assessor, "BTC", f.params(1, 1, 1, 1, 1), "retired")
	assert.True(t, errors.Is(err, ErrSourceNotActive))
	assert.True(t, errors.Is(err, apperr.ErrNotRegistered))

	_, err = f.svc.AssessRisk(context.Background(), assessor, "BTC", f.params(1, 1, 1, 1, 1), "unknown")
	assert.True(t, errors.Is(err, ErrSourceNotActive))
}

func TestAssessRisk_ThresholdBreach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No threshold: no breach even at max score.
	_, err := f.svc.AssessRisk(ctx, assessor, "BTC", f.params(10000, 10000, 10000, 10000, 10000))
	require.NoError(t, err)
	assert.Empty(t, f.rec.OfType(events.RiskThresholdBreached))

	require.NoError(t, f.svc.SetRiskThreshold(ctx, assessor, "BTC", 6000))

	_, err = f.svc.AssessRisk(ctx, assessor, "BTC", f.params(5999, 5999, 5999, 5999, 5999))
	require.NoError(t, err)
	assert.Empty(t, f.rec.OfType(events.RiskThresholdBreached), "below threshold")

	_, err = f.svc.AssessRisk(ctx, assessor, "BTC", f.params(6000, 6000, 6000, 6000, 6000))
	require.NoError(t, err)
	breaches := f.rec.OfType(events.RiskThresholdBreached)
	require.Len(t, breaches, 1, "score equal to threshold breaches")
	assert.Equal(t, uint64(6000), breaches[0].Data["score"])
	assert.Equal(t, uint64(6000), breaches[0].Data["threshold"])

	require.NoError(t, f.svc.SetRiskThreshold(ctx, assessor, "BTC", 0))
	_, err = f.svc.AssessRisk(ctx, assessor, "BTC", f.params(10000, 10000, 10000, 10000, 10000))
	require.NoError(t, err)
	assert.Len(t, f.rec.OfType(events.RiskThresholdBreached), 1, "cleared threshold never fires")
}

type thresholdFailStore struct {
	*MemoryStore
}

func (thresholdFailStore) GetThreshold(context.Context, string) (uint64, error) {
	return 0, errors.New("connection reset")
}

func TestAssessRisk_ThresholdReadFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := rolegate.NewMemoryStore()
	require.NoError(t, rolegate.Seed(ctx, gate, rolegate.RiskAssessor, []string{assessor}))
	svc := NewService(thresholdFailStore{f.store}, gate).
		WithEmitter(f.rec).
		WithClock(func() time.Time { return f.now })

	_, err := svc.AssessRisk(ctx, assessor, "BTC", f.params(5000, 5000, 5000, 5000, 5000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, err = f.svc.GetRiskProfile(ctx, "BTC")
	assert.True(t, errors.Is(err, apperr.ErrNotRegistered))
	history, err := f.svc.GetHistoricalScores(ctx, "BTC", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.rec.OfType(events.RiskAssessed))
}

func TestSetRiskThreshold_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetRiskThreshold(ctx, assessor, "BTC", 10001)
	assert.True(t, errors.Is(err, ErrInvalidRiskScore))

	err = f.svc.SetRiskThreshold(ctx, outsider, "BTC", 10)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	require.NoError(t, f.svc.SetRiskThreshold(ctx, assessor, "BTC", 7500))
	got, err := f.svc.GetRiskThreshold(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, uint64(7500), got)
	assert.Len(t, f.rec.OfType(events.RiskThresholdSet), 1)
}

func TestBatchAssessRisk_SkipsLedgerAndThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssessRisk(ctx, assessor, "BTC", f.params(1000, 1000, 1000, 1000, 1000))
	require.NoError(t, err)
	require.NoError(t, f.svc.SetRiskThreshold(ctx, assessor, "BTC", 100))
	f.rec.Reset()

	stale := f.params(9000, 9000, 9000, 9000, 9000)
	stale.LastUpdated = f.now.Add(-48 * time.Hour)

	scores, err := f.svc.BatchAssessRisk(ctx, assessor, []string{"BTC", "ETH"}, []Parameters{stale, f.params(2000, 2000, 2000, 2000, 2000)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{9000, 2000}, scores)

	btc, _ := f.svc.GetRiskProfile(ctx, "BTC")
	assert.Equal(t, uint64(9000), btc.AggregatedRiskScore)
	assert.Equal(t, uint64(1), btc.AssessmentCount, "batch leaves the counter alone")

	eth, _ := f.svc.GetRiskProfile(ctx, "ETH")
	assert.Equal(t, uint64(0), eth.AssessmentCount)
	assert.False(t, eth.Verified)

	history, _ := f.svc.GetHistoricalScores(ctx, "BTC", 10)
	assert.Equal(t, []uint64{1000}, history, "batch never appends to the ledger")
	ethHistory, _ := f.svc.GetHistoricalScores(ctx, "ETH", 10)
	assert.Empty(t, ethHistory)

	assert.Empty(t, f.rec.OfType(events.RiskThresholdBreached))
	assert.Len(t, f.rec.OfType(events.RiskAssessed), 2)
}

func TestBatchAssessRisk_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BatchAssessRisk(ctx, assessor, []string{"A", "B"}, []Parameters{f.params(1, 1, 1, 1, 1)})
	assert.True(t, errors.Is(err, ErrInvalidRiskScore), "length mismatch")

	_, err = f.svc.BatchAssessRisk(ctx, assessor, []string{"A", "B"}, []Parameters{f.params(1, 1, 1, 1, 1), f.params(20000, 0, 0, 0, 0)})
	assert.True(t, errors.Is(err, ErrInvalidRiskScore))

	_, err = f.svc.GetRiskProfile(ctx, "A")
	assert.True(t, errors.Is(err, ErrProfileNotFound), "first pair must not be written when the second is invalid")
	assert.Empty(t, f.rec.Signals())
}

func TestGetHistoricalScores_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, v := range []uint64{100, 200, 300, 400} {
		_, err := f.svc.AssessRisk(ctx, assessor, "SOL", f.params(v, v, v, v, v))
		require.NoError(t, err)
	}

	got, _ := f.svc.GetHistoricalScores(ctx, "SOL", 2)
	assert.Equal(t, []uint64{300, 400}, got)

	got, _ = f.svc.GetHistoricalScores(ctx, "SOL", 100)
	assert.Equal(t, []uint64{100, 200, 300, 400}, got)

	got, _ = f.svc.GetHistoricalScores(ctx, "SOL", 0)
	assert.Empty(t, got)

	_, err := f.svc.GetHistoricalScores(ctx, "SOL", -1)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	got, _ = f.svc.GetHistoricalScores(ctx, "UNKNOWN", 5)
	assert.Empty(t, got)
}

func TestGetTrend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trend, err := f.svc.GetTrend(ctx, "ADA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), trend)

	_, _ = f.svc.AssessRisk(ctx, assessor, "ADA", f.params(5000, 5000, 5000, 5000, 5000))
	trend, _ = f.svc.GetTrend(ctx, "ADA")
	assert.Equal(t, int64(0), trend, "one entry")

	_, _ = f.svc.AssessRisk(ctx, assessor, "ADA", f.params(3000, 3000, 3000, 3000, 3000))
	trend, _ = f.svc.GetTrend(ctx, "ADA")
	assert.Equal(t, int64(-2000), trend)

	_, _ = f.svc.AssessRisk(ctx, assessor, "ADA", f.params(3500, 3500, 3500, 3500, 3500))
	trend, _ = f.svc.GetTrend(ctx, "ADA")
	assert.Equal(t, int64(500), trend)
}

func TestAssessRisk_ReentrantCallFails(t *testing.T) {
	f := newFixture(t)
	guard := syncutil.NewGuard()
	f.svc.WithGuard(guard)

	ctx, release, err := guard.Enter(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = f.svc.AssessRisk(ctx, assessor, "BTC", f.params(1, 1, 1, 1, 1))
	assert.True(t, errors.Is(err, apperr.ErrReentrant))
}

func TestAssetKey(t *testing.T) {
	assert.Equal(t, AssetKey("BTC"), AssetKey("BTC"))
	assert.NotEqual(t, AssetKey("BTC"), AssetKey("btc"))
	assert.Len(t, AssetKey("BTC"), 66)
}
