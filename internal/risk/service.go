package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/metrics"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/traces"
	"github.com/mbd888/riskmesh/internal/validation"
)

// Service implements the asset risk profile operations.
type Service struct {
	store     Store
	gate      rolegate.Gate
	sources   SourceRegistry
	emitter   events.Emitter
	guard     *syncutil.Guard
	now       func() time.Time
	staleness time.Duration
}

// NewService creates a risk service with a private guard and no sources.
func NewService(store Store, gate rolegate.Gate) *Service {
	return &Service{
		store:     store,
		gate:      gate,
		emitter:   events.Nop{},
		guard:     syncutil.NewGuard(),
		now:       time.Now,
		staleness: DefaultStalenessWindow,
	}
}

// WithSources sets the oracle registry consulted for contributing sources.
func (s *Service) WithSources(r SourceRegistry) *Service {
	s.sources = r
	return s
}

// WithEmitter sets the signal emitter.
func (s *Service) WithEmitter(e events.Emitter) *Service {
	s.emitter = e
	return s
}

// WithGuard shares the process-wide guard.
func (s *Service) WithGuard(g *syncutil.Guard) *Service {
	s.guard = g
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithStalenessWindow overrides the maximum accepted parameter age.
func (s *Service) WithStalenessWindow(d time.Duration) *Service {
	s.staleness = d
	return s
}

// checkParams rejects stale, future-dated and out-of-range parameters.
func (s *Service) checkParams(p Parameters, now time.Time) error {
	if p.LastUpdated.After(now) {
		return fmt.Errorf("%w: lastUpdated %s is in the future", ErrInvalidRiskScore, p.LastUpdated.Format(time.RFC3339))
	}
	if now.Sub(p.LastUpdated) > s.staleness {
		return fmt.Errorf("%w: lastUpdated %s is older than %s", ErrStaleData, p.LastUpdated.Format(time.RFC3339), s.staleness)
	}
	return checkRange(p)
}

func checkRange(p Parameters) error {
	if err := validation.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRiskScore, err)
	}
	return nil
}

// AssessRisk scores assetID, overwrites its profile, appends the score to its
// ledger and evaluates its threshold. sources, when given, replace the
// profile's contributing oracle sources and must all be active.
func (s *Service) AssessRisk(ctx context.Context, caller, assetID string, params Parameters, sources ...string) (uint64, error) {
	ctx, span := traces.StartSpan(ctx, "risk.AssessRisk", traces.Caller(caller), traces.AssetID(assetID))
	defer span.End()

	score, err := s.assess(ctx, caller, assetID, params, sources)
	traces.Fail(span, err)
	if err == nil {
		span.SetAttributes(traces.Score(score))
	}
	return score, err
}

func (s *Service) assess(ctx context.Context, caller, assetID string, params Parameters, sources []string) (uint64, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.RiskAssessor); err != nil {
		return 0, err
	}
	if assetID == "" {
		return 0, fmt.Errorf("%w: assetId is required", ErrInvalidRiskScore)
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()
	if err := s.checkParams(params, now); err != nil {
		return 0, err
	}
	score := Aggregate(params)
	if score > MaxScore {
		return 0, fmt.Errorf("%w: aggregated score %d exceeds %d", ErrInvalidRiskScore, score, MaxScore)
	}
	if err := s.checkSources(ctx, sources); err != nil {
		return 0, err
	}

	key := AssetKey(assetID)
	profile, err := s.store.GetProfile(ctx, key)
	if errors.Is(err, ErrProfileNotFound) {
		profile = &Profile{AssetID: assetID, AssetKey: key}
	} else if err != nil {
		return 0, fmt.Errorf("load profile: %w", err)
	}
	threshold, err := s.store.GetThreshold(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load threshold: %w", err)
	}

	profile.AggregatedRiskScore = score
	profile.Parameters = params
	profile.AssessmentCount++
	profile.Verified = true
	profile.UpdatedAt = now
	if len(sources) > 0 {
		profile.OracleSources = append([]string(nil), sources...)
	}

	if err := s.store.SaveAssessment(ctx, profile); err != nil {
		logging.L(ctx).Error("failed to save assessment", "assetId", assetID, "error", err)
		return 0, fmt.Errorf("save assessment: %w", err)
	}
	metrics.AssessmentsTotal.WithLabelValues("single").Inc()
	metrics.AssessmentScore.Observe(float64(score))

	if threshold != 0 && score >= threshold {
		metrics.ThresholdBreachesTotal.Inc()
		logging.L(ctx).Warn("risk threshold breached", "assetId", assetID, "score", score, "threshold", threshold)
		s.emitter.Emit(ctx, events.RiskThresholdBreached, map[string]interface{}{
			"assetId":   assetID,
			"score":     score,
			"threshold": threshold,
		})
	}

	logging.L(ctx).Info("risk assessed", "assetId", assetID, "score", score, "count", profile.AssessmentCount)
	s.emitter.Emit(ctx, events.RiskAssessed, map[string]interface{}{
		"assetId":   assetID,
		"score":     score,
		"timestamp": now.Unix(),
		"caller":    caller,
	})
	return score, nil
}

func (s *Service) checkSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	if s.sources == nil {
		return fmt.Errorf("%w: no oracle registry configured", ErrSourceNotActive)
	}
	for _, name := range sources {
		ok, err := s.sources.IsActive(ctx, name)
		if err != nil {
			return fmt.Errorf("check source %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrSourceNotActive, name)
		}
	}
	return nil
}

// BatchAssessRisk overwrites score and parameters for each asset. Unlike
// AssessRisk it does not append to ledgers, evaluate thresholds, check
// staleness or touch assessment counts and verified flags.
func (s *Service) BatchAssessRisk(ctx context.Context, caller string, assetIDs []string, params []Parameters) ([]uint64, error) {
	ctx, span := traces.StartSpan(ctx, "risk.BatchAssessRisk", traces.Caller(caller))
	defer span.End()

	scores, err := s.batch(ctx, caller, assetIDs, params)
	traces.Fail(span, err)
	return scores, err
}

func (s *Service) batch(ctx context.Context, caller string, assetIDs []string, params []Parameters) ([]uint64, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.RiskAssessor); err != nil {
		return nil, err
	}
	if len(assetIDs) != len(params) {
		return nil, fmt.Errorf("%w: %d asset ids but %d parameter sets", ErrInvalidRiskScore, len(assetIDs), len(params))
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	scores := make([]uint64, len(assetIDs))
	for i, p := range params {
		if assetIDs[i] == "" {
			return nil, fmt.Errorf("%w: assetIds[%d] is empty", ErrInvalidRiskScore, i)
		}
		if err := checkRange(p); err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		scores[i] = Aggregate(p)
		if scores[i] > MaxScore {
			return nil, fmt.Errorf("%w: params[%d] aggregates to %d", ErrInvalidRiskScore, i, scores[i])
		}
	}

	now := s.now()
	profiles := make([]*Profile, 0, len(assetIDs))
	byKey := make(map[string]*Profile, len(assetIDs))
	for i, assetID := range assetIDs {
		key := AssetKey(assetID)
		profile, ok := byKey[key]
		if !ok {
			profile, err = s.store.GetProfile(ctx, key)
			if errors.Is(err, ErrProfileNotFound) {
				profile = &Profile{AssetID: assetID, AssetKey: key}
			} else if err != nil {
				return nil, fmt.Errorf("load profile %s: %w", assetID, err)
			}
			byKey[key] = profile
			profiles = append(profiles, profile)
		}
		// A repeated asset keeps the last pair, as sequential writes would.
		profile.AggregatedRiskScore = scores[i]
		profile.Parameters = params[i]
		profile.UpdatedAt = now
	}

	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		logging.L(ctx).Error("failed to save batch", "assets", len(assetIDs), "error", err)
		return nil, fmt.Errorf("save batch: %w", err)
	}
	metrics.AssessmentsTotal.WithLabelValues("batch").Add(float64(len(assetIDs)))

	for i, assetID := range assetIDs {
		metrics.AssessmentScore.Observe(float64(scores[i]))
		s.emitter.Emit(ctx, events.RiskAssessed, map[string]interface{}{
			"assetId":   assetID,
			"score":     scores[i],
			"timestamp": now.Unix(),
			"caller":    caller,
			"batch":     true,
		})
	}
	logging.L(ctx).Info("batch risk assessed", "assets", len(assetIDs))
	return scores, nil
}

// SetRiskThreshold configures the breach threshold for assetID. Zero clears it.
func (s *Service) SetRiskThreshold(ctx context.Context, caller, assetID string, threshold uint64) error {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.RiskAssessor); err != nil {
		return err
	}
	if assetID == "" {
		return fmt.Errorf("%w: assetId is required", ErrInvalidRiskScore)
	}
	if threshold > MaxScore {
		return fmt.Errorf("%w: threshold %d exceeds %d", ErrInvalidRiskScore, threshold, MaxScore)
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.SetThreshold(ctx, AssetKey(assetID), assetID, threshold); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	s.emitter.Emit(ctx, events.RiskThresholdSet, map[string]interface{}{
		"assetId":   assetID,
		"threshold": threshold,
		"caller":    caller,
	})
	return nil
}

// GetRiskProfile returns the current profile of assetID.
func (s *Service) GetRiskProfile(ctx context.Context, assetID string) (*Profile, error) {
	return s.store.GetProfile(ctx, AssetKey(assetID))
}

// GetHistoricalScores returns up to limit most recent scores, oldest first.
// A limit larger than the ledger returns the whole ledger.
func (s *Service) GetHistoricalScores(ctx context.Context, assetID string, limit int) ([]uint64, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRiskScore)
	}
	if limit == 0 {
		return []uint64{}, nil
	}
	return s.store.History(ctx, AssetKey(assetID), limit)
}

// GetTrend returns latest minus previous ledger score, or 0 with fewer than
// two entries.
func (s *Service) GetTrend(ctx context.Context, assetID string) (int64, error) {
	last, err := s.store.History(ctx, AssetKey(assetID), 2)
	if err != nil {
		return 0, err
	}
	if len(last) < 2 {
		return 0, nil
	}
	return int64(last[1]) - int64(last[0]), nil
}

// GetRiskThreshold returns the configured threshold, 0 when none.
func (s *Service) GetRiskThreshold(ctx context.Context, assetID string) (uint64, error) {
	return s.store.GetThreshold(ctx, AssetKey(assetID))
}
