package results

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/metrics"
	"github.com/mbd888/riskmesh/internal/models"
	"github.com/mbd888/riskmesh/internal/proof"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/traces"
)

// DefaultListLimit applies when ListResultsByAsset gets a non-positive limit.
const DefaultListLimit = 50

// Service implements result submission and verification.
type Service struct {
	store    Store
	models   ModelRegistry
	gate     rolegate.Gate
	verifier proof.Verifier
	emitter  events.Emitter
	guard    *syncutil.Guard
	now      func() time.Time
	validity time.Duration
}

func NewService(store Store, registry ModelRegistry, gate rolegate.Gate, verifier proof.Verifier) *Service {
	return &Service{
		store:    store,
		models:   registry,
		gate:     gate,
		verifier: verifier,
		emitter:  events.Nop{},
		guard:    syncutil.NewGuard(),
		now:      time.Now,
		validity: DefaultValidity,
	}
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

// WithValidity overrides the result validity window.
func (s *Service) WithValidity(d time.Duration) *Service {
	s.validity = d
	return s
}

// SubmitResult stores an unverified result computed by an active model and
// returns its id.
func (s *Service) SubmitResult(ctx context.Context, caller, modelID, assetID string, riskScore, confidence uint64, proofData []byte) (string, error) {
	ctx, span := traces.StartSpan(ctx, "results.SubmitResult",
		traces.Caller(caller), traces.ModelID(modelID), traces.AssetID(assetID), traces.Score(riskScore))
	defer span.End()

	id, err := s.submit(ctx, caller, modelID, assetID, riskScore, confidence, proofData)
	traces.Fail(span, err)
	if err == nil {
		span.SetAttributes(traces.ResultID(id))
	}
	return id, err
}

func (s *Service) submit(ctx context.Context, caller, modelID, assetID string, riskScore, confidence uint64, proofData []byte) (string, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.AIOperator); err != nil {
		return "", err
	}
	if strings.TrimSpace(assetID) == "" {
		return "", fmt.Errorf("%w: assetId is required", ErrInvalidScore)
	}
	if riskScore > MaxScore || confidence > MaxScore {
		return "", fmt.Errorf("%w: riskScore %d, confidence %d, max %d", ErrInvalidScore, riskScore, confidence, MaxScore)
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	active, err := s.models.IsActive(ctx, modelID)
	if err != nil {
		return "", fmt.Errorf("check model: %w", err)
	}
	if !active {
		return "", fmt.Errorf("%w: %s", models.ErrModelNotRegistered, modelID)
	}

	// Result ids and validity share second resolution.
	now := s.now().UTC().Truncate(time.Second)
	r := &Result{
		ResultID:   ResultID(modelID, assetID, riskScore, now),
		ModelID:    modelID,
		AssetID:    assetID,
		RiskScore:  riskScore,
		Confidence: confidence,
		Proof:      append([]byte(nil), proofData...),
		ComputedAt: now,
		Submitter:  rolegate.Normalize(caller),
	}
	if _, err := s.models.IncrementPredictions(ctx, modelID); err != nil {
		logging.L(ctx).Error("failed to count prediction", "modelId", modelID, "error", err)
		return "", fmt.Errorf("count prediction: %w", err)
	}
	if err := s.store.Put(ctx, r); err != nil {
		logging.L(ctx).Error("failed to save result", "modelId", modelID, "assetId", assetID, "error", err)
		if _, derr := s.models.DecrementPredictions(context.WithoutCancel(ctx), modelID); derr != nil {
			logging.L(ctx).Error("failed to uncount prediction", "modelId", modelID, "error", derr)
			return "", fmt.Errorf("save result: %w; uncount prediction: %w", err, derr)
		}
		return "", fmt.Errorf("save result: %w", err)
	}
	metrics.ResultsSubmittedTotal.Inc()

	logging.L(ctx).Info("result submitted", "resultId", r.ResultID, "modelId", modelID, "assetId", assetID, "score", riskScore)
	s.emitter.Emit(ctx, events.ResultSubmitted, map[string]interface{}{
		"resultId":   r.ResultID,
		"modelId":    modelID,
		"assetId":    assetID,
		"riskScore":  riskScore,
		"confidence": confidence,
		"submitter":  r.Submitter,
	})
	return r.ResultID, nil
}

// VerifyResult runs the proof verifier over a result still inside its
// validity window and stores the outcome, which may downgrade an earlier
// positive verification.
func (s *Service) VerifyResult(ctx context.Context, caller, resultID string) (bool, error) {
	ctx, span := traces.StartSpan(ctx, "results.VerifyResult", traces.Caller(caller), traces.ResultID(resultID))
	defer span.End()

	ok, err := s.verify(ctx, caller, resultID)
	traces.Fail(span, err)
	return ok, err
}

func (s *Service) verify(ctx context.Context, caller, resultID string) (bool, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.Verifier); err != nil {
		return false, err
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	r, err := s.store.Get(ctx, resultID)
	if err != nil {
		return false, err
	}
	if r.ComputedAt.IsZero() {
		return false, ErrInvalidProof
	}
	if s.now().After(r.ComputedAt.Add(s.validity)) {
		metrics.VerificationsTotal.WithLabelValues("expired").Inc()
		return false, fmt.Errorf("%w: computed at %s", ErrResultExpired, r.ComputedAt.Format(time.RFC3339))
	}

	ok, err := s.verifier.Verify(ctx, r.Proof)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("verify proof: %w", err)
	}
	if err := s.store.SetVerified(ctx, resultID, ok); err != nil {
		return false, err
	}

	outcome := "rejected"
	if ok {
		outcome = "verified"
	}
	metrics.VerificationsTotal.WithLabelValues(outcome).Inc()
	logging.L(ctx).Info("result verified", "resultId", resultID, "verified", ok)
	s.emitter.Emit(ctx, events.ResultVerified, map[string]interface{}{
		"resultId": resultID,
		"assetId":  r.AssetID,
		"verified": ok,
		"caller":   caller,
	})
	return ok, nil
}

// IsResultValid reports whether resultID is verified and still inside its
// validity window. Unknown ids are not valid.
func (s *Service) IsResultValid(ctx context.Context, resultID string) (bool, error) {
	r, err := s.store.Get(ctx, resultID)
	if errors.Is(err, ErrInvalidProof) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Verified && !s.now().After(r.ComputedAt.Add(s.validity)), nil
}

func (s *Service) GetResult(ctx context.Context, resultID string) (*Result, error) {
	return s.store.Get(ctx, resultID)
}

// ListResultsByAsset returns the newest results for assetID first.
func (s *Service) ListResultsByAsset(ctx context.Context, assetID string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListByAsset(ctx, assetID, limit)
}
