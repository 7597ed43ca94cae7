// Package risk keeps per-asset risk profiles.
//
// A RiskAssessor submits five risk parameters for an asset; Aggregate folds
// them into one score in basis points; the service overwrites the asset's
// profile, appends the score to the asset's historical ledger and raises a
// breach signal when the score meets the asset's configured threshold.
package risk

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/riskmesh/internal/apperr"
)

// MaxScore is the upper bound of every parameter and of the aggregated score.
const MaxScore = 10000

// Defaults for the time windows.
const (
	DefaultStalenessWindow = time.Hour
)

var (
	ErrStaleData        = apperr.New(apperr.ErrExpired, "risk parameters are stale")
	ErrInvalidRiskScore = apperr.New(apperr.ErrInvalidInput, "invalid risk score")
	ErrProfileNotFound  = apperr.New(apperr.ErrNotRegistered, "asset has no risk profile")
	ErrSourceNotActive  = apperr.New(apperr.ErrNotRegistered, "oracle source is not active")
)

// Parameters is one assessment input. Every score is in basis points.
type Parameters struct {
	VolatilityScore   uint64    `json:"volatilityScore" validate:"bps"`
	LiquidityScore    uint64    `json:"liquidityScore" validate:"bps"`
	MarketCapScore    uint64    `json:"marketCapScore" validate:"bps"`
	RegulatoryScore   uint64    `json:"regulatoryScore" validate:"bps"`
	AIConfidenceScore uint64    `json:"aiConfidenceScore" validate:"bps"`
	LastUpdated       time.Time `json:"lastUpdated"`
	IsActive          bool      `json:"isActive"`
}

// Profile is the current risk state of one asset.
type Profile struct {
	AssetID             string     `json:"assetId"`
	AssetKey            string     `json:"assetKey"`
	AggregatedRiskScore uint64     `json:"aggregatedRiskScore"`
	Parameters          Parameters `json:"parameters"`
	OracleSources       []string   `json:"oracleSources"`
	AssessmentCount     uint64     `json:"assessmentCount"`
	Verified            bool       `json:"verified"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// AssetKey derives the storage key for an asset: Keccak256 of its id.
func AssetKey(assetID string) string {
	return common.BytesToHash(crypto.Keccak256([]byte(assetID))).Hex()
}

// Store persists profiles, ledgers and thresholds.
type Store interface {
	GetProfile(ctx context.Context, assetKey string) (*Profile, error)
	// SaveAssessment overwrites the profile and appends its score to the
	// ledger in one atomic step.
	SaveAssessment(ctx context.Context, p *Profile) error
	// SaveProfiles overwrites every profile atomically without touching ledgers.
	SaveProfiles(ctx context.Context, ps []*Profile) error
	// History returns up to limit most recent ledger entries, oldest first.
	// limit <= 0 returns the whole ledger.
	History(ctx context.Context, assetKey string, limit int) ([]uint64, error)
	SetThreshold(ctx context.Context, assetKey, assetID string, threshold uint64) error
	GetThreshold(ctx context.Context, assetKey string) (uint64, error)
}

// SourceRegistry tells the service whether a contributing oracle source may
// be cited by an assessment.
type SourceRegistry interface {
	IsActive(ctx context.Context, name string) (bool, error)
}
