// Package results stores AI-computed risk results and their verification
// outcome.
package results

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/riskmesh/internal/apperr"
)

// MaxScore bounds RiskScore and Confidence, in basis points.
const MaxScore = 10000

// DefaultValidity is how long after ComputedAt a result may be verified or
// counted as valid.
const DefaultValidity = 30 * time.Minute

var (
	ErrResultExpired = apperr.New(apperr.ErrExpired, "result has expired")
	ErrInvalidProof  = apperr.New(apperr.ErrInvalidProof, "result does not exist")
	ErrInvalidScore  = apperr.New(apperr.ErrInvalidInput, "score out of range")
)

// Result is one AI risk computation.
type Result struct {
	ResultID   string        `json:"resultId"`
	ModelID    string        `json:"modelId"`
	AssetID    string        `json:"assetId"`
	RiskScore  uint64        `json:"riskScore"`
	Confidence uint64        `json:"confidence"`
	Proof      hexutil.Bytes `json:"proof"`
	ComputedAt time.Time     `json:"computedAt"`
	Verified   bool          `json:"verified"`
	Submitter  string        `json:"submitter"`
}

// ResultID derives the id of a submission:
// Keccak256(modelId ‖ assetId ‖ uint256(riskScore) ‖ uint256(unixSeconds)).
// Identical submissions in the same second share an id.
func ResultID(modelID, assetID string, riskScore uint64, at time.Time) string {
	score := common.BigToHash(new(big.Int).SetUint64(riskScore))
	ts := common.BigToHash(big.NewInt(at.Unix()))
	return crypto.Keccak256Hash([]byte(modelID), []byte(assetID), score.Bytes(), ts.Bytes()).Hex()
}

// Store persists results.
type Store interface {
	// Put inserts or overwrites the result with the same id.
	Put(ctx context.Context, r *Result) error
	Get(ctx context.Context, resultID string) (*Result, error)
	// ListByAsset returns the newest results for assetID first.
	ListByAsset(ctx context.Context, assetID string, limit int) ([]*Result, error)
	SetVerified(ctx context.Context, resultID string, verified bool) error
}

// ModelRegistry is the part of the model registry the result store needs.
type ModelRegistry interface {
	IsActive(ctx context.Context, modelID string) (bool, error)
	IncrementPredictions(ctx context.Context, modelID string) (uint64, error)
	DecrementPredictions(ctx context.Context, modelID string) (uint64, error)
}
