package risk

// Weights in basis points. They sum to MaxScore.
const (
	WeightVolatility   = 3000
	WeightLiquidity    = 2500
	WeightMarketCap    = 2000
	WeightRegulatory   = 1500
	WeightAIConfidence = 1000
)

// Aggregate folds the parameters into one score:
//
//	floor(Σ pᵢ·wᵢ / 10000)
//
// Truncation is part of the contract. For parameters in [0, MaxScore] the
// result is in [0, MaxScore]; callers reject out-of-range input first.
func Aggregate(p Parameters) uint64 {
	sum := p.VolatilityScore*WeightVolatility +
		p.LiquidityScore*WeightLiquidity +
		p.MarketCapScore*WeightMarketCap +
		p.RegulatoryScore*WeightRegulatory +
		p.AIConfidenceScore*WeightAIConfidence
	return sum / MaxScore
}
