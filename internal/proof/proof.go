// Package proof checks the proof payload attached to an AI result.
package proof

import "context"

// Verifier decides whether a proof payload is acceptable.
type Verifier interface {
	Verify(ctx context.Context, proof []byte) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, proof []byte) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, proof []byte) (bool, error) { return f(ctx, proof) }

// Placeholder accepts any non-empty payload. It performs no cryptographic
// check and must be replaced before results carry real weight.
type Placeholder struct{}

func (Placeholder) Verify(_ context.Context, proof []byte) (bool, error) {
	return len(proof) > 0, nil
}

// Name identifies the verifier in startup logs.
func (Placeholder) Name() string { return "placeholder (non-empty payload, no cryptographic check)" }
