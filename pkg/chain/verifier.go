// Package chain defines the payment oracle the room server consults
// before crediting a buy-in or releasing a cash-out. Actual on-chain
// verification lives outside this process; the server only needs a
// yes/no answer for a given transaction signature.
package chain

import (
	"context"
	"strings"
)

// Verifier answers whether a transaction signature is a valid
// stablecoin payment of the expected amount to or from the escrow
// wallet. Implementations may be slow; callers must not hold room
// locks across these calls. The oracle does not deduplicate
// signatures — the server consumes them through its replay guard.
type Verifier interface {
	// VerifyBuyIn checks a payment of amount from wallet to escrow,
	// attributed to roomID.
	VerifyBuyIn(ctx context.Context, signature, wallet string, amount int64, roomID string) (bool, error)

	// VerifyCashOut checks a payment of amount from escrow to wallet.
	VerifyCashOut(ctx context.Context, signature, wallet string, amount int64) (bool, error)
}

// TestModePrefix marks a signature that bypasses verification for
// local play against a dev escrow.
const TestModePrefix = "TEST_MODE_"

// TestVerifier accepts only TestModePrefix signatures. It stands in
// for the production oracle in development and tests.
type TestVerifier struct{}

func (TestVerifier) VerifyBuyIn(_ context.Context, signature, _ string, _ int64, _ string) (bool, error) {
	return strings.HasPrefix(signature, TestModePrefix), nil
}

func (TestVerifier) VerifyCashOut(_ context.Context, signature, _ string, _ int64) (bool, error) {
	return strings.HasPrefix(signature, TestModePrefix), nil
}
