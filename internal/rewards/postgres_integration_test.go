//go:build integration

package rewards

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/testutil"
)

func TestPostgresStore_ClaimLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	gate := rolegate.NewMemoryStore()
	require.NoError(t, rolegate.Seed(ctx, gate, rolegate.Admin, []string{adminAddr}))
	xfer := NewRecordingTransferrer()
	svc := NewService(store, gate, xfer)

	_, err := svc.Fund(ctx, adminAddr, big.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, svc.Distribute(ctx, adminAddr, operatorAddr, big.NewInt(700)))

	err = svc.Distribute(ctx, adminAddr, operatorAddr, big.NewInt(301))
	assert.ErrorIs(t, err, ErrInsufficientPool)

	xfer.Hook = func(context.Context, string, *big.Int) error { return errors.New("rpc down") }
	_, err = svc.Claim(ctx, operatorAddr)
	require.ErrorIs(t, err, ErrTransferFailed)

	pending, err := svc.PendingBalance(ctx, operatorAddr)
	require.NoError(t, err)
	assert.Equal(t, "700", pending.String(), "failed transfer restores the balance")

	xfer.Hook = nil
	claim, err := svc.Claim(ctx, operatorAddr)
	require.NoError(t, err)
	assert.Equal(t, "700", claim.Amount.String())

	pool, err := svc.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, "300", pool.Balance.String())
	assert.Equal(t, "700", pool.TotalClaimed.String())
}
