package secretcoord_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/cryptoutil"
	"github.com/fusionswap/relayer/internal/errs"
	"github.com/fusionswap/relayer/internal/secretcoord"
	"github.com/fusionswap/relayer/internal/types"
)

func newCoordinator(confirmed func(string) bool) *secretcoord.Coordinator {
	return secretcoord.New(secretcoord.Config{
		MasterKey:          []byte("0123456789abcdef0123456789abcdef"),
		DefaultRevealDelay: time.Hour,
		MaxSecretAge:       24 * time.Hour,
	}, confirmed, zap.NewNop())
}

func TestStoreRejectsDuplicateIndex(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)

	_, err = c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)

	_, err = c.Store("order-1", secret, 0, nil)
	require.Error(t, err)
	require.Equal(t, errs.Duplicate, errs.KindOf(err))
}

func TestRevealRequiresReadyStatus(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	_, err = c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)

	_, err = c.Reveal("order-1", 0)
	require.Error(t, err, "must not reveal a secret still pending")
}

func TestRevealRejectsBeforeDelayElapses(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	_, err = c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)

	delay := time.Hour
	require.NoError(t, c.ScheduleReveal("order-1", 0, &delay))

	_, err = c.Reveal("order-1", 0)
	require.Error(t, err, "reveal delay has not elapsed")
}

func TestRevealRequiresDestinationConfirmed(t *testing.T) {
	confirmed := false
	c := newCoordinator(func(string) bool { return confirmed })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	_, err = c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)

	zero := time.Duration(0)
	require.NoError(t, c.ScheduleReveal("order-1", 0, &zero))

	_, err = c.Reveal("order-1", 0)
	require.Error(t, err, "destination not confirmed yet")

	confirmed = true
	pt, err := c.Reveal("order-1", 0)
	require.NoError(t, err)
	require.Equal(t, secret, pt)
}

func TestRevealTwiceFails(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	_, err = c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)
	zero := time.Duration(0)
	require.NoError(t, c.ScheduleReveal("order-1", 0, &zero))

	_, err = c.Reveal("order-1", 0)
	require.NoError(t, err)

	_, err = c.Reveal("order-1", 0)
	require.Error(t, err)
}

func TestSetupPartialFillProducesVerifiableTree(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	tree, err := c.SetupPartialFill("order-1", big.NewInt(1_000_000), 4)
	require.NoError(t, err)
	require.Len(t, tree.LeafHashes, 5) // maxFills + 1 completion leaf

	zero := time.Duration(0)
	info, err := c.CoordinatePartialReveal("order-1", 2, big.NewInt(250_000), &zero)
	require.NoError(t, err)
	require.True(t, cryptoutil.VerifyProof(tree.LeafHashes[2][:], info.Proof, tree.Root))
	require.Equal(t, tree.LeafHashes[2], [32]byte(cryptoutil.HashSecret(info.Plaintext[:])))
}

func TestCoordinatePartialRevealRejectsReuse(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	_, err := c.SetupPartialFill("order-1", big.NewInt(1_000_000), 4)
	require.NoError(t, err)

	zero := time.Duration(0)
	_, err = c.CoordinatePartialReveal("order-1", 1, big.NewInt(250_000), &zero)
	require.NoError(t, err)

	_, err = c.CoordinatePartialReveal("order-1", 1, big.NewInt(250_000), &zero)
	require.Error(t, err)
	require.Equal(t, errs.Duplicate, errs.KindOf(err))
}

func TestCoordinatePartialRevealRejectsOverfill(t *testing.T) {
	c := newCoordinator(func(string) bool { return true })
	_, err := c.SetupPartialFill("order-1", big.NewInt(1_000_000), 4)
	require.NoError(t, err)

	zero := time.Duration(0)
	_, err = c.CoordinatePartialReveal("order-1", 1, big.NewInt(1_500_000), &zero)
	require.Error(t, err)
	require.Equal(t, errs.Invalid, errs.KindOf(err))
}

func TestStoredSecretHashMatchesDomainHash(t *testing.T) {
	// spec.md §8 invariant 5: for any delivered SecretRevealed plaintext P,
	// H(P) == StoredSecret.hash.
	c := newCoordinator(func(string) bool { return true })
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	stored, err := c.Store("order-1", secret, 0, nil)
	require.NoError(t, err)
	require.Equal(t, stored.Hash, [32]byte(cryptoutil.HashSecret(secret[:])))
	_ = types.SecretPending
}
