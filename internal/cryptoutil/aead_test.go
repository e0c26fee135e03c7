package cryptoutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fusionswap/relayer/internal/cryptoutil"
)

func TestSealOpenSecretRoundTrip(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)

	ct, err := cryptoutil.SealSecret(masterKey, "order-1", 0, secret[:])
	require.NoError(t, err)
	require.NotEqual(t, secret[:], ct, "ciphertext must not equal plaintext")

	pt, err := cryptoutil.OpenSecret(masterKey, "order-1", 0, ct)
	require.NoError(t, err)
	require.Equal(t, secret[:], pt)
}

func TestOpenSecretWrongOrderFails(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)

	ct, err := cryptoutil.SealSecret(masterKey, "order-1", 0, secret[:])
	require.NoError(t, err)

	_, err = cryptoutil.OpenSecret(masterKey, "order-2", 0, ct)
	require.Error(t, err, "decrypting under a different derived key must fail authentication")
}

func TestOpenSecretTamperedCiphertextFails(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	secret, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)

	ct, err := cryptoutil.SealSecret(masterKey, "order-1", 0, secret[:])
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = cryptoutil.OpenSecret(masterKey, "order-1", 0, ct)
	require.Error(t, err)
}

func TestGenerateSecretIsRandom(t *testing.T) {
	a, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	b, err := cryptoutil.GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestKeccak256TopicIsDeterministic(t *testing.T) {
	sig := "EscrowCreated(bytes32,address,uint256,bytes32,uint256)"
	h1 := cryptoutil.Keccak256Topic(sig)
	h2 := cryptoutil.Keccak256Topic(sig)
	require.Equal(t, h1, h2)

	other := cryptoutil.Keccak256Topic("Redeemed(bytes32,bytes32,address)")
	require.NotEqual(t, h1, other)
}
