package cryptoutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fusionswap/relayer/internal/cryptoutil"
)

func leafData(n int) [][]byte {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = []byte{byte(i), byte(i + 1), byte(i + 2)}
	}
	return out
}

func TestMerkleProofVerifiesForEveryLeaf(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		data := leafData(n)
		tree, err := cryptoutil.BuildMerkleTree(data)
		require.NoError(t, err)
		root := tree.Root()
		for i := range data {
			proof, err := tree.Proof(i)
			require.NoError(t, err)
			require.True(t, cryptoutil.VerifyProof(data[i], proof, root), "leaf %d of %d should verify", i, n)
		}
	}
}

func TestMerkleProofRejectsWrongLeaf(t *testing.T) {
	data := leafData(5)
	tree, err := cryptoutil.BuildMerkleTree(data)
	require.NoError(t, err)
	root := tree.Root()
	proof, err := tree.Proof(0)
	require.NoError(t, err)
	require.False(t, cryptoutil.VerifyProof(data[1], proof, root))
}

func TestBuildMerkleTreeRequiresLeaves(t *testing.T) {
	_, err := cryptoutil.BuildMerkleTree(nil)
	require.Error(t, err)
}

func TestMerkleProofOutOfRange(t *testing.T) {
	tree, err := cryptoutil.BuildMerkleTree(leafData(3))
	require.NoError(t, err)
	_, err = tree.Proof(3)
	require.Error(t, err)
	_, err = tree.Proof(-1)
	require.Error(t, err)
}
