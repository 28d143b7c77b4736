package consensus

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEthereumRule(t *testing.T) {
	r, err := ParseEthereumRule("homestead")
	require.NoError(t, err)
	assert.Equal(t, Homestead, r)

	r, err = ParseEthereumRule("")
	require.NoError(t, err)
	assert.Equal(t, Homestead, r)

	r, err = ParseEthereumRule("byzantium")
	require.NoError(t, err)
	assert.Equal(t, Byzantium, r)

	_, err = ParseEthereumRule("frontier")
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

func TestEthereumGenesisParent(t *testing.T) {
	oracle := NewEthereumOracle(Homestead)
	chain := testChain{}
	genesis := chain.add(testBlock(nil, 0, 0, 131072))

	d, err := oracle.NextDifficulty(chain, genesis)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(131072), d)
}

func TestEthereumAdjustment(t *testing.T) {
	// next = parent + parent/2048 * (1 - delta/divisor), delta being the
	// parent's own inter-block gap. parent/2048 = 97 for difficulty 200000.
	cases := []struct {
		name  string
		rule  EthereumRule
		delta uint64
		want  int64
	}{
		{"homestead fast", Homestead, 5, 200097},
		{"homestead on target", Homestead, 10, 200000},
		{"homestead slow", Homestead, 30, 200000 - 2*97},
		{"homestead just under divisor", Homestead, 9, 200097},
		{"byzantium at divisor", Byzantium, 9, 200000},
		{"byzantium fast", Byzantium, 8, 200097},
		{"byzantium slow", Byzantium, 27, 200000 - 2*97},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := NewEthereumOracle(tc.rule)
			chain := testChain{}
			grand := chain.add(testBlock(nil, 1, 100, 200000))
			grand.ParentHash = chain.add(testBlock(nil, 0, 0, 131072)).Hash
			parent := chain.add(testBlock(grand, 2, 100+tc.delta, 200000))

			d, err := oracle.NextDifficulty(chain, parent)
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(tc.want), d)
		})
	}
}

func TestEthereumSignTermClamp(t *testing.T) {
	oracle := NewEthereumOracle(Homestead)
	chain := testChain{}
	grand := chain.add(testBlock(nil, 1, 0, 2000000))
	grand.ParentHash = chain.add(testBlock(nil, 0, 0, 131072)).Hash
	// A gap of 100000 rounds would push the sign term to -9999; it clamps
	// at -99.
	parent := chain.add(testBlock(grand, 2, 100000, 2000000))

	d, err := oracle.NextDifficulty(chain, parent)
	require.NoError(t, err)
	step := int64(2000000 / 2048)
	assert.Equal(t, big.NewInt(2000000-99*step), d)
}

func TestEthereumMinimumDifficultyFloor(t *testing.T) {
	oracle := NewEthereumOracle(Homestead)
	chain := testChain{}
	grand := chain.add(testBlock(nil, 1, 0, 131072))
	grand.ParentHash = chain.add(testBlock(nil, 0, 0, 131072)).Hash
	parent := chain.add(testBlock(grand, 2, 50, 131072))

	// The downward step would drop below the protocol minimum; it floors.
	d, err := oracle.NextDifficulty(chain, parent)
	require.NoError(t, err)
	assert.Equal(t, MinimumDifficulty, d)
}

func TestBomb(t *testing.T) {
	assert.Equal(t, int64(0), Bomb(0).Int64())
	assert.Equal(t, int64(0), Bomb(199999).Int64())
	assert.Equal(t, int64(1), Bomb(200000).Int64())
	assert.Equal(t, int64(1), Bomb(299999).Int64())
	assert.Equal(t, int64(2), Bomb(300000).Int64())
	assert.Equal(t, int64(256), Bomb(1000000).Int64())
}

func TestEthereumBombTerm(t *testing.T) {
	oracle := NewEthereumOracle(Homestead)
	chain := testChain{}
	grand := chain.add(testBlock(nil, 299998, 0, 200000))
	grand.ParentHash = chain.add(testBlock(nil, 299997, 0, 200000)).Hash
	// Parent gap exactly on target, so only the bomb moves the difficulty:
	// the pending block sits at height 300000, contributing 2^1.
	parent := chain.add(testBlock(grand, 299999, 10, 200000))

	d, err := oracle.NextDifficulty(chain, parent)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200002), d)
}
