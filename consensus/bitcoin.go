package consensus

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tamaroning/blockchain-sim/core"
)

// RetargetEpoch is the Bitcoin difficulty adjustment window in blocks.
const RetargetEpoch = 2016

// retargetBound caps a single retarget at 4x in either direction.
var retargetBound = big.NewInt(4)

// BitcoinOracle keeps difficulty constant within 2016-block epochs and
// retargets at each boundary so the epoch would have taken
// RetargetEpoch*targetBlockTime rounds.
type BitcoinOracle struct {
	targetBlockTime uint64
	// Retargets walk 2015 ancestors; memoize per epoch-final parent.
	cache *lru.Cache[common.Hash, *big.Int]
}

func NewBitcoinOracle(targetBlockTime uint64) *BitcoinOracle {
	cache, _ := lru.New[common.Hash, *big.Int](4096)
	return &BitcoinOracle{
		targetBlockTime: targetBlockTime,
		cache:           cache,
	}
}

func (o *BitcoinOracle) Name() string {
	return ProtocolBitcoin
}

func (o *BitcoinOracle) NextDifficulty(chain ChainReader, parent *core.Block) (*big.Int, error) {
	newHeight := parent.Height + 1
	if newHeight%RetargetEpoch != 0 {
		return new(big.Int).Set(parent.Difficulty), nil
	}
	if d, ok := o.cache.Get(parent.Hash); ok {
		return new(big.Int).Set(d), nil
	}

	// parent is the last block of the closing epoch; the first block of the
	// epoch sits RetargetEpoch-1 links above it.
	first, err := ancestor(chain, parent, RetargetEpoch-1)
	if err != nil {
		return nil, err
	}
	actualTimespan := int64(parent.Round - first.Round)
	if actualTimespan <= 0 {
		actualTimespan = 1
	}
	targetTimespan := int64(RetargetEpoch * o.targetBlockTime)

	old := parent.Difficulty
	next := new(big.Int).Mul(old, big.NewInt(targetTimespan))
	next.Div(next, big.NewInt(actualTimespan))

	upper := new(big.Int).Mul(old, retargetBound)
	lower := new(big.Int).Div(old, retargetBound)
	if next.Cmp(upper) > 0 {
		next.Set(upper)
	} else if next.Cmp(lower) < 0 {
		next.Set(lower)
	}
	if next.Sign() <= 0 {
		next.SetInt64(1)
	}

	o.cache.Add(parent.Hash, new(big.Int).Set(next))
	return next, nil
}
