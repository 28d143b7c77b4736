package consensus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tamaroning/blockchain-sim/core"
)

// Protocol families supported by the simulator.
const (
	ProtocolBitcoin  = "bitcoin"
	ProtocolEthereum = "ethereum"
)

var (
	// ErrMissingAncestor means an oracle could not walk the ancestor chain
	// it was asked about. The tree forbids dangling parents, so hitting
	// this is a programming-logic error, never a runtime condition.
	ErrMissingAncestor = errors.New("consensus: missing ancestor")
	// ErrUnknownProtocol is a startup error for a protocol name outside
	// the supported set.
	ErrUnknownProtocol = errors.New("consensus: unknown protocol")
)

// MinimumDifficulty is the difficulty of the genesis block and the floor the
// oracles never adjust below. The value is Ethereum's protocol minimum; both
// families share it here so hash-power scaling is uniform across protocols.
var MinimumDifficulty = big.NewInt(131072)

// GenesisDifficulty returns a fresh copy of the starting difficulty.
func GenesisDifficulty() *big.Int {
	return new(big.Int).Set(MinimumDifficulty)
}

// ChainReader is the read-only slice of the block tree the oracles need for
// ancestor walks.
type ChainReader interface {
	BlockByHash(common.Hash) (*core.Block, bool)
}

// Oracle computes the required difficulty for the block that would extend
// parent. Implementations are pure functions of the ancestor chain, so two
// competing branches compute difficulty independently and consistently.
type Oracle interface {
	Name() string
	NextDifficulty(chain ChainReader, parent *core.Block) (*big.Int, error)
}

// NewOracle builds the oracle for a protocol family. targetBlockTime is in
// rounds and only drives the Bitcoin retarget; ethRule selects the Ethereum
// adjustment variant.
func NewOracle(protocol string, targetBlockTime uint64, ethRule EthereumRule) (Oracle, error) {
	switch protocol {
	case ProtocolBitcoin:
		return NewBitcoinOracle(targetBlockTime), nil
	case ProtocolEthereum:
		return NewEthereumOracle(ethRule), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}
}

// ancestor walks n parent links back from b.
func ancestor(chain ChainReader, b *core.Block, n uint64) (*core.Block, error) {
	for i := uint64(0); i < n; i++ {
		if b.IsGenesis() {
			return nil, fmt.Errorf("%w: walked past genesis from height %d", ErrMissingAncestor, b.Height+i)
		}
		parent, ok := chain.BlockByHash(b.ParentHash)
		if !ok {
			return nil, fmt.Errorf("%w: block %s references %s", ErrMissingAncestor, b.Hash.Hex(), b.ParentHash.Hex())
		}
		if parent.Height+1 != b.Height {
			return nil, fmt.Errorf("%w: height gap between %s (%d) and %s (%d)",
				ErrMissingAncestor, b.Hash.Hex(), b.Height, parent.Hash.Hex(), parent.Height)
		}
		b = parent
	}
	return b, nil
}
