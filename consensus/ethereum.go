package consensus

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tamaroning/blockchain-sim/core"
)

// EthereumRule selects the per-block adjustment variant. The simulator does
// not model uncle blocks, so the Byzantium uncle term is pinned to its
// no-uncle value; the rules then differ only in the step divisor.
type EthereumRule uint8

const (
	Homestead EthereumRule = iota
	Byzantium
)

const (
	RuleHomestead = "homestead"
	RuleByzantium = "byzantium"
)

// ParseEthereumRule maps a config string to an adjustment rule.
func ParseEthereumRule(s string) (EthereumRule, error) {
	switch s {
	case RuleHomestead, "":
		return Homestead, nil
	case RuleByzantium:
		return Byzantium, nil
	default:
		return Homestead, fmt.Errorf("%w: ethereum rule %q", ErrUnknownProtocol, s)
	}
}

func (r EthereumRule) String() string {
	if r == Byzantium {
		return RuleByzantium
	}
	return RuleHomestead
}

const (
	difficultyBoundDivisor = 2048
	homesteadStepDivisor   = 10
	byzantiumStepDivisor   = 9
	minSignTerm            = -99

	// The difficulty bomb contributes 2^(height/bombPeriod - 2) once the
	// exponent is non-negative, i.e. from bombActivationHeight on.
	bombPeriod           = 100000
	bombActivationHeight = 2 * bombPeriod
)

// EthereumOracle applies the per-block difficulty adjustment
//
//	next = parent + parent/2048 * max(sign, -99) + bomb(height)
//
// with the sign term derived from the parent's inter-block time, as the
// miner cannot know the pending block's own discovery round in advance.
type EthereumOracle struct {
	rule  EthereumRule
	cache *lru.Cache[common.Hash, *big.Int]
}

func NewEthereumOracle(rule EthereumRule) *EthereumOracle {
	cache, _ := lru.New[common.Hash, *big.Int](4096)
	return &EthereumOracle{
		rule:  rule,
		cache: cache,
	}
}

func (o *EthereumOracle) Name() string {
	return ProtocolEthereum
}

func (o *EthereumOracle) Rule() EthereumRule {
	return o.rule
}

func (o *EthereumOracle) NextDifficulty(chain ChainReader, parent *core.Block) (*big.Int, error) {
	if parent.IsGenesis() {
		return new(big.Int).Set(parent.Difficulty), nil
	}
	if d, ok := o.cache.Get(parent.Hash); ok {
		return new(big.Int).Set(d), nil
	}

	grand, err := ancestor(chain, parent, 1)
	if err != nil {
		return nil, err
	}
	delta := int64(parent.Round - grand.Round)

	divisor := int64(homesteadStepDivisor)
	if o.rule == Byzantium {
		divisor = byzantiumStepDivisor
	}
	sign := 1 - delta/divisor
	if sign < minSignTerm {
		sign = minSignTerm
	}

	step := new(big.Int).Div(parent.Difficulty, big.NewInt(difficultyBoundDivisor))
	step.Mul(step, big.NewInt(sign))

	next := new(big.Int).Add(parent.Difficulty, step)
	next.Add(next, Bomb(parent.Height+1))
	if next.Cmp(MinimumDifficulty) < 0 {
		next.Set(MinimumDifficulty)
	}

	o.cache.Add(parent.Hash, new(big.Int).Set(next))
	return next, nil
}

// Bomb returns the difficulty bomb term for a block at the given height:
// zero before activation, 2^(height/100000 - 2) afterwards.
func Bomb(height uint64) *big.Int {
	period := height / bombPeriod
	if period < 2 {
		return new(big.Int)
	}
	return new(big.Int).Lsh(big.NewInt(1), uint(period-2))
}
