package sim

import (
	"github.com/tamaroning/blockchain-sim/config"
	"github.com/tamaroning/blockchain-sim/core"
)

// StrategyKind enumerates the fixed set of mining strategies. The set is
// small and evaluated every round for every node, so it is a tagged variant
// dispatched in one place rather than an open interface.
type StrategyKind uint8

const (
	Honest StrategyKind = iota
	SelfishKLead
)

// Strategy bundles the kind with the selfish miner's private state: the
// ordered withheld branch and the highest public-chain height it has seen.
type Strategy struct {
	Kind StrategyKind
	K    uint64

	withheld     []*core.Block // oldest first, above the last published height
	publicHeight uint64
}

func NewStrategy(spec config.NodeSpec) *Strategy {
	s := &Strategy{Kind: Honest}
	if spec.Strategy == config.StrategySelfish {
		s.Kind = SelfishKLead
		s.K = spec.K
	}
	return s
}

func (s *Strategy) Name() string {
	if s.Kind == SelfishKLead {
		return config.StrategySelfish
	}
	return config.StrategyHonest
}

// Withheld returns the current private branch beyond the public chain.
func (s *Strategy) Withheld() []*core.Block {
	return s.withheld
}

// Lead is the private branch's height advantage over the best public chain
// the attacker knows of.
func (s *Strategy) Lead(privateHeight uint64) int64 {
	return int64(privateHeight) - int64(s.publicHeight)
}

// Withhold records a freshly mined private block. A selfish miner never
// publishes at discovery time; release decisions happen on reception.
func (s *Strategy) Withhold(b *core.Block) {
	s.withheld = append(s.withheld, b)
}

// ApplyDelivery runs the k-lead release rules for a public block that just
// reached the attacker, given the current private tip height. It returns the
// withheld blocks to broadcast now (oldest first) and whether the private
// branch is abandoned in favor of the public chain.
//
// With lead L measured before the delivery:
//
//	L <= 0       the public chain caught up elsewhere; reset the attack
//	L == 1       the new block ties or will tie the private tip; release the
//	             whole private branch to contest the public tip
//	1 < L <= k   keep the lead hidden
//	L > k        release the L-k oldest blocks, reclaiming the public tip
//	             while holding the lead near k
func (s *Strategy) ApplyDelivery(b *core.Block, privateHeight uint64) (release []*core.Block, abandon bool) {
	if s.Kind != SelfishKLead {
		return nil, false
	}
	if b.Height <= s.publicHeight {
		// A stale fork block; it cannot move the public tip.
		return nil, false
	}
	lead := int64(privateHeight) - int64(s.publicHeight)
	s.publicHeight = b.Height

	switch {
	case lead <= 0:
		s.withheld = nil
		return nil, true
	case lead == 1:
		release = s.withheld
		s.withheld = nil
	case lead <= int64(s.K):
		return nil, false
	default:
		n := lead - int64(s.K)
		if n > int64(len(s.withheld)) {
			n = int64(len(s.withheld))
		}
		release = s.withheld[:n]
		s.withheld = s.withheld[n:]
	}
	for _, blk := range release {
		if blk.Height > s.publicHeight {
			s.publicHeight = blk.Height
		}
	}
	return release, false
}
