// Package sim contains the mining agents and the round-based scheduler that
// drives one simulation run.
package sim

import (
	"github.com/tamaroning/blockchain-sim/config"
	"github.com/tamaroning/blockchain-sim/core"
)

// Node is one mining agent: a hash-power share and a strategy. Its preferred
// tip is the block it currently mines on, the public fork-choice winner for
// honest nodes and the private one for the attacker.
type Node struct {
	ID       int
	Share    float64
	Strategy *Strategy

	tip *core.Block
}

func NewNode(id int, spec config.NodeSpec, genesis *core.Block) *Node {
	return &Node{
		ID:       id,
		Share:    spec.Share,
		Strategy: NewStrategy(spec),
		tip:      genesis,
	}
}

// Tip is the block this node currently mines on.
func (n *Node) Tip() *core.Block {
	return n.tip
}

func (n *Node) IsAttacker() bool {
	return n.Strategy.Kind == SelfishKLead
}

// Stake describes the node for reporting.
func (n *Node) Stake() (id int, share float64, strategy string) {
	return n.ID, n.Share, n.Strategy.Name()
}
