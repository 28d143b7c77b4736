package sim

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/tamaroning/blockchain-sim/config"
	"github.com/tamaroning/blockchain-sim/consensus"
	"github.com/tamaroning/blockchain-sim/core"
	"github.com/tamaroning/blockchain-sim/logger"
	"github.com/tamaroning/blockchain-sim/network"
	"github.com/tamaroning/blockchain-sim/stats"
)

// Scheduler owns the entire state of one run: block tree, network queue,
// nodes, and the seeded random source. Nothing is process-global, so
// independent parameter sweeps can run side by side without contamination.
type Scheduler struct {
	cfg    *config.Config
	oracle consensus.Oracle
	tree   *core.BlockTree
	net    *network.Model
	nodes  []*Node
	sink   stats.Sink
	rng    *rand.Rand

	seed     int64
	attacker int // index into nodes, core.NoAttacker if everyone is honest
	round    uint64

	// received collects, per node, the public blocks delivered in the
	// current round; the release phase consumes it.
	received [][]*core.Block

	baseDifficulty float64
}

// NewScheduler validates nothing itself: cfg must already have passed
// config validation. sink may be stats.Discard.
func NewScheduler(cfg *config.Config, sink stats.Sink) (*Scheduler, error) {
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	specs, err := cfg.NodeSpecs(rng)
	if err != nil {
		return nil, err
	}

	attacker := core.NoAttacker
	for i, spec := range specs {
		if spec.Strategy == config.StrategySelfish {
			if attacker != core.NoAttacker {
				return nil, fmt.Errorf("sim: multiple selfish nodes configured")
			}
			attacker = i
		}
	}

	rule, err := consensus.ParseEthereumRule(cfg.EthereumRule)
	if err != nil {
		return nil, err
	}
	oracle, err := consensus.NewOracle(cfg.Protocol, cfg.TargetBlockTime, rule)
	if err != nil {
		return nil, err
	}

	genesis := core.GenesisBlock(consensus.GenesisDifficulty())
	tree := core.NewBlockTree(genesis, attacker)

	nodes := make([]*Node, len(specs))
	for i, spec := range specs {
		nodes[i] = NewNode(i, spec, genesis)
	}

	base, _ := new(big.Float).SetInt(consensus.MinimumDifficulty).Float64()

	return &Scheduler{
		cfg:            cfg,
		oracle:         oracle,
		tree:           tree,
		net:            network.NewModel(len(specs), cfg.Delay),
		nodes:          nodes,
		sink:           sink,
		rng:            rng,
		seed:           seed,
		attacker:       attacker,
		received:       make([][]*core.Block, len(specs)),
		baseDifficulty: base,
	}, nil
}

// Seed returns the seed actually used, so randomized runs can be replayed.
func (s *Scheduler) Seed() int64 {
	return s.seed
}

// Tree exposes the block store for post-run analysis.
func (s *Scheduler) Tree() *core.BlockTree {
	return s.tree
}

func (s *Scheduler) Nodes() []*Node {
	return s.nodes
}

// Run drives rounds 0..end_round in fixed order: deliver queued messages,
// mine in ascending node id order, apply release logic, repeat. The loop is
// single-threaded and never retries: any error is a modeling bug and aborts
// the run.
func (s *Scheduler) Run() error {
	logger.Infof("Starting simulation: protocol=%s nodes=%d endRound=%d delay=%d seed=%d",
		s.oracle.Name(), len(s.nodes), s.cfg.EndRound, s.cfg.Delay, s.seed)

	for s.round = 0; s.round < s.cfg.EndRound; s.round++ {
		if err := s.deliver(); err != nil {
			return err
		}
		if err := s.mine(); err != nil {
			return err
		}
		if err := s.release(); err != nil {
			return err
		}
		if s.cfg.MaxBlocks > 0 && uint64(s.tree.Len()) >= s.cfg.MaxBlocks {
			logger.Infof("Reached max_blocks=%d at round %d", s.cfg.MaxBlocks, s.round)
			break
		}
	}

	logger.Infof("Simulation finished: %d blocks, main chain height %d, %d deliveries still in flight",
		s.tree.Len(), s.tree.Tip(core.PublicView).Height, s.net.Pending())
	return nil
}

// deliver consumes every network event due this round. Each delivery makes
// the block part of the public projection and lets the recipient reconsider
// its preferred tip.
func (s *Scheduler) deliver() error {
	for i := range s.received {
		s.received[i] = s.received[i][:0]
	}
	for _, ev := range s.net.Tick(s.round) {
		if err := s.tree.MarkPublished(ev.BlockHash); err != nil {
			return fmt.Errorf("sim: delivery at round %d: %w", s.round, err)
		}
		b, ok := s.tree.BlockByHash(ev.BlockHash)
		if !ok {
			return fmt.Errorf("sim: delivery of unknown block %s", ev.BlockHash.Hex())
		}
		node := s.nodes[ev.Recipient]
		node.tip = s.tree.Prefer(node.tip, b)
		s.received[ev.Recipient] = append(s.received[ev.Recipient], b)
	}
	return nil
}

// mine gives every node, in id order, one discovery attempt atop its
// preferred tip. The success probability is the node's hash-power share
// scaled by how much harder the current target is than the genesis one.
func (s *Scheduler) mine() error {
	for _, node := range s.nodes {
		parent := node.tip
		difficulty, err := s.oracle.NextDifficulty(s.tree, parent)
		if err != nil {
			return fmt.Errorf("sim: difficulty atop %s: %w", parent.Hash.Hex(), err)
		}

		p := s.probability(node, difficulty)
		if s.rng.Float64() >= p {
			continue
		}

		visibility := core.Public
		if node.IsAttacker() {
			visibility = core.Private
		}
		b := core.NewBlock(parent, node.ID, s.round, difficulty, visibility)
		if err := s.tree.Insert(b); err != nil {
			return fmt.Errorf("sim: insert at round %d: %w", s.round, err)
		}
		if err := s.sink.Record(stats.FromBlock(b)); err != nil {
			return fmt.Errorf("sim: record block %s: %w", b.Hash.Hex(), err)
		}
		node.tip = b

		if node.IsAttacker() {
			node.Strategy.Withhold(b)
			logger.Debugf("round %d: node %d withheld block at height %d (lead %d)",
				s.round, node.ID, b.Height, node.Strategy.Lead(b.Height))
		} else {
			s.net.Broadcast(node.ID, b.Hash, s.round)
			logger.Debugf("round %d: node %d mined block at height %d", s.round, node.ID, b.Height)
		}
	}
	return nil
}

func (s *Scheduler) probability(node *Node, difficulty *big.Int) float64 {
	d, _ := new(big.Float).SetInt(difficulty).Float64()
	p := node.Share * s.baseDifficulty / (d * float64(s.cfg.TargetBlockTime))
	if p > 1 {
		p = 1
	}
	return p
}

// release runs the attacker's k-lead decision for every public block it
// received this round, broadcasting any part of the private branch the
// strategy gives up.
func (s *Scheduler) release() error {
	if s.attacker == core.NoAttacker {
		return nil
	}
	node := s.nodes[s.attacker]
	for _, b := range s.received[s.attacker] {
		released, abandon := node.Strategy.ApplyDelivery(b, node.tip.Height)
		if abandon {
			// The delivered block need not be the fork-choice winner; a
			// taller fork can still carry less cumulative work.
			node.tip = s.tree.Prefer(node.tip, b)
			logger.Debugf("round %d: attacker abandons private branch, mining on height %d", s.round, node.tip.Height)
			continue
		}
		for _, blk := range released {
			s.net.Broadcast(node.ID, blk.Hash, s.round)
			logger.Debugf("round %d: attacker releases withheld block at height %d", s.round, blk.Height)
		}
	}
	return nil
}

// Stakes describes all nodes for the fairness report.
func (s *Scheduler) Stakes() []stats.NodeStake {
	stakes := make([]stats.NodeStake, len(s.nodes))
	for i, n := range s.nodes {
		id, share, strategy := n.Stake()
		stakes[i] = stats.NodeStake{ID: id, Share: share, Strategy: strategy}
	}
	return stakes
}

// Summary aggregates the run into the reportable numbers, canonical chain
// taken from the public projection.
func (s *Scheduler) Summary() *stats.Summary {
	tip := s.tree.Tip(core.PublicView)
	main := s.tree.MainChain(core.PublicView)

	avg := 0.0
	if tip.Height > 0 {
		avg = float64(tip.Round) / float64(tip.Height)
	}
	return &stats.Summary{
		Protocol:          s.oracle.Name(),
		Seed:              s.seed,
		EndRound:          s.cfg.EndRound,
		TotalBlocks:       s.tree.Len(),
		MainChainLength:   tip.Height,
		FinalDifficulty:   tip.Difficulty,
		AvgRoundsPerBlock: avg,
		DelayRatio:        float64(s.cfg.Delay) / float64(s.cfg.TargetBlockTime),
		Fairness:          stats.Fairness(s.Stakes(), main),
	}
}

// LogSummary writes the summary and the fairness ranking through the logger,
// the same shape the research scripts expect to eyeball.
func (s *Scheduler) LogSummary(sum *stats.Summary) {
	logger.Info("Simulation summary:")
	logger.Infof("- protocol: %s (seed %d)", sum.Protocol, sum.Seed)
	logger.Infof("- total blocks: %d", sum.TotalBlocks)
	logger.Infof("- main chain height: %d", sum.MainChainLength)
	logger.Infof("- final difficulty: %s", sum.FinalDifficulty)
	logger.Infof("- avg rounds/block: %.2f", sum.AvgRoundsPerBlock)
	logger.Infof("- delay/target ratio: %.2f", sum.DelayRatio)
	logger.Info("Mining fairness (reward share / hash share):")
	for rank, row := range sum.Fairness {
		logger.Infof("%3d | node %3d | reward %6.2f%% | hash %6.2f%% | fairness %.4f | %s",
			rank+1, row.NodeID, row.RewardShare*100, row.HashShare*100, row.Fairness, row.Strategy)
	}
}
