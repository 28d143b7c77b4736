package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrOrphanBlock is returned when a block references a parent the tree
	// has never seen. The tree never holds dangling references.
	ErrOrphanBlock = errors.New("blocktree: unknown parent")
	// ErrDuplicateBlock is returned when the same hash is inserted twice.
	ErrDuplicateBlock = errors.New("blocktree: duplicate block")
	// ErrHeightMismatch is returned when a block's height is not exactly
	// one above its parent.
	ErrHeightMismatch = errors.New("blocktree: height mismatch")
	// ErrInvalidDifficulty is returned for a missing or non-positive
	// block difficulty.
	ErrInvalidDifficulty = errors.New("blocktree: invalid difficulty")
	// ErrUnknownBlock is returned when a hash is not present in the tree.
	ErrUnknownBlock = errors.New("blocktree: unknown block")
)

// View selects one of the two visibility-filtered projections over the
// block store. Honest participants see PublicView: blocks that have been
// delivered through the network. The attacker sees PrivateView: everything
// public plus its own undisclosed blocks.
type View uint8

const (
	PublicView View = iota
	PrivateView
)

// NoAttacker disables the private projection; both views are then identical.
const NoAttacker = -1

type entry struct {
	block     *Block
	seq       uint64
	work      *uint256.Int
	published bool
}

// BlockTree exclusively owns every block record of one simulation run. It is
// append-only; fork-choice is cumulative work with ties broken by earliest
// creation order, which yields a deterministic total order for a fixed seed
// and fixed node iteration order.
type BlockTree struct {
	entries  map[common.Hash]*entry
	order    []*entry
	genesis  *Block
	attacker int
	tips     [2]*entry
}

// NewBlockTree creates a tree rooted at genesis. attackerID names the single
// node whose unpublished blocks are visible in PrivateView; pass NoAttacker
// when every participant is honest.
func NewBlockTree(genesis *Block, attackerID int) *BlockTree {
	root := &entry{
		block:     genesis,
		seq:       0,
		work:      uint256.MustFromBig(genesis.Difficulty),
		published: true,
	}
	t := &BlockTree{
		entries:  map[common.Hash]*entry{genesis.Hash: root},
		order:    []*entry{root},
		genesis:  genesis,
		attacker: attackerID,
	}
	t.tips[PublicView] = root
	t.tips[PrivateView] = root
	return t
}

// Insert validates and records a freshly discovered block. Any error here is
// a modeling bug and must abort the run: continuing would fabricate
// statistics from a corrupted state.
func (t *BlockTree) Insert(b *Block) error {
	if _, ok := t.entries[b.Hash]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, b.Hash.Hex())
	}
	parent, ok := t.entries[b.ParentHash]
	if !ok {
		return fmt.Errorf("%w: block %s references %s", ErrOrphanBlock, b.Hash.Hex(), b.ParentHash.Hex())
	}
	if b.Height != parent.block.Height+1 {
		return fmt.Errorf("%w: block %s has height %d atop parent height %d",
			ErrHeightMismatch, b.Hash.Hex(), b.Height, parent.block.Height)
	}
	if b.Difficulty == nil || b.Difficulty.Sign() <= 0 {
		return fmt.Errorf("%w: block %s", ErrInvalidDifficulty, b.Hash.Hex())
	}

	e := &entry{
		block: b,
		seq:   uint64(len(t.order)),
		work:  new(uint256.Int).Add(parent.work, uint256.MustFromBig(b.Difficulty)),
	}
	t.entries[b.Hash] = e
	t.order = append(t.order, e)

	if t.visible(e, PrivateView) {
		t.tips[PrivateView] = t.better(t.tips[PrivateView], e)
	}
	return nil
}

// MarkPublished records that a block has been delivered through the network
// and therefore entered the public projection. Safe to call once per
// recipient; only the first call changes state.
func (t *BlockTree) MarkPublished(hash common.Hash) error {
	e, ok := t.entries[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Hex())
	}
	if e.published {
		return nil
	}
	e.published = true
	t.tips[PublicView] = t.better(t.tips[PublicView], e)
	t.tips[PrivateView] = t.better(t.tips[PrivateView], e)
	return nil
}

func (t *BlockTree) visible(e *entry, v View) bool {
	if e.published {
		return true
	}
	return v == PrivateView && t.attacker != NoAttacker && e.block.Miner == t.attacker
}

// better is the fork-choice rule: maximal cumulative work, ties broken by
// earliest creation sequence.
func (t *BlockTree) better(a, b *entry) *entry {
	switch a.work.Cmp(b.work) {
	case -1:
		return b
	case 1:
		return a
	}
	if b.seq < a.seq {
		return b
	}
	return a
}

// Prefer applies the fork-choice rule to two blocks already in the tree.
// Used by nodes to maintain their locally preferred tip as blocks arrive.
func (t *BlockTree) Prefer(a, b *Block) *Block {
	ea, ok := t.entries[a.Hash]
	if !ok {
		return b
	}
	eb, ok := t.entries[b.Hash]
	if !ok {
		return a
	}
	return t.better(ea, eb).block
}

// Tip returns the canonical head of the given projection.
func (t *BlockTree) Tip(v View) *Block {
	return t.tips[v].block
}

// Genesis returns the root block.
func (t *BlockTree) Genesis() *Block {
	return t.genesis
}

// BlockByHash looks up a block record.
func (t *BlockTree) BlockByHash(hash common.Hash) (*Block, bool) {
	e, ok := t.entries[hash]
	if !ok {
		return nil, false
	}
	return e.block, true
}

// CumulativeWork returns the sum of difficulties from genesis to the block.
func (t *BlockTree) CumulativeWork(hash common.Hash) (*uint256.Int, bool) {
	e, ok := t.entries[hash]
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(e.work), true
}

// Published reports whether the block is part of the public projection.
func (t *BlockTree) Published(hash common.Hash) bool {
	e, ok := t.entries[hash]
	return ok && e.published
}

// AncestorChain returns the ordered sequence of blocks from genesis to the
// given block, inclusive.
func (t *BlockTree) AncestorChain(hash common.Hash) ([]*Block, error) {
	e, ok := t.entries[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Hex())
	}
	chain := make([]*Block, e.block.Height+1)
	b := e.block
	for {
		chain[b.Height] = b
		if b.IsGenesis() {
			break
		}
		parent, ok := t.entries[b.ParentHash]
		if !ok {
			return nil, fmt.Errorf("%w: block %s references %s", ErrOrphanBlock, b.Hash.Hex(), b.ParentHash.Hex())
		}
		b = parent.block
	}
	return chain, nil
}

// MainChain returns the canonical chain of the given projection, genesis
// first.
func (t *BlockTree) MainChain(v View) []*Block {
	chain, err := t.AncestorChain(t.Tip(v).Hash)
	if err != nil {
		// The tip always has a complete ancestry; Insert guarantees it.
		panic(err)
	}
	return chain
}

// Blocks returns every block in creation order.
func (t *BlockTree) Blocks() []*Block {
	out := make([]*Block, len(t.order))
	for i, e := range t.order {
		out[i] = e.block
	}
	return out
}

// Len is the total number of blocks, genesis included.
func (t *BlockTree) Len() int {
	return len(t.order)
}
