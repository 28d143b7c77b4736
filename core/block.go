package core

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Visibility tags a block with how it entered the world: mined by an honest
// node (public) or withheld by an attacker at creation time (private). The
// tag is fixed at creation and does not change when a withheld block is
// later released.
type Visibility uint8

const (
	Public Visibility = iota
	Private
)

func (v Visibility) String() string {
	if v == Private {
		return "private"
	}
	return "public"
}

// GenesisMiner is the miner id recorded on the genesis block.
const GenesisMiner = -1

// Block is a single simulated block. All fields are set at creation and
// never change; the tree-owned bookkeeping (sequence number, cumulative
// work, publication state) lives in BlockTree.
type Block struct {
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parentHash"`
	Height     uint64      `json:"height"`
	Round      uint64      `json:"round"`
	Difficulty *big.Int    `json:"difficulty"`
	Miner      int         `json:"miner"`
	Visibility Visibility  `json:"visibility"`
}

// NewBlock builds a block on top of parent, discovered by miner at the given
// round. The hash commits to every header field, so two distinct discoveries
// can never collide.
func NewBlock(parent *Block, miner int, round uint64, difficulty *big.Int, visibility Visibility) *Block {
	b := &Block{
		ParentHash: parent.Hash,
		Height:     parent.Height + 1,
		Round:      round,
		Difficulty: new(big.Int).Set(difficulty),
		Miner:      miner,
		Visibility: visibility,
	}
	b.Hash = b.computeHash()
	return b
}

// GenesisBlock creates the height-0 block every simulation starts from.
func GenesisBlock(difficulty *big.Int) *Block {
	b := &Block{
		ParentHash: common.Hash{},
		Height:     0,
		Round:      0,
		Difficulty: new(big.Int).Set(difficulty),
		Miner:      GenesisMiner,
		Visibility: Public,
	}
	b.Hash = b.computeHash()
	return b
}

func (b *Block) IsGenesis() bool {
	return b.Height == 0
}

func (b *Block) computeHash() common.Hash {
	var buf [8]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(b.ParentHash[:])
	binary.BigEndian.PutUint64(buf[:], b.Height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], b.Round)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(int64(b.Miner)))
	h.Write(buf[:])
	h.Write(b.Difficulty.Bytes())
	var out common.Hash
	h.Sum(out[:0])
	return out
}

func (b *Block) String() string {
	return fmt.Sprintf("{Hash: %s, Parent: %s, Height: %d, Round: %d, Difficulty: %s, Miner: %d, Visibility: %s}",
		b.Hash.Hex(), b.ParentHash.Hex(), b.Height, b.Round, b.Difficulty, b.Miner, b.Visibility)
}
