// Package stats receives one record per produced block and fans it out to
// the configured sinks. The record stream is the core's sole externally
// observable artifact; offline tooling reconstructs everything from it,
// including which blocks were withheld.
package stats

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tamaroning/blockchain-sim/core"
)

// Record describes one produced block, public or private, emitted at the
// moment of creation.
type Record struct {
	Round      uint64      `json:"round"`
	Height     uint64      `json:"height"`
	Difficulty *big.Int    `json:"difficulty"`
	Miner      int         `json:"miner"`
	Visibility string      `json:"visibility"`
	BlockHash  common.Hash `json:"blockHash"`
	ParentHash common.Hash `json:"parentHash"`
}

// FromBlock converts a block into its output record.
func FromBlock(b *core.Block) *Record {
	return &Record{
		Round:      b.Round,
		Height:     b.Height,
		Difficulty: new(big.Int).Set(b.Difficulty),
		Miner:      b.Miner,
		Visibility: b.Visibility.String(),
		BlockHash:  b.Hash,
		ParentHash: b.ParentHash,
	}
}

// Sink consumes block records. Implementations must tolerate being closed
// exactly once after the last record.
type Sink interface {
	Record(*Record) error
	Close() error
}

// MultiSink forwards every record to each child sink in order.
type MultiSink []Sink

func (m MultiSink) Record(r *Record) error {
	for _, s := range m {
		if err := s.Record(r); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Discard drops every record. Useful for parameter sweeps that only read
// the in-memory tree afterwards.
type Discard struct{}

func (Discard) Record(*Record) error { return nil }
func (Discard) Close() error         { return nil }
