// Package network models block propagation over a synthetic complete-graph
// network with a constant, configurable delay. Nothing here touches a real
// socket; events are plain values consumed by the scheduler.
package network

import (
	"github.com/ethereum/go-ethereum/common"
)

// Event is one pending delivery: recipient learns about a block at
// DeliveryRound. Events are consumed exactly once.
type Event struct {
	DeliveryRound uint64
	From          int
	Recipient     int
	BlockHash     common.Hash
}

// Model is the broadcast queue. Delivery order is monotonic in round, and
// within a round it is the enqueue order, so a fixed insertion order yields
// a fixed delivery order.
type Model struct {
	numNodes int
	delay    uint64

	queue   map[uint64][]Event
	pending int
	// last round already ticked; deliveries can never be scheduled at or
	// before it.
	ticked int64
}

// NewModel creates a network of numNodes fully connected peers with the
// given propagation delay in rounds.
func NewModel(numNodes int, delay uint64) *Model {
	return &Model{
		numNodes: numNodes,
		delay:    delay,
		queue:    make(map[uint64][]Event),
		ticked:   -1,
	}
}

func (m *Model) NumNodes() int {
	return m.numNodes
}

func (m *Model) Delay() uint64 {
	return m.delay
}

// Broadcast enqueues one delivery of the block to every node except the
// sender, all at round+delay. The sender already knows its own block.
// Deliveries always open a round, so a broadcast issued after the current
// round's tick lands at the next tick at the earliest; zero delay means
// "everyone knows the block at the start of the next round".
func (m *Model) Broadcast(sender int, hash common.Hash, round uint64) {
	at := round + m.delay
	if int64(at) <= m.ticked {
		at = uint64(m.ticked + 1)
	}
	for i := 0; i < m.numNodes; i++ {
		if i == sender {
			continue
		}
		m.queue[at] = append(m.queue[at], Event{
			DeliveryRound: at,
			From:          sender,
			Recipient:     i,
			BlockHash:     hash,
		})
		m.pending++
	}
}

// Tick removes and returns every event due at the given round, in enqueue
// order. Rounds must be ticked in ascending order.
func (m *Model) Tick(round uint64) []Event {
	m.ticked = int64(round)
	due := m.queue[round]
	if due == nil {
		return nil
	}
	delete(m.queue, round)
	m.pending -= len(due)
	return due
}

// Pending is the number of undelivered events, for end-of-run sanity logs.
func (m *Model) Pending() int {
	return m.pending
}
