package stats

import (
	"math/big"
	"sort"

	"github.com/tamaroning/blockchain-sim/core"
)

// Summary captures the headline numbers of a finished run.
type Summary struct {
	Protocol          string        `json:"protocol"`
	Seed              int64         `json:"seed"`
	EndRound          uint64        `json:"endRound"`
	TotalBlocks       int           `json:"totalBlocks"`
	MainChainLength   uint64        `json:"mainChainLength"`
	FinalDifficulty   *big.Int      `json:"finalDifficulty"`
	AvgRoundsPerBlock float64       `json:"avgRoundsPerBlock"`
	DelayRatio        float64       `json:"delayRatio"`
	Fairness          []FairnessRow `json:"fairness"`
}

// NodeStake identifies a node for reporting purposes.
type NodeStake struct {
	ID       int     `json:"id"`
	Share    float64 `json:"share"`
	Strategy string  `json:"strategy"`
}

// FairnessRow compares one node's canonical-chain reward share against its
// hash-power share. Fairness 1.0 means the node earns exactly its share;
// a successful selfish miner pushes it above 1.
type FairnessRow struct {
	NodeID      int     `json:"nodeId"`
	Strategy    string  `json:"strategy"`
	Blocks      uint64  `json:"blocks"`
	RewardShare float64 `json:"rewardShare"`
	HashShare   float64 `json:"hashShare"`
	Fairness    float64 `json:"fairness"`
}

// Fairness counts canonical-chain blocks per miner and ranks nodes by
// reward-share/hash-share, mirroring the mining-fairness report of the
// research workflow this simulator feeds.
func Fairness(stakes []NodeStake, mainChain []*core.Block) []FairnessRow {
	rewards := make(map[int]uint64, len(stakes))
	var total uint64
	for _, b := range mainChain {
		if b.Miner == core.GenesisMiner {
			continue
		}
		rewards[b.Miner]++
		total++
	}

	rows := make([]FairnessRow, 0, len(stakes))
	for _, st := range stakes {
		row := FairnessRow{
			NodeID:    st.ID,
			Strategy:  st.Strategy,
			Blocks:    rewards[st.ID],
			HashShare: st.Share,
		}
		if total > 0 {
			row.RewardShare = float64(row.Blocks) / float64(total)
		}
		if st.Share > 0 {
			row.Fairness = row.RewardShare / st.Share
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Fairness > rows[j].Fairness
	})
	return rows
}
