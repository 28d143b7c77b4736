package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// NodeProfile configures a single node in a network profile: a hash-power
// weight (normalized over all nodes) and a mining strategy.
type NodeProfile struct {
	Hashrate float64         `json:"hashrate"`
	Strategy StrategyProfile `json:"strategy"`
}

// StrategyProfile is the tagged strategy object of the profile format.
// K is only meaningful for the selfish strategy; zero falls back to the
// run-level selfish_k setting.
type StrategyProfile struct {
	Type string `json:"type"`
	K    uint64 `json:"k,omitempty"`
}

// NetworkProfile is the JSON document describing all nodes of a run.
//
//	{
//	  "nodes": [
//	    {"hashrate": 1000, "strategy": {"type": "honest"}},
//	    {"hashrate": 500,  "strategy": {"type": "selfish", "k": 2}}
//	  ]
//	}
type NetworkProfile struct {
	Nodes []NodeProfile `json:"nodes"`
}

// LoadProfile reads and parses a network profile file.
func LoadProfile(path string) (*NetworkProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile %s: %w", path, err)
	}
	var p NetworkProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	return &p, nil
}

// Save writes the profile as indented JSON, the format LoadProfile accepts.
func (p *NetworkProfile) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// NodeSpecs normalizes the profile weights into shares and validates the
// strategy assignment. defaultK applies to selfish entries without an
// explicit k.
func (p *NetworkProfile) NodeSpecs(defaultK uint64) ([]NodeSpec, error) {
	if len(p.Nodes) == 0 {
		return nil, fmt.Errorf("config: profile has no nodes")
	}
	total := 0.0
	for i, n := range p.Nodes {
		if n.Hashrate <= 0 {
			return nil, fmt.Errorf("config: profile node %d has non-positive hashrate %g", i, n.Hashrate)
		}
		total += n.Hashrate
	}

	specs := make([]NodeSpec, len(p.Nodes))
	attackers := 0
	for i, n := range p.Nodes {
		spec := NodeSpec{Share: n.Hashrate / total}
		switch n.Strategy.Type {
		case StrategyHonest, "":
			spec.Strategy = StrategyHonest
		case StrategySelfish:
			spec.Strategy = StrategySelfish
			spec.K = n.Strategy.K
			if spec.K == 0 {
				spec.K = defaultK
			}
			attackers++
		default:
			return nil, fmt.Errorf("config: profile node %d has unknown strategy %q", i, n.Strategy.Type)
		}
		specs[i] = spec
	}
	// The dual public/private chain view is built for a single adversary.
	if attackers > 1 {
		return nil, fmt.Errorf("config: at most one selfish node is supported, profile has %d", attackers)
	}
	return specs, nil
}

// ExampleProfile returns the documented starter profile written by the
// profile command.
func ExampleProfile() *NetworkProfile {
	return &NetworkProfile{
		Nodes: []NodeProfile{
			{Hashrate: 1000, Strategy: StrategyProfile{Type: StrategyHonest}},
			{Hashrate: 1000, Strategy: StrategyProfile{Type: StrategyHonest}},
			{Hashrate: 1000, Strategy: StrategyProfile{Type: StrategyHonest}},
			{Hashrate: 1500, Strategy: StrategyProfile{Type: StrategySelfish, K: 1}},
		},
	}
}
