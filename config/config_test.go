package config

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamaroning/blockchain-sim/consensus"
)

func validConfig() Config {
	return DefaultConfig
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown protocol", func(c *Config) { c.Protocol = "solana" }},
		{"unknown ethereum rule", func(c *Config) { c.EthereumRule = "frontier" }},
		{"no nodes", func(c *Config) { c.NumNodes = 0 }},
		{"no rounds", func(c *Config) { c.EndRound = 0 }},
		{"zero block time", func(c *Config) { c.TargetBlockTime = 0 }},
		{"zero k", func(c *Config) { c.SelfishK = 0 }},
		{"attacker share too large", func(c *Config) { c.AttackerShare = 1 }},
		{"negative attacker share", func(c *Config) { c.AttackerShare = -0.1 }},
		{"attacker without peers", func(c *Config) { c.AttackerShare = 0.5; c.NumNodes = 1 }},
		{"share count mismatch", func(c *Config) { c.Shares = []float64{0.5, 0.5} }},
		{"non-positive share", func(c *Config) {
			c.NumNodes = 2
			c.Shares = []float64{1.5, -0.5}
		}},
		{"shares not normalized", func(c *Config) {
			c.NumNodes = 2
			c.Shares = []float64{0.5, 0.4}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNormalizesProtocolCase(t *testing.T) {
	cfg := validConfig()
	cfg.Protocol = "Bitcoin"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, consensus.ProtocolBitcoin, cfg.Protocol)
}

func TestNodeSpecsUniform(t *testing.T) {
	cfg := validConfig()
	cfg.NumNodes = 4

	specs, err := cfg.NodeSpecs(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, specs, 4)
	for _, s := range specs {
		assert.InDelta(t, 0.25, s.Share, 1e-9)
		assert.Equal(t, StrategyHonest, s.Strategy)
	}
}

func TestNodeSpecsExplicitShares(t *testing.T) {
	cfg := validConfig()
	cfg.NumNodes = 3
	cfg.Shares = []float64{0.5, 0.3, 0.2}
	// Explicit shares win over an attacker allocation.
	cfg.AttackerShare = 0.4

	specs, err := cfg.NodeSpecs(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.InDelta(t, 0.5, specs[0].Share, 1e-9)
	assert.InDelta(t, 0.3, specs[1].Share, 1e-9)
	assert.InDelta(t, 0.2, specs[2].Share, 1e-9)
	for _, s := range specs {
		assert.Equal(t, StrategyHonest, s.Strategy)
	}
}

func TestNodeSpecsAttackerShare(t *testing.T) {
	cfg := validConfig()
	cfg.NumNodes = 5
	cfg.AttackerShare = 0.4
	cfg.SelfishK = 3

	specs, err := cfg.NodeSpecs(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, specs, 5)
	assert.Equal(t, StrategySelfish, specs[0].Strategy)
	assert.Equal(t, uint64(3), specs[0].K)
	assert.InDelta(t, 0.4, specs[0].Share, 1e-9)
	for _, s := range specs[1:] {
		assert.Equal(t, StrategyHonest, s.Strategy)
		assert.InDelta(t, 0.15, s.Share, 1e-9)
	}
}

func TestNodeSpecsRandomHashrates(t *testing.T) {
	cfg := validConfig()
	cfg.NumNodes = 8
	cfg.RandomHashrates = true

	specs, err := cfg.NodeSpecs(rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	require.Len(t, specs, 8)

	total := 0.0
	for _, s := range specs {
		assert.Greater(t, s.Share, 0.0)
		total += s.Share
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	// Same seed, same draw.
	again, err := cfg.NodeSpecs(rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	assert.Equal(t, specs, again)
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, ExampleProfile().Save(path))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 4)

	specs, err := p.NodeSpecs(1)
	require.NoError(t, err)
	require.Len(t, specs, 4)

	// 1000+1000+1000+1500 normalizes the selfish node to a third.
	assert.InDelta(t, 1.0/3, specs[3].Share, 1e-9)
	assert.Equal(t, StrategySelfish, specs[3].Strategy)
	assert.Equal(t, uint64(1), specs[3].K)
	for _, s := range specs[:3] {
		assert.Equal(t, StrategyHonest, s.Strategy)
		assert.InDelta(t, 1000.0/4500, s.Share, 1e-9)
	}
}

func TestProfileDefaultK(t *testing.T) {
	p := &NetworkProfile{
		Nodes: []NodeProfile{
			{Hashrate: 1, Strategy: StrategyProfile{Type: StrategyHonest}},
			{Hashrate: 1, Strategy: StrategyProfile{Type: StrategySelfish}},
		},
	}
	specs, err := p.NodeSpecs(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), specs[1].K)
}

func TestProfileRejections(t *testing.T) {
	cases := []struct {
		name  string
		nodes []NodeProfile
	}{
		{"empty", nil},
		{"non-positive hashrate", []NodeProfile{{Hashrate: 0}}},
		{"unknown strategy", []NodeProfile{{Hashrate: 1, Strategy: StrategyProfile{Type: "parasitic"}}}},
		{"two attackers", []NodeProfile{
			{Hashrate: 1, Strategy: StrategyProfile{Type: StrategySelfish}},
			{Hashrate: 1, Strategy: StrategyProfile{Type: StrategySelfish}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &NetworkProfile{Nodes: tc.nodes}
			_, err := p.NodeSpecs(1)
			assert.Error(t, err)
		})
	}
}

func TestProfileOverridesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, ExampleProfile().Save(path))

	cfg := validConfig()
	cfg.Profile = path
	cfg.NumNodes = 2 // ignored in favor of the profile

	specs, err := cfg.NodeSpecs(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, specs, 4)
}
