package config

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/spf13/viper"

	"github.com/tamaroning/blockchain-sim/consensus"
)

// Strategy names accepted in configs and network profiles.
const (
	StrategyHonest  = "honest"
	StrategySelfish = "selfish"
)

// shareTolerance is how far explicit hash-power shares may drift from
// summing to exactly 1.
const shareTolerance = 1e-6

// Config holds everything one simulation run needs. Tags map viper keys,
// which are in turn bound to CLI flags and BLOCKSIM_* environment variables.
type Config struct {
	// Protocol configuration
	Protocol        string `mapstructure:"protocol"`
	EthereumRule    string `mapstructure:"ethereum_rule"`
	TargetBlockTime uint64 `mapstructure:"target_block_time"` // rounds

	// Network configuration
	NumNodes int    `mapstructure:"num_nodes"`
	Delay    uint64 `mapstructure:"delay"` // rounds

	// Hash-power distribution. Highest precedence first: a JSON profile
	// path, explicit per-node shares, an attacker allocation with the
	// rest uniform, random exponential weights, or plain uniform.
	Profile         string    `mapstructure:"profile"`
	Shares          []float64 `mapstructure:"shares"`
	AttackerShare   float64   `mapstructure:"attacker_share"`
	RandomHashrates bool      `mapstructure:"random_hashrates"`
	SelfishK        uint64    `mapstructure:"selfish_k"`

	// Run control
	EndRound  uint64 `mapstructure:"end_round"`
	MaxBlocks uint64 `mapstructure:"max_blocks"` // 0 disables the cutoff
	Seed      int64  `mapstructure:"seed"`       // negative picks a random seed

	// Output
	Output     string `mapstructure:"output"`  // CSV path, empty disables
	ArchiveDir string `mapstructure:"archive"` // LevelDB dir, empty disables

	LogLevel string `mapstructure:"log_level"`
}

var defaultConfig = Config{
	Protocol:        consensus.ProtocolBitcoin,
	EthereumRule:    consensus.RuleHomestead,
	TargetBlockTime: 600,
	NumNodes:        10,
	Delay:           1,
	AttackerShare:   0,
	SelfishK:        1,
	EndRound:        100000,
	Seed:            -1,
	LogLevel:        "info",
}

// DefaultConfig is exported so the CLI can use the defaults as flag values.
var DefaultConfig = defaultConfig

// LoadConfig materializes the effective configuration from viper (defaults,
// config file, environment, bound flags) and validates it. A malformed
// experiment must not silently run, so any problem here is fatal to startup.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field combination the scheduler relies on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Protocol) {
	case consensus.ProtocolBitcoin, consensus.ProtocolEthereum:
		c.Protocol = strings.ToLower(c.Protocol)
	default:
		return fmt.Errorf("%w: %q", consensus.ErrUnknownProtocol, c.Protocol)
	}
	if _, err := consensus.ParseEthereumRule(c.EthereumRule); err != nil {
		return err
	}
	if c.NumNodes < 1 {
		return fmt.Errorf("config: num_nodes must be at least 1, got %d", c.NumNodes)
	}
	if c.EndRound < 1 {
		return fmt.Errorf("config: end_round must be at least 1, got %d", c.EndRound)
	}
	if c.TargetBlockTime < 1 {
		return fmt.Errorf("config: target_block_time must be at least 1, got %d", c.TargetBlockTime)
	}
	if c.SelfishK < 1 {
		return fmt.Errorf("config: selfish_k must be at least 1, got %d", c.SelfishK)
	}
	if c.AttackerShare < 0 || c.AttackerShare >= 1 {
		return fmt.Errorf("config: attacker_share must be in [0, 1), got %g", c.AttackerShare)
	}
	if c.AttackerShare > 0 && c.NumNodes < 2 {
		return fmt.Errorf("config: an attacker needs at least one honest peer")
	}
	if len(c.Shares) > 0 {
		if len(c.Shares) != c.NumNodes {
			return fmt.Errorf("config: %d shares given for %d nodes", len(c.Shares), c.NumNodes)
		}
		sum := 0.0
		for i, s := range c.Shares {
			if s <= 0 {
				return fmt.Errorf("config: share %d must be positive, got %g", i, s)
			}
			sum += s
		}
		if math.Abs(sum-1) > shareTolerance {
			return fmt.Errorf("config: shares sum to %g, want 1", sum)
		}
	}
	return nil
}

// NodeSpec is the resolved per-node configuration the simulation is built
// from: a normalized hash-power share and a strategy.
type NodeSpec struct {
	Share    float64
	Strategy string
	K        uint64
}

// NodeSpecs resolves the configured hash-power distribution. rng is only
// consumed when random_hashrates is set, mirroring the original experiment
// setup of exponentially distributed weights.
func (c *Config) NodeSpecs(rng *rand.Rand) ([]NodeSpec, error) {
	if c.Profile != "" {
		profile, err := LoadProfile(c.Profile)
		if err != nil {
			return nil, err
		}
		return profile.NodeSpecs(c.SelfishK)
	}

	specs := make([]NodeSpec, c.NumNodes)
	switch {
	case len(c.Shares) > 0:
		for i, s := range c.Shares {
			specs[i] = NodeSpec{Share: s, Strategy: StrategyHonest}
		}
	case c.AttackerShare > 0:
		specs[0] = NodeSpec{Share: c.AttackerShare, Strategy: StrategySelfish, K: c.SelfishK}
		rest := (1 - c.AttackerShare) / float64(c.NumNodes-1)
		for i := 1; i < c.NumNodes; i++ {
			specs[i] = NodeSpec{Share: rest, Strategy: StrategyHonest}
		}
	case c.RandomHashrates:
		weights := make([]float64, c.NumNodes)
		total := 0.0
		for i := range weights {
			weights[i] = rng.ExpFloat64()*10000 + 1
			total += weights[i]
		}
		for i, w := range weights {
			specs[i] = NodeSpec{Share: w / total, Strategy: StrategyHonest}
		}
	default:
		for i := range specs {
			specs[i] = NodeSpec{Share: 1 / float64(c.NumNodes), Strategy: StrategyHonest}
		}
	}
	return specs, nil
}
