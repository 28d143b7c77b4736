package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tamaroning/blockchain-sim/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "blockchain-sim",
	Short: "Proof-of-Work consensus simulator",
	Long: `blockchain-sim simulates Bitcoin- and Ethereum-style Proof-of-Work
consensus over a synthetic network to study protocol-level security
properties, in particular k-lead selfish mining under realistic
difficulty-retargeting rules.`,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profileCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log_level", config.DefaultConfig.LogLevel, "logging level (debug, info, warn, error, fatal)")

	rootCmd.PersistentFlags().String("protocol", config.DefaultConfig.Protocol, "protocol family (bitcoin|ethereum)")
	rootCmd.PersistentFlags().String("ethereum-rule", config.DefaultConfig.EthereumRule, "ethereum difficulty rule (homestead|byzantium)")
	rootCmd.PersistentFlags().Uint64("target-block-time", config.DefaultConfig.TargetBlockTime, "target block time in rounds")
	rootCmd.PersistentFlags().Int("num-nodes", config.DefaultConfig.NumNodes, "number of mining nodes")
	rootCmd.PersistentFlags().Uint64("delay", config.DefaultConfig.Delay, "block propagation delay in rounds")
	rootCmd.PersistentFlags().Uint64("end-round", config.DefaultConfig.EndRound, "number of simulated rounds")
	rootCmd.PersistentFlags().Uint64("max-blocks", config.DefaultConfig.MaxBlocks, "stop after this many blocks (0 disables)")
	rootCmd.PersistentFlags().Int64("seed", config.DefaultConfig.Seed, "random seed (negative picks one)")
	rootCmd.PersistentFlags().Float64("attacker-share", config.DefaultConfig.AttackerShare, "hash-power share of a single selfish attacker (0 disables)")
	rootCmd.PersistentFlags().Uint64("selfish-k", config.DefaultConfig.SelfishK, "k parameter of the selfish-mining strategy")
	rootCmd.PersistentFlags().Bool("random-hashrates", false, "draw exponentially distributed hashrates instead of uniform")
	rootCmd.PersistentFlags().String("profile", "", "network profile JSON path (overrides the distribution flags)")
	rootCmd.PersistentFlags().String("output", "", "CSV output path")
	rootCmd.PersistentFlags().String("archive", "", "LevelDB archive directory for the serve command")

	for flagName, key := range map[string]string{
		"log_level":         "log_level",
		"protocol":          "protocol",
		"ethereum-rule":     "ethereum_rule",
		"target-block-time": "target_block_time",
		"num-nodes":         "num_nodes",
		"delay":             "delay",
		"end-round":         "end_round",
		"max-blocks":        "max_blocks",
		"seed":              "seed",
		"attacker-share":    "attacker_share",
		"selfish-k":         "selfish_k",
		"random-hashrates":  "random_hashrates",
		"profile":           "profile",
		"output":            "output",
		"archive":           "archive",
	} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flagName))
	}
}

// initConfig wires the optional config file and BLOCKSIM_* environment
// variables into viper before any command runs.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BLOCKSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file %q: %s\n", viper.ConfigFileUsed(), err)
		}
	}
}
