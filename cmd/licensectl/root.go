package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "licensectl",
	Short: "Offline tooling for the license sale",
	Long: `licensectl prepares whitelist allowlists and checks tier configurations
before they are handed to the sale owner.

Configuration (in order of priority):
  1. Command-line flags (--json)
  2. Environment variables (LICENSECTL_JSON)
  3. Config file (~/.licensectl.yaml)

Get started:
  $ licensectl tree build allowlist.yaml -o tier1.json
  $ licensectl tree proof tier1.json --address 0x...
  $ licensectl lint tiers.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "licensectl version %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.licensectl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(lintCmd)
}

// initConfig initializes viper configuration.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".licensectl")
		}
	}

	viper.SetEnvPrefix("LICENSECTL")
	viper.AutomaticEnv()

	// A missing config file is fine.
	_ = viper.ReadInConfig()
}

func wantJSON() bool {
	return jsonOut || viper.GetBool("json")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
