package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bidon15/licensesale/internal/tierfile"
)

var lintStrict bool

var lintCmd = &cobra.Command{
	Use:   "lint <tiers>",
	Short: "Check a tier configuration file for likely mistakes",
	Long: `Check a YAML or JSON tier file before its settings are applied:

  public:
    1: {price: "100000000", max_per_tier: 500, max_per_user: 5, start: 1735689600, end: 1738368000}
  whitelist:
    1: {merkle_root: "0x...", max_per_tier: 100, start: 1735000000, end: 1735689599}

Findings are warnings. The sale accepts any configuration; use --strict to
fail when anything is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runLint,
}

func init() {
	lintCmd.Flags().BoolVar(&lintStrict, "strict", false, "exit with an error when there are warnings")
}

func runLint(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read tier file: %w", err)
	}
	f, err := tierfile.Parse(data)
	if err != nil {
		return err
	}
	warnings := tierfile.Lint(f)

	if wantJSON() {
		if warnings == nil {
			warnings = []tierfile.Warning{}
		}
		if err := printJSON(cmd.OutOrStdout(), warnings); err != nil {
			return err
		}
	} else if len(warnings) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "OK: %d public and %d whitelist tiers\n", len(f.Public), len(f.Whitelist))
	} else {
		for _, w := range warnings {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}
	}

	if lintStrict && len(warnings) > 0 {
		return fmt.Errorf("%d warnings", len(warnings))
	}
	return nil
}
