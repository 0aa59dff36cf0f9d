package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Bidon15/licensesale/internal/merkle"
)

var (
	treeOut     string
	treeAddress string
	treeRoot    string
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Build and check whitelist merkle trees",
	Long: `Allowlist merkle tree commands.

A tree commits to (address, max_allocation) pairs. Publish its root with the
whitelist admin setter and hand each claimant their proof.

Examples:
  licensectl tree build allowlist.yaml -o tier1.json
  licensectl tree proof tier1.json --address 0x...
  licensectl tree verify tier1.json --root 0x...`,
}

var treeBuildCmd = &cobra.Command{
	Use:   "build <allowlist>",
	Short: "Build a tree and its proofs from an allowlist",
	Long: `Build a merkle tree from a YAML or JSON allowlist:

  allowlist:
    - address: 0x...
      max_allocation: 10

The proof dump is written to --out, or to stdout when no file is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runTreeBuild,
}

var treeProofCmd = &cobra.Command{
	Use:   "proof <dump>",
	Short: "Print the proof of one claimant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreeProof,
}

var treeVerifyCmd = &cobra.Command{
	Use:   "verify <dump>",
	Short: "Check every proof of a dump against its root",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreeVerify,
}

func init() {
	treeBuildCmd.Flags().StringVarP(&treeOut, "out", "o", "", "write the proof dump to this file")
	treeProofCmd.Flags().StringVar(&treeAddress, "address", "", "claimant address (required)")
	_ = treeProofCmd.MarkFlagRequired("address")
	treeVerifyCmd.Flags().StringVar(&treeRoot, "root", "", "expected root, e.g. the one set on the sale")

	treeCmd.AddCommand(treeBuildCmd)
	treeCmd.AddCommand(treeProofCmd)
	treeCmd.AddCommand(treeVerifyCmd)
}

func runTreeBuild(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read allowlist: %w", err)
	}
	claims, err := merkle.ParseAllowlist(data)
	if err != nil {
		return err
	}
	tree, err := merkle.Build(claims)
	if err != nil {
		return err
	}

	out, err := tree.Dump().MarshalIndent()
	if err != nil {
		return err
	}
	if treeOut == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	}
	if err := os.WriteFile(treeOut, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"root":    tree.Root(),
			"entries": tree.Len(),
			"file":    treeOut,
		})
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Root:    %s\n", tree.Root().Hex())
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\n", tree.Len())
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Written: %s\n", treeOut)
	return nil
}

func loadDump(path string) (*merkle.Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	var d merkle.Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dump: %w", err)
	}
	if d.Format != merkle.Format {
		return nil, fmt.Errorf("unsupported dump format %q", d.Format)
	}
	return &d, nil
}

func runTreeProof(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(treeAddress) {
		return fmt.Errorf("invalid address %q", treeAddress)
	}
	d, err := loadDump(args[0])
	if err != nil {
		return err
	}
	entry, ok := d.Entry(common.HexToAddress(treeAddress))
	if !ok {
		return fmt.Errorf("%s is not in the allowlist", common.HexToAddress(treeAddress).Hex())
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), entry)
	}
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Claimant:       %s\n", entry.Claimant.Hex())
	_, _ = fmt.Fprintf(w, "Max allocation: %d\n", entry.MaxAllocation)
	_, _ = fmt.Fprintf(w, "Root:           %s\n", d.Root.Hex())
	_, _ = fmt.Fprintln(w, "Proof:")
	for _, p := range entry.Proof {
		_, _ = fmt.Fprintf(w, "  %s\n", p.Hex())
	}
	return nil
}

var errRootMismatch = errors.New("root mismatch")

func runTreeVerify(cmd *cobra.Command, args []string) error {
	d, err := loadDump(args[0])
	if err != nil {
		return err
	}
	if treeRoot != "" && common.HexToHash(treeRoot) != d.Root {
		return fmt.Errorf("%w: dump has %s, expected %s", errRootMismatch, d.Root.Hex(), treeRoot)
	}
	if err := d.Verify(); err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]any{"root": d.Root, "entries": len(d.Entries), "valid": true})
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "OK: %d proofs verify against %s\n", len(d.Entries), d.Root.Hex())
	return nil
}
