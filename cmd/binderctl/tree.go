package main

import (
	"fmt"

	"github.com/absfs/binderfs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	rewrapInclude string
	rewrapRoot    string
	rewrapDryRun  bool

	verifyInclude string
	verifyRoot    string
)

func init() {
	rewrapCmd.Flags().StringVar(&rewrapInclude, "include", binderfs.DefaultRewrapInclude, "doublestar pattern of files to rewrap")
	rewrapCmd.Flags().StringVar(&rewrapRoot, "root", "/", "directory to rewrap")
	rewrapCmd.Flags().BoolVar(&rewrapDryRun, "dry-run", false, "list matching files without writing")

	verifyCmd.Flags().StringVar(&verifyInclude, "include", binderfs.DefaultVerifyInclude, "doublestar pattern of files to verify")
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "/", "directory to verify")
}

var rewrapCmd = &cobra.Command{
	Use:   "rewrap <dest-pubkey-hex>",
	Short: "Copy files re-keyed for another public key into a staging directory",
	Long: `Derives the conversation key shared with the destination public key and
writes copies of the matching files, readable with that key, to a new
.staging-<id> directory inside the working tree. Attachments only get a new
wrapped key; their bulk ciphertext is copied unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destKey, err := binderfs.ConversationKeyWith(binderfs.NewEnvKeySource(cfg.KeyEnv), args[0])
		if err != nil {
			return err
		}
		defer destKey.Destroy()

		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		report, err := session.RewrapTree(binderfs.RewrapTreeOptions{
			Root:    rewrapRoot,
			Include: rewrapInclude,
			DestKey: destKey,
			DryRun:  rewrapDryRun,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if rewrapDryRun {
			for _, p := range report.Rewrapped {
				fmt.Fprintln(out, color.YellowString("[dry-run]"), p)
			}
			return nil
		}
		for _, f := range report.Failed {
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), f.Path, f.Err)
		}
		fmt.Fprintf(out, "%s rewrapped %d files into %s\n", color.GreenString("✓"), len(report.Rewrapped), report.StagingDir)
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d files failed to rewrap", len(report.Failed))
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Decrypt every file in the tree and report failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		failed, err := session.VerifyTree(verifyRoot, verifyInclude)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range failed {
			fmt.Fprintln(out, color.RedString("✗"), p)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d files failed verification", len(failed))
		}
		fmt.Fprintln(out, color.GreenString("✓")+" all files decrypt")
		return nil
	},
}
