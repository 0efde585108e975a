package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/absfs/binderfs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <doc.json>",
	Short: "Decrypt a document and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		doc, err := session.ReadDocument(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var putCmd = &cobra.Command{
	Use:   "put <doc.json> <plain.json>",
	Short: "Encrypt a plaintext JSON document into the binder",
	Long: `Reads a plaintext MedicalDocument from a local file, validates it and writes
it encrypted to the given binder path.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		doc, err := binderfs.ParseDocument(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}

		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		if err := session.WriteDocument(args[0], doc); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" wrote "+args[0])
		return nil
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <file.enc> <binary>",
	Short: "Encrypt a local file as a binder attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		if err := session.WriteSidecar(args[0], data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s (%d bytes)\n", color.GreenString("✓"), args[0], len(data))
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.enc> <out>",
	Short: "Decrypt a binder attachment to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		data, err := session.ReadSidecar(args[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], data, 0600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s extracted %s (%d bytes)\n", color.GreenString("✓"), args[1], len(data))
		return nil
	},
}
