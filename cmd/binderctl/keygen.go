package main

import (
	"fmt"

	"github.com/absfs/binderfs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new binder key pair",
	Long: `Generates a random secp256k1 key pair and prints the hex private key and
the x-only public key. Store the private key in secure storage and export it
through the variable named by --key-env.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := binderfs.GenerateKeySource()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		pub, err := keys.PublicKeyHex()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, color.CyanString("private:"), keys.PrivateKeyHex())
		fmt.Fprintln(out, color.CyanString("public: "), pub)
		return nil
	},
}
