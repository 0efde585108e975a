package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/absfs/binderfs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var lsJSONOutput bool

func init() {
	lsCmd.Flags().BoolVar(&lsJSONOutput, "json", false, "output in JSON format")
}

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List a binder directory",
	Long: `Lists folders first, then documents by file name. Documents that cannot be
decrypted are listed without a preview.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "/"
		if len(args) == 1 {
			dir = args[0]
		}

		session, err := openSession()
		if err != nil {
			return err
		}
		defer session.Logout()

		items, err := session.ReadDirectory(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if lsJSONOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}
		printItems(out, items)
		return nil
	},
}

func printItems(out io.Writer, items []binderfs.DirItem) {
	folder := color.New(color.FgBlue, color.Bold)
	for _, item := range items {
		switch v := item.(type) {
		case *binderfs.Folder:
			label := v.Name
			if v.Meta != nil && v.Meta.DisplayName != "" {
				label = v.Meta.DisplayName
			}
			fmt.Fprintf(out, "%s %s\n", folder.Sprint(label+"/"), color.HiBlackString("(%d)", v.ChildCount))
		case *binderfs.Entry:
			if v.Preview == nil {
				fmt.Fprintf(out, "%s %s\n", v.Name, color.RedString("[unreadable]"))
				continue
			}
			fmt.Fprintf(out, "%s %s %s\n", v.Name, color.YellowString(v.Preview.Type), v.Preview.Title)
		}
	}
}
