// Command binderctl inspects and maintains an encrypted binder working tree.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/absfs/binderfs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	repoDir    string
	configPath string
	keyEnv     string
	verbose    bool

	cfg    cliConfig
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "binderctl",
		Short: "Inspect and maintain an encrypted medical binder",
		Long: `binderctl reads and writes the encrypted documents and attachments of a
binder working tree. The private key is taken from an environment variable
as 64 hex characters and never written to disk.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded.merge(cmd, repoDir, keyEnv, verbose)
			logger = newLogger(cfg.Verbose)
			logger.Debug("configuration loaded", "repo", cfg.Repo, "key_env", cfg.KeyEnv)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&repoDir, "repo", ".", "binder working tree")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./"+defaultConfigName+" when present)")
	rootCmd.PersistentFlags().StringVar(&keyEnv, "key-env", defaultKeyEnv, "environment variable holding the hex private key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(rewrapCmd)
	rootCmd.AddCommand(verifyCmd)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openSession logs into the configured working tree with the configured key
func openSession() (*binderfs.Session, error) {
	base, err := binderfs.NewDirFS(cfg.Repo)
	if err != nil {
		return nil, err
	}
	return binderfs.Login(base, binderfs.NewEnvKeySource(cfg.KeyEnv), binderfs.Config{
		RepoDir: cfg.Repo,
		Workers: cfg.Workers,
		Logger:  logger,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}
