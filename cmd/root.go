package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxshare application
var rootCmd = &cobra.Command{
	Use:   "inboxshare",
	Short: "Shares delegated Gmail inboxes under a per-account visibility policy",
	Long: `inboxshare stores delegated Google credentials for many mailboxes and
lets callers read them according to each account's visibility tier.

It can run as:
  - An HTTP service with Google sign-in and admin routes (serve)
  - An MCP (Model Context Protocol) stdio server for AI assistants (mcp)
  - Operator tooling against the account store (accounts)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

var (
	configPath string
	debugMode  bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxshare version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file. Can also use INBOXSHARE_CONFIG env var.")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
