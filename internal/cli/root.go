// Package cli provides the datchat command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/datchat/internal/config"
	"github.com/koustreak/datchat/internal/errs"
)

// Version is set at build time.
var Version = "0.1.0"

// NewRootCmd creates the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "datchat",
		Short: "Ask questions about your database in plain language",
		Long: `datchat turns a natural-language question into a read-only SQL query,
runs it against SQLite, PostgreSQL or MySQL, and answers from the rows.

In schema mode it only writes the query, from a schema you supply, and never
connects to a database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	config.RegisterFlags(root.PersistentFlags())

	load := func(cmd *cobra.Command) (*app, error) {
		return newApp(cmd, cfgFile)
	}

	root.AddCommand(newAskCommand(load))
	root.AddCommand(newServeCommand(load))
	root.AddCommand(newTablesCommand(load))
	root.AddCommand(newValidatePromptsCommand(load))
	return root
}

// Execute runs the root command and prints the user-facing error message.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errs.UserMessage(err))
		return 1
	}
	return 0
}
