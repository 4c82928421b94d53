// Package cli implements the docflowctl command tree: a thin client for
// the docflow control surface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "docflowctl",
	Short: "Control a docflow document processing server",
	Long: `docflowctl submits document batches to a docflow server and manages
the blobs in its storage tiers.

WORKFLOW:
  1. docflowctl upload raw contract.pdf         (stage the document)
  2. docflowctl start process-batch raw contract.pdf
  3. docflowctl status <instance-id>            (poll until Completed)
  4. docflowctl list                            (find the output blob)

The server address comes from --server or the DOCFLOW_SERVER environment
variable, defaulting to http://localhost:8080.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultServer := os.Getenv("DOCFLOW_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer, "docflow server base URL")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}
