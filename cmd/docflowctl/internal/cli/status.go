package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/docflow/internal/web"
)

var (
	statusWait     bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <instance-id>",
	Short: "Show the status of a workflow instance",
	Long: `Show the current status of a workflow instance, including its output
or error once it reaches a terminal state.

EXAMPLES:
  docflowctl status 7f3a1c2e9b4d5f60

  # Block until the instance completes or fails
  docflowctl status --wait 7f3a1c2e9b4d5f60`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "poll until the instance reaches a terminal state")
	statusCmd.Flags().DurationVar(&statusInterval, "poll-interval", 2*time.Second, "polling interval with --wait")
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	for {
		status, done, err := fetchStatus(id)
		if err != nil {
			return err
		}
		if done || !statusWait {
			printStatus(status)
			return nil
		}
		fmt.Printf("... %s\n", status.Status)
		time.Sleep(statusInterval)
	}
}

// fetchStatus returns the instance status and whether it is terminal.
func fetchStatus(id string) (*web.InstanceStatusResponse, bool, error) {
	var status web.InstanceStatusResponse
	code, err := getJSON("/runtime/instances/"+id, &status)
	if err != nil {
		return nil, false, err
	}
	return &status, code == http.StatusOK, nil
}

func printStatus(status *web.InstanceStatusResponse) {
	fmt.Printf("Instance: %s\n", status.ID)
	fmt.Printf("Status:   %s\n", status.Status)
	if status.Error != "" {
		fmt.Printf("Error:    %s\n", status.Error)
	}
	if len(status.Output) > 0 {
		fmt.Printf("Output:   %s\n", status.Output)
	}
}
