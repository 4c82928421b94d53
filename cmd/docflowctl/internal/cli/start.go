package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/docflow/internal/web"
)

var (
	startWait     bool
	startInterval time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start <definition> <container> <blob>...",
	Short: "Start a workflow over a batch of blobs",
	Long: `Start a workflow instance over one or more blobs in a storage tier.

EXAMPLES:
  # Process two documents through the standard pipeline
  docflowctl start process-batch raw a.pdf b.pdf

  # Start and block until the instance finishes
  docflowctl start --wait process-batch raw a.pdf`,
	Args: cobra.MinimumNArgs(3),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startWait, "wait", false, "poll until the instance reaches a terminal state")
	startCmd.Flags().DurationVar(&startInterval, "poll-interval", 2*time.Second, "polling interval with --wait")
}

func runStart(cmd *cobra.Command, args []string) error {
	definition, container, names := args[0], args[1], args[2:]

	req := web.StartBatchRequest{}
	for _, name := range names {
		req.Blobs = append(req.Blobs, web.BlobRef{Name: name, Container: container})
	}

	var resp web.StartBatchResponse
	if err := postJSON("/client/"+definition, req, &resp); err != nil {
		return err
	}

	fmt.Printf("Started %s with %d blob(s)\n", definition, len(names))
	fmt.Printf("Instance: %s\n", resp.ID)
	fmt.Printf("Poll:     %s\n", resp.StatusQueryGetURI)

	if !startWait {
		return nil
	}

	for {
		time.Sleep(startInterval)
		status, done, err := fetchStatus(resp.ID)
		if err != nil {
			return err
		}
		if done {
			printStatus(status)
			return nil
		}
		fmt.Printf("... %s\n", status.Status)
	}
}
