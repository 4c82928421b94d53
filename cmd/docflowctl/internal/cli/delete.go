package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/docflow/internal/web"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <container> <blob>...",
	Short: "Delete blobs from a storage tier",
	Long: `Delete one or more blobs from a storage tier. Blobs that are
already gone are skipped without error.

EXAMPLES:
  docflowctl delete raw a.pdf b.pdf`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	container, names := args[0], args[1:]

	req := web.DeleteRequest{}
	for _, name := range names {
		req.Blobs = append(req.Blobs, web.BlobRef{Name: name, Container: container})
	}

	var resp web.DeleteResponse
	if err := postJSON("/deleteBlobs", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Deleted %d of %d blob(s)\n", resp.Deleted, len(names))
	return nil
}
