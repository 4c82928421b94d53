package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/docflow/internal/web"
)

var uploadName string

var uploadCmd = &cobra.Command{
	Use:   "upload <container> <file>",
	Short: "Upload a local file into a storage tier",
	Long: `Upload a local file into a storage tier. The blob name defaults to
the file's base name.

EXAMPLES:
  docflowctl upload raw ./contract.pdf

  # Store under a different blob name
  docflowctl upload raw ./contract.pdf --name contract-v2.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "blob name (defaults to the file's base name)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	container, file := args[0], args[1]

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	name := uploadName
	if name == "" {
		name = filepath.Base(file)
	}

	req := web.UploadRequest{
		Container:   container,
		Filename:    name,
		FileContent: base64.StdEncoding.EncodeToString(data),
	}
	var resp web.UploadResponse
	if err := postJSON("/uploadBlob", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Uploaded %s/%s (%d bytes)\n", container, name, len(data))
	return nil
}
