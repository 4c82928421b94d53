package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/example/docflow/internal/web"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List blobs in every storage tier",
	Long: `List the blobs in every storage tier, each with a time-limited
download URL.

EXAMPLES:
  docflowctl list`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	var tiers map[string][]web.BlobListing
	if _, err := getJSON("/getBlobsByContainer", &tiers); err != nil {
		return err
	}

	names := make([]string, 0, len(tiers))
	for tier := range tiers {
		names = append(names, tier)
	}
	sort.Strings(names)

	for _, tier := range names {
		fmt.Printf("%s:\n", tier)
		if len(tiers[tier]) == 0 {
			fmt.Println("  (empty)")
			continue
		}
		for _, blob := range tiers[tier] {
			fmt.Printf("  %s\n    %s\n", blob.Name, serverURL(blob.URL))
		}
	}
	return nil
}
