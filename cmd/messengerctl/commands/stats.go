package commands

import (
	"os"
	"sort"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"messenger/internal"
)

// namespaceLabels maps storage key namespaces to operator-friendly names.
var namespaceLabels = map[string]string{
	"identity":  "identities",
	"conv":      "conversations",
	"member":    "membership rows",
	"direct":    "direct-pair pointers",
	"selfnotes": "self-notes pointers",
	"msg":       "sealed messages",
	"msgref":    "message refs",
	"read":      "delivery records",
	"att":       "attachments",
	"attref":    "attachment refs",
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts per storage namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts := internal.CountKeys(db)

			namespaces := make([]string, 0, len(counts))
			for ns := range counts {
				namespaces = append(namespaces, ns)
			}
			sort.Strings(namespaces)

			color.Green.Printf("database: %s\n", config.BadgerFilepath)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Namespace", "Description", "Rows"})
			total := 0
			for _, ns := range namespaces {
				label := namespaceLabels[ns]
				if label == "" {
					label = "-"
				}
				table.Append([]string{ns, label, strconv.Itoa(counts[ns])})
				total += counts[ns]
			}
			table.SetFooter([]string{"", "total", strconv.Itoa(total)})
			table.Render()
			return nil
		},
	}
}
