package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List mounted shares",
	Long:    `List shares that are recorded in the registry and confirmed by the live mount table.`,
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
}

func runList(cmd *cobra.Command, args []string) error {
	mgr, closeStore, err := openManager(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	infos := mounts.Infos(mgr.ListMounted(cmd.Context()))
	out := cmd.OutOrStdout()

	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No mounted shares.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVER\tMOUNTPOINT")
	_, _ = fmt.Fprintln(w, "------\t----------")
	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", info.Server, info.Mountpoint)
	}
	return w.Flush()
}
