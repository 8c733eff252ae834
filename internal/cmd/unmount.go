package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

var unmountForce bool

var unmountCmd = &cobra.Command{
	Use:   "unmount <mountpoint>",
	Short: "Unmount a share",
	Long: `Unmount a share and drop its registry record.

A busy share is only detached lazily when --force is given. Mounts of SMB
shares that sambamount did not create are adopted and unmounted as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnmount,
}

func init() {
	rootCmd.AddCommand(unmountCmd)
	unmountCmd.Flags().BoolVarP(&unmountForce, "force", "f", false, "lazily detach a busy or unresponsive share")
}

func runUnmount(cmd *cobra.Command, args []string) error {
	mgr, closeStore, err := openManager(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := mgr.Unmount(cmd.Context(), args[0], mounts.UnmountOptions{Force: unmountForce}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unmounted %s\n", args[0])
	return nil
}
