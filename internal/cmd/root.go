// Package cmd implements the sambamount command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/edumarques81/sambamount/internal/config"
)

var (
	cfgFile string
	debug   bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sambamount",
	Short: "sambamount - SMB/CIFS share mount manager",
	Long: `sambamount mounts SMB/CIFS network shares, keeps a registry of what it
mounted and reconciles it against the live mount table.

Run the service for the web front-end:
  sambamount serve

Mount and unmount from the shell:
  sambamount mount --server //nas/music --username alice
  sambamount unmount /mnt/nas_music
  sambamount list`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.sambamount/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	setupLogging(cmd.ErrOrStderr(), cfg.Log.Level, debug)
	return nil
}
