package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

var (
	mountServer        string
	mountUsername      string
	mountMountpoint    string
	mountPasswordStdin bool
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount an SMB share",
	Long: `Mount an SMB share and record it in the registry.

Without --mountpoint a directory under the configured base directory is
derived from the server name. When --username is set the password is read
from the terminal without echo, or from the first line of stdin when stdin is
not a terminal or --password-stdin is given.`,
	Example: `  sambamount mount --server //nas/music --username alice
  echo "$PW" | sambamount mount --server //nas/music --username alice --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().StringVarP(&mountServer, "server", "s", "", "share to mount, e.g. //host/share")
	mountCmd.Flags().StringVarP(&mountUsername, "username", "u", "", "SMB user (guest when empty)")
	mountCmd.Flags().StringVarP(&mountMountpoint, "mountpoint", "m", "", "absolute mountpoint (derived when empty)")
	mountCmd.Flags().BoolVar(&mountPasswordStdin, "password-stdin", false, "read the password from stdin")
	_ = mountCmd.MarkFlagRequired("server")
}

func runMount(cmd *cobra.Command, args []string) error {
	req := mounts.MountRequest{
		Server:     mountServer,
		Username:   mountUsername,
		Mountpoint: mountMountpoint,
	}
	if mountUsername != "" {
		pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), mountPasswordStdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		req.Password = pw
	}

	mgr, closeStore, err := openManager(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := mgr.Mount(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res.AlreadyMounted {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already mounted at %s\n", res.Server, res.Mountpoint)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s\n", res.Server, res.Mountpoint)
	return nil
}

// readPassword prompts without echo when in is a terminal and fromStdin is
// false. Otherwise it reads the first line of in.
func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) ([]byte, error) {
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		return pw, err
	}

	line, err := bufio.NewReader(in).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
