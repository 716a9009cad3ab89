package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errNameRequired is returned when "peers rename" is missing its new-name argument.
var errNameRequired = errors.New("new name is required")

func peersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Manage associated companion devices",
	}

	cmd.AddCommand(peersListCmd())
	cmd.AddCommand(peersShowCmd())
	cmd.AddCommand(peersRenameCmd())
	cmd.AddCommand(peersForgetCmd())

	return cmd
}

// --- peers list ---

func peersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all associated companion devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			peers, err := client.listPeers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list peers: %w", err)
			}

			out, err := formatPeers(peers, outputFormat)
			if err != nil {
				return fmt.Errorf("format peers: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- peers show ---

func peersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <device-id>",
		Short: "Show details of one associated companion device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.getPeer(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get peer: %w", err)
			}

			out, err := formatPeer(p, outputFormat)
			if err != nil {
				return fmt.Errorf("format peer: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- peers rename ---

func peersRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <device-id> <name>",
		Short: "Rename an associated companion device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			if name == "" {
				return errNameRequired
			}

			if err := client.renamePeer(cmd.Context(), args[0], name); err != nil {
				return fmt.Errorf("rename peer: %w", err)
			}

			fmt.Printf("Peer %s renamed to %q.\n", args[0], name)

			return nil
		},
	}
}

// --- peers forget ---

func peersForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <device-id|all>",
		Short: "Forget an associated companion device (or all of them)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.forgetPeer(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("forget peer: %w", err)
			}

			fmt.Printf("Peer %s forgotten.\n", args[0])

			return nil
		},
	}
}
