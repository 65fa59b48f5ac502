package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelaire/turnbot/internal/keychain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token stored in the OS keychain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store the bot token (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token is empty")
			}
			if err := keychain.Set(keychain.TokenAccount, token); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored bot token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keychain.Delete(keychain.TokenAccount); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token deleted")
			return nil
		},
	})
	return cmd
}
