// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/stacklok/glassgate/pkg/credentials"
	"github.com/stacklok/glassgate/pkg/logger"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage stored user credentials",
	}
	cmd.AddCommand(newUsersListCmd())
	cmd.AddCommand(newUsersRevokeCmd())
	return cmd
}

func withStore(cmd *cobra.Command, fn func(credentials.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := credentials.NewStore(cmd.Context(), cfg.Credentials)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close credential store", "error", err)
		}
	}()
	return fn(store)
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with a stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store credentials.Store) error {
				users, err := store.ListKeys(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
				slices.Sort(users)
				for _, id := range users {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newUsersRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Delete a user's stored credential",
		Long:  `Deletes the stored credential of a user. The user has to sign in again before glassgate can act for them.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store credentials.Store) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to revoke %s: %w", args[0], err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
}
