package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/selectionstore/internal/app"
	"github.com/GriffinCanCode/selectionstore/internal/domain/selection"
	"github.com/GriffinCanCode/selectionstore/internal/handle/osfs"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/config"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

func newAddCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Persist files and directories as one selection",
		Long: `The add command stores the given paths as a native selection and
prints the counts taken while walking them.

Example:
  selectionctl add ~/Pictures
  selectionctl add a.txt b.txt --key sel_docs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handles, err := osfs.OpenAll(args...)
			if err != nil {
				return err
			}
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result, err := a.Selections.Add(ctx, handles, types.Metadata{Key: key})
				if err != nil {
					return err
				}
				return printResult(cmd, result, result.OK)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Key to store under (generated when empty)")
	return cmd
}

func newListCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List selection keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result := a.Selections.ListKeys(ctx, selection.ListOptions{Pattern: pattern})
				return printResult(cmd, result, result.OK)
			})
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Glob filter, e.g. 'sel_*'")
	return cmd
}

type statusOutput struct {
	Key         string                `json:"key"`
	Exists      bool                  `json:"exists"`
	StorageType types.StorageType     `json:"storage_type,omitempty"`
	Reason      types.Reason          `json:"reason,omitempty"`
	Record      *types.RegistryRecord `json:"record,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <key>",
		Short: "Show where a key is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				exists := a.Selections.Exists(ctx, args[0])
				out := statusOutput{
					Key:         args[0],
					Exists:      exists.Exists,
					StorageType: exists.StorageType,
					Reason:      exists.Reason,
				}
				if exists.Exists {
					if rec, err := a.Registry.GetRecord(ctx, args[0]); err == nil {
						out.Record = rec
					}
				}
				return printResult(cmd, out, exists.Exists)
			})
		},
	}
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <key>",
		Short: "Recount the files behind a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result := a.Selections.GetFileCount(ctx, args[0])
				return printResult(cmd, result, result.OK)
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Delete a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result := a.Selections.Remove(ctx, args[0])
				return printResult(cmd, result, result.OK)
			})
		},
	}
}

func newPermsCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "perms <key>",
		Short: "Probe access to every handle of a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := types.PermissionMode(mode)
			if m != types.PermissionRead && m != types.PermissionReadWrite {
				return fmt.Errorf("invalid mode %q: want read or readwrite", mode)
			}
			return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
				result := a.Selections.RequestPermissions(ctx, args[0], m)
				return printResult(cmd, result, result.OK)
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(types.PermissionRead), "read or readwrite")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair records left behind by interrupted writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noSweep := func(c *config.Config) { c.Store.ReconcileOnStart = false }
			return withApp(cmd, noSweep, func(ctx context.Context, a *app.App) error {
				report, err := a.Native.Reconcile(ctx, grace)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "Skip pending records younger than this")
	return cmd
}
