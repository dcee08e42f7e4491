package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
)

func newFoldersCommand(ctx *commandContext) *cobra.Command {
	foldersCmd := &cobra.Command{
		Use:   "folders",
		Short: "Organize the library into folders",
	}
	foldersCmd.AddCommand(newFoldersListCommand(ctx))
	foldersCmd.AddCommand(newFoldersCreateCommand(ctx))
	foldersCmd.AddCommand(newFoldersDeleteCommand(ctx))
	return foldersCmd
}

func newFoldersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List folders (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				folders := a.Library.Folders()
				out := cmd.OutOrStdout()
				if len(folders) == 0 {
					fmt.Fprintln(out, "No folders")
					return nil
				}
				brandNames := map[string]string{}
				for _, p := range a.Brands.Brands() {
					brandNames[p.ID] = p.Name
				}
				rows := make([][]string, 0, len(folders)+1)
				for _, f := range folders {
					rows = append(rows, []string{
						f.ID,
						f.Name,
						brandNames[f.BrandID],
						fmt.Sprintf("%d", len(a.Library.ItemsInFolder(f.ID))),
						formatMillis(f.CreatedAt),
					})
				}
				rows = append(rows, []string{"", "(root)", "", fmt.Sprintf("%d", len(a.Library.ItemsInFolder(""))), ""})
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Brand", "Items", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newFoldersCreateCommand(ctx *commandContext) *cobra.Command {
	var brandID string
	var forActive bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return fmt.Errorf("folder name cannot be empty")
			}
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				owner := strings.TrimSpace(brandID)
				if forActive {
					owner = a.Brands.ActiveID()
				}
				id, err := a.Library.CreateFolder(ctx, name, owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created folder %s (%s)\n", name, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "Owning brand id")
	cmd.Flags().BoolVar(&forActive, "active-brand", false, "Scope the folder to the active brand")
	cmd.MarkFlagsMutuallyExclusive("brand", "active-brand")
	return cmd
}

func newFoldersDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a folder; its items return to the root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				if err := a.Library.DeleteFolder(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %s\n", id)
				return nil
			})
		},
	}
}
