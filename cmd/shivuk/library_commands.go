package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
	"shivuk/internal/generation"
	"shivuk/internal/library"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect and prune saved content",
	}
	libraryCmd.AddCommand(newLibraryListCommand(ctx))
	libraryCmd.AddCommand(newLibraryShowCommand(ctx))
	libraryCmd.AddCommand(newLibraryRemoveCommand(ctx))
	libraryCmd.AddCommand(newLibraryClearCommand(ctx))
	libraryCmd.AddCommand(newLibraryStatsCommand(ctx))
	return libraryCmd
}

type itemView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	Hashtags        string `json:"hashtags"`
	ImageSearchTerm string `json:"imageSearchTerm"`
	ImageURL        string `json:"imageUrl,omitempty"`
	BrandName       string `json:"brandName"`
	BrandColor      string `json:"brandColor"`
	PlatformID      string `json:"platformId,omitempty"`
	PersonaID       string `json:"personaId,omitempty"`
	FolderID        string `json:"folderId,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

func newItemView(a *app.App, item library.Item) itemView {
	return itemView{
		ID:              item.ID,
		Title:           item.Title,
		Content:         item.Content,
		Hashtags:        item.Hashtags,
		ImageSearchTerm: item.ImageSearchTerm,
		ImageURL:        item.Image(),
		BrandName:       item.BrandName,
		BrandColor:      item.BrandColor,
		PlatformID:      item.PlatformID,
		PersonaID:       item.PersonaID,
		FolderID:        a.Library.EffectiveFolderID(item),
		Timestamp:       item.Timestamp,
	}
}

func newLibraryListCommand(ctx *commandContext) *cobra.Command {
	var (
		folder string
		root   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved content (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				var items []library.Item
				switch {
				case root:
					items = a.Library.ItemsInFolder("")
				case strings.TrimSpace(folder) != "":
					items = a.Library.ItemsInFolder(strings.TrimSpace(folder))
				default:
					items = a.Library.Items()
				}

				if asJSON {
					views := make([]itemView, 0, len(items))
					for _, item := range items {
						views = append(views, newItemView(a, item))
					}
					return writeJSON(cmd, views)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						formatMillis(item.Timestamp),
						truncate(item.Title, 40),
						item.BrandName,
						platformLabel(item.PlatformID),
						a.Library.EffectiveFolderID(item),
						yesNo(item.Image() != ""),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Saved", "Title", "Brand", "Platform", "Folder", "Image"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Only items in this folder")
	cmd.Flags().BoolVar(&root, "root", false, "Only items not filed in an existing folder")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("folder", "root")
	return cmd
}

func newLibraryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one saved post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				for _, item := range a.Library.Items() {
					if item.ID != id {
						continue
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s\n\n%s\n\n%s\n", item.Title, item.Content, item.Hashtags)
					if img := item.Image(); img != "" {
						fmt.Fprintf(out, "\nImage: %s\n", img)
					}
					fmt.Fprintf(out, "Brand: %s (%s)\n", item.BrandName, item.BrandColor)
					return nil
				}
				return fmt.Errorf("item %s not found", id)
			})
		},
	}
}

func newLibraryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a saved post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				if err := a.Library.RemoveItem(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				return nil
			})
		},
	}
}

func newLibraryClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved post",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the library without --yes")
			}
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Library.ClearLibrary(ctx)
				out := cmd.OutOrStdout()
				if result.Failed > 0 {
					fmt.Fprintf(out, "Deleted %d items, %d failed\n", result.Deleted, result.Failed)
				} else if err == nil {
					fmt.Fprintf(out, "Deleted %d items\n", result.Deleted)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newLibraryStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count saved content by platform, persona, and brand",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				stats := a.Library.Stats()
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total items: %d\n", stats.Total)
				for _, section := range []struct {
					title  string
					counts map[string]int
					label  func(string) string
				}{
					{"Platform", stats.ByPlatform, platformLabel},
					{"Persona", stats.ByPersona, personaLabel},
					{"Brand", stats.ByBrand, func(s string) string { return s }},
				} {
					if len(section.counts) == 0 {
						continue
					}
					rows := make([][]string, 0, len(section.counts))
					for _, key := range library.SortedKeys(section.counts) {
						count := section.counts[key]
						rows = append(rows, []string{
							section.label(key),
							fmt.Sprintf("%d", count),
							fmt.Sprintf("%.0f%%", stats.Share(count)),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(
						[]string{section.title, "Items", "Share"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight},
					))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func platformLabel(id string) string {
	if p, ok := generation.PlatformByID(id); ok {
		return p.Label
	}
	return id
}

func personaLabel(id string) string {
	if p, ok := generation.PersonaByID(id); ok {
		return p.Label
	}
	return id
}
