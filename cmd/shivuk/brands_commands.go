package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
	"shivuk/internal/brands"
	"shivuk/internal/dataurl"
)

func newBrandsCommand(ctx *commandContext) *cobra.Command {
	brandsCmd := &cobra.Command{
		Use:   "brands",
		Short: "Manage brand profiles",
	}
	brandsCmd.AddCommand(newBrandsListCommand(ctx))
	brandsCmd.AddCommand(newBrandsAddCommand(ctx))
	brandsCmd.AddCommand(newBrandsActivateCommand(ctx))
	brandsCmd.AddCommand(newBrandsRemoveCommand(ctx))
	brandsCmd.AddCommand(newBrandsUpdateCommand(ctx))
	return brandsCmd
}

type brandView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Colors       brands.Colors `json:"colors"`
	ActiveLogo   string        `json:"activeLogo,omitempty"`
	LogoVariants []string      `json:"logoVariants"`
	CreatedAt    int64         `json:"createdAt"`
	Active       bool          `json:"active"`
}

func newBrandsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List brand profiles (oldest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				activeID := a.Brands.ActiveID()
				profiles := a.Brands.Brands()
				if asJSON {
					views := make([]brandView, 0, len(profiles))
					for _, p := range profiles {
						views = append(views, brandView{
							ID:           p.ID,
							Name:         p.Name,
							Colors:       p.Colors,
							ActiveLogo:   p.Logo(),
							LogoVariants: append([]string{}, p.LogoVariants...),
							CreatedAt:    p.CreatedAt,
							Active:       p.ID == activeID,
						})
					}
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(profiles))
				for _, p := range profiles {
					marker := ""
					if p.ID == activeID {
						marker = "*"
					}
					rows = append(rows, []string{
						marker,
						p.ID,
						p.Name,
						fmt.Sprintf("%s %s %s", p.Colors.Primary, p.Colors.Secondary, p.Colors.Accent),
						fmt.Sprintf("%d", len(p.LogoVariants)),
						yesNo(p.Logo() != ""),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"", "ID", "Name", "Colors", "Logos", "Active Logo"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newBrandsAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Create a brand with the default palette and activate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Brands.Add(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created brand %s\n", id)
				return nil
			})
		},
	}
}

func newBrandsActivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Select the brand stamped on new content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(_ context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				if _, ok := findBrand(a, id); !ok {
					return fmt.Errorf("brand %s not found", id)
				}
				a.Brands.Activate(id)
				fmt.Fprintf(cmd.OutOrStdout(), "Active brand: %s\n", id)
				return nil
			})
		},
	}
}

func newBrandsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a brand (the last brand cannot be removed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				if err := a.Brands.Remove(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed brand %s\n", id)
				return nil
			})
		},
	}
}

func newBrandsUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		name, primary, secondary, accent string
		logoPaths                        []string
		activeLogo                       int
		clearLogo                        bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a brand's name, colors, or logos",
		Long: `Change a brand's name, colors, or logos.

Each --logo adds an image file to the brand's logo variants. --active-logo
selects a variant by 1-based position after any additions. Logo files are
uploaded to the blob store before the brand is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentity(cmd, func(ctx context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				current, ok := findBrand(a, id)
				if !ok {
					return fmt.Errorf("brand %s not found", id)
				}

				var patch brands.Patch
				if flag := cmd.Flags().Lookup("name"); flag.Changed {
					trimmed := strings.TrimSpace(name)
					if trimmed == "" {
						return fmt.Errorf("brand name cannot be empty")
					}
					patch.Name = &trimmed
				}

				colors := current.Colors
				colorChanged := false
				for _, c := range []struct {
					flag  string
					value string
					slot  *string
				}{
					{"primary", primary, &colors.Primary},
					{"secondary", secondary, &colors.Secondary},
					{"accent", accent, &colors.Accent},
				} {
					if !cmd.Flags().Lookup(c.flag).Changed {
						continue
					}
					if !brands.ValidColor(c.value) {
						return fmt.Errorf("--%s must be a #RRGGBB color, got %q", c.flag, c.value)
					}
					*c.slot = c.value
					colorChanged = true
				}
				if colorChanged {
					patch.Colors = &colors
				}

				variants := append([]string{}, current.LogoVariants...)
				if len(logoPaths) > 0 {
					for _, path := range logoPaths {
						encoded, err := dataurl.ReadFile(path)
						if err != nil {
							return err
						}
						variants = append(variants, encoded)
					}
					patch.LogoVariants = &variants
				}
				switch {
				case clearLogo:
					patch.ClearActiveLogo = true
				case activeLogo > 0:
					if activeLogo > len(variants) {
						return fmt.Errorf("--active-logo %d out of range (brand has %d logos)", activeLogo, len(variants))
					}
					selected := variants[activeLogo-1]
					patch.ActiveLogo = &selected
				}

				if patch.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update")
					return nil
				}
				if err := a.Brands.Update(ctx, id, patch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated brand %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&primary, "primary", "", "Primary color (#RRGGBB)")
	cmd.Flags().StringVar(&secondary, "secondary", "", "Secondary color (#RRGGBB)")
	cmd.Flags().StringVar(&accent, "accent", "", "Accent color (#RRGGBB)")
	cmd.Flags().StringArrayVar(&logoPaths, "logo", nil, "Image file to add as a logo variant (repeatable)")
	cmd.Flags().IntVar(&activeLogo, "active-logo", 0, "1-based logo variant to make active")
	cmd.Flags().BoolVar(&clearLogo, "clear-logo", false, "Unset the active logo")
	cmd.MarkFlagsMutuallyExclusive("active-logo", "clear-logo")
	return cmd
}

func findBrand(a *app.App, id string) (brands.Profile, bool) {
	for _, p := range a.Brands.Brands() {
		if p.ID == id {
			return p, true
		}
	}
	return brands.Profile{}, false
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
