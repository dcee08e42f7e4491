package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"shivuk/internal/brands"
	"shivuk/internal/dataurl"
	"shivuk/internal/generation"
	"shivuk/internal/library"
	"shivuk/internal/services"
)

// rootFolder selects unfiled items in list_library.
const rootFolder = "root"

func message(err error) string {
	switch {
	case errors.Is(err, services.ErrNoIdentity):
		return "No identity configured. Set identity.user_id or SHIVUK_USER_ID."
	case errors.Is(err, services.ErrNotFound):
		return err.Error()
	}
	switch services.Classify(err) {
	case services.KindTransient:
		return err.Error()
	default:
		return services.UserMessage(err)
	}
}

func (s *Server) requireIdentity(ctx context.Context, tool string) *mcp.CallToolResult {
	if err := s.app.RequireIdentity(); err != nil {
		return s.failure(ctx, tool, err)
	}
	return nil
}

func (s *Server) listBrands(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "list_brands"); res != nil {
		return res, nil
	}
	profiles := s.app.Brands.Brands()
	if len(profiles) == 0 {
		return mcp.NewToolResultText("No brands yet."), nil
	}
	activeID := s.app.Brands.ActiveID()
	var sb strings.Builder
	for _, p := range profiles {
		marker := " "
		if p.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s  %s  %s/%s/%s", marker, p.ID, p.Name, p.Colors.Primary, p.Colors.Secondary, p.Colors.Accent)
		if logo := p.Logo(); logo != "" {
			fmt.Fprintf(&sb, "  logo=%s", logo)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) addBrand(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "add_brand"); res != nil {
		return res, nil
	}
	id, err := s.app.Brands.Add(ctx)
	if err != nil {
		return s.failure(ctx, "add_brand", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Brand '%s' created and activated.", id)), nil
}

func (s *Server) activateBrand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "activate_brand"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(stringArg(arguments(request), "id"))
	if _, ok := s.findBrand(id); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Brand '%s' not found.", id)), nil
	}
	s.app.Brands.Activate(id)
	return mcp.NewToolResultText(fmt.Sprintf("Brand '%s' is now active.", id)), nil
}

func (s *Server) removeBrand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "remove_brand"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(stringArg(arguments(request), "id"))
	if err := s.app.Brands.Remove(ctx, id); err != nil {
		return s.failure(ctx, "remove_brand", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Brand '%s' removed.", id)), nil
}

func (s *Server) renameBrand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "rename_brand"); res != nil {
		return res, nil
	}
	args := arguments(request)
	id := strings.TrimSpace(stringArg(args, "id"))
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		return mcp.NewToolResultError("Brand name cannot be empty"), nil
	}
	current, ok := s.findBrand(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Brand '%s' not found.", id)), nil
	}

	patch := brands.Patch{Name: &name}
	colors := current.Colors
	changed := false
	for key, slot := range map[string]*string{"primary": &colors.Primary, "secondary": &colors.Secondary, "accent": &colors.Accent} {
		if value := strings.TrimSpace(stringArg(args, key)); value != "" {
			if !brands.ValidColor(value) {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid %s color %q (want #RRGGBB)", key, value)), nil
			}
			*slot = value
			changed = true
		}
	}
	if changed {
		patch.Colors = &colors
	}
	if err := s.app.Brands.Update(ctx, id, patch); err != nil {
		return s.failure(ctx, "rename_brand", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Brand '%s' updated.", id)), nil
}

func (s *Server) findBrand(id string) (brands.Profile, bool) {
	for _, p := range s.app.Brands.Brands() {
		if p.ID == id {
			return p, true
		}
	}
	return brands.Profile{}, false
}

func (s *Server) listLibrary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "list_library"); res != nil {
		return res, nil
	}
	folder := strings.TrimSpace(stringArg(arguments(request), "folder_id"))
	var items []library.Item
	switch folder {
	case "":
		items = s.app.Library.Items()
	case rootFolder:
		items = s.app.Library.ItemsInFolder("")
	default:
		items = s.app.Library.ItemsInFolder(folder)
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("Library is empty."), nil
	}
	var sb strings.Builder
	for _, item := range items {
		when := time.UnixMilli(item.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&sb, "- [%s] %s (%s, %s)", item.ID, item.Title, when, item.BrandName)
		if item.PlatformID != "" {
			fmt.Fprintf(&sb, " platform=%s", item.PlatformID)
		}
		if folderID := s.app.Library.EffectiveFolderID(item); folderID != "" {
			fmt.Fprintf(&sb, " folder=%s", folderID)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) removeItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "remove_item"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(stringArg(arguments(request), "id"))
	if err := s.app.Library.RemoveItem(ctx, id); err != nil {
		return s.failure(ctx, "remove_item", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Item '%s' deleted.", id)), nil
}

func (s *Server) clearLibrary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "clear_library"); res != nil {
		return res, nil
	}
	if !boolArg(arguments(request), "confirm") {
		return mcp.NewToolResultError("Set confirm to true to delete every saved post."), nil
	}
	result, err := s.app.Library.ClearLibrary(ctx)
	if err != nil {
		if result.Deleted > 0 || result.Failed > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("Deleted %d items; %d failed: %s", result.Deleted, result.Failed, message(err))), nil
		}
		return s.failure(ctx, "clear_library", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Library cleared (%d items deleted).", result.Deleted)), nil
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "list_folders"); res != nil {
		return res, nil
	}
	folders := s.app.Library.Folders()
	if len(folders) == 0 {
		return mcp.NewToolResultText("No folders."), nil
	}
	var sb strings.Builder
	for _, f := range folders {
		fmt.Fprintf(&sb, "- [%s] %s (%d items)", f.ID, f.Name, len(s.app.Library.ItemsInFolder(f.ID)))
		if f.BrandID != "" {
			fmt.Fprintf(&sb, " brand=%s", f.BrandID)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) createFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "create_folder"); res != nil {
		return res, nil
	}
	args := arguments(request)
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		return mcp.NewToolResultError("Folder name cannot be empty"), nil
	}
	id, err := s.app.Library.CreateFolder(ctx, name, strings.TrimSpace(stringArg(args, "brand_id")))
	if err != nil {
		return s.failure(ctx, "create_folder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Folder '%s' created with id %s.", name, id)), nil
}

func (s *Server) deleteFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.requireIdentity(ctx, "delete_folder"); res != nil {
		return res, nil
	}
	id := strings.TrimSpace(stringArg(arguments(request), "id"))
	if err := s.app.Library.DeleteFolder(ctx, id); err != nil {
		return s.failure(ctx, "delete_folder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Folder '%s' deleted; its items are back at the root.", id)), nil
}

func (s *Server) generate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	session := s.app.Session

	mode := generation.ModePost
	if raw := strings.TrimSpace(stringArg(args, "mode")); raw != "" {
		parsed, err := generation.ParseMode(raw)
		if err != nil {
			return mcp.NewToolResultError(message(err)), nil
		}
		mode = parsed
	}
	image := ""
	if path := strings.TrimSpace(stringArg(args, "image_path")); path != "" {
		encoded, err := dataurl.ReadFile(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		image = encoded
	}
	if err := session.SetMode(mode); err != nil {
		return mcp.NewToolResultError(message(err)), nil
	}
	if id := strings.TrimSpace(stringArg(args, "persona")); id != "" {
		if err := session.SetPersona(id); err != nil {
			return mcp.NewToolResultError(message(err)), nil
		}
	}
	if id := strings.TrimSpace(stringArg(args, "platform")); id != "" {
		if err := session.SetPlatform(id); err != nil {
			return mcp.NewToolResultError(message(err)), nil
		}
	}
	if style := strings.TrimSpace(stringArg(args, "style")); style != "" {
		session.SetStyle(style)
	}
	session.SetTargetFolder(strings.TrimSpace(stringArg(args, "folder_id")))
	session.SetPrompt(stringArg(args, "prompt"))
	session.AttachImage(image)

	if err := session.Start(ctx); err != nil {
		recovery := session.Recovery(err)
		text := recovery.Message
		switch recovery.Action {
		case generation.ActionSelectKey:
			text += " Select a different API key and try again."
		case generation.ActionRetry:
			text += " You can retry the request."
		}
		s.failure(ctx, "generate", err)
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(describeLatest(session.Snapshot(), mode)), nil
}

func describeLatest(st generation.State, mode generation.Mode) string {
	var sb strings.Builder
	switch mode {
	case generation.ModeVideo:
		if len(st.Videos) == 0 {
			return "No video produced."
		}
		v := st.Videos[0]
		fmt.Fprintf(&sb, "Video: %s\nCaption: %s\n", v.URL, v.Caption)
	default:
		list := st.Posts
		if mode == generation.ModeCaption {
			list = st.Captions
		}
		if len(list) == 0 {
			return "No content produced."
		}
		p := list[0]
		fmt.Fprintf(&sb, "# %s\n\n%s\n\n%s\n", p.Title, p.Content, p.Hashtags)
		if p.ImageTerm != "" {
			fmt.Fprintf(&sb, "\nImage prompt: %s\n", p.ImageTerm)
		}
		for _, src := range p.Sources {
			fmt.Fprintf(&sb, "Source: %s (%s)\n", src.Title, src.URI)
		}
		if st.LastPersistError != "" {
			fmt.Fprintf(&sb, "\nNot saved to the library: %s\n", st.LastPersistError)
		} else {
			sb.WriteString("\nSaved to the library.\n")
		}
	}
	return sb.String()
}

func (s *Server) resetSession(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.app.Session.ResetResult()
	return mcp.NewToolResultText("Session history cleared."), nil
}
