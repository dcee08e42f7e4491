// Package mcpserver exposes brands, the library, and the generation session
// as MCP tools over stdio.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"shivuk/internal/app"
	"shivuk/internal/logging"
)

// Server wraps an MCP server bound to one App.
type Server struct {
	app    *app.App
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New registers every tool against a.
func New(a *app.App, version string) *Server {
	s := &Server{
		app:    a,
		logger: logging.NewComponentLogger(a.Logger, "mcp"),
		mcp:    server.NewMCPServer("shivuk", version),
	}
	s.registerBrandTools()
	s.registerLibraryTools()
	s.registerSessionTools()
	return s
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server starting on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerBrandTools() {
	s.mcp.AddTool(mcp.NewTool("list_brands",
		mcp.WithDescription("Lists brand profiles oldest first and marks the active one."),
	), s.listBrands)

	s.mcp.AddTool(mcp.NewTool("add_brand",
		mcp.WithDescription("Creates a brand with the default palette and makes it active."),
	), s.addBrand)

	s.mcp.AddTool(mcp.NewTool("activate_brand",
		mcp.WithDescription("Selects the brand stamped on new content."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Brand id")),
	), s.activateBrand)

	s.mcp.AddTool(mcp.NewTool("remove_brand",
		mcp.WithDescription("Deletes a brand. The last remaining brand cannot be removed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Brand id")),
	), s.removeBrand)

	s.mcp.AddTool(mcp.NewTool("rename_brand",
		mcp.WithDescription("Renames a brand and optionally updates its colors."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Brand id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New display name")),
		mcp.WithString("primary", mcp.Description("Primary color as #RRGGBB")),
		mcp.WithString("secondary", mcp.Description("Secondary color as #RRGGBB")),
		mcp.WithString("accent", mcp.Description("Accent color as #RRGGBB")),
	), s.renameBrand)
}

func (s *Server) registerLibraryTools() {
	s.mcp.AddTool(mcp.NewTool("list_library",
		mcp.WithDescription("Lists saved posts newest first. Pass folder_id to scope to a folder; \"root\" lists unfiled items."),
		mcp.WithString("folder_id", mcp.Description("Folder id, or \"root\"")),
	), s.listLibrary)

	s.mcp.AddTool(mcp.NewTool("remove_item",
		mcp.WithDescription("Deletes one saved post."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.removeItem)

	s.mcp.AddTool(mcp.NewTool("clear_library",
		mcp.WithDescription("Deletes every saved post. Use with caution."),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	), s.clearLibrary)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("Lists folders newest first with their item counts."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("create_folder",
		mcp.WithDescription("Creates a folder, optionally scoped to a brand."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Folder name")),
		mcp.WithString("brand_id", mcp.Description("Owning brand id")),
	), s.createFolder)

	s.mcp.AddTool(mcp.NewTool("delete_folder",
		mcp.WithDescription("Deletes a folder. Its items move back to the root."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Folder id")),
	), s.deleteFolder)
}

func (s *Server) registerSessionTools() {
	s.mcp.AddTool(mcp.NewTool("generate",
		mcp.WithDescription("Generates a post, caption, or video with the active brand and saves posts and captions to the library."),
		mcp.WithString("mode", mcp.Description("post (default), caption, or video")),
		mcp.WithString("prompt", mcp.Description("What to create")),
		mcp.WithString("image_path", mcp.Description("Reference image on local disk; required for captions")),
		mcp.WithString("persona", mcp.Description("Persona id")),
		mcp.WithString("platform", mcp.Description("Platform id")),
		mcp.WithString("style", mcp.Description("Visual style description")),
		mcp.WithString("folder_id", mcp.Description("Folder for the saved result")),
	), s.generate)

	s.mcp.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Clears the session history of generated posts, captions, and videos."),
	), s.resetSession)
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func boolArg(args map[string]any, key string) bool {
	value, _ := args[key].(bool)
	return value
}

// failure renders err as a tool error, keeping the user-facing wording.
func (s *Server) failure(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	logging.WithContext(ctx, s.logger).Warn("tool failed",
		logging.String("tool", tool),
		logging.Error(err),
	)
	return mcp.NewToolResultError(message(err))
}
