// Package preflight provides readiness checks for the generation service
// and the local paths that shivuk writes to.
//
// The CLI "shivuk doctor" command runs RunAll and renders each Result. The
// MCP server runs the offline subset at startup and logs failures without
// refusing to start, since brand and library tools work without a key.
package preflight
