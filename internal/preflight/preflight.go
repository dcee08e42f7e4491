package preflight

import (
	"context"

	"shivuk/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the free-space floor for the data and video directories.
const minFreeBytes = 512 << 20

// RunAll executes every preflight check for the given config, including the
// online generation check.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := RunLocal(cfg)
	return append(results, CheckGeneration(ctx, cfg))
}

// RunLocal executes the checks that need no network access.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckFreeSpace("Data directory space", cfg.Paths.DataDir, minFreeBytes))

	// The video directory usually shares the data volume; only check space
	// separately when it does not.
	if cfg.Paths.VideoDir != "" {
		results = append(results, CheckDirectoryAccess("Video directory", cfg.Paths.VideoDir))
		if !sameDevice(cfg.Paths.DataDir, cfg.Paths.VideoDir) {
			results = append(results, CheckFreeSpace("Video directory space", cfg.Paths.VideoDir, minFreeBytes))
		}
	}

	results = append(results, CheckIdentity(cfg))
	return results
}
