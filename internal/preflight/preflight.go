package preflight

import (
	"context"
	"fmt"
	"strings"

	"proxyfarm/internal/config"
	"proxyfarm/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Role selects which checks apply.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleWorker      Role = "worker"
)

// RunAll executes the checks for role.
func RunAll(ctx context.Context, cfg *config.Config, role Role) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Proxy root", cfg.Paths.ProxyRoot),
		CheckDirectoryAccess("Segment directory", cfg.Paths.TempDir),
	}
	switch role {
	case RoleCoordinator:
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
		if strings.TrimSpace(cfg.Editor.ManifestPath) != "" {
			results = append(results, CheckFileReadable("Clip manifest", cfg.Editor.ManifestPath))
		}
	case RoleWorker:
		for _, status := range CheckSystemDeps(ctx, cfg) {
			results = append(results, Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Detail})
		}
	}
	return results
}

// Failed folds failing results into one configuration error, or nil.
func Failed(results []Result) error {
	var problems []string
	for _, r := range results {
		if !r.Passed {
			problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(problems, "; "), nil)
}
