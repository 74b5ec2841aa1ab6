// Package orchestrator coordinates planning and stream-at-a-time sync
// runs: rules resolved against a discovered catalog, each selected
// stream extracted and loaded in isolation, replication state merged
// per stream as soon as it lands.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/johndauphine/tapsync/internal/catalog"
	"github.com/johndauphine/tapsync/internal/config"
	"github.com/johndauphine/tapsync/internal/logging"
	"github.com/johndauphine/tapsync/internal/plan"
	"github.com/johndauphine/tapsync/internal/rules"
	"github.com/johndauphine/tapsync/internal/tap"
)

// Planner produces extraction plans: it discovers (or reuses) the tap's
// catalog, resolves the rules file against it, and writes the plan
// artifact plus the selected catalog the tap will be invoked with.
type Planner struct {
	config *config.Config
}

// NewPlanner creates a Planner.
func NewPlanner(cfg *config.Config) *Planner {
	return &Planner{config: cfg}
}

// PlanResult is the outcome of a planning pass.
type PlanResult struct {
	Plan     *plan.Plan
	Warnings []plan.Warning

	// PlanFile and SelectedCatalogFile are the artifacts written.
	PlanFile            string
	SelectedCatalogFile string
}

// BuildPlan runs the full planning pass for a tap. With rescan set the
// cached catalog is discarded and discovery runs again.
func (p *Planner) BuildPlan(ctx context.Context, tapName string, rescan bool) (*PlanResult, error) {
	ruleList, err := rules.ParseFile(p.config.RulesFile(tapName))
	if err != nil {
		return nil, err
	}

	cat, err := p.ensureCatalog(ctx, tapName, rescan)
	if err != nil {
		return nil, err
	}

	resolved, warnings := plan.Resolve(tapName, ruleList, cat)
	for _, w := range warnings {
		logging.Warn("%s", w)
	}

	planFile := p.config.PlanFile(tapName)
	if err := plan.WriteFile(planFile, resolved); err != nil {
		return nil, err
	}

	selected, err := cat.ApplySelection(resolved.Selection())
	if err != nil {
		return nil, err
	}
	selectedFile := p.config.SelectedCatalogFile(tapName)
	if err := os.WriteFile(selectedFile, selected, 0o644); err != nil {
		return nil, fmt.Errorf("writing selected catalog: %w", err)
	}

	logging.Info("Planned %s: %d streams selected, %d excluded, %d warnings",
		tapName, len(resolved.IncludedStreams()), len(resolved.ExcludedStreams()), len(warnings))

	return &PlanResult{
		Plan:                resolved,
		Warnings:            warnings,
		PlanFile:            planFile,
		SelectedCatalogFile: selectedFile,
	}, nil
}

// ensureCatalog returns the tap's catalog, running discovery when no
// cached raw catalog exists or a rescan was requested.
func (p *Planner) ensureCatalog(ctx context.Context, tapName string, rescan bool) (*catalog.Catalog, error) {
	rawFile := p.config.RawCatalogFile(tapName)

	if !rescan {
		if _, err := os.Stat(rawFile); err == nil {
			logging.Debug("Using cached catalog %s", rawFile)
			return catalog.LoadFile(rawFile)
		}
	}

	return p.Discover(ctx, tapName)
}

// Discover runs the tap's discovery mode and caches the raw catalog.
func (p *Planner) Discover(ctx context.Context, tapName string) (*catalog.Catalog, error) {
	logging.Info("Discovering catalog for %s", tapName)

	raw, err := tap.Discover(ctx, tap.DiscoverOptions{
		Tap:        tapName,
		ConfigPath: p.config.PluginConfigFile(tap.CommandName(tapName)),
	})
	if err != nil {
		return nil, err
	}

	rawFile := p.config.RawCatalogFile(tapName)
	if err := os.MkdirAll(p.config.CatalogDir(tapName), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog dir: %w", err)
	}
	if err := os.WriteFile(rawFile, raw, 0o644); err != nil {
		return nil, fmt.Errorf("caching catalog: %w", err)
	}

	return catalog.Parse(raw)
}
