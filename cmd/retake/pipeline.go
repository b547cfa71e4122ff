package main

import (
	"context"
	"fmt"
	"log/slog"

	"retake/internal/catalog"
	"retake/internal/config"
	"retake/internal/immich"
	"retake/internal/match"
	"retake/internal/plan"
	"retake/internal/remoteindex"
	"retake/internal/stackplan"
)

// decision is the read-only half of a run: the local catalog, the remote
// snapshot, and the plan computed from both. Sync and plan share it so a
// dry preview and a live run decide identically.
type decision struct {
	scan   catalog.ScanResult
	index  *remoteindex.Index
	plan   plan.Plan
	client *immich.Client
}

func decide(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*decision, error) {
	scan, err := catalog.Scan(ctx, cfg.Export.Root, cfg.Sync.ScanWorkers)
	if err != nil {
		return nil, fmt.Errorf("scan export tree: %w", err)
	}
	logger.Info("export tree scanned",
		"component", "catalog",
		"assets", len(scan.Assets),
		"issues", len(scan.Issues))
	for _, issue := range scan.Issues {
		logger.Warn("asset skipped", "component", "catalog", "path", issue.Path, "error", issue.Err)
	}

	client := immich.New(cfg)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("reach immich server: %w", err)
	}

	index, err := remoteindex.Build(ctx, client, remoteindex.Options{
		PageSize:   cfg.Immich.PageSize,
		ScopeAlbum: cfg.Export.Album,
		Window:     cfg.MatchWindow(),
	}, logger)
	if err != nil {
		return nil, err
	}

	result := match.Run(scan.Assets, index)
	groups := stackplan.Build(result.Matches)
	built := plan.Build(result, groups)
	if err := refineWithDuplicateCheck(ctx, client, cfg.Immich.CheckChunkSize, &built); err != nil {
		return nil, err
	}

	summary := built.Summary()
	logger.Info("plan computed",
		"component", "plan",
		"uploads", summary[plan.KindUpload],
		"replaces", summary[plan.KindReplace],
		"stacks", summary[plan.KindStack],
		"skips", summary[plan.KindSkip],
		"review", summary[plan.KindReview],
		"residual", len(built.Residual))

	return &decision{scan: scan, index: index, plan: built, client: client}, nil
}

// refineWithDuplicateCheck asks the server which planned uploads it already
// holds. The metadata search feeding the index misses trashed and hidden
// assets, so the bulk duplicate check is the authoritative pre-upload test.
func refineWithDuplicateCheck(ctx context.Context, client *immich.Client, chunkSize int, built *plan.Plan) error {
	byPath := make(map[string]*plan.Operation)
	var items []immich.CheckItem
	for gi := range built.Groups {
		for oi := range built.Groups[gi].Ops {
			op := &built.Groups[gi].Ops[oi]
			if op.Kind != plan.KindUpload {
				continue
			}
			byPath[op.Local.Path] = op
			items = append(items, immich.CheckItem{ID: op.Local.Path, Checksum: op.Local.Checksum})
		}
	}
	if len(items) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = len(items)
	}

	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		results, err := client.BulkUploadCheck(ctx, items[start:end])
		if err != nil {
			return fmt.Errorf("bulk upload check: %w", err)
		}
		for _, res := range results {
			op, ok := byPath[res.ID]
			if !ok || res.Action != immich.CheckActionReject || res.Reason != immich.ReasonDuplicate {
				continue
			}
			op.Kind = plan.KindSkip
			op.Reason = "server already holds these bytes (trashed or hidden asset)"
		}
	}
	return nil
}
