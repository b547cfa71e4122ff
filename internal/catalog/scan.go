package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ScanResult carries the catalog built from an export tree.
type ScanResult struct {
	Assets []Asset
	Issues []ScanIssue
}

// Scan walks the export root and builds a LocalAsset per recognized media
// file. Per-file failures (unreadable file, missing or malformed sidecar)
// become ScanIssues and do not abort the scan; a missing or unreadable root
// is fatal. Hashing and sidecar parsing run on a bounded worker pool.
func Scan(ctx context.Context, root string, workers int) (ScanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return ScanResult{}, fmt.Errorf("export root: %w", err)
	}
	if !info.IsDir() {
		return ScanResult{}, fmt.Errorf("export root %q is not a directory", root)
	}
	if workers <= 0 {
		workers = 1
	}

	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := mediaForExt(filepath.Ext(path)); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return ScanResult{}, fmt.Errorf("walk export root: %w", walkErr)
	}

	jobs := make(chan string)
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		assets []Asset
		issues []ScanIssue
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				asset, err := buildAsset(path)
				mu.Lock()
				if err != nil {
					issues = append(issues, ScanIssue{Path: path, Err: err})
				} else {
					assets = append(assets, asset)
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ScanResult{}, ctx.Err()
		case jobs <- path:
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })
	sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return ScanResult{Assets: assets, Issues: issues}, nil
}

func buildAsset(path string) (Asset, error) {
	media, ok := mediaForExt(filepath.Ext(path))
	if !ok {
		return Asset{}, fmt.Errorf("unrecognized media extension %q", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("stat: %w", err)
	}

	sidecarPath, found := SidecarPath(path)
	if !found {
		return Asset{}, fmt.Errorf("no xmp sidecar for %s", filepath.Base(path))
	}
	sidecar, err := ParseSidecar(sidecarPath)
	if err != nil {
		return Asset{}, fmt.Errorf("sidecar %s: %w", filepath.Base(sidecarPath), err)
	}

	checksum, err := Checksum(path)
	if err != nil {
		return Asset{}, err
	}

	variant, baseKey := BaseKeyFor(path)
	return Asset{
		Path:       path,
		Checksum:   checksum,
		CapturedAt: sidecar.CapturedAt,
		Variant:    variant,
		BaseKey:    baseKey,
		Size:       info.Size(),
		Media:      media,
	}, nil
}
