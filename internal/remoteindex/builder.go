package remoteindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retake/internal/catalog"
	"retake/internal/immich"
)

// Service is the slice of the Immich client the builder consumes.
type Service interface {
	ListAssets(ctx context.Context, pageSize int) ([]immich.Asset, error)
	ListAlbums(ctx context.Context) ([]immich.Album, error)
	GetAlbum(ctx context.Context, albumID string) (*immich.AlbumDetail, error)
}

// Options tunes index construction.
type Options struct {
	PageSize   int
	ScopeAlbum string
	// Window is the capture-time bucket tolerance for proximity lookups.
	Window time.Duration
}

type nameTimeKey struct {
	stem   string
	bucket int64
}

// Index holds the remote snapshot and its lookup structures.
type Index struct {
	Assets     []*Asset
	AlbumNames map[string]string

	byChecksum map[string][]*Asset
	byNameTime map[nameTimeKey][]*Asset
	window     time.Duration
}

// Build fetches every remote asset with its album set, favorite flag, and
// provenance, then constructs the lookup indices. Any failure here is fatal
// for the run: matching cannot proceed against a partial index.
func Build(ctx context.Context, svc Service, opts Options, logger *slog.Logger) (*Index, error) {
	if opts.Window <= 0 {
		opts.Window = 5 * time.Second
	} else if opts.Window < time.Second {
		// Bucket arithmetic works in whole seconds.
		opts.Window = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "remoteindex")

	albums, err := svc.ListAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("build remote index: list albums: %w", err)
	}

	albumNames := make(map[string]string, len(albums))
	assetAlbums := make(map[string][]string)
	var scopeAssetIDs map[string]struct{}
	scopeFound := opts.ScopeAlbum == ""

	for _, album := range albums {
		albumNames[album.ID] = album.AlbumName
		detail, err := svc.GetAlbum(ctx, album.ID)
		if err != nil {
			return nil, fmt.Errorf("build remote index: album %s: %w", album.ID, err)
		}
		inScope := opts.ScopeAlbum != "" && album.AlbumName == opts.ScopeAlbum
		if inScope {
			scopeFound = true
			scopeAssetIDs = make(map[string]struct{}, len(detail.Assets))
		}
		for _, asset := range detail.Assets {
			assetAlbums[asset.ID] = append(assetAlbums[asset.ID], album.ID)
			if inScope {
				scopeAssetIDs[asset.ID] = struct{}{}
			}
		}
	}
	if !scopeFound {
		return nil, fmt.Errorf("build remote index: scope album %q not found", opts.ScopeAlbum)
	}

	remote, err := svc.ListAssets(ctx, opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("build remote index: list assets: %w", err)
	}

	idx := &Index{
		AlbumNames: albumNames,
		byChecksum: make(map[string][]*Asset),
		byNameTime: make(map[nameTimeKey][]*Asset),
		window:     opts.Window,
	}

	for _, raw := range remote {
		if scopeAssetIDs != nil {
			if _, ok := scopeAssetIDs[raw.ID]; !ok {
				continue
			}
		}
		asset := convert(raw, assetAlbums[raw.ID])
		idx.Assets = append(idx.Assets, asset)
		idx.byChecksum[asset.Checksum] = append(idx.byChecksum[asset.Checksum], asset)
		key := nameTimeKey{stem: asset.Stem(), bucket: idx.bucket(asset.CapturedAt)}
		idx.byNameTime[key] = append(idx.byNameTime[key], asset)
	}

	log.Info("remote index built",
		"assets", len(idx.Assets),
		"albums", len(albums),
		"scoped", scopeAssetIDs != nil)
	return idx, nil
}

func convert(raw immich.Asset, albumIDs []string) *Asset {
	capturedAt := raw.LocalDateTime
	if capturedAt.IsZero() {
		capturedAt = raw.FileCreatedAt
	}
	var size int64
	deviceMake, model := "", ""
	if raw.ExifInfo != nil {
		size = raw.ExifInfo.FileSizeInByte
		deviceMake = raw.ExifInfo.Make
		model = raw.ExifInfo.Model
	}
	media := catalog.MediaPhoto
	if raw.Type == "VIDEO" {
		media = catalog.MediaVideo
	}
	asset := &Asset{
		ID:         raw.ID,
		Checksum:   raw.Checksum,
		FileName:   raw.OriginalFileName,
		CapturedAt: capturedAt,
		Size:       size,
		Media:      media,
		AlbumIDs:   albumIDs,
		Favorite:   raw.IsFavorite,
		Provenance: ClassifyProvenance(raw.DeviceID, deviceMake, model),
	}
	if raw.Stack != nil {
		asset.StackID = raw.Stack.ID
		asset.StackPrimary = raw.Stack.PrimaryAssetID == raw.ID
	}
	return asset
}

func (x *Index) bucket(ts time.Time) int64 {
	return ts.Unix() / int64(x.window/time.Second)
}

// ByChecksum returns every remote asset holding the checksum. Duplicates are
// unexpected but tolerated; all are kept.
func (x *Index) ByChecksum(checksum string) []*Asset {
	return x.byChecksum[checksum]
}

// Candidates returns remote assets whose normalized stem matches and whose
// capture time falls in the same or an adjacent tolerance bucket.
func (x *Index) Candidates(stem string, ts time.Time) []*Asset {
	center := x.bucket(ts)
	var out []*Asset
	for _, bucket := range []int64{center - 1, center, center + 1} {
		out = append(out, x.byNameTime[nameTimeKey{stem: stem, bucket: bucket}]...)
	}
	return out
}

// Window returns the tolerance used when bucketing capture times.
func (x *Index) Window() time.Duration {
	return x.window
}
