package match

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"retake/internal/catalog"
	"retake/internal/remoteindex"
)

// Reason records how a local asset was paired to a remote one.
type Reason string

const (
	// ReasonExactChecksum means the remote asset holds identical bytes.
	ReasonExactChecksum Reason = "exact-checksum"
	// ReasonNameAndTime means the pairing came from the filename stem and
	// capture-time proximity index.
	ReasonNameAndTime Reason = "name-and-time-proximity"
	// ReasonNone means no remote counterpart exists.
	ReasonNone Reason = "none"
)

// Match pairs one local asset with at most one remote asset. Remote is nil
// for fresh uploads. NeedsReview marks pairings too ambiguous to act on:
// an incorrect automatic replace is destructive, so the matcher never
// guesses between equally plausible candidates.
type Match struct {
	Local       catalog.Asset
	Remote      *remoteindex.Asset
	Reason      Reason
	Confidence  float64
	NeedsReview bool
	ReviewNote  string
}

// Result is the matcher output: exactly one Match per local asset, plus the
// remote assets no local asset resolved to (left untouched).
type Result struct {
	Matches  []Match
	Residual []*remoteindex.Asset
}

// Run matches every local asset against the remote index. Album and
// favorite state are never match signals; they are carried forward later.
func Run(locals []catalog.Asset, idx *remoteindex.Index) Result {
	claimed := make(map[string]string, len(locals))
	matches := make([]Match, 0, len(locals))

	for _, local := range locals {
		m := matchOne(local, idx, claimed)
		if m.Remote != nil && !m.NeedsReview {
			claimed[m.Remote.ID] = local.Path
		}
		matches = append(matches, m)
	}

	matchedIDs := make(map[string]struct{}, len(claimed))
	for id := range claimed {
		matchedIDs[id] = struct{}{}
	}
	var residual []*remoteindex.Asset
	for _, asset := range idx.Assets {
		if _, ok := matchedIDs[asset.ID]; !ok {
			residual = append(residual, asset)
		}
	}

	return Result{Matches: matches, Residual: residual}
}

func matchOne(local catalog.Asset, idx *remoteindex.Index, claimed map[string]string) Match {
	if hits := idx.ByChecksum(local.Checksum); len(hits) > 0 {
		// Identical bytes already uploaded. Duplicate checksums are
		// tolerated; pick deterministically.
		hit := hits[0]
		if len(hits) > 1 {
			sorted := append([]*remoteindex.Asset{}, hits...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
			hit = sorted[0]
		}
		return Match{Local: local, Remote: hit, Reason: ReasonExactChecksum, Confidence: 1.0}
	}

	stem := catalog.NormalizeStem(strings.TrimSuffix(filepath.Base(local.Path), filepath.Ext(local.Path)))
	candidates := idx.Candidates(stem, local.CapturedAt)

	filtered := candidates[:0:0]
	claimedSkips := 0
	for _, candidate := range candidates {
		if candidate.Media != local.Media {
			continue
		}
		if _, taken := claimed[candidate.ID]; taken {
			claimedSkips++
			continue
		}
		filtered = append(filtered, candidate)
	}

	switch len(filtered) {
	case 0:
		if claimedSkips > 0 {
			// Another local asset already claimed every candidate this
			// run. Uploading fresh could duplicate; flag instead.
			return Match{
				Local:       local,
				Reason:      ReasonNone,
				NeedsReview: true,
				ReviewNote:  "all candidates claimed by earlier matches",
			}
		}
		return Match{Local: local, Reason: ReasonNone}
	case 1:
		return Match{
			Local:      local,
			Remote:     filtered[0],
			Reason:     ReasonNameAndTime,
			Confidence: confidence(local, filtered[0], idx.Window()),
		}
	}

	best, note := disambiguate(local, filtered)
	if best == nil {
		return Match{
			Local:       local,
			Reason:      ReasonNone,
			NeedsReview: true,
			ReviewNote:  note,
		}
	}
	return Match{
		Local:      local,
		Remote:     best,
		Reason:     ReasonNameAndTime,
		Confidence: confidence(local, best, idx.Window()),
	}
}

// disambiguate applies the tie-break ladder: closest capture timestamp,
// then provenance mobile, then give up and ask for review.
func disambiguate(local catalog.Asset, candidates []*remoteindex.Asset) (*remoteindex.Asset, string) {
	byDistance := append([]*remoteindex.Asset{}, candidates...)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return timeDistance(local.CapturedAt, byDistance[i].CapturedAt) < timeDistance(local.CapturedAt, byDistance[j].CapturedAt)
	})

	bestDistance := timeDistance(local.CapturedAt, byDistance[0].CapturedAt)
	tied := byDistance[:1]
	for _, candidate := range byDistance[1:] {
		if timeDistance(local.CapturedAt, candidate.CapturedAt) == bestDistance {
			tied = append(tied, candidate)
		}
	}
	if len(tied) == 1 {
		return tied[0], ""
	}

	var mobile []*remoteindex.Asset
	for _, candidate := range tied {
		if candidate.Provenance == remoteindex.ProvenanceMobile {
			mobile = append(mobile, candidate)
		}
	}
	if len(mobile) == 1 {
		return mobile[0], ""
	}

	return nil, fmt.Sprintf("%d candidates share stem and capture window", len(candidates))
}

func timeDistance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// confidence scores a name-and-time pairing from timestamp closeness and
// size similarity. Sizes are expected to differ (the export is higher
// fidelity) so time dominates.
func confidence(local catalog.Asset, remote *remoteindex.Asset, window time.Duration) float64 {
	timeScore := 1.0
	if window > 0 {
		d := timeDistance(local.CapturedAt, remote.CapturedAt)
		if d >= window {
			timeScore = 0
		} else {
			timeScore = 1 - float64(d)/float64(window)
		}
	}

	sizeScore := 0.5
	if remote.Size > 0 && local.Size > 0 {
		smaller, larger := float64(local.Size), float64(remote.Size)
		if smaller > larger {
			smaller, larger = larger, smaller
		}
		sizeScore = smaller / larger
	}

	return 0.7*timeScore + 0.3*sizeScore
}
