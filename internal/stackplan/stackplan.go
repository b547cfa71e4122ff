// Package stackplan groups related export variants (an original and its
// edited or derivative siblings) into stack candidates so the remote
// service presents them as one photo with the edited rendition on top.
package stackplan

import (
	"sort"

	"retake/internal/catalog"
	"retake/internal/match"
)

// Group is one stack candidate: every member shares a base key, and the
// first member is the stack primary.
type Group struct {
	BaseKey string
	Members []match.Match
}

// Primary returns the member the stack should surface.
func (g Group) Primary() match.Match {
	return g.Members[0]
}

// Satisfied reports whether the remote service already holds this exact
// stack: every member matched, all in one remote stack, primary on top.
// Execution skips satisfied groups so reruns stay idempotent.
func (g Group) Satisfied() bool {
	var stackID string
	for i, member := range g.Members {
		if member.Remote == nil || member.Remote.StackID == "" {
			return false
		}
		if i == 0 {
			stackID = member.Remote.StackID
			if !member.Remote.StackPrimary {
				return false
			}
			continue
		}
		if member.Remote.StackID != stackID {
			return false
		}
	}
	return true
}

// Build groups matches by base key and keeps groups with two or more
// members. Matches flagged for review are left out: they have no
// settled remote identity to stack.
func Build(matches []match.Match) []Group {
	byKey := make(map[string][]match.Match)
	for _, m := range matches {
		if m.NeedsReview || m.Local.BaseKey == "" {
			continue
		}
		byKey[m.Local.BaseKey] = append(byKey[m.Local.BaseKey], m)
	}

	var groups []Group
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			ri, rj := rank(members[i].Local), rank(members[j].Local)
			if ri != rj {
				return ri < rj
			}
			return members[i].Local.Path < members[j].Local.Path
		})
		groups = append(groups, Group{BaseKey: key, Members: members})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].BaseKey < groups[j].BaseKey })
	return groups
}

// rank orders stack members: the edited rendition outranks the original,
// photos come before videos, derivatives sink to the bottom.
func rank(a catalog.Asset) int {
	r := 0
	switch a.Variant {
	case catalog.VariantEdited:
		r = 0
	case catalog.VariantOriginal:
		r = 10
	default:
		r = 20
	}
	if a.Media == catalog.MediaVideo {
		r++
	}
	return r
}
