// Package plan turns matcher and stack-planner output into an ordered
// sync plan: per-asset operations grouped so related variants execute
// sequentially while unrelated work can run concurrently.
package plan

import (
	"fmt"
	"sort"

	"retake/internal/catalog"
	"retake/internal/match"
	"retake/internal/remoteindex"
	"retake/internal/stackplan"
)

// Kind names a plan operation.
type Kind string

const (
	KindUpload  Kind = "upload"
	KindReplace Kind = "replace-and-carry-metadata"
	KindStack   Kind = "create-or-update-stack"
	KindSkip    Kind = "skip"
	KindReview  Kind = "flag-for-manual-review"
)

// Operation is one unit of reconciliation work. Stack operations carry a
// Stack group instead of a local asset.
type Operation struct {
	Kind      Kind
	Local     catalog.Asset
	OldRemote *remoteindex.Asset
	Stack     *stackplan.Group
	Reason    string
}

// Group is an ordered run of operations that must execute sequentially:
// the variants of one logical photo plus their stack operation. Groups are
// independent of each other.
type Group struct {
	Key string
	Ops []Operation
}

// Plan is the full ordered output of a reconciliation decision pass.
type Plan struct {
	Groups   []Group
	Residual []*remoteindex.Asset
}

// Operations flattens the plan in group order, for rendering and reports.
func (p Plan) Operations() []Operation {
	var out []Operation
	for _, g := range p.Groups {
		out = append(out, g.Ops...)
	}
	return out
}

// Summary counts operations by kind.
func (p Plan) Summary() map[Kind]int {
	out := make(map[Kind]int)
	for _, g := range p.Groups {
		for _, op := range g.Ops {
			out[op.Kind]++
		}
	}
	return out
}

// Mutating reports whether the plan contains any operation that would
// change remote state. A second run over unchanged state must yield false.
func (p Plan) Mutating() bool {
	for _, g := range p.Groups {
		for _, op := range g.Ops {
			switch op.Kind {
			case KindUpload, KindReplace, KindStack:
				return true
			}
		}
	}
	return false
}

// Build orders matches and stack groups into a plan. Metadata carry is
// part of the replace operation itself, and a group's stack operation is
// appended after every member operation so each member exists remotely
// before the stack call.
func Build(res match.Result, groups []stackplan.Group) Plan {
	groupKey := make(map[string]string)
	for _, g := range groups {
		for _, member := range g.Members {
			groupKey[member.Local.Path] = g.BaseKey
		}
	}

	ordered := make([]string, 0, len(res.Matches))
	byKey := make(map[string]*Group)
	add := func(key string, op Operation) {
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
			ordered = append(ordered, key)
		}
		g.Ops = append(g.Ops, op)
	}

	for _, m := range res.Matches {
		key := m.Local.Path
		if k, ok := groupKey[m.Local.Path]; ok {
			key = k
		}
		add(key, operationFor(m))
	}

	for i := range groups {
		g := &groups[i]
		if g.Satisfied() {
			continue
		}
		add(g.BaseKey, Operation{
			Kind:   KindStack,
			Stack:  g,
			Reason: fmt.Sprintf("stack %d variants, %s on top", len(g.Members), g.Primary().Local.Path),
		})
	}

	plan := Plan{Residual: res.Residual}
	for _, key := range ordered {
		plan.Groups = append(plan.Groups, *byKey[key])
	}
	sort.SliceStable(plan.Groups, func(i, j int) bool { return plan.Groups[i].Key < plan.Groups[j].Key })
	return plan
}

func operationFor(m match.Match) Operation {
	switch {
	case m.NeedsReview:
		return Operation{Kind: KindReview, Local: m.Local, Reason: m.ReviewNote}
	case m.Reason == match.ReasonExactChecksum:
		return Operation{Kind: KindSkip, Local: m.Local, OldRemote: m.Remote, Reason: "identical bytes already uploaded"}
	case m.Remote != nil:
		return Operation{
			Kind:      KindReplace,
			Local:     m.Local,
			OldRemote: m.Remote,
			Reason:    fmt.Sprintf("%s (confidence %.2f)", m.Reason, m.Confidence),
		}
	default:
		return Operation{Kind: KindUpload, Local: m.Local, Reason: "no remote counterpart"}
	}
}
