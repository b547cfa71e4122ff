// Package engine executes a sync plan against the remote service. Groups
// run concurrently up to a worker bound; operations inside a group run
// strictly in order so a replace settles before its stack forms.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"retake/internal/immich"
	"retake/internal/plan"
	"retake/internal/report"
	"retake/internal/runstate"
)

// Service is the slice of the Immich client the engine mutates through.
type Service interface {
	Upload(ctx context.Context, path string, capturedAt time.Time) (*immich.UploadResult, error)
	DeleteAssets(ctx context.Context, ids []string) error
	AddToAlbum(ctx context.Context, albumID string, assetIDs []string) error
	SetFavorite(ctx context.Context, assetID string, favorite bool) error
	CreateStack(ctx context.Context, assetIDs []string) (*immich.Stack, error)
	DeleteStack(ctx context.Context, stackID string) error
	EmptyTrash(ctx context.Context) error
}

// Reporter receives one audit line per operation.
type Reporter interface {
	Append(line report.Line) error
}

// Options tunes execution.
type Options struct {
	DryRun        bool
	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration
	RunID         string
}

const detailAlreadyDone = "completed in an earlier run"

// Summary aggregates the outcomes of one execution.
type Summary struct {
	RunID   string
	Done    int
	Failed  int
	Skipped int
	Review  int
	DryRun  bool
}

// Engine drives plan execution.
type Engine struct {
	svc      Service
	store    *runstate.Store
	reporter Reporter
	log      *slog.Logger
	opts     Options
}

// New constructs an engine. The store is consulted before every mutating
// operation and updated after each outcome; dry-run leaves it untouched.
func New(svc Service, store *runstate.Store, reporter Reporter, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 1500 * time.Millisecond
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Engine{
		svc:      svc,
		store:    store,
		reporter: reporter,
		log:      logger.With("component", "engine", "run_id", opts.RunID),
		opts:     opts,
	}
}

// Execute runs every group in the plan. Cancellation stops scheduling new
// groups; in-flight groups finish and their outcomes are persisted. The
// returned error is the context error when execution was cut short.
func (e *Engine) Execute(ctx context.Context, p plan.Plan) (Summary, error) {
	summary := &lockedSummary{Summary: Summary{RunID: e.opts.RunID, DryRun: e.opts.DryRun}}

	groupCh := make(chan plan.Group)
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groupCh {
				e.runGroup(ctx, group, summary)
			}
		}()
	}

	var cut error
dispatch:
	for _, group := range p.Groups {
		if err := ctx.Err(); err != nil {
			cut = err
			break
		}
		select {
		case <-ctx.Done():
			cut = ctx.Err()
			break dispatch
		case groupCh <- group:
		}
	}
	close(groupCh)
	wg.Wait()

	// Deleted originals sit in the trash holding their checksums; flush so
	// a rerun's duplicate check sees the server's real holdings.
	if !e.opts.DryRun && summary.replaces > 0 && cut == nil {
		if err := e.retry(ctx, "empty-trash", func() error { return e.svc.EmptyTrash(ctx) }); err != nil {
			e.log.Warn("empty trash", "error", err)
		}
	}

	e.log.Info("execution finished",
		"done", summary.Done,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"review", summary.Review,
		"dry_run", e.opts.DryRun)
	return summary.Summary, cut
}

type lockedSummary struct {
	mu       sync.Mutex
	replaces int
	Summary
}

func (s *lockedSummary) count(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case "done":
		s.Done++
	case "failed":
		s.Failed++
	case "skipped":
		s.Skipped++
	case "review":
		s.Review++
	}
}

// runGroup executes one group's operations sequentially. A failed member
// operation poisons the group's stack operation: a stack must never form
// around an asset whose replace is incomplete.
func (e *Engine) runGroup(ctx context.Context, group plan.Group, summary *lockedSummary) {
	uploaded := make(map[string]string)
	replaced := make(map[string]string)
	memberFailed := false

	for _, op := range group.Ops {
		outcome, detail := e.runOp(ctx, op, uploaded, replaced, memberFailed)
		if outcome == "failed" && op.Kind != plan.KindStack {
			memberFailed = true
		}
		if outcome == "done" && op.Kind == plan.KindReplace {
			summary.mu.Lock()
			summary.replaces++
			summary.mu.Unlock()
		}
		summary.count(outcome)
		e.finish(ctx, op, outcome, detail)
	}
}

func (e *Engine) runOp(ctx context.Context, op plan.Operation, uploaded, replaced map[string]string, memberFailed bool) (string, string) {
	switch op.Kind {
	case plan.KindSkip:
		return "skipped", op.Reason
	case plan.KindReview:
		return "review", op.Reason
	case plan.KindUpload:
		return e.gated(ctx, op.Local.Identity(), func() (string, error) {
			return e.doUpload(ctx, op, uploaded)
		})
	case plan.KindReplace:
		return e.gated(ctx, op.Local.Identity(), func() (string, error) {
			return e.doReplace(ctx, op, uploaded, replaced)
		})
	case plan.KindStack:
		if memberFailed {
			return "skipped", "member operation failed, stack deferred to next run"
		}
		return e.gated(ctx, stackIdentity(op), func() (string, error) {
			return e.doStack(ctx, op, uploaded, replaced)
		})
	default:
		return "failed", fmt.Sprintf("unknown operation kind %q", op.Kind)
	}
}

// gated consults the ledger before a mutating operation and maps the
// result to an outcome. The ledger read is detached from the run context
// so an in-flight operation can still be gated correctly after cancel.
func (e *Engine) gated(ctx context.Context, identity string, fn func() (string, error)) (string, string) {
	done, err := e.store.IsDone(context.WithoutCancel(ctx), identity)
	if err != nil {
		return "failed", fmt.Sprintf("consult run state: %v", err)
	}
	if done {
		return "skipped", detailAlreadyDone
	}

	detail, err := fn()
	if err != nil {
		return "failed", err.Error()
	}
	return "done", detail
}

// finish persists the outcome and appends the audit line. Dry-run skips
// the ledger write but still reports, so the operator sees every decision.
func (e *Engine) finish(ctx context.Context, op plan.Operation, outcome, detail string) {
	identity := op.Local.Identity()
	size := op.Local.Size
	if op.Kind == plan.KindStack {
		identity = stackIdentity(op)
		size = 0
	}

	// An already-done skip must not downgrade the ledger's done record,
	// or the run after next would re-execute the operation.
	if !e.opts.DryRun && detail != detailAlreadyDone {
		rec := runstate.Record{
			Identity:  identity,
			Outcome:   storeOutcome(outcome),
			Operation: string(op.Kind),
			Detail:    detail,
			RunID:     e.opts.RunID,
		}
		// Detached from the run context: an operation that finished as the
		// user cancelled still persists, or the next run redoes its work.
		if err := e.store.Put(context.WithoutCancel(ctx), rec); err != nil {
			e.log.Error("persist outcome", "identity", identity, "error", err)
		}
	}

	if e.reporter != nil {
		line := report.Line{
			RunID:     e.opts.RunID,
			Identity:  identity,
			Operation: string(op.Kind),
			Outcome:   outcome,
			Detail:    detail,
			Size:      size,
			Simulated: e.opts.DryRun,
		}
		if err := e.reporter.Append(line); err != nil {
			e.log.Error("append report line", "identity", identity, "error", err)
		}
	}

	level := slog.LevelInfo
	if outcome == "failed" {
		level = slog.LevelWarn
	}
	e.log.Log(ctx, level, "operation finished",
		"op", string(op.Kind),
		"outcome", outcome,
		"asset", identity,
		"detail", detail,
		"simulated", e.opts.DryRun)
}

func (e *Engine) doUpload(ctx context.Context, op plan.Operation, uploaded map[string]string) (string, error) {
	if e.opts.DryRun {
		return fmt.Sprintf("would upload %s", op.Local.Path), nil
	}

	var result *immich.UploadResult
	err := e.retry(ctx, "upload", func() error {
		res, err := e.svc.Upload(ctx, op.Local.Path, op.Local.CapturedAt)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", op.Local.Path, err)
	}

	uploaded[op.Local.Path] = result.ID
	if result.Status == immich.UploadStatusDuplicate {
		return fmt.Sprintf("reused existing asset %s", result.ID), nil
	}
	return fmt.Sprintf("uploaded as %s", result.ID), nil
}

// doReplace is one unit: upload the export copy, carry the old asset's
// albums and favorite flag, delete the old asset last. Any failure before
// the delete leaves the old asset in place; a duplicate beats a loss.
func (e *Engine) doReplace(ctx context.Context, op plan.Operation, uploaded, replaced map[string]string) (string, error) {
	if e.opts.DryRun {
		return fmt.Sprintf("would replace %s with %s carrying %d albums (favorite=%t)",
			op.OldRemote.ID, op.Local.Path, len(op.OldRemote.AlbumIDs), op.OldRemote.Favorite), nil
	}

	var newID string
	err := e.retry(ctx, "upload", func() error {
		res, err := e.svc.Upload(ctx, op.Local.Path, op.Local.CapturedAt)
		if err != nil {
			return err
		}
		newID = res.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload replacement for %s: %w", op.OldRemote.ID, err)
	}
	uploaded[op.Local.Path] = newID

	for _, albumID := range op.OldRemote.AlbumIDs {
		addErr := e.retry(ctx, "add-to-album", func() error {
			return e.svc.AddToAlbum(ctx, albumID, []string{newID})
		})
		if addErr != nil {
			return "", fmt.Errorf("carry album %s to %s: %w (old asset kept)", albumID, newID, addErr)
		}
	}
	if op.OldRemote.Favorite {
		favErr := e.retry(ctx, "set-favorite", func() error {
			return e.svc.SetFavorite(ctx, newID, true)
		})
		if favErr != nil {
			return "", fmt.Errorf("carry favorite to %s: %w (old asset kept)", newID, favErr)
		}
	}

	delErr := e.retry(ctx, "delete", func() error {
		return e.svc.DeleteAssets(ctx, []string{op.OldRemote.ID})
	})
	if delErr != nil {
		return "", fmt.Errorf("delete old asset %s: %w", op.OldRemote.ID, delErr)
	}

	replaced[op.OldRemote.ID] = newID
	return fmt.Sprintf("replaced %s with %s", op.OldRemote.ID, newID), nil
}

// doStack resolves every member to its current remote ID, unstacks stale
// stacks, and creates the new stack with the primary listed first.
func (e *Engine) doStack(ctx context.Context, op plan.Operation, uploaded, replaced map[string]string) (string, error) {
	if e.opts.DryRun {
		// No IDs exist for simulated uploads; report the shape only.
		return fmt.Sprintf("would stack %d assets with %s on top",
			len(op.Stack.Members), op.Stack.Primary().Local.Path), nil
	}

	ids := make([]string, 0, len(op.Stack.Members))
	for _, member := range op.Stack.Members {
		if id, ok := uploaded[member.Local.Path]; ok {
			ids = append(ids, id)
			continue
		}
		if member.Remote != nil {
			id := member.Remote.ID
			if newID, ok := replaced[id]; ok {
				id = newID
			}
			ids = append(ids, id)
			continue
		}
		return "", fmt.Errorf("stack member %s has no remote asset", member.Local.Path)
	}

	staleStacks := make(map[string]struct{})
	for _, member := range op.Stack.Members {
		if member.Remote == nil || member.Remote.StackID == "" {
			continue
		}
		if _, gone := replaced[member.Remote.ID]; gone {
			continue
		}
		staleStacks[member.Remote.StackID] = struct{}{}
	}
	for stackID := range staleStacks {
		unstackErr := e.retry(ctx, "delete-stack", func() error {
			return e.svc.DeleteStack(ctx, stackID)
		})
		if unstackErr != nil {
			return "", fmt.Errorf("unstack stale stack %s: %w", stackID, unstackErr)
		}
	}

	var stack *immich.Stack
	err := e.retry(ctx, "create-stack", func() error {
		created, err := e.svc.CreateStack(ctx, ids)
		if err != nil {
			return err
		}
		stack = created
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create stack for %s: %w", op.Stack.BaseKey, err)
	}
	return fmt.Sprintf("stacked %d assets as %s", len(ids), stack.ID), nil
}

// retry runs fn, retrying transient failures with doubling backoff up to
// the attempt bound. Permanent errors return immediately.
func (e *Engine) retry(ctx context.Context, what string, fn func() error) error {
	backoff := e.opts.RetryBackoff
	var err error
	for attempt := 1; attempt <= e.opts.RetryAttempts; attempt++ {
		err = fn()
		if err == nil || !immich.IsTransient(err) {
			return err
		}
		if attempt == e.opts.RetryAttempts {
			break
		}
		e.log.Warn("transient failure, retrying",
			"call", what,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func storeOutcome(outcome string) runstate.Outcome {
	switch outcome {
	case "done":
		return runstate.OutcomeDone
	case "failed":
		return runstate.OutcomeFailed
	default:
		return runstate.OutcomeSkipped
	}
}

// stackIdentity covers the member set, not just the base key. A group that
// gains or loses a variant gets a fresh identity, so the restack runs even
// though an earlier membership was recorded done.
func stackIdentity(op plan.Operation) string {
	sums := make([]string, 0, len(op.Stack.Members))
	for _, member := range op.Stack.Members {
		sums = append(sums, member.Local.Checksum)
	}
	sort.Strings(sums)
	return "stack|" + op.Stack.BaseKey + "|" + strings.Join(sums, ",")
}
