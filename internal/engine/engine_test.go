package engine_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"retake/internal/catalog"
	"retake/internal/engine"
	"retake/internal/immich"
	"retake/internal/match"
	"retake/internal/plan"
	"retake/internal/remoteindex"
	"retake/internal/report"
	"retake/internal/runstate"
	"retake/internal/stackplan"
)

type fakeService struct {
	mu         sync.Mutex
	calls      []string
	uploadErrs []error
	albumErr   error
	deleteErr  error
	nextID     int
	onUpload   func()
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeService) Upload(ctx context.Context, path string, capturedAt time.Time) (*immich.UploadResult, error) {
	f.record("upload " + filepath.Base(path))
	if f.onUpload != nil {
		f.onUpload()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextID++
	return &immich.UploadResult{ID: fmt.Sprintf("new-%d", f.nextID), Status: "created"}, nil
}

func (f *fakeService) DeleteAssets(ctx context.Context, ids []string) error {
	f.record("delete " + strings.Join(ids, ","))
	return f.deleteErr
}

func (f *fakeService) AddToAlbum(ctx context.Context, albumID string, assetIDs []string) error {
	f.record("album " + albumID + " " + strings.Join(assetIDs, ","))
	return f.albumErr
}

func (f *fakeService) SetFavorite(ctx context.Context, assetID string, favorite bool) error {
	f.record(fmt.Sprintf("favorite %s %t", assetID, favorite))
	return nil
}

func (f *fakeService) CreateStack(ctx context.Context, assetIDs []string) (*immich.Stack, error) {
	f.record("stack " + strings.Join(assetIDs, ","))
	return &immich.Stack{ID: "stack-1", PrimaryAssetID: assetIDs[0]}, nil
}

func (f *fakeService) DeleteStack(ctx context.Context, stackID string) error {
	f.record("unstack " + stackID)
	return nil
}

func (f *fakeService) EmptyTrash(ctx context.Context) error {
	f.record("empty-trash")
	return nil
}

type collectReporter struct {
	mu    sync.Mutex
	lines []report.Line
}

func (c *collectReporter) Append(line report.Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func openStore(t *testing.T) *runstate.Store {
	t.Helper()
	store, err := runstate.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func asset(path string, variant catalog.Variant, base string) catalog.Asset {
	return catalog.Asset{
		Path:       path,
		Checksum:   "sum-" + filepath.Base(path),
		CapturedAt: time.Date(2023, 7, 14, 12, 0, 0, 0, time.UTC),
		Variant:    variant,
		BaseKey:    base,
		Media:      catalog.MediaPhoto,
		Size:       4096,
	}
}

// replacePlan builds the canonical scenario: replace the mobile original,
// upload the fresh edited rendition, stack with the edited copy on top.
func replacePlan() plan.Plan {
	mobile := &remoteindex.Asset{
		ID: "old-1", Favorite: true, AlbumIDs: []string{"trip"},
		Provenance: remoteindex.ProvenanceMobile,
	}
	matches := []match.Match{
		{Local: asset("/x/IMG_0001.JPG", catalog.VariantOriginal, "/x/img_0001"),
			Remote: mobile, Reason: match.ReasonNameAndTime, Confidence: 0.9},
		{Local: asset("/x/IMG_0001_edited.JPG", catalog.VariantEdited, "/x/img_0001"),
			Reason: match.ReasonNone},
	}
	res := match.Result{Matches: matches}
	return plan.Build(res, stackplan.Build(matches))
}

func newEngine(svc engine.Service, store *runstate.Store, rep engine.Reporter, opts engine.Options) *engine.Engine {
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	return engine.New(svc, store, rep, nil, opts)
}

func TestExecuteReplaceUploadStack(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	rep := &collectReporter{}
	eng := newEngine(svc, store, rep, engine.Options{RunID: "run-1"})

	summary, err := eng.Execute(context.Background(), replacePlan())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Done != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	want := []string{
		"upload IMG_0001.JPG",
		"album trip new-1",
		"favorite new-1 true",
		"delete old-1",
		"upload IMG_0001_edited.JPG",
		"stack new-2,new-1",
		"empty-trash",
	}
	got := svc.callLog()
	if len(got) != len(want) {
		t.Fatalf("call log mismatch:\n got %v\nwant %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}

	done, err := store.IsDone(context.Background(), "sum-IMG_0001.JPG|/x/IMG_0001.JPG")
	if err != nil || !done {
		t.Fatalf("replace outcome not recorded done: %v %v", done, err)
	}
	if len(rep.lines) != 3 {
		t.Fatalf("expected 3 report lines, got %d", len(rep.lines))
	}
}

func TestMetadataFailurePreventsDelete(t *testing.T) {
	svc := &fakeService{albumErr: fmt.Errorf("%w: album gone", immich.ErrValidation)}
	store := openStore(t)
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})

	summary, err := eng.Execute(context.Background(), replacePlan())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("replace should fail, got %+v", summary)
	}

	for _, call := range svc.callLog() {
		if strings.HasPrefix(call, "delete ") {
			t.Fatalf("old asset deleted after metadata failure: %v", svc.callLog())
		}
		if strings.HasPrefix(call, "stack ") {
			t.Fatalf("stack formed around failed replace: %v", svc.callLog())
		}
	}

	rec, err := store.Get(context.Background(), "sum-IMG_0001.JPG|/x/IMG_0001.JPG")
	if err != nil || rec == nil || rec.Outcome != runstate.OutcomeFailed {
		t.Fatalf("failed outcome not recorded: %+v err=%v", rec, err)
	}
}

func TestDoneRecordSkipsMutation(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	ctx := context.Background()

	for _, identity := range []string{
		"sum-IMG_0001.JPG|/x/IMG_0001.JPG",
		"sum-IMG_0001_edited.JPG|/x/IMG_0001_edited.JPG",
		"stack|/x/img_0001|sum-IMG_0001.JPG,sum-IMG_0001_edited.JPG",
	} {
		if err := store.Put(ctx, runstate.Record{Identity: identity, Outcome: runstate.OutcomeDone, Operation: "x", RunID: "run-0"}); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})
	summary, err := eng.Execute(ctx, replacePlan())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Skipped != 3 || summary.Done != 0 {
		t.Fatalf("resumed run should skip everything, got %+v", summary)
	}
	if calls := svc.callLog(); len(calls) != 0 {
		t.Fatalf("no remote calls expected on resume, got %v", calls)
	}

	// The resume skip must not downgrade done records, or a third run
	// would re-execute the work.
	rec, err := store.Get(ctx, "sum-IMG_0001.JPG|/x/IMG_0001.JPG")
	if err != nil || rec == nil || rec.Outcome != runstate.OutcomeDone {
		t.Fatalf("done record lost on resume: %+v err=%v", rec, err)
	}
}

func TestStackReexecutesWhenGroupGrows(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	ctx := context.Background()

	photo := asset("/x/IMG_0005.JPG", catalog.VariantOriginal, "/x/img_0005")
	video := asset("/x/IMG_0005.MOV", catalog.VariantOriginal, "/x/img_0005")
	video.Media = catalog.MediaVideo
	settled := []match.Match{
		{Local: photo, Remote: &remoteindex.Asset{ID: "o"}, Reason: match.ReasonExactChecksum, Confidence: 1},
		{Local: video, Remote: &remoteindex.Asset{ID: "v"}, Reason: match.ReasonExactChecksum, Confidence: 1},
	}
	first := plan.Build(match.Result{Matches: settled}, stackplan.Build(settled))

	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})
	if _, err := eng.Execute(ctx, first); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// A new edited rendition joins the group between runs. The recorded
	// stack outcome covers the old membership only; the group must restack.
	edited := asset("/x/IMG_0005_edited.JPG", catalog.VariantEdited, "/x/img_0005")
	grown := append([]match.Match{{Local: edited, Reason: match.ReasonNone}}, settled...)
	second := plan.Build(match.Result{Matches: grown}, stackplan.Build(grown))

	svc2 := &fakeService{}
	eng2 := newEngine(svc2, store, &collectReporter{}, engine.Options{RunID: "run-2"})
	summary, err := eng2.Execute(ctx, second)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Done != 2 {
		t.Fatalf("expected upload and restack done, got %+v", summary)
	}

	var stacked bool
	for _, call := range svc2.callLog() {
		if call == "stack new-1,o,v" {
			stacked = true
		}
	}
	if !stacked {
		t.Fatalf("grown group never restacked: %v", svc2.callLog())
	}
}

func TestTransientErrorsRetried(t *testing.T) {
	svc := &fakeService{uploadErrs: []error{
		fmt.Errorf("%w: 503", immich.ErrTransient),
		fmt.Errorf("%w: 503", immich.ErrTransient),
	}}
	store := openStore(t)
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1", RetryAttempts: 4})

	matches := []match.Match{{Local: asset("/x/IMG_0002.JPG", catalog.VariantOriginal, "/x/img_0002")}}
	p := plan.Build(match.Result{Matches: matches}, nil)

	summary, err := eng.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Done != 1 {
		t.Fatalf("upload should succeed after retries, got %+v", summary)
	}
	uploads := 0
	for _, call := range svc.callLog() {
		if strings.HasPrefix(call, "upload ") {
			uploads++
		}
	}
	if uploads != 3 {
		t.Fatalf("expected 3 upload attempts, got %d", uploads)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	svc := &fakeService{uploadErrs: []error{fmt.Errorf("%w: bad payload", immich.ErrValidation)}}
	store := openStore(t)
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1", RetryAttempts: 4})

	matches := []match.Match{{Local: asset("/x/IMG_0003.JPG", catalog.VariantOriginal, "/x/img_0003")}}
	summary, err := eng.Execute(context.Background(), plan.Build(match.Result{Matches: matches}, nil))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("permanent failure expected, got %+v", summary)
	}
	if calls := svc.callLog(); len(calls) != 1 {
		t.Fatalf("permanent error must not retry, got %v", calls)
	}
}

func TestDryRunIssuesNoMutations(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	rep := &collectReporter{}
	eng := newEngine(svc, store, rep, engine.Options{RunID: "run-1", DryRun: true})

	summary, err := eng.Execute(context.Background(), replacePlan())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Done != 3 {
		t.Fatalf("dry-run decisions must mirror live, got %+v", summary)
	}
	if calls := svc.callLog(); len(calls) != 0 {
		t.Fatalf("dry-run must not call the service, got %v", calls)
	}

	records, err := store.List(context.Background())
	if err != nil || len(records) != 0 {
		t.Fatalf("dry-run must leave run state untouched: %v err=%v", records, err)
	}
	if len(rep.lines) != 3 {
		t.Fatalf("dry-run still reports every op, got %d lines", len(rep.lines))
	}
	for _, line := range rep.lines {
		if !line.Simulated {
			t.Fatalf("dry-run line not marked simulated: %+v", line)
		}
	}
}

func TestStaleStackUnstackedBeforeCreate(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})

	// Both variants already uploaded, but stacked wrong: the original leads.
	matches := []match.Match{
		{Local: asset("/x/IMG_0004.JPG", catalog.VariantOriginal, "/x/img_0004"),
			Remote: &remoteindex.Asset{ID: "o", StackID: "s-old", StackPrimary: true},
			Reason: match.ReasonExactChecksum, Confidence: 1},
		{Local: asset("/x/IMG_0004_edited.JPG", catalog.VariantEdited, "/x/img_0004"),
			Remote: &remoteindex.Asset{ID: "e", StackID: "s-old"},
			Reason: match.ReasonExactChecksum, Confidence: 1},
	}
	p := plan.Build(match.Result{Matches: matches}, stackplan.Build(matches))

	summary, err := eng.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}

	var sawUnstack bool
	for _, call := range svc.callLog() {
		if call == "unstack s-old" {
			sawUnstack = true
		}
		if call == "stack e,o" && !sawUnstack {
			t.Fatalf("stale stack must be removed before creating: %v", svc.callLog())
		}
	}
	if !sawUnstack {
		t.Fatalf("stale stack never removed: %v", svc.callLog())
	}
}

func TestCancellationStopsScheduling(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := eng.Execute(ctx, replacePlan())
	if err == nil {
		t.Fatal("expected context error after cancellation")
	}
	if summary.Done != 0 {
		t.Fatalf("cancelled run should not complete work, got %+v", summary)
	}
}

func TestOutcomePersistsThroughCancellation(t *testing.T) {
	svc := &fakeService{}
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The user cancels while the upload is on the wire; it still succeeds.
	svc.onUpload = cancel

	matches := []match.Match{{Local: asset("/x/IMG_0006.JPG", catalog.VariantOriginal, "/x/img_0006")}}
	eng := newEngine(svc, store, &collectReporter{}, engine.Options{RunID: "run-1"})

	summary, err := eng.Execute(ctx, plan.Build(match.Result{Matches: matches}, nil))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if summary.Done != 1 {
		t.Fatalf("in-flight upload should finish, got %+v", summary)
	}

	rec, err := store.Get(context.Background(), "sum-IMG_0006.JPG|/x/IMG_0006.JPG")
	if err != nil || rec == nil || rec.Outcome != runstate.OutcomeDone {
		t.Fatalf("outcome lost after cancellation: %+v err=%v", rec, err)
	}
}
