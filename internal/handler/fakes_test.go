package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
	wfmodels "meridian/internal/domain/models/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// -- run store / event store, same in-memory shape as the workflows
// package's fakes, duplicated here since these are unexported test types
// in a different package. --------------------------------------------------

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*wfmodels.Run
}

func newFakeRunStore() *fakeRunStore { return &fakeRunStore{runs: make(map[string]*wfmodels.Run)} }

func (f *fakeRunStore) Create(ctx context.Context, run *wfmodels.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.RunID] = &cp
	return nil
}

func (f *fakeRunStore) Get(ctx context.Context, runID string) (*wfmodels.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRunStore) UpdateState(ctx context.Context, runID string, state wfmodels.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	run.State = state
	return nil
}

func (f *fakeRunStore) ListNonTerminal(ctx context.Context) ([]*wfmodels.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wfmodels.Run
	for _, run := range f.runs {
		if !run.State.Terminal() {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events map[string][]wfmodels.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string][]wfmodels.Event)}
}

func (f *fakeEventStore) Append(ctx context.Context, runID string, kind wfmodels.EventKind, payload json.RawMessage) (wfmodels.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := int64(len(f.events[runID]))
	ev := wfmodels.Event{RunID: runID, Index: index, Kind: kind, Payload: payload}
	f.events[runID] = append(f.events[runID], ev)
	return ev, nil
}

func (f *fakeEventStore) ListFrom(ctx context.Context, runID string, fromIndex int64) ([]wfmodels.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wfmodels.Event
	for _, ev := range f.events[runID] {
		if ev.Index >= fromIndex {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) Head(ctx context.Context, runID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events[runID])) - 1, nil
}

// -- video domain fakes ------------------------------------------------------

type fakeVersionedRunRepo struct {
	mu   sync.Mutex
	rows map[string]*vm.VersionedRun
	next map[string]int
}

func newFakeVersionedRunRepo() *fakeVersionedRunRepo {
	return &fakeVersionedRunRepo{rows: make(map[string]*vm.VersionedRun), next: make(map[string]int)}
}

func vkey(resourceID string, kind vm.ResourceKind, version int) string {
	return resourceID + "|" + string(kind) + "|" + string(rune(version))
}

func vgroup(resourceID string, kind vm.ResourceKind) string {
	return resourceID + "|" + string(kind)
}

func (f *fakeVersionedRunRepo) GetLatestCompleted(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *vm.VersionedRun
	for _, row := range f.rows {
		if row.ResourceID == resourceID && row.ResourceKind == kind && row.Status == vm.VersionedRunCompleted {
			if latest == nil || row.Version > latest.Version {
				latest = row
			}
		}
	}
	return latest, nil
}

func (f *fakeVersionedRunRepo) GetStreaming(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ResourceID == resourceID && row.ResourceKind == kind && row.Status == vm.VersionedRunStreaming {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeVersionedRunRepo) Create(ctx context.Context, row *vm.VersionedRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.ResourceID == row.ResourceID && existing.ResourceKind == row.ResourceKind && existing.Status == vm.VersionedRunStreaming {
			return domain.ErrConflict
		}
	}
	gk := vgroup(row.ResourceID, row.ResourceKind)
	f.next[gk]++
	row.Version = f.next[gk]
	cp := *row
	f.rows[vkey(row.ResourceID, row.ResourceKind, row.Version)] = &cp
	return nil
}

func (f *fakeVersionedRunRepo) SetWorkflowRunID(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, workflowRunID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[vkey(resourceID, kind, version)]
	if !ok {
		return domain.ErrNotFound
	}
	row.WorkflowRunID = workflowRunID
	return nil
}

func (f *fakeVersionedRunRepo) Complete(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, resultJSON []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[vkey(resourceID, kind, version)]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = vm.VersionedRunCompleted
	row.ResultJSON = resultJSON
	return nil
}

func (f *fakeVersionedRunRepo) Fail(ctx context.Context, resourceID string, kind vm.ResourceKind, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[vkey(resourceID, kind, version)]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = vm.VersionedRunFailed
	return nil
}

func (f *fakeVersionedRunRepo) List(ctx context.Context, resourceID string, kind vm.ResourceKind) ([]*vm.VersionedRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*vm.VersionedRun
	for _, row := range f.rows {
		if row.ResourceID == resourceID && row.ResourceKind == kind {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeSlideExtractionRepo struct {
	mu   sync.Mutex
	rows map[string]*vm.SlideExtraction
}

func newFakeSlideExtractionRepo() *fakeSlideExtractionRepo {
	return &fakeSlideExtractionRepo{rows: make(map[string]*vm.SlideExtraction)}
}

func (f *fakeSlideExtractionRepo) Get(ctx context.Context, resourceID string) (*vm.SlideExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[resourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSlideExtractionRepo) ClaimInProgress(ctx context.Context, resourceID, placeholder string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[resourceID]
	if !ok {
		f.rows[resourceID] = &vm.SlideExtraction{ResourceID: resourceID, Status: vm.SlideExtractionInProgress, RunID: placeholder}
		return true, nil
	}
	row.Status = vm.SlideExtractionInProgress
	if row.RunID == "" {
		row.RunID = placeholder
		return true, nil
	}
	return row.RunID == placeholder, nil
}

func (f *fakeSlideExtractionRepo) ReplaceRunID(ctx context.Context, resourceID, placeholder, realRunID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[resourceID]
	if !ok || row.RunID != placeholder {
		return domain.ErrConflict
	}
	row.RunID = realRunID
	return nil
}

func (f *fakeSlideExtractionRepo) SetStatus(ctx context.Context, resourceID string, status vm.SlideExtractionStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[resourceID]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = status
	row.ErrorMessage = errMessage
	return nil
}

func (f *fakeSlideExtractionRepo) SetCompleted(ctx context.Context, resourceID string, totalSlides int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[resourceID]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = vm.SlideExtractionCompleted
	row.TotalSlides = totalSlides
	return nil
}

type fakeSlideRepo struct {
	mu   sync.Mutex
	rows map[string][]*vm.Slide
}

func newFakeSlideRepo() *fakeSlideRepo { return &fakeSlideRepo{rows: make(map[string][]*vm.Slide)} }

func (f *fakeSlideRepo) Insert(ctx context.Context, s *vm.Slide) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.ResourceID] = append(f.rows[s.ResourceID], s)
	return nil
}

func (f *fakeSlideRepo) List(ctx context.Context, resourceID string) ([]*vm.Slide, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[resourceID], nil
}

func (f *fakeSlideRepo) Exists(ctx context.Context, resourceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[resourceID]) > 0, nil
}

func (f *fakeSlideRepo) Count(ctx context.Context, resourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[resourceID]), nil
}

type fakeSlideFeedbackRepo struct {
	mu   sync.Mutex
	rows map[string][]vm.SlideFeedback
}

func newFakeSlideFeedbackRepo() *fakeSlideFeedbackRepo {
	return &fakeSlideFeedbackRepo{rows: make(map[string][]vm.SlideFeedback)}
}

func (f *fakeSlideFeedbackRepo) Get(ctx context.Context, resourceID string, slideNumber int) (*vm.SlideFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fb := range f.rows[resourceID] {
		if fb.SlideNumber == slideNumber {
			cp := fb
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSlideFeedbackRepo) List(ctx context.Context, resourceID string) ([]vm.SlideFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[resourceID], nil
}

func (f *fakeSlideFeedbackRepo) Upsert(ctx context.Context, fb *vm.SlideFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rows[fb.ResourceID]
	for i, existing := range rows {
		if existing.SlideNumber == fb.SlideNumber {
			rows[i] = *fb
			f.rows[fb.ResourceID] = rows
			return nil
		}
	}
	f.rows[fb.ResourceID] = append(rows, *fb)
	return nil
}
