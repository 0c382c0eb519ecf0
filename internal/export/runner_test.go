package export

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/db"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

type fakeExporter struct {
	calls int
	out   []byte
	err   error
	snap  session.ExportSnapshot
}

func (f *fakeExporter) Run(_ context.Context, snap session.ExportSnapshot, report ProgressFunc) ([]byte, error) {
	f.calls++
	f.snap = snap
	report(StageRendering, 40)
	if f.err != nil {
		return nil, f.err
	}
	report(StageConverting, 99)
	return f.out, nil
}

type runnerHarness struct {
	runner   *Runner
	exporter *fakeExporter
	repo     *store.SQLiteRepository
	manager  *session.Manager
}

func newTestRunner(t *testing.T) *runnerHarness {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := store.NewRepository(database.Conn())
	manager := session.NewManager(context.Background(), session.Deps{
		Store:         repo,
		Logger:        testLogger(),
		DraftDelay:    time.Hour,
		FrameInterval: time.Hour,
	})
	t.Cleanup(func() { manager.CloseAll(context.Background()) })

	exp := &fakeExporter{out: []byte("mp4-data")}
	return &runnerHarness{
		runner:   NewRunner(exp, repo, manager, testLogger()),
		exporter: exp,
		repo:     repo,
		manager:  manager,
	}
}

// seedProject stores a project holding one 3 second still.
func (h *runnerHarness) seedProject(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if err := h.repo.PutFile(ctx, &store.MediaFile{ID: "still-" + id, Name: "a.png", MimeType: "image/png", Data: []byte{1}}); err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	err := h.repo.PutProject(ctx, &store.Project{
		ID:   id,
		Name: "Demo",
		Document: store.Document{
			Clips:    []timeline.Clip{timeline.NewClip("still-"+id, "a.png", timeline.KindImage, 0, 0)},
			Captions: captions.DefaultSettings(),
		},
	})
	if err != nil {
		t.Fatalf("PutProject() error = %v", err)
	}
}

func TestSubmit_RefusesEmptyProject(t *testing.T) {
	h := newTestRunner(t)
	if _, err := h.manager.Create(context.Background(), "empty", "Empty"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := h.runner.Submit(context.Background(), "empty"); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("Submit() error = %v, want ErrNothingToExport", err)
	}
	pending, _ := h.repo.ListPendingJobs(context.Background())
	if len(pending) != 0 {
		t.Errorf("pending jobs = %d", len(pending))
	}
}

func TestSubmit_MissingProject(t *testing.T) {
	h := newTestRunner(t)
	if _, err := h.runner.Submit(context.Background(), "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Submit() error = %v, want ErrNotFound", err)
	}
}

func TestSubmit_ReusesQueuedJob(t *testing.T) {
	h := newTestRunner(t)
	h.seedProject(t, "p1")

	first, err := h.runner.Submit(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := h.runner.Submit(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second submit queued a new job %s, want %s", second.ID, first.ID)
	}
}

func TestRunner_CompletesJob(t *testing.T) {
	h := newTestRunner(t)
	ctx := context.Background()
	h.seedProject(t, "p1")

	job, err := h.runner.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	h.runner.processNextJob(ctx)

	got, err := h.repo.GetJob(ctx, job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetJob() = %v, %v", got, err)
	}
	if got.Status != store.JobStatusCompleted || got.Progress != 100 || got.OutputFileID == "" {
		t.Fatalf("job = %+v", got)
	}

	f, err := h.repo.GetFile(ctx, got.OutputFileID)
	if err != nil || f == nil {
		t.Fatalf("GetFile() = %v, %v", f, err)
	}
	if f.Name != "Demo.mp4" || f.MimeType != "video/mp4" || string(f.Data) != "mp4-data" {
		t.Errorf("output file = %s %s %q", f.Name, f.MimeType, f.Data)
	}

	if h.exporter.snap.Timeline.ProjectDuration() != timeline.DefaultImageDur {
		t.Errorf("exported duration = %v", h.exporter.snap.Timeline.ProjectDuration())
	}
	s, _ := h.manager.Open(ctx, "p1")
	if s.Exporting() || s.Status() != "Export complete" {
		t.Errorf("session exporting = %v, status = %q", s.Exporting(), s.Status())
	}
}

func TestRunner_FailedJobCarriesCollaboratorMessage(t *testing.T) {
	h := newTestRunner(t)
	ctx := context.Background()
	h.seedProject(t, "p1")
	h.exporter.err = &ConvertError{StatusCode: 502, Message: "transcoder unavailable"}

	job, err := h.runner.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	h.runner.processNextJob(ctx)

	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != store.JobStatusFailed || got.Error != "transcoder unavailable" {
		t.Fatalf("job = %+v", got)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want last reported 40", got.Progress)
	}

	s, _ := h.manager.Open(ctx, "p1")
	if s.Exporting() {
		t.Error("a failed export must release the session")
	}
	if _, err := s.Play(); err != nil {
		t.Errorf("Play() after failed export error = %v", err)
	}
}

// flakyJobs fails status writes to simulate a locked or broken database.
type flakyJobs struct {
	JobStore
	statusErr error
	statuses  []string
}

func (f *flakyJobs) UpdateJobStatus(ctx context.Context, id, status, msg string) error {
	f.statuses = append(f.statuses, status)
	if f.statusErr != nil {
		return f.statusErr
	}
	return f.JobStore.UpdateJobStatus(ctx, id, status, msg)
}

func TestRunner_StatusWriteFailureSkipsRender(t *testing.T) {
	h := newTestRunner(t)
	ctx := context.Background()
	h.seedProject(t, "p1")

	job, err := h.runner.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	jobs := &flakyJobs{JobStore: h.repo, statusErr: errors.New("database is locked")}
	h.runner.jobs = jobs
	h.runner.processNextJob(ctx)

	if h.exporter.calls != 0 {
		t.Errorf("exporter calls = %d, want 0", h.exporter.calls)
	}
	got, _ := h.repo.GetJob(ctx, job.ID)
	if got.Status != store.JobStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	s, _ := h.manager.Open(ctx, "p1")
	if s.Exporting() {
		t.Error("session must be released when the job cannot start")
	}

	jobs.statusErr = nil
	h.runner.processNextJob(ctx)
	got, _ = h.repo.GetJob(ctx, job.ID)
	if got.Status != store.JobStatusCompleted || h.exporter.calls != 1 {
		t.Errorf("retry: status = %s, exporter calls = %d", got.Status, h.exporter.calls)
	}
}

func TestRunner_NothingPending(t *testing.T) {
	h := newTestRunner(t)
	h.runner.processNextJob(context.Background())
	if h.exporter.calls != 0 {
		t.Error("exporter should not run without jobs")
	}
}

func TestRunner_StartStopsOnCancel(t *testing.T) {
	h := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.runner.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.runner.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	if h.runner.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
}

func TestTruncateStr(t *testing.T) {
	if got := truncateStr("abcdef", 3); got != "def" {
		t.Errorf("truncateStr() = %q", got)
	}
	if got := truncateStr("ab", 3); got != "ab" {
		t.Errorf("truncateStr() = %q", got)
	}
}
