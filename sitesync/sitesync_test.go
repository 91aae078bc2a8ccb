package sitesync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sitesync/dbopen"
	"github.com/hazyhaar/sitesync/kit"
	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

const testPage = `<!doctype html><html><body>
<h1>FAQ</h1>
<details><summary>Hva er åpningstidene?</summary><p>09:00–17:00</p></details>
<h3>Do you ship abroad?</h3>
<p>Yes, to all EU countries.</p>
</body></html>`

func allowAll(string) error { return nil }

// setupTestService serves page at /faq and returns a Service that may
// fetch from the test server.
func setupTestService(t *testing.T, page string, opts ...ServiceOption) (*Service, *httptest.Server) {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faq" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	t.Cleanup(site.Close)

	db := dbopen.OpenMemory(t)
	svc, err := New(db, nil, nil, append([]ServiceOption{WithURLValidator(allowAll)}, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, site
}

func configure(t *testing.T, svc *Service, url string) *Entry {
	t.Helper()
	ctx := context.Background()
	e, err := svc.AddEntry(ctx, "acme", "Åpningstider?", "09:00–16:00")
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if err := svc.SetConfig(ctx, &SyncConfig{CompanyID: "acme", Enabled: true, WebsiteURL: url + "/faq"}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	return e
}

func TestService_EndToEnd(t *testing.T) {
	// WHAT: A real page goes through fetch, extraction, matching, conflict
	// resolution and a second idempotent run.
	// WHY: This is the path a company walks through after enabling sync.
	svc, site := setupTestService(t, testPage)
	manual := configure(t, svc, site.URL)
	ctx := kit.WithUserID(context.Background(), "alice")

	job, err := svc.RunSync(ctx, "acme")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	sum := Summarize(job)
	if sum.Status != JobCompleted || sum.NewFAQsCreated != 1 || sum.ConflictsCreated != 1 || len(sum.Errors) != 0 {
		t.Fatalf("summary: %+v", sum)
	}

	conflicts, err := svc.ListConflicts(ctx, "acme", ConflictPending, 0)
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("conflicts: %v %v", conflicts, err)
	}
	if conflicts[0].EntryID != manual.ID || conflicts[0].WebsiteAnswer != "09:00–17:00" {
		t.Fatalf("conflict: %+v", conflicts[0])
	}

	entry, err := svc.ResolveConflict(ctx, "acme", conflicts[0].ID, "use_website")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entry.Answer != "09:00–17:00" || entry.Source != SourceWebsite {
		t.Fatalf("entry: %+v", entry)
	}
	resolved, _ := svc.ListConflicts(ctx, "acme", ConflictResolved, 0)
	if len(resolved) != 1 || resolved[0].ResolvedBy != "alice" {
		t.Fatalf("resolved: %+v", resolved)
	}

	job, err = svc.RunSync(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != JobCompleted || job.NewFAQsFound != 0 || job.ConflictsFound != 0 || job.FAQsMarkedOutdated != 0 {
		t.Fatalf("second run: %+v", job)
	}

	jobs, _ := svc.ListJobs(ctx, "acme", 0)
	if len(jobs) != 2 || jobs[0].ID != job.ID {
		t.Fatalf("jobs: %d", len(jobs))
	}
	got, err := svc.GetJob(ctx, "acme", job.ID)
	if err != nil || got.ID != job.ID {
		t.Fatalf("get job: %v", err)
	}
	if _, err := svc.GetJob(ctx, "other", job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cross-company job: %v", err)
	}
}

func TestService_SetConfigValidation(t *testing.T) {
	// WHAT: Enabling sync without an absolute http(s) URL is rejected.
	// WHY: The scheduler must never pick up a configuration it cannot fetch.
	svc, _ := setupTestService(t, testPage)
	ctx := context.Background()

	bad := []*SyncConfig{
		{CompanyID: "acme", Enabled: true},
		{CompanyID: "acme", Enabled: true, WebsiteURL: "/faq"},
		{CompanyID: "acme", Enabled: true, WebsiteURL: "ftp://example.no"},
		{CompanyID: "acme", WebsiteURL: "https://example.no", SyncIntervalHours: -1},
		{CompanyID: "not valid", WebsiteURL: "https://example.no"},
	}
	for _, c := range bad {
		if err := svc.SetConfig(ctx, c); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%+v: got %v", c, err)
		}
	}

	c := &SyncConfig{CompanyID: "acme"}
	if err := svc.SetConfig(ctx, c); err != nil {
		t.Fatalf("disabled without url: %v", err)
	}
	if c.SyncIntervalHours != 24 {
		t.Fatalf("interval default: %d", c.SyncIntervalHours)
	}
}

func TestService_GetConfigDefault(t *testing.T) {
	svc, _ := setupTestService(t, testPage)
	c, err := svc.GetConfig(context.Background(), "newco")
	if err != nil {
		t.Fatal(err)
	}
	if c.Enabled || c.SyncIntervalHours != 24 || c.CompanyID != "newco" {
		t.Fatalf("default config: %+v", c)
	}
}

func TestService_RunSyncPreconditions(t *testing.T) {
	svc, _ := setupTestService(t, testPage)
	ctx := context.Background()

	if _, err := svc.RunSync(ctx, "acme"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unconfigured: %v", err)
	}
	if _, err := svc.RunSync(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty id: %v", err)
	}
}

func TestService_FetchFailureRecorded(t *testing.T) {
	// WHAT: A 404 from the website fails the job without touching entries.
	svc, site := setupTestService(t, testPage)
	manual := configure(t, svc, site.URL)
	ctx := context.Background()
	svc.SetConfig(ctx, &SyncConfig{CompanyID: "acme", Enabled: true, WebsiteURL: site.URL + "/missing"})

	job, err := svc.RunSync(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != JobFailed || job.Error == "" {
		t.Fatalf("job: %+v", job)
	}
	entries, _ := svc.ListEntries(ctx, "acme", "")
	if len(entries) != 1 || entries[0].ID != manual.ID {
		t.Fatalf("entries: %+v", entries)
	}
}

type fixedMatcher struct{ score float64 }

func (m fixedMatcher) Match(c candidate.Candidate, entries []*store.Entry) match.Result {
	for _, e := range entries {
		if e.Source == SourceManual {
			return match.Result{Entry: e, Score: m.score}
		}
	}
	return match.Result{}
}

func TestService_ConflictAtInjectedScore(t *testing.T) {
	// WHAT: With the matcher pinned at 0.88, both FAQs become conflicts
	// against the manual entry and nothing is created.
	svc, site := setupTestService(t, testPage, withMatcher(fixedMatcher{score: 0.88}))
	configure(t, svc, site.URL)

	job, err := svc.RunSync(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if job.ConflictsFound != 2 || job.NewFAQsFound != 0 {
		t.Fatalf("job: %+v", job)
	}
}

func TestService_Entries(t *testing.T) {
	svc, _ := setupTestService(t, testPage)
	ctx := context.Background()

	e, err := svc.AddEntry(ctx, "acme", "  Tar dere   kort? ", "Ja")
	if err != nil {
		t.Fatal(err)
	}
	if e.Question != "Tar dere kort?" || !e.Confirmed || e.Source != SourceManual {
		t.Fatalf("entry: %+v", e)
	}
	if _, err := svc.AddEntry(ctx, "acme", "", "Ja"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty question: %v", err)
	}
	if _, err := svc.ListEntries(ctx, "acme", "deleted"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad status: %v", err)
	}
	if err := svc.DeleteEntry(ctx, "acme", e.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteEntry(ctx, "acme", e.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

// gatedFetcher blocks its first fetch until the run is cancelled and serves
// page afterwards.
type gatedFetcher struct {
	page    string
	started chan struct{}
	once    sync.Once
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	first := false
	f.once.Do(func() { first = true })
	if first {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(f.page), nil
}

func TestService_DisableCancelsRun(t *testing.T) {
	// WHAT: Disabling sync while a run is fetching cancels that run; the job
	// ends failed with "cancelled" and the next run gets the lock.
	// WHY: A company that switches sync off expects the run in flight to stop
	// without leaving the lock held.
	f := &gatedFetcher{page: testPage, started: make(chan struct{})}
	svc, _ := setupTestService(t, testPage, WithFetcher(f))
	configure(t, svc, "https://example.no")
	ctx := context.Background()

	type result struct {
		job *Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := svc.RunSync(ctx, "acme")
		done <- result{job, err}
	}()

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the fetcher")
	}
	if err := svc.SetConfig(ctx, &SyncConfig{CompanyID: "acme", Enabled: false, WebsiteURL: "https://example.no/faq"}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after sync was disabled")
	}
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if res.job.Status != JobFailed || res.job.Error != "cancelled" {
		t.Fatalf("job: status %s error %q", res.job.Status, res.job.Error)
	}

	if err := svc.SetConfig(ctx, &SyncConfig{CompanyID: "acme", Enabled: true, WebsiteURL: "https://example.no/faq"}); err != nil {
		t.Fatal(err)
	}
	job, err := svc.RunSync(ctx, "acme")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if job.Status != JobCompleted {
		t.Fatalf("rerun: status %s error %q", job.Status, job.Error)
	}
}

func TestService_BuiltinMergeUnconfirmed(t *testing.T) {
	// WHAT: Without an extractor service, merge joins both answers and leaves
	// the entry unconfirmed.
	// WHY: The built-in merger cannot reconcile "16:00" with "17:00"; a human
	// has to edit the text before it counts as confirmed.
	svc, site := setupTestService(t, testPage)
	configure(t, svc, site.URL)
	ctx := context.Background()

	if _, err := svc.RunSync(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	conflicts, _ := svc.ListConflicts(ctx, "acme", ConflictPending, 0)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts: %d", len(conflicts))
	}
	entry, err := svc.ResolveConflict(ctx, "acme", conflicts[0].ID, "merge")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if entry.Answer != "09:00–16:00\n\n09:00–17:00" || entry.Confirmed {
		t.Fatalf("entry: %+v", entry)
	}
}
