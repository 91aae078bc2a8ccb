package sitesync

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFile(t *testing.T) {
	// WHAT: YAML durations and nested sections load, and unset fields take
	// defaults.
	path := filepath.Join(t.TempDir(), "sitesync.yaml")
	yaml := `
match:
  match_threshold: 0.6
fetch:
  timeout: 10s
run:
  max_run_duration: 2m
scheduler:
  check_interval: 1m
  workers: 2
notify:
  redis_channel: sitesync:events
extractor_url: http://nlp:8080
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.defaults()

	if cfg.Match.MatchThreshold != 0.6 || cfg.Match.QuestionWeight != 0.7 || cfg.Match.IdentityThreshold != 0.92 {
		t.Fatalf("match: %+v", cfg.Match)
	}
	if cfg.Fetch.Timeout != 10*time.Second || cfg.Fetch.MaxBytes != 10*1024*1024 {
		t.Fatalf("fetch: %+v", cfg.Fetch)
	}
	if cfg.Run.MaxRunDuration != 2*time.Minute || cfg.Run.LockTTL != 3*time.Minute {
		t.Fatalf("run: %+v", cfg.Run)
	}
	if cfg.Scheduler.CheckInterval != time.Minute || cfg.Scheduler.Workers != 2 {
		t.Fatalf("scheduler: %+v", cfg.Scheduler)
	}
	if cfg.Notify.RedisChannel != "sitesync:events" || cfg.ExtractorURL != "http://nlp:8080" {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.AuditRetentionDays != 90 || cfg.Lock.Prefix != "sitesync:lock:" {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("fetch: [unclosed"), 0o644)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("bad yaml accepted")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	job := &Job{ID: "job_1", CompanyID: "acme"}

	n.NewFAQs(context.Background(), job, []*Entry{{ID: "kb_1"}, {ID: "kb_2"}})
	n.Conflicts(context.Background(), job, []*Conflict{{ID: "cfl_1"}})

	out := buf.String()
	for _, want := range []string{"notify: new_faqs", "count=2", "notify: conflicts", "job_id=job_1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestEvents(t *testing.T) {
	job := &Job{ID: "job_1", CompanyID: "acme"}
	ev := conflictsEvent(job, []*Conflict{{ID: "cfl_1"}, {ID: "cfl_2"}})
	if ev.Type != EventConflicts || ev.Count != 2 || ev.IDs[1] != "cfl_2" || ev.At == 0 {
		t.Fatalf("event: %+v", ev)
	}
	ev = newFAQsEvent(job, nil)
	if ev.Count != 0 || ev.IDs == nil {
		t.Fatalf("empty event: %+v", ev)
	}
}

func TestSummarize(t *testing.T) {
	j := &Job{ID: "job_1", Status: JobFailed, Error: "fetch: notFound", NewFAQsFound: 0}
	s := Summarize(j)
	if s.JobID != "job_1" || len(s.Errors) != 1 || s.Errors[0] != "fetch: notFound" {
		t.Fatalf("failed summary: %+v", s)
	}
	if s := Summarize(&Job{ID: "job_2", Status: JobCompleted, ConflictsFound: 3}); s.Errors == nil || s.ConflictsCreated != 3 {
		t.Fatalf("completed summary: %+v", s)
	}
}
