package sitesync

import (
	"github.com/hazyhaar/sitesync/sitesync/internal/resolve"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
	"github.com/hazyhaar/sitesync/sitesync/internal/syncjob"
)

type (
	SyncConfig = store.SyncConfig
	Job        = store.Job
	Entry      = store.Entry
	Conflict   = store.Conflict
	Resolution = resolve.Resolution
)

// Collaborators a Service can be built with.
type (
	Fetcher   = syncjob.Fetcher
	Extractor = syncjob.Extractor
	Merger    = resolve.Merger
	Notifier  = syncjob.Notifier
)

const (
	JobPending   = store.JobPending
	JobRunning   = store.JobRunning
	JobCompleted = store.JobCompleted
	JobFailed    = store.JobFailed

	TriggerScheduled = store.TriggerScheduled
	TriggerManual    = store.TriggerManual

	SourceManual   = store.SourceManual
	SourceWebsite  = store.SourceWebsite
	SourceDocument = store.SourceDocument

	EntryActive   = store.EntryActive
	EntryOutdated = store.EntryOutdated

	ConflictPending   = store.ConflictPending
	ConflictResolved  = store.ConflictResolved
	ConflictDismissed = store.ConflictDismissed

	KeepCurrent = resolve.KeepCurrent
	UseWebsite  = resolve.UseWebsite
	KeepBoth    = resolve.KeepBoth
	Merge       = resolve.Merge
	Dismiss     = resolve.Dismiss
)

// RunSummary is the result of a manual run as returned to callers.
type RunSummary struct {
	JobID              string   `json:"job_id"`
	Status             string   `json:"status"`
	NewFAQsCreated     int      `json:"new_faqs_created"`
	ConflictsCreated   int      `json:"conflicts_created"`
	FAQsMarkedOutdated int      `json:"faqs_marked_outdated"`
	Errors             []string `json:"errors"`
}

// Summarize builds the summary of a terminal job.
func Summarize(j *Job) *RunSummary {
	s := &RunSummary{
		JobID:              j.ID,
		Status:             j.Status,
		NewFAQsCreated:     j.NewFAQsFound,
		ConflictsCreated:   j.ConflictsFound,
		FAQsMarkedOutdated: j.FAQsMarkedOutdated,
		Errors:             []string{},
	}
	if j.Error != "" {
		s.Errors = append(s.Errors, j.Error)
	}
	return s
}
