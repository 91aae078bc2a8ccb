package store

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Entry sources.
const (
	SourceManual   = "manual"
	SourceWebsite  = "website"
	SourceDocument = "document"
)

// Entry statuses.
const (
	EntryActive   = "active"
	EntryOutdated = "outdated"
)

// Conflict statuses.
const (
	ConflictPending   = "pending"
	ConflictResolved  = "resolved"
	ConflictDismissed = "dismissed"
)

// SyncConfig is the per-company website sync configuration.
type SyncConfig struct {
	CompanyID              string `json:"company_id"`
	Enabled                bool   `json:"enabled"`
	WebsiteURL             string `json:"website_url"`
	SyncIntervalHours      int    `json:"sync_interval_hours"`
	AutoApproveWebsiteFAQs bool   `json:"auto_approve_website_faqs"`
	NotifyOnConflicts      bool   `json:"notify_on_conflicts"`
	NotifyOnNewFAQs        bool   `json:"notify_on_new_faqs"`
	CreatedAt              int64  `json:"created_at"`
	UpdatedAt              int64  `json:"updated_at"`
}

// Configured reports whether a run may start for this configuration.
func (c *SyncConfig) Configured() bool {
	return c != nil && c.Enabled && c.WebsiteURL != ""
}

// Job is one execution record of the sync pipeline for one company.
// Rows are never changed after Status reaches completed or failed.
type Job struct {
	ID                 string `json:"id"`
	CompanyID          string `json:"company_id"`
	Status             string `json:"status"`
	Trigger            string `json:"trigger"`
	StartedAt          int64  `json:"started_at"`
	CompletedAt        *int64 `json:"completed_at,omitempty"`
	NewFAQsFound       int    `json:"new_faqs_found"`
	ConflictsFound     int    `json:"conflicts_found"`
	FAQsMarkedOutdated int    `json:"faqs_marked_outdated"`
	CandidatesFound    int    `json:"candidates_found"`
	CandidatesSkipped  int    `json:"candidates_skipped"`
	Error              string `json:"error,omitempty"`
}

// Terminal reports whether the job reached completed or failed.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Entry is a knowledge base question/answer pair.
type Entry struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Confirmed bool   `json:"confirmed"`
	Version   int64  `json:"version"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Conflict is a detected mismatch between an entry and website content.
// The current_* and website_* columns are written once at detection.
type Conflict struct {
	ID              string  `json:"id"`
	CompanyID       string  `json:"company_id"`
	JobID           string  `json:"job_id"`
	EntryID         string  `json:"entry_id"`
	CurrentQuestion string  `json:"current_question"`
	CurrentAnswer   string  `json:"current_answer"`
	WebsiteQuestion string  `json:"website_question"`
	WebsiteAnswer   string  `json:"website_answer"`
	SimilarityScore float64 `json:"similarity_score"`
	Status          string  `json:"status"`
	Resolution      string  `json:"resolution,omitempty"`
	ResolvedEntryID string  `json:"resolved_entry_id,omitempty"`
	ResolvedBy      string  `json:"resolved_by,omitempty"`
	ResolvedAt      *int64  `json:"resolved_at,omitempty"`
	CreatedAt       int64   `json:"created_at"`
}
