package sitesync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the HTTP API under /api/companies/{companyID}/sync.
func (svc *Service) RegisterRoutes(r chi.Router) {
	r.Route("/api/companies/{companyID}/sync", func(r chi.Router) {
		r.Get("/config", svc.handleGetConfig)
		r.Put("/config", svc.handlePutConfig)
		r.Post("/run", svc.handleRun)
		r.Post("/cancel", svc.handleCancel)
		r.Get("/jobs", svc.handleListJobs)
		r.Get("/jobs/{jobID}", svc.handleGetJob)
		r.Get("/conflicts", svc.handleListConflicts)
		r.Post("/conflicts/{conflictID}/resolve", svc.handleResolve)
		r.Get("/entries", svc.handleListEntries)
		r.Post("/entries", svc.handleAddEntry)
		r.Delete("/entries/{entryID}", svc.handleDeleteEntry)
	})
}

func (svc *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	c, err := svc.GetConfig(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, c)
}

func (svc *Service) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled                bool   `json:"enabled"`
		WebsiteURL             string `json:"website_url"`
		SyncIntervalHours      int    `json:"sync_interval_hours"`
		AutoApproveWebsiteFAQs bool   `json:"auto_approve_website_faqs"`
		NotifyOnConflicts      bool   `json:"notify_on_conflicts"`
		NotifyOnNewFAQs        bool   `json:"notify_on_new_faqs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	c := &SyncConfig{
		CompanyID:              chi.URLParam(r, "companyID"),
		Enabled:                req.Enabled,
		WebsiteURL:             req.WebsiteURL,
		SyncIntervalHours:      req.SyncIntervalHours,
		AutoApproveWebsiteFAQs: req.AutoApproveWebsiteFAQs,
		NotifyOnConflicts:      req.NotifyOnConflicts,
		NotifyOnNewFAQs:        req.NotifyOnNewFAQs,
	}
	if err := svc.SetConfig(r.Context(), c); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, c)
}

func (svc *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	job, err := svc.RunSync(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, Summarize(job))
}

func (svc *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	found, err := svc.Cancel(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]bool{"cancelled": found})
}

func (svc *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := svc.ListJobs(r.Context(), chi.URLParam(r, "companyID"), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, nonNil(jobs))
}

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := svc.GetJob(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, job)
}

func (svc *Service) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	cs, err := svc.ListConflicts(r.Context(), chi.URLParam(r, "companyID"),
		r.URL.Query().Get("status"), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, nonNil(cs))
}

func (svc *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	entry, err := svc.ResolveConflict(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "conflictID"), req.Resolution)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]any{"resolution": req.Resolution, "entry": entry})
}

func (svc *Service) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := svc.ListEntries(r.Context(), chi.URLParam(r, "companyID"), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, nonNil(entries))
}

func (svc *Service) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	e, err := svc.AddEntry(r.Context(), chi.URLParam(r, "companyID"), req.Question, req.Answer)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 201, e)
}

func (svc *Service) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	err := svc.DeleteEntry(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidResolution):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrConflictNotFound), errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrConflictNotPending), errors.Is(err, ErrConcurrentEdit):
		return http.StatusConflict
	case errors.Is(err, ErrEntryMissing):
		return http.StatusGone
	case errors.Is(err, ErrNotConfigured):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
