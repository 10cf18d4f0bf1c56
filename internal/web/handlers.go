package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Jobs      int                     `json:"jobs"`
	Syncs     *core.SyncLimiterStatus `json:"syncs,omitempty"`
	WSClients int                     `json:"wsClients"`
}

// JobRequest is the body of PUT /jobs/{mode}.
type JobRequest struct {
	IntervalMinutes int `json:"intervalMinutes" validate:"required,gte=1,lte=10080"`
}

// ColumnResponse is returned by /api/columns/{ref}.
type ColumnResponse struct {
	Letter string `json:"letter"`
	Index  int    `json:"index"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Jobs: len(s.service.ListJobs())}
	if status, ok := s.service.LimiterStatus(); ok {
		resp.Syncs = &status
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Sync config
// =============================================================================

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.GetConfig(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var cfg core.ProjectSyncConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	if cfg.ProjectID != "" && cfg.ProjectID != projectID {
		s.respondError(w, r, fmt.Errorf("invalid request: body projectId %q does not match path", cfg.ProjectID))
		return
	}
	cfg.ProjectID = projectID

	saved, err := s.service.SaveConfig(r.Context(), cfg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteConfig(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetRecords deletes a project's stored records, optionally only
// those of one source name (?source=Ads).
func (s *Server) handleResetRecords(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Resetter.ResetRecords(r.Context(), chi.URLParam(r, "projectID"), r.URL.Query().Get("source"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": res.Records})
}

// =============================================================================
// Sync runs
// =============================================================================

// handleSyncNow runs a project sync inline. A failed run is still a 200:
// the result carries success=false and the per-unit errors.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := syncContext(r, s.opts.SyncTimeout)
	defer cancel()

	result, err := s.service.SyncNow(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := s.service.ListSheets(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sheets == nil {
		sheets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sheets": sheets})
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJobStatus(chi.URLParam(r, "projectID"), chi.URLParam(r, "mode"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handlePutJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, describeValidation(err))
		return
	}

	job, err := s.service.AddOrUpdateJob(chi.URLParam(r, "projectID"), chi.URLParam(r, "mode"), req.IntervalMinutes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveJob(chi.URLParam(r, "projectID"), chi.URLParam(r, "mode")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.service.ListJobs()
	if jobs == nil {
		jobs = []core.SyncJob{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.SyncJob{"jobs": jobs})
}

// =============================================================================
// Columns
// =============================================================================

// handleColumns converts a column reference either way: a letter returns
// its index, a number returns its letter.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 {
			s.respondError(w, r, fmt.Errorf("invalid column index %d: negative", n))
			return
		}
		writeJSON(w, http.StatusOK, ColumnResponse{Letter: core.ColumnLetter(n), Index: n})
		return
	}

	idx, err := core.ColumnIndex(ref)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ColumnResponse{Letter: core.ColumnLetter(idx), Index: idx})
}

// =============================================================================
// Status page
// =============================================================================

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	data := StatusData{
		Jobs:        s.service.ListJobs(),
		GeneratedAt: time.Now().UTC(),
	}
	if status, ok := s.service.LimiterStatus(); ok {
		data.Syncs = &status
	}
	if s.hub != nil {
		data.WSClients = s.hub.ClientCount()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := StatusPage(data).Render(r.Context(), w); err != nil {
		s.logger.Warn("render status page", "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// describeValidation flattens validator errors into one request error.
func describeValidation(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid request: %w", err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}
