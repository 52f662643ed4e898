package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/resolver"
)

// MaxUploadSize is the maximum accepted archive size (100MB).
const MaxUploadSize = 100 * 1024 * 1024

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	env.Success = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func packageIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed package id", errtax.ErrNotFound)
	}
	return id, nil
}

// handleReceive implements POST /imports: a multipart upload carrying the
// archive bytes and an optional importMethod field.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserFromRequest(r)
	if !ok {
		respondError(w, r, errtax.ErrNotAuthenticated)
		return
	}

	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errtax.ErrTransport, err))
		return
	}
	file, header, err := r.FormFile("archive")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: missing archive file: %v", errtax.ErrTransport, err))
		return
	}
	defer file.Close()

	importMethod := model.ImportMethod(r.FormValue("importMethod"))
	if importMethod == "" {
		importMethod = model.ImportMethodManual
	}

	pkg, err := s.service.Receive(r.Context(), header.Filename, file, importMethod, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if pkg.Status == model.StatusQuarantined {
		writeEnvelope(w, http.StatusUnprocessableEntity, envelope{
			Package: toPackageView(pkg),
			Errors:  []string{pkg.QuarantineReason},
		})
		return
	}
	writeEnvelope(w, status, envelope{Package: toPackageView(pkg)})
}

// handleGetPackage implements GET /imports/{id}.
func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pkg, err := s.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Package: toPackageView(pkg)})
}

// handleValidate implements POST /imports/{id}/validate.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pkg, rep, err := s.service.Validate(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusOK
	env := envelope{Package: toPackageView(pkg)}
	if rep.AnyInvalid {
		status = http.StatusUnprocessableEntity
		env.Errors = []string{fmt.Sprintf("%d blocking validation error(s) found", rep.ErrorCount)}
	}
	if rep.WarningCount > 0 {
		env.Warnings = []string{fmt.Sprintf("%d advisory validation warning(s) found", rep.WarningCount)}
	}
	writeEnvelope(w, status, env)
}

// handleDetectDuplicates implements POST /imports/{id}/detect-duplicates.
func (s *Server) handleDetectDuplicates(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pkg, rep, err := s.service.DetectDuplicates(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	env := envelope{Package: toPackageView(pkg)}
	if len(rep.ConflictsCreated) > 0 {
		env.Warnings = []string{fmt.Sprintf("%d conflict(s) require review", len(rep.ConflictsCreated))}
	}
	writeEnvelope(w, http.StatusOK, env)
}

// handleListStagedEntities implements GET /imports/{id}/staged-entities,
// optionally filtered by a "kind" query parameter.
func (s *Server) handleListStagedEntities(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	kinds := model.LoadOrder
	if k := r.URL.Query().Get("kind"); k != "" {
		kinds = []model.EntityKind{model.EntityKind(k)}
	}

	out := make(map[string][]stagingRowView, len(kinds))
	for _, kind := range kinds {
		rows, err := s.service.ListStagedEntities(r.Context(), id, kind)
		if err != nil {
			respondError(w, r, err)
			return
		}
		views := make([]stagingRowView, 0, len(rows))
		for _, row := range rows {
			views = append(views, toStagingRowView(row))
		}
		out[string(kind)] = views
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "staged_entities": out})
}

// handleListConflicts implements GET /imports/{id}/conflicts.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	conflicts, err := s.service.ListConflicts(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]conflictView, 0, len(conflicts))
	for _, c := range conflicts {
		views = append(views, toConflictView(c))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "conflicts": views})
}

// resolveConflictRequest is the JSON body for POST /conflicts/{id}/resolve.
type resolveConflictRequest struct {
	Decision       string     `json:"decision"`
	ChosenMasterID *uuid.UUID `json:"chosen_master_id,omitempty"`
	Justification  string     `json:"justification"`
}

// handleResolveConflict implements POST /conflicts/{id}/resolve.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserFromRequest(r)
	if !ok {
		respondError(w, r, errtax.ErrNotAuthenticated)
		return
	}
	conflictID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: malformed conflict id", errtax.ErrNotFound))
		return
	}

	var body resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, fmt.Errorf("%w: malformed request body: %v", errtax.ErrTransport, err))
		return
	}

	conflict, err := s.service.ResolveConflict(r.Context(), conflictID, resolver.Input{
		ConflictID:     conflictID,
		Decision:       model.ConflictDecision(body.Decision),
		ChosenMasterID: body.ChosenMasterID,
		ReviewerID:     userID,
		Justification:  body.Justification,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "conflict": toConflictView(conflict)})
}

// handleCommit implements POST /imports/{id}/commit.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pkg, rep, err := s.service.Commit(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	env := envelope{Package: toPackageView(pkg)}
	if rep != nil && !rep.FullySuccessful() {
		status = http.StatusUnprocessableEntity
		for _, ce := range rep.Errors {
			env.Errors = append(env.Errors, ce.Message)
		}
	}
	writeEnvelope(w, status, env)
}

// cancelRequest is the JSON body for POST /imports/{id}/cancel.
type cancelRequest struct {
	Reason         string `json:"reason"`
	CleanupStaging bool   `json:"cleanupStaging"`
}

// handleCancel implements POST /imports/{id}/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserFromRequest(r)
	if !ok {
		respondError(w, r, errtax.ErrNotAuthenticated)
		return
	}
	id, err := packageIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var body cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	pkg, err := s.service.Cancel(r.Context(), id, body.Reason, body.CleanupStaging, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Package: toPackageView(pkg)})
}
