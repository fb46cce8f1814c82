package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/formbridge-labs/formbridge-go/internal/action"
	"github.com/formbridge-labs/formbridge-go/internal/action/resource"
	"github.com/formbridge-labs/formbridge-go/internal/domain"
	"github.com/formbridge-labs/formbridge-go/internal/platform/auth"
	"github.com/formbridge-labs/formbridge-go/internal/repo"
)

type formsAPI struct {
	logger      *slog.Logger
	forms       repo.FormRepository
	submissions repo.SubmissionRepository
	registry    *action.Registry
}

func newFormsAPI(logger *slog.Logger, forms repo.FormRepository, subs repo.SubmissionRepository, registry *action.Registry) *formsAPI {
	return &formsAPI{
		logger:      logger,
		forms:       forms,
		submissions: subs,
		registry:    registry,
	}
}

func (api *formsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /form", api.handleListForms)
	mux.HandleFunc("GET /form/{formID}", api.handleGetForm)

	mux.HandleFunc("POST /form/{formID}/submission", api.handleSaveSubmission)
	mux.HandleFunc("PUT /form/{formID}/submission/{submissionID}", api.handleSaveSubmission)
	mux.HandleFunc("PATCH /form/{formID}/submission/{submissionID}", api.handleSaveSubmission)
	mux.HandleFunc("GET /form/{formID}/submission/{submissionID}", api.handleGetSubmission)
}

func (api *formsAPI) handleListForms(w http.ResponseWriter, r *http.Request) {
	var filter repo.FormFilter
	if kindRaw := strings.TrimSpace(r.URL.Query().Get("type")); kindRaw != "" {
		kind, err := domain.ParseFormKind(kindRaw)
		if err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_type")
			return
		}
		filter.Kind = kind
	}
	forms, err := api.forms.ListForms(r.Context(), filter)
	if err != nil {
		api.logger.Error("list forms failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if forms == nil {
		forms = []domain.Form{}
	}
	api.writeJSON(w, http.StatusOK, forms)
}

func (api *formsAPI) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := api.forms.GetForm(r.Context(), r.PathValue("formID"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "form_not_found")
			return
		}
		api.logger.Error("get form failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, form)
}

func (api *formsAPI) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := api.submissions.GetSubmission(r.Context(), r.PathValue("formID"), r.PathValue("submissionID"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "submission_not_found")
			return
		}
		api.logger.Error("get submission failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, submission)
}

type submissionPayload struct {
	Data  map[string]any `json:"data"`
	Roles []string       `json:"roles,omitempty"`
}

// handleSaveSubmission translates the HTTP save into an internal request
// and dispatches it through the startup-resolved handler registry, the same
// path derived saves take.
func (api *formsAPI) handleSaveSubmission(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")
	form, err := api.forms.GetForm(r.Context(), formID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "form_not_found")
			return
		}
		api.logger.Error("load form failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	op, ok := action.OperationForMethod(r.Method)
	if !ok {
		api.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	var payload submissionPayload
	if err := decodeJSON(r, &payload); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if payload.Data == nil {
		payload.Data = map[string]any{}
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	req := &action.Request{
		Operation:    op,
		FormID:       form.ID,
		SubmissionID: r.PathValue("submissionID"),
		Submission: &domain.Submission{
			FormID: form.ID,
			Data:   payload.Data,
			Roles:  payload.Roles,
		},
		Identity:  identity,
		RequestID: r.Header.Get("X-Request-Id"),
		SkipSave:  strings.EqualFold(r.URL.Query().Get("dryRun"), "true"),
	}

	handler, ok := api.registry.Resolve(form.Kind, op)
	if !ok {
		api.logger.Error("no save handler registered", "kind", form.Kind, "operation", op)
		api.writeError(w, r, http.StatusInternalServerError, "no_handler")
		return
	}

	saved, err := handler(r.Context(), req)
	if err != nil {
		api.writeSaveError(w, r, err)
		return
	}

	status := http.StatusOK
	if op == action.OpCreate && !req.SkipSave {
		status = http.StatusCreated
	}
	api.writeJSON(w, status, saved)
}

// writeSaveError maps pipeline error codes onto stable API errors.
func (api *formsAPI) writeSaveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "submission_not_found")
		return
	}
	if code := resource.CodeOf(err); code != "" {
		api.logger.Warn("save rejected",
			"code", code,
			"error", err.Error(),
			"request_id", r.Header.Get("X-Request-Id"),
		)
		api.writeError(w, r, http.StatusBadRequest, code)
		return
	}
	api.logger.Error("save failed", "error", err, "request_id", r.Header.Get("X-Request-Id"))
	api.writeError(w, r, http.StatusInternalServerError, "internal_error")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *formsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *formsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
