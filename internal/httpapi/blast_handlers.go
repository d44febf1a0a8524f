package httpapi

import (
	"errors"
	"net/http"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/auth"
	"github.com/codesan-git/blasting-be/internal/blast"
)

func (a *API) handleBlasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionSendBlast) {
		return
	}
	var req blast.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.blast.Send(r.Context(), req, actorID(r))
	if err != nil {
		handleBlastError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "blast.sent", map[string]any{
		"template_id": req.TemplateID,
		"recipients":  len(req.Recipients),
		"channels":    req.Channels,
		"jobs":        len(resp.JobIDs),
	})
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermissionManageTemplates) {
			return
		}
		templates, err := a.templates.List(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "template listing failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermissionManageTemplates) {
			return
		}
		var tpl blast.Template
		if err := decodeJSON(w, r, &tpl); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.templates.Upsert(r.Context(), &tpl); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		_ = audit.LogEvent(r.Context(), "template.upserted", map[string]any{
			"template_id": tpl.ID,
			"name":        tpl.Name,
		})
		writeJSON(w, http.StatusOK, tpl)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func handleBlastError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, blast.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, blast.ErrTemplateNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "blast failed")
	}
}
