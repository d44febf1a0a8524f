package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/auth"
	"github.com/codesan-git/blasting-be/internal/messagelog"
)

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionReadLogs) {
		return
	}

	q := r.URL.Query()
	filter := messagelog.Filter{
		RecipientEmail: strings.TrimSpace(q.Get("recipient_email")),
		Limit:          queryInt(q.Get("limit"), 100),
		Offset:         queryInt(q.Get("offset"), 0),
	}
	if status := messagelog.Status(q.Get("status")); status != "" {
		if !status.Valid() {
			writeError(w, r, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}
	if channel := messagelog.Channel(q.Get("channel")); channel != "" {
		if !messagelog.ValidChannel(channel) {
			writeError(w, r, http.StatusBadRequest, "unknown channel")
			return
		}
		filter.Channel = channel
	}

	rows, err := a.logs.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "message query failed")
		return
	}
	if rows == nil {
		rows = []*messagelog.MessageLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": rows,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (a *API) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionReadLogs) {
		return
	}
	buckets, err := a.logs.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "stats query failed")
		return
	}
	if buckets == nil {
		buckets = []messagelog.StatBucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": buckets})
}

func (a *API) handleMessageStatsDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionReadLogs) {
		return
	}
	days := queryInt(r.URL.Query().Get("days"), 7)
	if days < 1 || days > 90 {
		writeError(w, r, http.StatusBadRequest, "days must be between 1 and 90")
		return
	}
	buckets, err := a.logs.StatsByDate(r.Context(), days)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "stats query failed")
		return
	}
	if buckets == nil {
		buckets = []messagelog.DateStatBucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":  days,
		"stats": buckets,
	})
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionCleanupLogs) {
		return
	}
	days := queryInt(r.URL.Query().Get("days"), 0)
	result, err := a.retention.Cleanup(r.Context(), days)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "cleanup failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.cleanup", map[string]any{
		"days":    days,
		"deleted": result,
	})
	writeJSON(w, http.StatusOK, result)
}

func queryInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
