package httpapi

import (
	"io"
	"net/http"

	"github.com/codesan-git/blasting-be/internal/obs"
)

// handleWhatsAppWebhook ingests provider callbacks. The provider retries on
// non-2xx, so the endpoint acknowledges every POST even when the body is
// unreadable or unusable.
func (a *API) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		obs.Warn("discarding unreadable webhook body", map[string]any{"err": err.Error()})
		writeJSON(w, http.StatusOK, map[string]any{"status": "received"})
		return
	}

	a.webhook.Process(r.Context(), raw)
	writeJSON(w, http.StatusOK, map[string]any{"status": "received"})
}
