package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) listFeeds(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Feeds == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Feeds.Ilks())
}

func (h *handlers) getFeed(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Feeds == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("feed store not configured"))
		return
	}
	ilk := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ilk")))
	data, ok := h.cfg.Feeds.IlkData(ilk)
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("no feed data for %s", ilk))
		return
	}
	writeJSON(w, http.StatusOK, data)
}
