package routes

import (
	"errors"
	"net/http"
	"strings"

	"cdpview/cdp"
	"cdpview/view"
)

type screenRequest struct {
	CDPID string `json:"cdp_id"`
}

type screenResponse struct {
	CDPID     uint64          `json:"cdp_id,omitempty"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
	Dashboard *view.Dashboard `json:"dashboard,omitempty"`
}

func (h *handlers) putScreen(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Screen == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("screen not configured"))
		return
	}
	var body screenRequest
	if err := decodeRequest(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	id, err := cdp.ParseID(body.CDPID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	h.cfg.Screen.Open(id)
	writeJSON(w, http.StatusAccepted, screenResponse{CDPID: id, Loading: true})
}

func (h *handlers) getScreen(w http.ResponseWriter, r *http.Request) {
	screen := h.cfg.Screen
	if screen == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("screen not configured"))
		return
	}
	id, ok := screen.Selected()
	if !ok {
		writeJSONError(w, http.StatusNotFound, errors.New("no cdp selected"))
		return
	}
	dashboard, loading := screen.View()
	resp := screenResponse{CDPID: id, Loading: loading, Dashboard: dashboard}
	if err := screen.Err(); err != nil {
		resp.Error = err.Error()
	}
	if !loading && strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(view.Text(dashboard)))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
