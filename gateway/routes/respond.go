package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cdpview/cdp"
	"cdpview/view"
	"cdpview/wallet"
)

const requestLimit = 1 << 16

func decodeRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if trimmed := strings.TrimSpace(err.Error()); trimmed != "" {
			message = trimmed
		}
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// statusFor maps domain errors to HTTP statuses. Anything unrecognised is a
// failed upstream read.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cdp.ErrInvalidID), errors.Is(err, view.ErrUnknownAction), errors.Is(err, view.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, cdp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrNoAccount):
		return http.StatusForbidden
	case errors.Is(err, view.ErrNoBalance), errors.Is(err, view.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
