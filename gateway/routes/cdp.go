package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cdpview/cdp"
	"cdpview/view"
)

const defaultHistoryLimit = 20

type handlers struct {
	cfg    Config
	logger *slog.Logger
}

type cdpResponse struct {
	Dashboard *view.Dashboard `json:"dashboard"`
	Snapshot  *cdp.Snapshot   `json:"snapshot"`
}

type actionRequest struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount,omitempty"`
}

type actionResponse struct {
	ID    string          `json:"id,omitempty"`
	Kind  view.ActionKind `json:"kind"`
	CDPID uint64          `json:"cdp_id"`
}

func (h *handlers) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.cfg.Timeout)
}

func (h *handlers) getCDP(w http.ResponseWriter, r *http.Request) {
	id, err := cdp.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if h.cfg.Loader == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("cdp loader not configured"))
		return
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	snap, err := h.cfg.Loader.Load(ctx, id)
	if err != nil {
		h.logger.Warn("cdp load failed", "cdp", id, "error", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	balance, account := h.walletState(ctx)
	dashboard := view.Build(snap, balance, account)
	if h.cfg.History != nil {
		if entries, err := h.cfg.History.List(ctx, id, defaultHistoryLimit); err == nil {
			dashboard.WithHistory(entries)
		} else {
			h.logger.Warn("history lookup failed", "cdp", id, "error", err)
		}
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(view.Text(dashboard)))
		return
	}
	writeJSON(w, http.StatusOK, cdpResponse{Dashboard: dashboard, Snapshot: snap})
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := cdp.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if h.cfg.History == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	entries, err := h.cfg.History.List(ctx, id, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) postAction(w http.ResponseWriter, r *http.Request) {
	id, err := cdp.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	var body actionRequest
	if err := decodeRequest(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := view.ParseActionKind(body.Kind)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	req, err := h.actionRequest(ctx, kind, id)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	if raw := strings.TrimSpace(body.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", view.ErrInvalidAmount, raw))
			return
		}
		req.Amount = &amount
	}
	entry, err := h.cfg.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	resp := actionResponse{Kind: kind, CDPID: id}
	if entry.ID != uuid.Nil {
		resp.ID = entry.ID.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// actionRequest reuses the screen's state when it shows id and otherwise
// loads the CDP for the request.
func (h *handlers) actionRequest(ctx context.Context, kind view.ActionKind, id uint64) (view.Request, error) {
	if screen := h.cfg.Screen; screen != nil {
		if selected, ok := screen.Selected(); ok && selected == id {
			if _, loading := screen.Snapshot(); !loading {
				return screen.Request(kind), nil
			}
		}
	}
	if h.cfg.Loader == nil {
		return view.Request{}, errors.New("cdp loader not configured")
	}
	snap, err := h.cfg.Loader.Load(ctx, id)
	if err != nil {
		return view.Request{}, err
	}
	balance, account := h.walletState(ctx)
	return view.Request{Kind: kind, CDPID: id, Snapshot: snap, Account: account, Balance: balance}, nil
}

func (h *handlers) walletState(ctx context.Context) (*decimal.Decimal, common.Address) {
	if h.cfg.Wallet == nil {
		return nil, common.Address{}
	}
	account, ok := h.cfg.Wallet.Account()
	if !ok {
		return nil, account
	}
	balance, err := h.cfg.Wallet.Balance(ctx)
	if err != nil {
		h.logger.Warn("unable to fetch dai balance", "error", err)
		return nil, account
	}
	return &balance, account
}
