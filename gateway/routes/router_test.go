package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cdpview/cdp"
	"cdpview/feeds"
	"cdpview/gateway/middleware"
	"cdpview/history"
	"cdpview/view"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type stubLoader struct{}

func (stubLoader) Load(_ context.Context, id uint64) (*cdp.Snapshot, error) {
	switch id {
	case 7:
		return &cdp.Snapshot{
			ID:                     7,
			Ilk:                    "ETH-A",
			IlkData:                feeds.IlkData{Key: "ETH-A", Gem: "ETH", Rate: decimal.RequireFromString("0.05"), LiquidationRatio: decimal.NewFromInt(150), LiquidationPenalty: decimal.NewFromInt(13)},
			Debt:                   decimal.NewFromInt(1100),
			DebtSymbol:             cdp.DebtSymbol,
			Collateral:             decimal.NewFromInt(10),
			CollateralSymbol:       "ETH",
			CollateralPrice:        decimal.NewFromInt(300),
			CollateralizationRatio: cdp.NewRatio(decimal.RequireFromString("2.7272727272727273")),
			LiquidationPrice:       decimal.NewFromInt(165),
			DaiAvailable:           decimal.NewFromInt(900),
			MinCollateral:          decimal.RequireFromString("5.5"),
			FreeCollateral:         decimal.RequireFromString("4.5"),
		}, nil
	case 99:
		return nil, cdp.ErrNotFound
	default:
		return nil, errors.New("eth_call: connection refused")
	}
}

type stubWallet struct{ account common.Address }

func (w stubWallet) Account() (common.Address, bool) {
	return w.account, w.account != (common.Address{})
}

func (stubWallet) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(50), nil
}

func newTestRouter(t *testing.T, account common.Address) (http.Handler, *view.Screen) {
	t.Helper()
	store, err := history.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	feedStore := feeds.NewStore(feeds.Ilk{Key: "ETH-A"})
	feedStore.Apply(map[string]any{"ETH-A." + feeds.FieldRate: decimal.RequireFromString("0.05")})

	w := stubWallet{account: account}
	session := cdp.NewSession(context.Background(), stubLoader{}, nil)
	screen := view.NewScreen(context.Background(), session, w, nil)
	handler := New(Config{
		Loader:        stubLoader{},
		Feeds:         feedStore,
		History:       store,
		Wallet:        w,
		Dispatcher:    view.NewDispatcher(nil, store),
		Screen:        screen,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, nil),
	})
	return handler, screen
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	res := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ok", res.Body.String())
}

func TestGetCDP(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	res := do(t, h, http.MethodGet, "/v1/cdp/7", "")
	require.Equal(t, http.StatusOK, res.Code)

	var body cdpResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, uint64(7), body.Dashboard.CDPID)
	require.Equal(t, "165.00", body.Dashboard.Cards[0].Amount)
	action, ok := body.Dashboard.Action(view.Payback)
	require.True(t, ok)
	require.True(t, action.Enabled)

	text := do(t, h, http.MethodGet, "/v1/cdp/7?format=text", "")
	require.Equal(t, http.StatusOK, text.Code)
	require.Contains(t, text.Body.String(), "CDP 7")
}

func TestGetCDPErrors(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/cdp/abc", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/cdp/99", "").Code)
	res := do(t, h, http.MethodGet, "/v1/cdp/8", "")
	require.Equal(t, http.StatusBadGateway, res.Code)
	require.Contains(t, res.Body.String(), "connection refused")
}

func TestPostActionRecordsHistory(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	res := do(t, h, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"deposit"}`)
	require.Equal(t, http.StatusAccepted, res.Code)

	var action actionResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &action))
	require.NotEmpty(t, action.ID)
	require.Equal(t, view.Deposit, action.Kind)

	res = do(t, h, http.MethodGet, "/v1/cdp/7/history?limit=5", "")
	require.Equal(t, http.StatusOK, res.Code)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, action.ID, entries[0].ID.String())

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/cdp/7/history?limit=x", "").Code)

	res = do(t, h, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"payback","amount":"25"}`)
	require.Equal(t, http.StatusAccepted, res.Code)
	res = do(t, h, http.MethodGet, "/v1/cdp/7/history", "")
	entries = nil
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "Paid back 25.00 DAI", entries[0].Activity)

	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"payback","amount":"75"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"generate","amount":"lots"}`).Code)
}

func TestPostActionRules(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"borrow"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/cdp/7/actions", ``).Code)

	anonymous, _ := newTestRouter(t, common.Address{})
	require.Equal(t, http.StatusForbidden, do(t, anonymous, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"generate"}`).Code)
	require.Equal(t, http.StatusForbidden, do(t, anonymous, http.MethodPost, "/v1/cdp/7/actions", `{"kind":"payback"}`).Code)
}

func TestScreenRoutes(t *testing.T) {
	h, screen := newTestRouter(t, testAccount)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/screen", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/v1/screen", `{"cdp_id":"x"}`).Code)

	res := do(t, h, http.MethodPut, "/v1/screen", `{"cdp_id":"7"}`)
	require.Equal(t, http.StatusAccepted, res.Code)
	screen.Wait()

	res = do(t, h, http.MethodGet, "/v1/screen", "")
	require.Equal(t, http.StatusOK, res.Code)
	var body screenResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.False(t, body.Loading)
	require.NotNil(t, body.Dashboard)
	require.Equal(t, uint64(7), body.Dashboard.CDPID)

	do(t, h, http.MethodPut, "/v1/screen", `{"cdp_id":"8"}`)
	screen.Wait()
	res = do(t, h, http.MethodGet, "/v1/screen", "")
	body = screenResponse{}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.True(t, body.Loading)
	require.Contains(t, body.Error, "connection refused")
}

func TestFeedRoutes(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	res := do(t, h, http.MethodGet, "/v1/feeds/eth-a", "")
	require.Equal(t, http.StatusOK, res.Code)
	var data feeds.IlkData
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &data))
	require.Equal(t, "ETH", data.Gem)
	require.True(t, data.Rate.Equal(decimal.RequireFromString("0.05")))

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/feeds/BAT-A", "").Code)

	res = do(t, h, http.MethodGet, "/v1/feeds", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `["ETH-A"]`, res.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, testAccount)
	do(t, h, http.MethodGet, "/v1/feeds/eth-a", "")
	res := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "http_requests_total")
}
