package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cdpview/cdp"
	"cdpview/feeds"
	"cdpview/gateway/middleware"
	"cdpview/history"
	"cdpview/view"
)

// Rate limit classes.
const (
	LimitCDP    = "cdp"
	LimitScreen = "screen"
	LimitFeeds  = "feeds"
)

// SnapshotLoader loads one CDP snapshot per request.
type SnapshotLoader interface {
	Load(ctx context.Context, id uint64) (*cdp.Snapshot, error)
}

// FeedReader exposes the feed store.
type FeedReader interface {
	IlkData(name string) (feeds.IlkData, bool)
	Ilks() []string
}

// HistoryReader lists recorded CDP activity.
type HistoryReader interface {
	List(ctx context.Context, cdpID uint64, limit int) ([]history.Entry, error)
}

// Config carries the dependencies of the HTTP surface. Only Loader is
// required; the other fields may be nil.
type Config struct {
	Loader        SnapshotLoader
	Feeds         FeedReader
	History       HistoryReader
	Wallet        view.Wallet
	Dispatcher    *view.Dispatcher
	Screen        *view.Screen
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	Timeout       time.Duration
}

// New builds the chi router for the cdpview API.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = view.NewDispatcher(view.LogSidebar{Logger: cfg.Logger}, nil)
	}
	h := &handlers{cfg: cfg, logger: cfg.Logger.With("component", "routes")}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return passthrough
		}
		return cfg.RateLimiter.Middleware(key)
	}
	observe := func(route string) func(http.Handler) http.Handler {
		if obs == nil {
			return passthrough
		}
		return obs.Middleware(route)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/cdp/{id}", func(sr chi.Router) {
		sr.Use(limit(LimitCDP))
		sr.With(observe("cdp")).Get("/", h.getCDP)
		sr.With(observe("cdp_history")).Get("/history", h.getHistory)
		sr.With(observe("cdp_actions")).Post("/actions", h.postAction)
	})

	r.Route("/v1/screen", func(sr chi.Router) {
		sr.Use(limit(LimitScreen), observe("screen"))
		sr.Get("/", h.getScreen)
		sr.Put("/", h.putScreen)
	})

	r.Route("/v1/feeds", func(sr chi.Router) {
		sr.Use(limit(LimitFeeds), observe("feeds"))
		sr.Get("/", h.listFeeds)
		sr.Get("/{ilk}", h.getFeed)
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r
}

func passthrough(next http.Handler) http.Handler { return next }
