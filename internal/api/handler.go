package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/giveaway"
	"github.com/runah1996/api.runah.pt/internal/source"
)

const serviceName = "api.runah.pt"

// SubscriberCounter reports how many stream subscribers are connected.
// Satisfied by *hub.Hub.
type SubscriberCounter interface {
	Count() int
}

// AuthConfig guards the refresh trigger. Mode "apikey" with a non-empty Key
// enforces the header check; anything else is pass-through.
type AuthConfig struct {
	Mode   string
	Header string
	Key    string
}

// Handler serves all /api/v1/* endpoints.
type Handler struct {
	svc  *giveaway.Service
	subs SubscriberCounter
	mux  *http.ServeMux
}

// New creates a Handler wired to the query/update service and registers all
// routes. The refresh trigger is wrapped with the API-key middleware.
func New(svc *giveaway.Service, subs SubscriberCounter, auth AuthConfig) http.Handler {
	h := &Handler{svc: svc, subs: subs, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/giveaway", h.getGiveaway)
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.Handle("/api/v1/refresh", APIKey(auth)(http.HandlerFunc(h.refresh)))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// getGiveaway returns GET /api/v1/giveaway: the current giveaway record,
// served from cache and refreshed on staleness.
func (h *Handler) getGiveaway(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res, err := h.svc.Query(r.Context())
	if err != nil {
		code, msg := mapError(err)
		jsonErr(w, code, msg)
		return
	}

	jsonResp(w, http.StatusOK, QueryResponse{
		Success:              true,
		Cached:               res.Cached,
		CacheDurationSeconds: int(h.svc.CacheDuration().Seconds()),
		CacheAgeSeconds:      int(res.CacheAge.Seconds()),
		Version:              res.Snapshot.Version,
		Data:                 json.RawMessage(res.Snapshot.Payload),
		Timestamp:            res.Snapshot.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// refresh handles POST /api/v1/refresh, the trusted external change signal.
// Authorization is enforced by the APIKey middleware in front of this handler.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := h.svc.NotifyChange(r.Context())
	if err != nil {
		code, msg := mapError(err)
		jsonErr(w, code, msg)
		return
	}

	jsonResp(w, http.StatusOK, RefreshResponse{
		Success:   true,
		Version:   snap.Version,
		Timestamp: snap.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subscribers := 0
	if h.subs != nil {
		subscribers = h.subs.Count()
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     serviceName,
		Subscribers: subscribers,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

// mapError translates service errors to HTTP status codes. Query callers see
// an upstream failure only when no cached value exists at all.
func mapError(err error) (int, string) {
	var upstream *source.UpstreamError
	switch {
	case errors.Is(err, giveaway.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, cache.ErrRefreshTimeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &upstream):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Success: false, Error: msg})
}
