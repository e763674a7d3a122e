package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/rankd/internal/rank"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Ranker is the slice of the ranking manager the HTTP layer needs.
type Ranker interface {
	GetTop(ctx context.Context, category rank.Category, limit int) ([]rank.Peer, error)
	RecordUse(category rank.Category, peer rank.Peer, eventTime time.Time)
	Remove(category rank.Category, peer rank.Peer, resetRemote bool)
	Status(ctx context.Context) (rank.Status, error)
}

// Deps holds the handler's collaborators.
type Deps struct {
	Ranker Ranker
	Token  string

	// DefaultLimit caps top-peer queries that carry no explicit limit.
	// Zero means defaultQueryLimit.
	DefaultLimit int
}

const defaultQueryLimit = 20

// NewHandler returns the daemon's REST surface. The health probe is open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = defaultQueryLimit
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/v1/top/{category}", handleGetTop(deps))
		r.Post("/v1/use", handleRecordUse(deps))
		r.Post("/v1/remove", handleRemove(deps))
		r.Get("/v1/sync", handleSyncStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetTop(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := rank.ParseCategory(chi.URLParam(r, "category"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		limit := parseIntParam(r, "limit", deps.DefaultLimit, rank.MaxTopPeersLimit)

		peers, err := deps.Ranker.GetTop(r.Context(), category, limit)
		if errors.Is(err, rank.ErrNotSupported) {
			httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to query top peers: %v", err)
			return
		}

		if peers == nil {
			peers = []rank.Peer{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"category": category.Name(),
			"peers":    peers,
		})
	}
}

type useRequest struct {
	Category string    `json:"category"`
	Peer     rank.Peer `json:"peer"`
	// At is the event time in epoch seconds; zero means now.
	At int64 `json:"at,omitempty"`
}

func handleRecordUse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req useRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		category, peer, err := validatePeerRequest(req.Category, req.Peer)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		at := time.Now()
		if req.At != 0 {
			at = time.Unix(req.At, 0)
		}
		deps.Ranker.RecordUse(category, peer, at)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

type removeRequest struct {
	Category    string    `json:"category"`
	Peer        rank.Peer `json:"peer"`
	ResetRemote bool      `json:"reset_remote"`
}

func handleRemove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req removeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		category, peer, err := validatePeerRequest(req.Category, req.Peer)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		deps.Ranker.Remove(category, peer, req.ResetRemote)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

func handleSyncStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Ranker.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read sync status: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

func validatePeerRequest(categoryName string, peer rank.Peer) (rank.Category, rank.Peer, error) {
	category, err := rank.ParseCategory(categoryName)
	if err != nil {
		return 0, rank.Peer{}, err
	}
	if _, err := rank.ParsePeer(peer.String()); err != nil {
		return 0, rank.Peer{}, fmt.Errorf("invalid peer: %w", err)
	}
	return category, peer, nil
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
