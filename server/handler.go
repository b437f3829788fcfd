package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-michi/michi"
	"github.com/mscno/ghsync/server/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	svc    *Service
	oauth  *OAuth
	logger *slog.Logger
}

// NewHandler creates the HTTP handlers. oauth may be nil when no OAuth app is configured.
func NewHandler(svc *Service, oauth *OAuth, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, oauth: oauth, logger: logger}
}

// Register mounts every route on r.
func (h *Handler) Register(r *michi.Router) {
	r.Handle("GET /api/health", http.HandlerFunc(h.Health))
	r.Handle("GET /api/github/auth-url", http.HandlerFunc(h.AuthURL))
	r.Handle("GET /api/github/callback", http.HandlerFunc(h.Callback))
	r.Handle("GET /api/github/status/{userId}", http.HandlerFunc(h.Status))
	r.Handle("GET /api/github/sync-status/{userId}", http.HandlerFunc(h.SyncStatus))
	r.Handle("POST /api/github/resync/{userId}", http.HandlerFunc(h.Resync))
	r.Handle("DELETE /api/github/integration/{userId}", http.HandlerFunc(h.DeleteIntegration))
	r.Handle("GET /api/data/collections", http.HandlerFunc(h.Collections))
	r.Handle("GET /api/data/{collection}", http.HandlerFunc(h.ListCollection))
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// AuthURL handles GET /api/github/auth-url
func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "GitHub OAuth is not configured")
		return
	}
	h.oauth.AuthURL(w, r)
}

// Callback handles GET /api/github/callback
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "GitHub OAuth is not configured")
		return
	}
	h.oauth.Callback(w, r)
}

// Status handles GET /api/github/status/{userId}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := model.UserId(r.PathValue("userId"))
	status, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get integration status", "user_id", userID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get integration status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SyncStatus handles GET /api/github/sync-status/{userId}
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := model.UserId(r.PathValue("userId"))
	counts, err := h.svc.Counts(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count records", "user_id", userID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get sync status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"counts": counts,
	})
}

// Resync handles POST /api/github/resync/{userId}
func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	userID := model.UserId(r.PathValue("userId"))
	err := h.svc.Resync(r.Context(), userID)
	switch {
	case errors.Is(err, ErrIntegrationNotFound), errors.Is(err, ErrIntegrationInactive):
		writeError(w, http.StatusNotFound, "Integration not found")
		return
	case errors.Is(err, ErrSyncInProgress):
		writeError(w, http.StatusConflict, "Synchronization already in progress")
		return
	case err != nil:
		h.logger.Error("failed to start resync", "user_id", userID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start synchronization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Synchronization started",
		"syncInProgress": true,
	})
}

// DeleteIntegration handles DELETE /api/github/integration/{userId}
func (h *Handler) DeleteIntegration(w http.ResponseWriter, r *http.Request) {
	userID := model.UserId(r.PathValue("userId"))
	err := h.svc.Disconnect(r.Context(), userID)
	if errors.Is(err, ErrIntegrationNotFound) {
		writeError(w, http.StatusNotFound, "Integration not found")
		return
	}
	if errors.Is(err, ErrSyncInProgress) {
		writeError(w, http.StatusConflict, "Synchronization in progress, try again")
		return
	}
	if err != nil {
		h.logger.Error("failed to remove integration", "user_id", userID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove integration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Integration removed",
	})
}

type collectionInfo struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	KeyFields []string `json:"keyFields"`
}

// Collections handles GET /api/data/collections
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	out := make([]collectionInfo, 0, len(model.Kinds()))
	for _, k := range model.Kinds() {
		out = append(out, collectionInfo{
			Name:      k.Collection(),
			Kind:      k.String(),
			KeyFields: append([]string{"userId"}, k.KeyFields()...),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

type recordView struct {
	Key      map[string]string `json:"key"`
	SyncedAt time.Time         `json:"syncedAt"`
	Data     json.RawMessage   `json:"data"`
}

// ListCollection handles GET /api/data/{collection}?userId=&page=&pageSize=
func (h *Handler) ListCollection(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(r.PathValue("collection"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	}
	q := r.URL.Query()
	userID := model.UserId(q.Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(q.Get("pageSize"), defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	records, total, err := h.svc.Records(r.Context(), kind, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		h.logger.Error("failed to list records", "collection", kind.Collection(), "user_id", userID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView{Key: rec.Key.Fields(), SyncedAt: rec.SyncedAt, Data: rec.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": kind.Collection(),
		"page":       page,
		"pageSize":   pageSize,
		"total":      total,
		"records":    views,
	})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
