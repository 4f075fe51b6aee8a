// Package api exposes the HTTP surface consumed by the swipe mini-app UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/whycore/basefriends/internal/cache"
	"github.com/whycore/basefriends/internal/config"
	"github.com/whycore/basefriends/internal/discover"
	"github.com/whycore/basefriends/internal/logging"
	"github.com/whycore/basefriends/internal/metrics"
	"github.com/whycore/basefriends/internal/model"
	"github.com/whycore/basefriends/internal/neynar"
	"github.com/whycore/basefriends/internal/store"
)

const maxPageSize = 50

// Store is the persistence surface the handlers write through.
type Store interface {
	RecordSwipe(ctx context.Context, s model.Swipe) error
	UpsertPreferences(ctx context.Context, p model.Preferences) error
	GetSigner(ctx context.Context, fid int64) (model.Signer, error)
	Ping(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	discover   *discover.Service
	cache      *cache.Store
	store      Store
	client     neynar.Client
	cfg        config.CandidatesConfig
	haveAPIKey bool
}

// New creates a new Handler instance.
func New(d *discover.Service, c *cache.Store, st Store, client neynar.Client, cfg config.CandidatesConfig, haveAPIKey bool) *Handler {
	return &Handler{
		discover:   d,
		cache:      c,
		store:      st,
		client:     client,
		cfg:        cfg,
		haveAPIKey: haveAPIKey,
	}
}

// Register wires the handler's routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/candidates", h.Candidates)
	mux.HandleFunc("/api/swipe", h.Swipe)
	mux.HandleFunc("/api/follow", h.Follow)
	mux.HandleFunc("/api/onboarding", h.Onboarding)
	mux.HandleFunc("/api/lookup-fid", h.LookupFID)
	mux.HandleFunc("/api/check-fid", h.CheckFID)
	mux.HandleFunc("/api/health", h.Health)
}

// CandidatesResponse is the candidate page payload.
type CandidatesResponse struct {
	Candidates []model.Candidate `json:"candidates"`
	Warning    string            `json:"warning,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Candidates handles GET /api/candidates?fid=&limit=&nocache=1&dev=1.
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	metrics.CandidateRequests.Inc()
	start := time.Now()
	defer metrics.ObserveCandidateDuration(start)

	q := r.URL.Query()
	viewerFID, _ := strconv.ParseInt(q.Get("fid"), 10, 64)
	if viewerFID < 0 {
		viewerFID = 0
	}
	limit := h.cfg.DefaultLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
			if limit > maxPageSize {
				limit = maxPageSize
			}
		}
	}
	bypass := q.Get("nocache") == "1"
	devMock := q.Get("dev") == "1"

	if devMock || !h.haveAPIKey {
		metrics.MockFallbacks.Inc()
		writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: mockCandidates()})
		return
	}

	key := cache.Key{FID: viewerFID, Limit: limit}
	if !bypass {
		if cached, ok := h.cache.Get(key); ok {
			writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: cached})
			return
		}
	}

	candidates, err := h.discover.Candidates(r.Context(), viewerFID, limit)
	if err != nil {
		logging.Error("candidate pipeline failed, serving mock", map[string]any{"fid": viewerFID, "error": err.Error()})
		metrics.MockFallbacks.Inc()
		writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: mockCandidates(), Warning: "mock_fallback"})
		return
	}

	if !bypass {
		h.cache.Set(key, candidates)
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: candidates})
}

// SwipeRequest is the swipe/follow write payload.
type SwipeRequest struct {
	FID    int64  `json:"fid"`
	ToFID  int64  `json:"toFid"`
	Action string `json:"action"`
}

// SwipeResponse acknowledges a recorded action. Deeplink is the Warpcast
// profile fallback for clients that cannot perform an in-app follow.
type SwipeResponse struct {
	OK       bool   `json:"ok"`
	Deeplink string `json:"deeplink,omitempty"`
}

func warpcastDeeplink(fid int64) string {
	return "https://warpcast.com/~/profiles/" + strconv.FormatInt(fid, 10)
}

// Swipe handles POST /api/swipe.
func (h *Handler) Swipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ToFID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_toFid")
		return
	}
	action := model.ActionSkip
	if req.Action == model.ActionFollow {
		action = model.ActionFollow
	}
	if req.FID < 0 {
		req.FID = 0
	}

	// A persistence failure never blocks the write path; the client keeps
	// its deeplink fallback either way.
	if err := h.store.RecordSwipe(r.Context(), model.Swipe{FromFID: req.FID, ToFID: req.ToFID, Action: action}); err != nil {
		logging.Warn("swipe persist failed", map[string]any{"fid": req.FID, "toFid": req.ToFID, "error": err.Error()})
	} else {
		metrics.SwipeWrites.WithLabelValues(action).Inc()
	}

	resp := SwipeResponse{OK: true}
	if action == model.ActionFollow {
		resp.Deeplink = warpcastDeeplink(req.ToFID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Follow handles POST /api/follow: an in-app follow performed with the
// viewer's signer.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ToFID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_toFid")
		return
	}
	if req.FID <= 0 {
		writeError(w, http.StatusBadRequest, "fid is required for in-app follow")
		return
	}

	signer, err := h.store.GetSigner(r.Context(), req.FID)
	if err != nil {
		if errors.Is(err, store.ErrNoSigner) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "signer_required",
				Message: "Connect your Farcaster signer via /auth/neynar/start",
			})
			return
		}
		logging.Error("signer load failed", map[string]any{"fid": req.FID, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Failed to load signer")
		return
	}

	if err := h.client.FollowUser(r.Context(), signer.SignerUUID, req.ToFID); err != nil {
		logging.Warn("neynar follow failed, returning deeplink fallback", map[string]any{"fid": req.FID, "toFid": req.ToFID, "error": err.Error()})
		writeJSON(w, http.StatusOK, SwipeResponse{OK: false, Deeplink: warpcastDeeplink(req.ToFID)})
		return
	}

	if err := h.store.RecordSwipe(r.Context(), model.Swipe{FromFID: req.FID, ToFID: req.ToFID, Action: model.ActionFollow}); err != nil {
		logging.Warn("follow persist failed", map[string]any{"fid": req.FID, "toFid": req.ToFID, "error": err.Error()})
	} else {
		metrics.SwipeWrites.WithLabelValues(model.ActionFollow).Inc()
	}
	writeJSON(w, http.StatusOK, SwipeResponse{OK: true})
}

// OnboardingRequest carries the viewer's declared keywords.
type OnboardingRequest struct {
	FID       int64  `json:"fid"`
	Headline  string `json:"headline"`
	Interests string `json:"interests"`
	Skills    string `json:"skills"`
}

// Onboarding handles POST /api/onboarding.
func (h *Handler) Onboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req OnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.FID <= 0 {
		writeError(w, http.StatusBadRequest, "fid is required")
		return
	}
	err := h.store.UpsertPreferences(r.Context(), model.Preferences{
		FID:       req.FID,
		Headline:  req.Headline,
		Interests: req.Interests,
		Skills:    req.Skills,
	})
	if err != nil {
		logging.Warn("preferences persist failed", map[string]any{"fid": req.FID, "error": err.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// LookupFIDRequest resolves a wallet address to a FID.
type LookupFIDRequest struct {
	Address string `json:"address"`
}

// LookupFID handles POST /api/lookup-fid.
func (h *Handler) LookupFID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req LookupFIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "Address is required")
		return
	}
	if !h.haveAPIKey {
		writeError(w, http.StatusInternalServerError, "Neynar API key not configured")
		return
	}
	user, err := h.client.LookupUserByAddress(r.Context(), req.Address)
	if err != nil {
		if errors.Is(err, neynar.ErrNotFound) {
			writeError(w, http.StatusNotFound, "FID not found for this address")
			return
		}
		logging.Error("address lookup failed", map[string]any{"address": req.Address, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Failed to lookup FID")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fid":         user.FID,
		"username":    user.Username,
		"displayName": user.DisplayName,
	})
}

// CheckFID handles GET /api/check-fid?address=0x... It always answers 200
// with hasFid true/false so clients can probe without error handling.
func (h *Handler) CheckFID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "Address parameter is required")
		return
	}
	if !h.haveAPIKey {
		writeError(w, http.StatusInternalServerError, "Neynar API key not configured")
		return
	}
	user, err := h.client.LookupUserByAddress(r.Context(), address)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"hasFid":  false,
			"address": address,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"hasFid":      true,
		"address":     address,
		"fid":         user.FID,
		"username":    user.Username,
		"displayName": user.DisplayName,
		"pfpUrl":      user.PfpURL,
	})
}

// HealthResponse reports per-dependency health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"database": "ok", "neynar": "ok"},
	}
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Checks["database"] = "error: " + err.Error()
		resp.Status = "error"
	}
	if !h.haveAPIKey {
		resp.Checks["neynar"] = "missing api key"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}
	status := http.StatusOK
	if resp.Status == "error" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("encode response failed", map[string]any{"error": err.Error()})
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
