package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/server/middleware"
)

// OpportunityHandler serves read and bookmark endpoints for detected
// arbitrage opportunities.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	cache  domain.OpportunityCache // optional; nil disables the read cache
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(store domain.OpportunityStore, cache domain.OpportunityCache, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, cache: cache, logger: logger}
}

// listResponse wraps the active opportunity list.
type listResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	Count         int                  `json:"count"`
}

// ListActive returns currently active opportunities, newest and most
// profitable first. Unfiltered requests are served from the cache when
// possible.
// GET /api/opportunities?sport=basketball_nba&minRoi=2&limit=50&offset=0
func (h *OpportunityHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	filter := domain.OpportunityFilter{
		Sport:  r.URL.Query().Get("sport"),
		MinROI: queryFloat(r, "minRoi", 0),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	unfiltered := filter.Sport == "" && filter.MinROI == 0 && filter.Offset == 0 && filter.Limit == 50

	if unfiltered && h.cache != nil {
		if opps, err := h.cache.GetActive(r.Context(), "default"); err == nil {
			writeJSON(w, http.StatusOK, listResponse{Opportunities: opps, Count: len(opps)})
			return
		}
	}

	opps, err := h.store.ListActive(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	if unfiltered && h.cache != nil {
		if err := h.cache.SetActive(r.Context(), "default", opps); err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache fill failed",
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, listResponse{Opportunities: opps, Count: len(opps)})
}

// GetByID returns a single opportunity and bumps its view counter.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	opp, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get opportunity failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}

	if err := h.store.IncrementViewCount(r.Context(), id); err != nil {
		// View counting is best effort; the read still succeeds.
		h.logger.WarnContext(r.Context(), "handler: view count failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	} else {
		opp.ViewCount++
	}

	writeJSON(w, http.StatusOK, opp)
}

// saveRequest is the body for bookmarking an opportunity.
type saveRequest struct {
	Notes string `json:"notes"`
}

// Save bookmarks an opportunity for the authenticated user.
// POST /api/opportunities/{id}/save
func (h *OpportunityHandler) Save(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	// An empty body means no note; anything unparseable is rejected.
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.SaveForUser(r.Context(), identity.UserID, id, req.Notes); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: save opportunity failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save opportunity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "id": id})
}

// ListSaved returns the authenticated user's bookmarked opportunities.
// GET /api/opportunities/saved
func (h *OpportunityHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	saved, err := h.store.ListSavedByUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list saved failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list saved opportunities")
		return
	}
	if saved == nil {
		saved = []domain.SavedOpportunity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"saved": saved, "count": len(saved)})
}
