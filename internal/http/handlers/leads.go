package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paasforest/proconnect-access/internal/access"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// LeadAccess is implemented by access.Service.
type LeadAccess interface {
	View(ctx context.Context, providerID, leadID string) (*access.LeadDetail, error)
	Visibility(ctx context.Context, providerID, leadID string) (*access.Visibility, error)
	Unlock(ctx context.Context, providerID, leadID string) (*access.UnlockResult, error)
}

type LeadsHandler struct {
	access LeadAccess
	logger *logging.Logger
}

func NewLeadsHandler(svc LeadAccess, logger *logging.Logger) *LeadsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadsHandler{access: svc, logger: logger}
}

// GetLead returns the lead redacted for the calling provider.
// GET /leads/{leadID}
func (h *LeadsHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	leadID := chi.URLParam(r, "leadID")
	detail, err := h.access.View(r.Context(), providerID, leadID)
	if err != nil {
		fail(w, h.logger, err, "lead_id", leadID, "provider_id", providerID)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GET /leads/{leadID}/visibility
func (h *LeadsHandler) GetVisibility(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	leadID := chi.URLParam(r, "leadID")
	vis, err := h.access.Visibility(r.Context(), providerID, leadID)
	if err != nil {
		fail(w, h.logger, err, "lead_id", leadID, "provider_id", providerID)
		return
	}
	writeJSON(w, http.StatusOK, vis)
}

// Unlock spends credits (or uses the subscription) to claim the lead.
// POST /leads/{leadID}/unlock
func (h *LeadsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	leadID := chi.URLParam(r, "leadID")
	res, err := h.access.Unlock(r.Context(), providerID, leadID)
	if err != nil {
		fail(w, h.logger, err, "lead_id", leadID, "provider_id", providerID)
		return
	}
	h.logger.Info("lead unlocked", "lead_id", leadID, "provider_id", providerID, "credits_spent", res.CreditsSpent)
	writeJSON(w, http.StatusOK, res)
}
