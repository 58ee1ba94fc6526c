package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

const defaultLedgerLimit = 50

// ProfileStore is the read side of providers.Repository.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*providers.Profile, error)
	Ledger(ctx context.Context, providerID string, limit int) ([]providers.LedgerEntry, error)
}

type ProfileHandler struct {
	store  ProfileStore
	logger *logging.Logger
}

func NewProfileHandler(store ProfileStore, logger *logging.Logger) *ProfileHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProfileHandler{store: store, logger: logger}
}

// GET /provider/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	profile, err := h.store.Get(r.Context(), providerID)
	if err != nil {
		fail(w, h.logger, err, "provider_id", providerID)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetLedger lists recent credit movements, newest first.
// GET /provider/ledger?limit=n
func (h *ProfileHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = defaultLedgerLimit
	}
	entries, err := h.store.Ledger(r.Context(), providerID, limit)
	if err != nil {
		fail(w, h.logger, err, "provider_id", providerID)
		return
	}
	if entries == nil {
		entries = []providers.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
