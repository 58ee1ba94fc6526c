package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/http/apierror"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// DepositService is the provider-facing part of deposits.Service.
type DepositService interface {
	Create(ctx context.Context, providerID string, req deposits.CreateRequest) (*deposits.CreateResult, error)
	Get(ctx context.Context, providerID, depositID string) (*deposits.Deposit, error)
	AttachProof(ctx context.Context, providerID, depositID, contentType string) (*deposits.ProofUpload, error)
	PremiumStatus(ctx context.Context, providerID string) (*deposits.PremiumStatus, error)
}

type DepositsHandler struct {
	deposits DepositService
	logger   *logging.Logger
}

func NewDepositsHandler(svc DepositService, logger *logging.Logger) *DepositsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DepositsHandler{deposits: svc, logger: logger}
}

// CreateDeposit opens a pending deposit and returns the payment reference
// together with the banking details to pay into.
// POST /deposits
func (h *DepositsHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	var req deposits.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.deposits.Create(r.Context(), providerID, req)
	if err != nil {
		fail(w, h.logger, err, "provider_id", providerID)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /deposits/{depositID}
func (h *DepositsHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	depositID := chi.URLParam(r, "depositID")
	d, err := h.deposits.Get(r.Context(), providerID, depositID)
	if err != nil {
		fail(w, h.logger, err, "deposit_id", depositID)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type proofRequest struct {
	ContentType string `json:"content_type"`
}

// RequestProofUpload issues a presigned URL for the proof of payment.
// POST /deposits/{depositID}/proof
func (h *DepositsHandler) RequestProofUpload(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	var req proofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ContentType) == "" {
		apierror.WriteCode(w, http.StatusBadRequest, apierror.CodeValidation, "content_type is required")
		return
	}
	depositID := chi.URLParam(r, "depositID")
	upload, err := h.deposits.AttachProof(r.Context(), providerID, depositID, req.ContentType)
	if err != nil {
		fail(w, h.logger, err, "deposit_id", depositID)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// GET /premium-status
func (h *DepositsHandler) PremiumStatus(w http.ResponseWriter, r *http.Request) {
	providerID, ok := requireProvider(w, r)
	if !ok {
		return
	}
	status, err := h.deposits.PremiumStatus(r.Context(), providerID)
	if err != nil {
		fail(w, h.logger, err, "provider_id", providerID)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
