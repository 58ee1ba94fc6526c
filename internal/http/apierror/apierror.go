// Package apierror maps domain errors to JSON error responses.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/internal/storage"
)

// Codes returned in the "error" field.
const (
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeInsufficientCredits    = "insufficient_credits"
	CodeDuplicateReference     = "duplicate_reference"
	CodeNotFound               = "not_found"
	CodeConflict               = "conflict"
	CodeValidation             = "validation_error"
	CodeLeadFullyClaimed       = "lead_fully_claimed"
	CodeTooManyDeposits        = "too_many_deposits"
	CodeUnauthorized           = "unauthorized"
	CodeForbidden              = "forbidden"
	CodeAmountMismatch         = "amount_mismatch"
	CodeUploadsDisabled        = "proof_uploads_disabled"
	CodeRateLimited            = "rate_limited"
	CodeUnavailable            = "unavailable"
	CodeInternal               = "internal_error"
)

// Response is the body of every error reply.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type rule struct {
	target error
	status int
	code   string
}

var rules = []rule{
	{deposits.ErrInvalidStateTransition, http.StatusConflict, CodeInvalidStateTransition},
	{providers.ErrInsufficientCredits, http.StatusPaymentRequired, CodeInsufficientCredits},
	{deposits.ErrDuplicateReference, http.StatusConflict, CodeDuplicateReference},
	{deposits.ErrConflict, http.StatusConflict, CodeConflict},
	{leads.ErrLeadFull, http.StatusConflict, CodeLeadFullyClaimed},
	{deposits.ErrVelocityExceeded, http.StatusTooManyRequests, CodeTooManyDeposits},
	{deposits.ErrDepositNotFound, http.StatusNotFound, CodeNotFound},
	{leads.ErrLeadNotFound, http.StatusNotFound, CodeNotFound},
	{providers.ErrProviderNotFound, http.StatusNotFound, CodeNotFound},
	{deposits.ErrNotesRequired, http.StatusBadRequest, CodeValidation},
	{deposits.ErrInvalidRequest, http.StatusBadRequest, CodeValidation},
	{providers.ErrInvalidAmount, http.StatusBadRequest, CodeValidation},
	{deposits.ErrAmountMismatch, http.StatusUnprocessableEntity, CodeAmountMismatch},
	{deposits.ErrProofUploadsDisabled, http.StatusServiceUnavailable, CodeUploadsDisabled},
	{storage.ErrUnsupportedContentType, http.StatusBadRequest, CodeValidation},
}

// Classify returns the HTTP status and code for err.
func Classify(err error) (int, string) {
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return r.status, r.code
		}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, CodeValidation
	}
	return http.StatusInternalServerError, CodeInternal
}

// Write classifies err and writes the JSON reply. Internal errors get a
// generic message so storage details do not leak.
func Write(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteCode(w, status, code, msg)
}

// WriteCode writes an explicit error reply.
func WriteCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: code, Message: message})
}
