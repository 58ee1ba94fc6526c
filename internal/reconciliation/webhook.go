package reconciliation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/paasforest/proconnect-access/internal/http/apierror"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

const (
	signatureHeader = "X-Bank-Signature"
	signaturePrefix = "sha256="
	maxWebhookBody  = 1 << 20
)

// WebhookHandler accepts signed bank transaction notifications.
type WebhookHandler struct {
	secret    string
	processor *Processor
	validate  *validator.Validate
	logger    *logging.Logger
}

func NewWebhookHandler(secret string, processor *Processor, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    strings.TrimSpace(secret),
		processor: processor,
		validate:  validator.New(),
		logger:    logger,
	}
}

type webhookResponse struct {
	TransactionID string `json:"transaction_id"`
	Result        Result `json:"result"`
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.logger.Error("bank webhook secret not configured")
		apierror.WriteCode(w, http.StatusServiceUnavailable, "webhook_disabled", "bank webhook is not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		apierror.WriteCode(w, http.StatusBadRequest, apierror.CodeValidation, "invalid body")
		return
	}
	if !VerifySignature(h.secret, payload, r.Header.Get(signatureHeader)) {
		h.logger.Warn("invalid bank webhook signature")
		apierror.WriteCode(w, http.StatusUnauthorized, "invalid_signature", "invalid signature")
		return
	}

	var txn BankTransaction
	if err := json.Unmarshal(payload, &txn); err != nil {
		apierror.WriteCode(w, http.StatusBadRequest, apierror.CodeValidation, "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(txn); err != nil {
		apierror.Write(w, err)
		return
	}

	result, err := h.processor.Process(r.Context(), SourceWebhook, txn)
	if err != nil {
		h.logger.Error("bank webhook processing failed", "transaction_id", txn.ID, "error", err)
		apierror.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(webhookResponse{TransactionID: txn.ID, Result: result})
}

// VerifySignature checks a "sha256=<hex hmac>" header over the raw body.
func VerifySignature(secret string, payload []byte, header string) bool {
	if strings.TrimSpace(secret) == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(Sign(secret, payload), provided)
}

// Sign returns the raw HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}
