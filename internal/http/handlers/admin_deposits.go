package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/http/apierror"
	"github.com/paasforest/proconnect-access/internal/http/middleware"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// DepositAdmin is the admin-facing part of deposits.Service.
type DepositAdmin interface {
	GetAny(ctx context.Context, depositID string) (*deposits.Deposit, error)
	Action(ctx context.Context, depositID, adminID string, req deposits.ActionRequest) (*deposits.Deposit, error)
	ResetVelocity(ctx context.Context, providerID, adminID string) error
}

// DepositReporter is implemented by deposits.Reporter.
type DepositReporter interface {
	List(ctx context.Context, filter deposits.ListFilter) (*deposits.ListPage, error)
	Stats(ctx context.Context, now time.Time) (*deposits.Stats, error)
}

// AdminDepositsHandler serves deposit review and reporting for admins.
type AdminDepositsHandler struct {
	deposits DepositAdmin
	reporter DepositReporter
	now      func() time.Time
	logger   *logging.Logger
}

// NewAdminDepositsHandler accepts a nil reporter; listing then answers 503.
func NewAdminDepositsHandler(svc DepositAdmin, reporter DepositReporter, logger *logging.Logger) *AdminDepositsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDepositsHandler{deposits: svc, reporter: reporter, now: time.Now, logger: logger}
}

// Action approves or rejects a pending deposit.
// POST /deposits/{depositID}/action
func (h *AdminDepositsHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req deposits.ActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	depositID := chi.URLParam(r, "depositID")
	adminID := middleware.AdminID(r.Context())
	d, err := h.deposits.Action(r.Context(), depositID, adminID, req)
	if err != nil {
		fail(w, h.logger, err, "deposit_id", depositID, "action", req.Action)
		return
	}
	h.logger.Info("deposit action applied", "deposit_id", depositID, "action", req.Action, "admin", adminID, "status", d.Status)
	writeJSON(w, http.StatusOK, d)
}

// ResetVelocity lifts a provider's deposit rate limit.
// POST /admin/providers/{providerID}/velocity/reset
func (h *AdminDepositsHandler) ResetVelocity(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	adminID := middleware.AdminID(r.Context())
	if err := h.deposits.ResetVelocity(r.Context(), providerID, adminID); err != nil {
		fail(w, h.logger, err, "provider_id", providerID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /admin/deposits/{depositID}
func (h *AdminDepositsHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	depositID := chi.URLParam(r, "depositID")
	d, err := h.deposits.GetAny(r.Context(), depositID)
	if err != nil {
		fail(w, h.logger, err, "deposit_id", depositID)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListDeposits returns a page of deposits, newest first.
// GET /admin/deposits?status=pending,failed&provider_id=&date_from=2006-01-02&date_to=&page=&page_size=
func (h *AdminDepositsHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		apierror.WriteCode(w, http.StatusServiceUnavailable, apierror.CodeUnavailable, "deposit reporting requires a database")
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		apierror.WriteCode(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	page, err := h.reporter.List(r.Context(), filter)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /admin/deposits/stats
func (h *AdminDepositsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		apierror.WriteCode(w, http.StatusServiceUnavailable, apierror.CodeUnavailable, "deposit reporting requires a database")
		return
	}
	stats, err := h.reporter.Stats(r.Context(), h.now())
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseListFilter(r *http.Request) (deposits.ListFilter, error) {
	q := r.URL.Query()
	filter := deposits.ListFilter{ProviderID: strings.TrimSpace(q.Get("provider_id"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	for _, raw := range strings.Split(q.Get("status"), ",") {
		raw = strings.TrimSpace(strings.ToLower(raw))
		switch deposits.Status(raw) {
		case "":
		case deposits.StatusPending, deposits.StatusCompleted, deposits.StatusFailed:
			filter.Statuses = append(filter.Statuses, deposits.Status(raw))
		default:
			return filter, filterError("unknown status " + strconv.Quote(raw))
		}
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filter, filterError("date_from must be YYYY-MM-DD")
		}
		filter.From = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filter, filterError("date_to must be YYYY-MM-DD")
		}
		filter.To = t.AddDate(0, 0, 1)
	}
	return filter, nil
}
