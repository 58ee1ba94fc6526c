package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/paasforest/proconnect-access/internal/access"
	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/events"
	"github.com/paasforest/proconnect-access/internal/identity"
	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

type harness struct {
	leads     *leads.InMemoryRepository
	providers *providers.InMemoryRepository
	deposits  *deposits.Service
	access    *access.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		leads:     leads.NewInMemoryRepository(),
		providers: providers.NewInMemoryRepository(),
	}
	h.providers.Put(&providers.Profile{
		ID:               "prov-1",
		Name:             "Lerato Plumbing",
		Phone:            "+27821234567",
		SubscriptionTier: providers.TierPayAsYouGo,
		CreditBalance:    5,
	})
	h.providers.Put(&providers.Profile{ID: "prov-2", Phone: "+27829876543"})
	h.access = access.NewService(h.leads, h.providers, access.DefaultPricing(), logging.Discard())
	h.deposits = deposits.NewService(deposits.NewInMemoryRepository(), h.providers,
		events.NewInlinePublisher(nil, logging.Discard()),
		deposits.ServiceConfig{Banking: deposits.BankingDetails{BankName: "FNB", AccountNumber: "62000000000", BranchCode: "250655"}},
		logging.Discard())
	return h
}

// request builds a request carrying the provider identity and chi URL params.
func request(method, target, providerID string, body any, params map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := req.Context()
	if providerID != "" {
		ctx = identity.WithProviderID(ctx, providerID)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}
