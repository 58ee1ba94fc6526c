package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paasforest/proconnect-access/internal/access"
	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

func TestLeadsHandler_GetLeadRedactsContact(t *testing.T) {
	h := newHarness(t)
	lead := h.leads.Put(&leads.Lead{Category: "plumbing", MaxProviders: 3, ContactPhone: "+27831112222", ContactName: "Ayanda"})
	handler := NewLeadsHandler(h.access, logging.Discard())

	rec := httptest.NewRecorder()
	handler.GetLead(rec, request(http.MethodGet, "/leads/"+lead.ID, "prov-1", nil, map[string]string{"leadID": lead.ID}))

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[access.LeadDetail](t, rec)
	assert.Equal(t, access.LevelCreditRequired, detail.Visibility.AccessLevel)
	assert.False(t, detail.Visibility.CanViewContactDetails)
	assert.Empty(t, detail.Lead.ContactPhone)
	assert.Equal(t, "plumbing", detail.Lead.Category)
}

func TestLeadsHandler_VisibilityAndUnlock(t *testing.T) {
	h := newHarness(t)
	lead := h.leads.Put(&leads.Lead{MaxProviders: 3, ContactPhone: "+27831112222"})
	handler := NewLeadsHandler(h.access, logging.Discard())
	params := map[string]string{"leadID": lead.ID}

	rec := httptest.NewRecorder()
	handler.GetVisibility(rec, request(http.MethodGet, "/leads/x/visibility", "prov-1", nil, params))
	require.Equal(t, http.StatusOK, rec.Code)
	vis := decode[access.Visibility](t, rec)
	assert.Equal(t, 1, vis.CreditRequired)

	rec = httptest.NewRecorder()
	handler.Unlock(rec, request(http.MethodPost, "/leads/x/unlock", "prov-1", nil, params))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[access.UnlockResult](t, rec)
	assert.Equal(t, 1, res.CreditsSpent)
	assert.Equal(t, 4, res.CreditBalance)
	assert.Equal(t, "+27831112222", res.Lead.ContactPhone)
}

func TestLeadsHandler_UnlockWithoutCredits(t *testing.T) {
	h := newHarness(t)
	lead := h.leads.Put(&leads.Lead{MaxProviders: 3})
	handler := NewLeadsHandler(h.access, logging.Discard())

	rec := httptest.NewRecorder()
	handler.Unlock(rec, request(http.MethodPost, "/", "prov-2", nil, map[string]string{"leadID": lead.ID}))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_credits", errorCode(t, rec))
}

func TestLeadsHandler_FullLead(t *testing.T) {
	h := newHarness(t)
	lead := h.leads.Put(&leads.Lead{MaxProviders: 1, AssignedCount: 1, ClaimedBy: []string{"someone-else"}})
	handler := NewLeadsHandler(h.access, logging.Discard())

	rec := httptest.NewRecorder()
	handler.Unlock(rec, request(http.MethodPost, "/", "prov-1", nil, map[string]string{"leadID": lead.ID}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "lead_fully_claimed", errorCode(t, rec))
}

func TestLeadsHandler_NotFoundAndUnauthenticated(t *testing.T) {
	h := newHarness(t)
	handler := NewLeadsHandler(h.access, logging.Discard())

	rec := httptest.NewRecorder()
	handler.GetLead(rec, request(http.MethodGet, "/", "prov-1", nil, map[string]string{"leadID": "missing"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetLead(rec, request(http.MethodGet, "/", "", nil, map[string]string{"leadID": "missing"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileHandler(t *testing.T) {
	h := newHarness(t)
	lead := h.leads.Put(&leads.Lead{MaxProviders: 3})
	_, err := h.access.Unlock(request(http.MethodGet, "/", "", nil, nil).Context(), "prov-1", lead.ID)
	require.NoError(t, err)
	handler := NewProfileHandler(h.providers, logging.Discard())

	rec := httptest.NewRecorder()
	handler.GetProfile(rec, request(http.MethodGet, "/provider/profile", "prov-1", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[providers.Profile](t, rec)
	assert.Equal(t, 4, profile.CreditBalance)

	rec = httptest.NewRecorder()
	handler.GetLedger(rec, request(http.MethodGet, "/provider/ledger?limit=5", "prov-1", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]providers.LedgerEntry](t, rec)
	require.Len(t, body["entries"], 1)
	assert.Equal(t, providers.EntrySpend, body["entries"][0].EntryType)

	rec = httptest.NewRecorder()
	handler.GetLedger(rec, request(http.MethodGet, "/provider/ledger", "prov-2", nil, nil))
	assert.Equal(t, `{"entries":[]}`+"\n", rec.Body.String())
}
