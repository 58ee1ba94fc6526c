package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string, headers map[string]string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/deposits", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(handler).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://app.proconnect.co.za"}, http.MethodGet, "https://app.proconnect.co.za", nil)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, called=%v status=%d", called, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.proconnect.co.za" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if rec.Header().Get("Access-Control-Expose-Headers") == "" {
		t.Fatalf("expected exposed headers")
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://app.proconnect.co.za"}, http.MethodGet, "https://evil.example", nil)

	if !called {
		t.Fatalf("non-preflight requests still reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	rec, _ := corsRequest(t, []string{"https://*.proconnect.co.za"}, http.MethodGet, "https://admin.proconnect.co.za", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.proconnect.co.za" {
		t.Fatalf("expected subdomain to be allowed, got %q", got)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://random.example", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected allow origin header for wildcard config")
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://app.proconnect.co.za"}, http.MethodOptions, "https://app.proconnect.co.za", map[string]string{
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Authorization, Content-Type",
	})

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code >= 300 {
		t.Fatalf("expected success status, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPost {
		t.Fatalf("expected POST to be allowed, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Fatalf("expected allow headers on preflight")
	}
}

func TestCORSEmptyListIsPassthrough(t *testing.T) {
	rec, called := corsRequest(t, []string{" ", ""}, http.MethodGet, "https://app.proconnect.co.za", nil)
	if !called {
		t.Fatalf("expected handler to run")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got %q", got)
	}
}
