// Package handlers exposes the access and deposit services over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/paasforest/proconnect-access/internal/http/apierror"
	"github.com/paasforest/proconnect-access/internal/identity"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		apierror.WriteCode(w, http.StatusBadRequest, apierror.CodeValidation, "invalid JSON body")
		return false
	}
	return true
}

func requireProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := identity.ProviderIDFromContext(r.Context())
	if !ok {
		apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "provider identity required")
		return "", false
	}
	return id, true
}

// fail writes err and logs anything that maps to a 500.
func fail(w http.ResponseWriter, logger *logging.Logger, err error, args ...any) {
	if status, _ := apierror.Classify(err); status >= http.StatusInternalServerError {
		logger.Error("request failed", append(args, "error", err)...)
	}
	apierror.Write(w, err)
}
