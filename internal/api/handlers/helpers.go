package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/services"
	"strings"

	"go.uber.org/zap"
)

const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.FromContext(r.Context()).Warn("encode failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		notFound   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Fields: validation.Fields,
		})
	case errors.As(err, &conflict):
		writeError(w, r, http.StatusConflict, conflict.Reason)
	case errors.As(err, &notFound):
		writeError(w, r, http.StatusNotFound, notFound.Error())
	default:
		obs.FromContext(r.Context()).Error(op+" failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads exactly one JSON object from the body. It writes the
// 400 response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

// callerFrom reads the tenant and acting user set by the upstream gateway.
func callerFrom(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	c := services.Caller{
		CompanyID: strings.TrimSpace(r.Header.Get(HeaderCompanyID)),
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
	}
	if c.CompanyID == "" {
		writeError(w, r, http.StatusUnauthorized, HeaderCompanyID+" header is required")
		return services.Caller{}, false
	}
	return c, true
}
