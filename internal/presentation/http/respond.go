package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %s", describeDecodeError(err))
	}
	if decoder.More() {
		return apperr.Validation("invalid request body: unexpected trailing data")
	}
	return nil
}

func describeDecodeError(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "body is empty"
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &tooLarge):
		return "body is too large"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindSecurity:
		return http.StatusForbidden
	case apperr.KindExternal:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError renders err with a human-readable reason. Unclassified errors
// and provider failures are logged in full and answered generically.
func writeError(w http.ResponseWriter, r *http.Request, fallback observability.Logger, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: string(apperr.KindOf(err)), Reason: apperr.Reason(err)}

	switch status {
	case http.StatusInternalServerError, http.StatusGatewayTimeout:
		resp = errorResponse{Error: "internal", Reason: "internal error"}
		logctx.FromOr(r.Context(), fallback).Error("http_request_failed", observability.Err(err))
	case http.StatusBadGateway:
		resp.Reason = "payment provider is unavailable"
		logctx.FromOr(r.Context(), fallback).Warn("http_upstream_failed", observability.Err(err))
	}
	writeJSON(w, status, resp)
}
