package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/optomapp/ledger-engine/ledger"
)

// Code is the machine-readable error class in every error body.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

type codeMetadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]codeMetadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		PublicMessage:  "resource not found",
		DetailsAllowed: true,
	},
	CodeInsufficientStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "insufficient stock",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "too many requests",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "internal server error",
	},
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    Code   `json:"code"`
	Details any    `json:"details,omitempty"`
}

// requestError is an error raised by the HTTP layer itself (bad JSON, bad
// query string) rather than by the ledger.
type requestError struct {
	code    Code
	message string
	details any
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string, details any) error {
	return &requestError{code: CodeValidation, message: message, details: details}
}

// classify maps err onto a code, a client-facing message and optional details.
func classify(err error) (Code, string, any) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.code, reqErr.message, reqErr.details
	}

	var stockErr *ledger.InsufficientStockError
	if errors.As(err, &stockErr) {
		return CodeInsufficientStock, stockErr.Error(), map[string]any{
			"productId": stockErr.ProductID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		}
	}

	var valErr *ledger.ValidationError
	if errors.As(err, &valErr) {
		var details any
		if valErr.Field != "" {
			details = map[string]string{valErr.Field: valErr.Message}
		}
		return CodeValidation, valErr.Error(), details
	}

	var nfErr *ledger.NotFoundError
	if errors.As(err, &nfErr) {
		return CodeNotFound, nfErr.Error(), map[string]string{"kind": nfErr.Kind, "id": nfErr.ID}
	}

	return CodeInternal, metadataByCode[CodeInternal].PublicMessage, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err and logs server-side failures. Store errors never
// leak their cause to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message, details := classify(err)
	meta := metadataByCode[code]
	if !meta.DetailsAllowed {
		details = nil
	}

	if meta.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", err)
	} else {
		h.log.Debug(h.log.WithField(r.Context(), "error", err.Error()), "request rejected")
	}

	writeJSON(w, meta.HTTPStatus, ErrorResponse{Error: message, Code: code, Details: details})
}

func writeRateLimited(w http.ResponseWriter, _ *http.Request) {
	meta := metadataByCode[CodeRateLimit]
	writeJSON(w, meta.HTTPStatus, ErrorResponse{Error: meta.PublicMessage, Code: CodeRateLimit})
}
