package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "zkbadge/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP status and JSON body. Internal
// errors never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	body := errorBody{Error: string(code)}
	if status < http.StatusInternalServerError || code == dErrors.CodeLedgerUnavailable {
		body.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, body)
}

// StatusFor returns the HTTP status for a domain code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidDomainFormat, dErrors.CodeEmailMissing:
		return http.StatusBadRequest
	case dErrors.CodeTokenInvalid, dErrors.CodeTokenExpired, dErrors.CodeNonceMismatch,
		dErrors.CodeHandshakeExpired, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeDomainNotAllowed:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeCredentialNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyRegistered, dErrors.CodeDuplicateDomain,
		dErrors.CodeCredentialFinal, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeLedgerRejected, dErrors.CodeInsufficientGas:
		return http.StatusBadGateway
	case dErrors.CodeLedgerUnavailable, dErrors.CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
