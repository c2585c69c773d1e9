// Package httputil holds the JSON response and error-mapping helpers shared
// by all HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"doria/pkg/domainerrors"
)

// ErrorBody is the JSON error envelope. Field errors are included for
// validation failures so clients can map problems onto form fields.
type ErrorBody struct {
	Error struct {
		Code    string                    `json:"code"`
		Message string                    `json:"message"`
		Fields  []domainerrors.FieldError `json:"fields,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError maps a domain error onto its HTTP status and envelope. Unknown
// errors become an opaque 500; internals never leak to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	var body ErrorBody
	body.Error.Code = string(code)
	body.Error.Message = "internal error"
	if code != domainerrors.CodeInternal {
		body.Error.Message = domainerrors.Message(err)
		body.Error.Fields = domainerrors.Details(err)
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps domain error codes to HTTP statuses.
func StatusOf(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeBadRequest:
		return http.StatusBadRequest
	case domainerrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict, domainerrors.CodeInvariantViolation:
		return http.StatusConflict
	case domainerrors.CodeRegistrationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON request body into T. On failure it writes a 400 and
// returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "request body is not valid JSON"))
		return v, false
	}
	return v, true
}
