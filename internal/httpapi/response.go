package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/leonardcser/nasa-proxy/internal/auth"
	"github.com/leonardcser/nasa-proxy/internal/logger"
	"github.com/leonardcser/nasa-proxy/internal/nasa"
	"github.com/leonardcser/nasa-proxy/internal/store"
	"github.com/leonardcser/nasa-proxy/internal/validate"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// Error is an error carrying the HTTP status it should be reported with.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warnf("write response: %v", err)
	}
}

// writeError maps err onto a status code and a {"success":false} body.
// Unknown errors are logged and reported as 500 without details.
func writeError(w http.ResponseWriter, err error) {
	var (
		httpErr *Error
		vErrs   validate.Errors
	)
	switch {
	case errors.As(err, &vErrs):
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "errors": []string(vErrs)})
		return
	case errors.As(err, &httpErr):
	case errors.Is(err, store.ErrUserNotFound):
		httpErr = errorf(http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrAssetNotFound):
		httpErr = errorf(http.StatusNotFound, "Asset not found")
	case errors.Is(err, store.ErrDuplicate):
		httpErr = errorf(http.StatusBadRequest, "Duplicate field value entered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpErr = errorf(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		httpErr = errorf(http.StatusUnauthorized, "Not authorized to access this route")
	case errors.Is(err, nasa.ErrEmptyQuery):
		httpErr = errorf(http.StatusBadRequest, "Please provide a search query")
	case errors.Is(err, nasa.ErrUpstream):
		logger.Errorf("search: %v", err)
		httpErr = errorf(http.StatusInternalServerError, "NASA API request failed")
	default:
		logger.Errorf("unhandled: %v", err)
		httpErr = errorf(http.StatusInternalServerError, "Server Error")
	}
	writeJSON(w, httpErr.Status, envelope{"success": false, "error": httpErr.Message})
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errorf(http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			return errorf(http.StatusBadRequest, "Request body is empty")
		default:
			return errorf(http.StatusBadRequest, "Malformed JSON body")
		}
	}
	return nil
}
