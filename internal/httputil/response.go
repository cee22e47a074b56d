// Package httputil holds the JSON response helpers shared by the HTTP and
// debug endpoints.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// StatusError carries the HTTP status a handler error should produce.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// Errorf returns a StatusError with a formatted message.
func Errorf(code int, format string, args ...any) error {
	return &StatusError{Code: code, Err: fmt.Errorf(format, args...)}
}

// WithStatus tags err with an HTTP status code.
func WithStatus(code int, err error) error {
	return &StatusError{Code: code, Err: err}
}

// JSONFunc produces the body of a read-only JSON endpoint.
type JSONFunc func(r *http.Request) (any, error)

// JSON adapts fn to a GET-only handler. Errors become JSON error bodies
// with the status from a StatusError, or 500.
func JSON(fn JSONFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		v, err := fn(r)
		if err != nil {
			code := http.StatusInternalServerError
			var se *StatusError
			if errors.As(err, &se) {
				code = se.Code
			}
			WriteJSONError(w, code, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, v)
	}
}
