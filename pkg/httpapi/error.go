package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrorEnvelope is the JSON body of every non-2xx API response.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return e.Code + ": " + e.Message
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// DecodeJSON reads at most maxBytes of the request body into dst. An empty
// body leaves dst untouched.
func DecodeJSON(r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &ErrorEnvelope{Code: "INVALID_JSON", Message: err.Error()}
	}
	return nil
}

// WriteDecodeError answers a DecodeJSON failure with 400.
func WriteDecodeError(w http.ResponseWriter, err error) error {
	var envelope *ErrorEnvelope
	if errors.As(err, &envelope) {
		return WriteJSON(w, http.StatusBadRequest, envelope)
	}
	return WriteError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
}
