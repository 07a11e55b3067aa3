// Package httperror simplifies returning an error as JSON from an HTTP handler
package httperror

import (
	"encoding/json"
	"net/http"
)

type jsonError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
	Path   string `json:"path,omitempty"`
}

// Send writes message as a JSON error body with the given status code.
func Send(w http.ResponseWriter, req *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	m := jsonError{Error: message, Status: status}
	if req != nil && req.URL != nil {
		m.Path = req.URL.Path
	}
	_ = json.NewEncoder(w).Encode(m)
}
