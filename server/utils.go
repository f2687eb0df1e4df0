package server

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
)

// apiError is the JSON body of every failed API call. Detail carries the
// upstream diagnostic body verbatim when there is one.
type apiError struct {
	Error  string  `json:"error"`
	Detail *string `json:"detail,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// bodyKind classifies the request body by its media type.
func bodyKind(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mt {
	case "application/json":
		return "json"
	case "application/x-www-form-urlencoded":
		return "form"
	}
	return ""
}
