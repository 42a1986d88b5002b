package server

import (
	"encoding/json"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writePNG encodes img as an uncached PNG response
func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// splitJobPath turns "/api/v1/jobs/<id>/<action>" into id and action
func splitJobPath(path, prefix string) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}
