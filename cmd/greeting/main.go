package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"epubflow/internal/services"
)

var greetingInstance = services.NewGreeting()

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("Greeting", handleGreeting)
}

func main() {}

// handleGreeting is the HTTP handler for the greeting endpoint. The name
// query parameter is optional.
func handleGreeting(w http.ResponseWriter, r *http.Request) {
	res := greetingInstance.Process(r.URL.Query().Get("name"))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
