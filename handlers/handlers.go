// goban/handlers/handlers.go
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"goban/board"
	"goban/database"
	"goban/models"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	Boards() *board.Service
	Store() *database.Store
	RateLimiter() *models.RateLimiter
	Logger() *slog.Logger
	StaticDir() string
	ModKeyHash() string
	AdminKeyHash() string
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// MakeHandler adapts an App-aware handler function to http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// respondServiceError maps pipeline errors onto HTTP statuses. Rejections
// carry their kind so clients can tell a flood wait from a ban.
func respondServiceError(w http.ResponseWriter, err error, app App) {
	var rej *board.Rejection
	switch {
	case errors.As(err, &rej):
		status := http.StatusBadRequest
		switch rej.Kind {
		case board.RejectBan, board.RejectKeyword:
			status = http.StatusForbidden
		case board.RejectFlood:
			status = http.StatusTooManyRequests
		}
		payload := map[string]interface{}{
			"error": rej.Message,
			"kind":  rej.Kind.String(),
		}
		if rej.Wait > 0 {
			payload["retry_after_secs"] = int(rej.Wait.Seconds()) + 1
		}
		if rej.Duplicate != 0 {
			payload["duplicate_post"] = rej.Duplicate
		}
		respondJSON(w, status, payload, app)
	case errors.Is(err, board.ErrUnauthorized):
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden."}, app)
	case errors.Is(err, board.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found."}, app)
	default:
		app.Logger().Error("Internal error in handler", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error."}, app)
	}
}
