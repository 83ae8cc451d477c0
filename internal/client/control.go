package client

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// ControlHandler exposes the approver on a local HTTP surface: the status
// snapshot plus the two decision endpoints the operator UI calls. It binds
// to loopback by default and carries no auth of its own.
func ControlHandler(c *Client, logger zerolog.Logger) http.Handler {
	log := logger.With().Str("component", "control").Logger()
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	})

	decide := func(name string, fn func() error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
				return
			}
			if err := fn(); err != nil {
				log.Warn().Err(err).Str("action", name).Msg("decision not accepted")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "approver is not running"})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	}

	mux.HandleFunc("/approve", decide("approve", c.Approve))
	mux.HandleFunc("/reject", decide("reject", c.Reject))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
