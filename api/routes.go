package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flover-luffy/newboy/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// pinAuthMiddleware gates every protected route behind the startup PIN,
// accepted either as the X-API-PIN header or a Bearer token.
func pinAuthMiddleware(pin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-PIN")
			if got == "" {
				const prefix = "Bearer "
				if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
					got = auth[len(prefix):]
				}
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(pin)) != 1 {
				http.Error(w, "Invalid or missing PIN", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	pin string,
	fetchHandler *handlers.FetchHandler,
	credentialsHandler *handlers.CredentialsHandler,
	monitorHandler *handlers.MonitorHandler,
	settingsHandler *handlers.SettingsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Health check (no authentication required)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// Protected routes - require the startup PIN
	protected := api.PathPrefix("").Subrouter()
	protected.Use(pinAuthMiddleware(pin))

	// Content fetching
	protected.HandleFunc("/providers", fetchHandler.Providers).Methods(http.MethodGet)
	protected.HandleFunc("/providers", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/fetch", fetchHandler.Fetch).Methods(http.MethodPost)
	protected.HandleFunc("/fetch", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/fetch/batch", fetchHandler.FetchBatch).Methods(http.MethodPost)
	protected.HandleFunc("/fetch/batch", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/media/probe", fetchHandler.Probe).Methods(http.MethodPost)
	protected.HandleFunc("/media/probe", handleOptions).Methods(http.MethodOptions)

	// Credential management
	protected.HandleFunc("/credentials", credentialsHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/credentials", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/credentials/{provider}", credentialsHandler.Put).Methods(http.MethodPut)
	protected.HandleFunc("/credentials/{provider}", credentialsHandler.Delete).Methods(http.MethodDelete)
	protected.HandleFunc("/credentials/{provider}", handleOptions).Methods(http.MethodOptions)

	// Feed monitoring
	protected.HandleFunc("/monitor/status", monitorHandler.Status).Methods(http.MethodGet)
	protected.HandleFunc("/monitor/status", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/monitor/subscriptions", monitorHandler.Subscriptions).Methods(http.MethodGet)
	protected.HandleFunc("/monitor/subscriptions", monitorHandler.Subscribe).Methods(http.MethodPost)
	protected.HandleFunc("/monitor/subscriptions", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/monitor/subscriptions/{provider}/{userID}", monitorHandler.Unsubscribe).Methods(http.MethodDelete)
	protected.HandleFunc("/monitor/subscriptions/{provider}/{userID}", handleOptions).Methods(http.MethodOptions)
	protected.HandleFunc("/monitor/subscriptions/{provider}/{userID}/reactivate", monitorHandler.Reactivate).Methods(http.MethodPost)
	protected.HandleFunc("/monitor/subscriptions/{provider}/{userID}/reactivate", handleOptions).Methods(http.MethodOptions)

	// Settings
	protected.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	protected.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	protected.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)
}
