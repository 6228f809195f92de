package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/flover-luffy/newboy/services/fetch"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

// statusForFetch maps the fetch error taxonomy onto HTTP statuses. Upstream
// provider trouble is a bad gateway from this server's point of view.
func statusForFetch(err error) (int, string) {
	kind := fetch.ErrorKind(err)
	switch kind {
	case "credential_missing", "credential_expired":
		return http.StatusUnauthorized, kind
	case "unknown_provider":
		return http.StatusNotFound, kind
	case "gateway_timeout", "gateway_retries_exhausted":
		return http.StatusGatewayTimeout, kind
	case "gateway_connection_failed", "gateway_http_status":
		return http.StatusBadGateway, kind
	case "canceled":
		return http.StatusRequestTimeout, kind
	}
	if kind != "" && kind != "internal" {
		// parse_* family
		return http.StatusBadGateway, kind
	}
	return http.StatusInternalServerError, kind
}
