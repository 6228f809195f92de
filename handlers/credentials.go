package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/cookies"
)

type CredentialsHandler struct {
	Store *cookies.Store
}

func NewCredentialsHandler(store *cookies.Store) *CredentialsHandler {
	return &CredentialsHandler{Store: store}
}

// List returns redacted credential status for every provider with cookies
// installed. Cookie values never leave the store through this endpoint.
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"credentials": h.Store.List()})
}

// Put installs or replaces the cookies for one provider.
func (h *CredentialsHandler) Put(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	var body struct {
		Cookies   map[string]string `json:"cookies"`
		ExpiresAt time.Time         `json:"expiresAt,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	if len(body.Cookies) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("cookies must not be empty"), "bad_request")
		return
	}

	err := h.Store.Set(provider, models.Credential{
		Provider:  provider,
		Cookies:   body.Cookies,
		ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Delete removes a provider's cookies.
func (h *CredentialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if !h.Store.Delete(provider) {
		writeError(w, http.StatusNotFound, cookies.ErrNotFound, "credential_missing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
