package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/flover-luffy/newboy/config"
)

type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// settingsResponse is Settings with secrets blanked. The PIN guards the API
// itself; echoing it back through the API would defeat the point.
type settingsResponse struct {
	config.Settings
	Server redactedServer `json:"server"`
}

type redactedServer struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "internal")
		return
	}
	for i := range s.Providers {
		for name := range s.Providers[i].Cookies {
			s.Providers[i].Cookies[name] = "<set>"
		}
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings: s,
		Server:   redactedServer{Host: s.Server.Host, Port: s.Server.Port},
	})
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "internal")
		return
	}

	var incoming config.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}

	// The PIN cannot be changed over the API.
	incoming.Server.PIN = current.Server.PIN

	if err := h.Manager.Save(incoming); err != nil {
		writeError(w, http.StatusInternalServerError, err, "internal")
		return
	}

	log.Printf("[settings] settings updated")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
