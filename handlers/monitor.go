package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flover-luffy/newboy/services/monitor"
)

type MonitorHandler struct {
	Service *monitor.Service
}

func NewMonitorHandler(s *monitor.Service) *MonitorHandler {
	return &MonitorHandler{Service: s}
}

// Status reports whether the poll loop is running and the subscription counts.
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Status())
}

// Subscriptions lists all watched feeds with their polling state.
func (h *MonitorHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": h.Service.Subscriptions()})
}

// Subscribe registers a new watched feed.
func (h *MonitorHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
		UserID   string `json:"userId"`
		Nickname string `json:"nickname,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	if body.Provider == "" || body.UserID == "" {
		writeError(w, http.StatusBadRequest, errors.New("provider and userId are required"), "bad_request")
		return
	}

	sub, err := h.Service.Subscribe(body.Provider, body.UserID, body.Nickname)
	if err != nil {
		if errors.Is(err, monitor.ErrAlreadySubscribed) {
			writeError(w, http.StatusConflict, err, "already_subscribed")
			return
		}
		writeError(w, http.StatusInternalServerError, err, "internal")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe removes a watched feed.
func (h *MonitorHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Service.Unsubscribe(vars["provider"], vars["userID"]); err != nil {
		writeError(w, http.StatusNotFound, err, "not_subscribed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reactivate clears the failure state of a deactivated feed.
func (h *MonitorHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Service.Reactivate(vars["provider"], vars["userID"]); err != nil {
		writeError(w, http.StatusNotFound, err, "not_subscribed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
