package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/fetch"
)

type FetchHandler struct {
	Service *fetch.Service
}

func NewFetchHandler(s *fetch.Service) *FetchHandler {
	return &FetchHandler{Service: s}
}

// Providers lists the registered provider ids.
func (h *FetchHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.Service.Providers()})
}

// Fetch runs one fetch request.
func (h *FetchHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req models.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	if req.Provider == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, errors.New("provider and query are required"), "bad_request")
		return
	}

	result, err := h.Service.Fetch(r.Context(), req)
	if err != nil {
		status, kind := statusForFetch(err)
		writeError(w, status, err, kind)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FetchBatch runs several requests concurrently and returns per-request outcomes.
func (h *FetchHandler) FetchBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []models.FetchRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	if len(body.Requests) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("requests must not be empty"), "bad_request")
		return
	}

	outcomes := h.Service.FetchMany(r.Context(), body.Requests)
	writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})
}

// Probe sniffs the real content type and size of one media URL.
func (h *FetchHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var ref models.MediaRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, err, "bad_request")
		return
	}
	if ref.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"), "bad_request")
		return
	}

	result, err := h.Service.Probe(r.Context(), ref)
	if err != nil {
		status, kind := statusForFetch(err)
		writeError(w, status, err, kind)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
