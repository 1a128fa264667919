package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"mirage/config"
	"mirage/models"
	"mirage/services/resolve"
)

type resolveService interface {
	ResolvePlayback(ctx context.Context, settings config.Settings, req models.ResolveRequest) (*models.PlaybackResponse, error)
}

type settingsSource interface {
	Load() (config.Settings, error)
}

// PlaybackHandler resolves item identities into playable stream responses.
type PlaybackHandler struct {
	Service  resolveService
	Settings settingsSource
}

var _ resolveService = (*resolve.Engine)(nil)

func NewPlaybackHandler(service resolveService, settings settingsSource) *PlaybackHandler {
	return &PlaybackHandler{Service: service, Settings: settings}
}

// Resolve accepts an item identity, with an optional variant selection, and
// responds with the candidate media sources. An identity this engine does not
// own answers 404 so the host can fall through to its native handling.
func (h *PlaybackHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var request models.ResolveRequest

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	settings, err := h.Settings.Load()
	if err != nil {
		log.Printf("[playback-handler] settings load failed: %v", err)
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}

	response, err := h.Service.ResolvePlayback(r.Context(), settings, request)
	if err != nil {
		if errors.Is(err, resolve.ErrNotResolvable) {
			http.Error(w, "identity not resolvable", http.StatusNotFound)
			return
		}
		log.Printf("[playback-handler] resolve %s failed: %v", request.Identity, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[playback-handler] encode response: %v", err)
	}
}
