package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"mirage/models"
	"mirage/services/catalog"
)

type subtitleService interface {
	WebVTT(ctx context.Context, item models.VirtualItem, langCode string) ([]byte, error)
}

// SubtitlesHandler serves cached WebVTT bodies for tracks advertised on
// playback sources.
type SubtitlesHandler struct {
	Service subtitleService
	Store   *catalog.Store
}

func NewSubtitlesHandler(service subtitleService, store *catalog.Store) *SubtitlesHandler {
	return &SubtitlesHandler{Service: service, Store: store}
}

// Serve handles GET /subtitles/{itemID}/{lang}.vtt.
func (h *SubtitlesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemID := vars["itemID"]
	lang := strings.TrimSuffix(vars["lang"], ".vtt")
	if itemID == "" || lang == "" {
		http.Error(w, "missing item or language", http.StatusBadRequest)
		return
	}

	item, ok := h.Store.GetItem(itemID)
	if !ok {
		// A source identity works too; map it back to its parent.
		if ref, refOK := h.Store.GetSource(itemID); refOK {
			item, ok = h.Store.GetItem(ref.ParentIdentity)
		}
	}
	if !ok {
		http.Error(w, "unknown item", http.StatusNotFound)
		return
	}

	body, err := h.Service.WebVTT(r.Context(), item, lang)
	if err != nil {
		log.Printf("[subtitles-handler] %s/%s: %v", itemID, lang, err)
		http.Error(w, "subtitles unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.Write(body)
}
