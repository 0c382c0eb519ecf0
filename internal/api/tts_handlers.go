package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut-agent/internal/library"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

func voiceConfigured(cfg ServerConfig, w http.ResponseWriter) bool {
	if cfg.Voice == nil || cfg.Library == nil || !cfg.Voice.Configured() {
		WriteError(w, http.StatusServiceUnavailable, library.ErrNotConfigured.Error(), "UNAVAILABLE")
		return false
	}
	return true
}

// synthesizeHandler generates speech and saves it to the audio library.
func synthesizeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TTSRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !voiceConfigured(cfg, w) {
			return
		}

		settings := voice.DefaultSettings()
		if req.Settings != nil {
			settings = *req.Settings
		}
		settings = settings.Clamp()
		entry, err := cfg.Library.Synthesize(r.Context(), voice.SynthesizeRequest{
			Text:     req.Text,
			VoiceID:  req.VoiceID,
			ModelID:  req.ModelID,
			Settings: settings,
		}, req.Name)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, entry)
	}
}

func listVoicesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !voiceConfigured(cfg, w) {
			return
		}
		voices, err := cfg.Voice.ListVoices(r.Context())
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, VoicesResponse{Voices: voices})
	}
}

func listHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !voiceConfigured(cfg, w) {
			return
		}
		items, err := cfg.Voice.ListHistory(r.Context())
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{History: items})
	}
}

// historyAudioHandler proxies a past generation's audio for preview.
func historyAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !voiceConfigured(cfg, w) {
			return
		}
		audio, err := cfg.Voice.HistoryAudio(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		contentType := audio.ContentType
		if contentType == "" {
			contentType = "audio/mpeg"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(audio.Data)
	}
}

func listSavedAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Library == nil {
			WriteJSON(w, http.StatusOK, SavedAudioResponse{Audio: []*store.SavedAudio{}})
			return
		}
		entries, err := cfg.Library.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list saved audio", "INTERNAL_ERROR")
			return
		}
		if entries == nil {
			entries = []*store.SavedAudio{}
		}
		WriteJSON(w, http.StatusOK, SavedAudioResponse{Audio: entries})
	}
}

// saveHistoryHandler copies a history item into the library.
func saveHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req library.SaveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.HistoryItemID == "" {
			WriteError(w, http.StatusBadRequest, "history_item_id is required", "BAD_REQUEST")
			return
		}
		if !voiceConfigured(cfg, w) {
			return
		}
		entry, err := cfg.Library.SaveHistory(r.Context(), req)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, entry)
	}
}
