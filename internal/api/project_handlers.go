package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut-agent/internal/ingest"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// projectHandler resolves {id} to a live session before calling fn.
func projectHandler(cfg ServerConfig, fn func(w http.ResponseWriter, r *http.Request, s *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		fn(w, r, s)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, err := cfg.Projects.Create(r.Context(), req.ID, req.Name)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, s.Info())
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		WriteJSON(w, http.StatusOK, s.Info())
	})
}

func renameProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req RenameProjectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.Rename(req.Name); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Info())
	})
}

func saveProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.Save(r.Context()); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Info())
	})
}

// uploadMediaHandler imports every "files" part of a multipart body as one
// batch, in the order the parts were sent.
func uploadMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid multipart body", "BAD_REQUEST")
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		payloads := make([]ingest.Payload, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				WriteError(w, http.StatusBadRequest, "failed to read upload", "BAD_REQUEST")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				WriteError(w, http.StatusBadRequest, "failed to read upload", "BAD_REQUEST")
				return
			}
			payloads = append(payloads, ingest.Payload{
				Name:     fh.Filename,
				MimeType: fh.Header.Get("Content-Type"),
				Data:     data,
			})
		}

		clips, err := s.Import(r.Context(), payloads)
		if err != nil && len(clips) == 0 {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if err != nil {
			cfg.Logger.Warn("import stopped part way", "project_id", s.ID(), "imported", len(clips), "error", err)
		}
		WriteJSON(w, http.StatusCreated, ClipsResponse{Clips: clips})
	})
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req UpdateClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Volume == nil && !req.ToggleMute {
			WriteError(w, http.StatusBadRequest, "volume or toggle_mute is required", "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "clipID")
		var clip timeline.Clip
		var err error
		if req.Volume != nil {
			clip, err = s.SetClipVolume(id, *req.Volume)
		}
		if err == nil && req.ToggleMute {
			clip, err = s.ToggleMute(id)
		}
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	})
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.RemoveClip(chi.URLParam(r, "clipID")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// dragClipHandler applies one pointer update. Without a gesture id the delta
// is relative to the clip as stored.
func dragClipHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req DragRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clip, err := s.DragClip(chi.URLParam(r, "clipID"), session.Drag{
			Mode:    req.Mode,
			Delta:   req.Delta,
			Gesture: req.GestureID,
			Done:    req.Done,
		})
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	})
}

func addOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req AddOverlayRequest
		if !decodeBody(w, r, &req) {
			return
		}
		o, err := s.AddOverlay(req.Kind, req.Text)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, o)
	})
}

func updateOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var patch session.OverlayPatch
		if !decodeBody(w, r, &patch) {
			return
		}
		o, err := s.UpdateOverlay(chi.URLParam(r, "overlayID"), patch)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, o)
	})
}

func deleteOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.RemoveOverlay(chi.URLParam(r, "overlayID")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func placeSavedAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		clip, err := s.ImportSavedAudio(r.Context(), chi.URLParam(r, "audioID"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	})
}

var errNoAction = errors.New("action must be play, pause or seek")

func playbackAction(s *session.Session, req PlaybackRequest) (session.PlaybackState, error) {
	switch req.Action {
	case "play":
		return s.Play()
	case "pause":
		return s.Pause(), nil
	case "seek":
		return s.Seek(req.Position), nil
	}
	return session.PlaybackState{}, fmt.Errorf("%w: %w", session.ErrInvalidInput, errNoAction)
}
