package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/compositor"
	"github.com/reelcut/reelcut-agent/internal/export"
	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

func getPlaybackHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		WriteJSON(w, http.StatusOK, s.PlaybackState())
	})
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req PlaybackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := playbackAction(s, req)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, st)
	})
}

// sceneTime reads the optional ?t= query. Absent means the playhead.
func sceneTime(r *http.Request) (*float64, bool) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		return nil, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || t < 0 {
		return nil, false
	}
	return &t, true
}

// previewHandler returns the resolved scene so the browser can draw it.
func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		t, ok := sceneTime(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "t must be a non-negative number", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, s.Scene(t))
	})
}

// frameHandler rasterizes the scene at t into a full-size portrait PNG.
func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if cfg.Painter == nil {
			WriteError(w, http.StatusServiceUnavailable, "frame rendering unavailable", "UNAVAILABLE")
			return
		}
		t, ok := sceneTime(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "t must be a non-negative number", "BAD_REQUEST")
			return
		}

		sink, err := compositor.NewRasterSink(compositor.FrameWidth, compositor.FrameHeight)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		cfg.Painter.Paint(s.Scene(t), sink)

		var buf bytes.Buffer
		if err := sink.EncodePNG(&buf); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	})
}

func generateCaptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req GenerateCaptionsRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		logger := logging.WithProjectID(cfg.Logger, s.ID())
		lastPct := -1
		progress := func(p speech.Progress) {
			if pct := p.Percent(); pct != lastPct {
				lastPct = pct
				logger.Debug("speech model download", "file", p.File, "percent", pct)
			}
		}

		cues, err := s.GenerateCaptions(r.Context(), req.ClipID, progress)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, CuesResponse{Cues: cues})
	})
}

func captionSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var settings captions.Settings
		if !decodeBody(w, r, &settings) {
			return
		}
		out, err := s.SetCaptionSettings(settings)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	})
}

func captionCuesHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req CuesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cues, err := s.SetCues(req.Cues)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, CuesResponse{Cues: cues})
	})
}

// exportProjectHandler queues a render of the project and returns the job.
func exportProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Exports == nil {
			WriteError(w, http.StatusServiceUnavailable, "export unavailable", "UNAVAILABLE")
			return
		}
		job, err := cfg.Exports.Submit(r.Context(), projectID(r))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func (cfg ServerConfig) edlFrameRate(override float64) float64 {
	if override > 0 {
		return override
	}
	if cfg.FrameRate > 0 {
		return cfg.FrameRate
	}
	return export.DefaultFPS
}

func projectEDL(s *session.Session, frameRate float64) (string, int) {
	info := s.Info()
	events := export.TimelineEvents(timeline.FromDocument(info.Clips, info.Overlays))
	return export.GenerateEDL(events, export.OutputName(info.Name, ""), frameRate), len(events)
}

// edlHandler returns the visual track as a CMX 3600 edit list.
func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var rate float64
		if raw := r.URL.Query().Get("frame_rate"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 {
				WriteError(w, http.StatusBadRequest, "frame_rate must be positive", "BAD_REQUEST")
				return
			}
			rate = v
		}
		edl, _ := projectEDL(s, cfg.edlFrameRate(rate))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.OutputName(s.Info().Name, ".edl")))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	})
}

// writeEDLHandler saves the edit list into a local directory for an NLE to
// pick up.
func writeEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return projectHandler(cfg, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req ExportEDLRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		edl, count := projectEDL(s, cfg.edlFrameRate(req.FrameRate))
		if count == 0 {
			writeDomainError(w, cfg.Logger, export.ErrNothingToExport)
			return
		}
		path, err := export.WriteEDL(req.OutputDir, s.Info().Name, edl)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ExportEDLResponse{
			Status:     "ok",
			Format:     "edl",
			OutputPath: path,
			EventCount: count,
		})
	})
}

func projectID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
