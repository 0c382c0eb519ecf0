package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelcut/reelcut-agent/internal/config"
	"github.com/reelcut/reelcut-agent/internal/export"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/store"
)

const (
	maxUploadMemory = 64 << 20
	maxRecording    = 2 << 30
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins...))

	r.Get("/health", healthHandler(cfg))

	r.With(LoopbackGuard()).Get("/media/{id}", mediaHandler(cfg))
	r.With(LoopbackGuard()).Head("/media/{id}", mediaHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/speech/capabilities", speechCapabilitiesHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", getProjectHandler(cfg))
			r.Patch("/", renameProjectHandler(cfg))
			r.Post("/save", saveProjectHandler(cfg))

			r.Post("/media", uploadMediaHandler(cfg))
			r.Patch("/clips/{clipID}", updateClipHandler(cfg))
			r.Delete("/clips/{clipID}", deleteClipHandler(cfg))
			r.Post("/clips/{clipID}/drag", dragClipHandler(cfg))

			r.Post("/overlays", addOverlayHandler(cfg))
			r.Patch("/overlays/{overlayID}", updateOverlayHandler(cfg))
			r.Delete("/overlays/{overlayID}", deleteOverlayHandler(cfg))

			r.Get("/playback", getPlaybackHandler(cfg))
			r.Post("/playback", playbackHandler(cfg))
			r.Get("/preview", previewHandler(cfg))
			r.Get("/frame.png", frameHandler(cfg))

			r.Post("/captions/generate", generateCaptionsHandler(cfg))
			r.Put("/captions/settings", captionSettingsHandler(cfg))
			r.Put("/captions/cues", captionCuesHandler(cfg))

			r.Post("/export", exportProjectHandler(cfg))
			r.Get("/export/edl", edlHandler(cfg))
			r.Post("/export/edl", writeEDLHandler(cfg))

			r.Post("/library/{audioID}", placeSavedAudioHandler(cfg))
		})

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/convert", convertHandler(cfg))

		r.Post("/tts", synthesizeHandler(cfg))
		r.Get("/tts/voices", listVoicesHandler(cfg))
		r.Get("/tts/history", listHistoryHandler(cfg))
		r.Get("/tts/history/{id}/audio", historyAudioHandler(cfg))
		r.Get("/library/audio", listSavedAudioHandler(cfg))
		r.Post("/library/audio", saveHistoryHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  config.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Repository.CountProjects(ctx)
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		lastError := ""

		if cfg.Exports != nil && cfg.Exports.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Active() && activeJob == nil {
				if j.Status != store.JobStatusPending {
					state = "exporting"
				}
				resp := JobToResponse(j)
				activeJob = &resp
			}
			if j.Status == store.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:         state,
			LastError:     lastError,
			ProjectsCount: projects,
			Export:        ExportStatusResponse{Stage: string(export.StageIdle)},
			ActiveJob:     activeJob,
			TTSConfigured: cfg.Voice != nil && cfg.Voice.Configured(),
		}

		if cfg.Transcoder != nil {
			st := cfg.Transcoder.Status()
			resp.Export = ExportStatusResponse{Stage: string(st.Stage), Progress: st.Progress}
		}

		if cfg.SpeechBackend != "" {
			resp.Speech = &SpeechStatusResponse{Backend: cfg.SpeechBackend, Available: cfg.Doctor == nil}
			if cfg.Doctor != nil {
				if caps := cfg.Doctor.Peek(); caps != nil {
					resp.Speech = speechStatus(cfg.SpeechBackend, caps)
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// speechCapabilitiesHandler probes the local recognizer. refresh=true drops
// the cache so a failing probe is reported instead of hidden by stale data.
func speechCapabilitiesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "speech backend has no local probe", "UNAVAILABLE")
			return
		}
		if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
			cfg.Doctor.Invalidate()
		}
		caps, err := cfg.Doctor.Get(r.Context())
		if err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "SPEECH_PROBE_FAILED")
			return
		}
		WriteJSON(w, http.StatusOK, speechStatus(cfg.SpeechBackend, caps))
	}
}

func speechStatus(backend string, caps *speech.Capabilities) *SpeechStatusResponse {
	resp := &SpeechStatusResponse{
		Backend:   backend,
		Available: caps.HasSpeech,
		Version:   caps.PackageVersion,
		Models:    caps.Models,
	}
	if !caps.ProbedAt.IsZero() {
		resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return resp
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

// mediaHandler streams a stored blob, honouring Range so preview media
// elements can seek.
func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if r.Method == http.MethodHead && r.Header.Get("Range") == "" {
			headMedia(w, r, cfg, id)
			return
		}
		file, err := cfg.Repository.GetFile(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if file == nil {
			WriteError(w, http.StatusNotFound, "media not found", "NOT_FOUND")
			return
		}

		if r.URL.Query().Get("download") != "" {
			w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(file.Name))
		}
		if err := cfg.PlaybackServer.ServeBlob(w, r, file.MimeType, file.Data); err != nil {
			cfg.Logger.Error("media streaming error", "error", err, "file_id", id)
		}
	}
}

// headMedia answers a plain HEAD from the metadata row without loading the blob.
func headMedia(w http.ResponseWriter, r *http.Request, cfg ServerConfig, id string) {
	info, err := cfg.Repository.GetFileInfo(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return
	}
	if info == nil {
		WriteError(w, http.StatusNotFound, "media not found", "NOT_FOUND")
		return
	}
	contentType := info.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// convertHandler hands a raw webm recording to the converter and returns
// the MP4 bytes.
func convertHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Transcoder == nil {
			WriteError(w, http.StatusServiceUnavailable, "conversion unavailable", "UNAVAILABLE")
			return
		}
		recording, err := io.ReadAll(io.LimitReader(r.Body, maxRecording))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read recording", "BAD_REQUEST")
			return
		}

		out, err := cfg.Transcoder.Convert(r.Context(), recording)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}
