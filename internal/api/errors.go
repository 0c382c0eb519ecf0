package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reelcut/reelcut-agent/internal/export"
	"github.com/reelcut/reelcut-agent/internal/ingest"
	"github.com/reelcut/reelcut-agent/internal/library"
	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/timeline"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

// writeDomainError maps editor and collaborator errors onto HTTP statuses.
// Collaborator failures carry the collaborator's own message.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *voice.APIError
	var convErr *export.ConvertError

	switch {
	case errors.As(err, &apiErr):
		WriteError(w, http.StatusBadGateway, apiErr.Message, "UPSTREAM_ERROR")
	case errors.As(err, &convErr):
		WriteError(w, http.StatusBadGateway, convErr.Message, "CONVERSION_FAILED")
	case errors.Is(err, export.ErrEmptyResult):
		WriteError(w, http.StatusBadGateway, err.Error(), "CONVERSION_FAILED")

	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, timeline.ErrClipNotFound),
		errors.Is(err, timeline.ErrOverlayNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")

	case errors.Is(err, session.ErrExporting),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, export.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")

	case errors.Is(err, export.ErrNothingToExport),
		errors.Is(err, session.ErrNoSpeech):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NOTHING_TO_PROCESS")

	case errors.Is(err, session.ErrNoRecognizer),
		errors.Is(err, library.ErrNotConfigured),
		errors.Is(err, media.ErrNoFFmpeg):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "UNAVAILABLE")

	case errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, ingest.ErrNoFiles),
		errors.Is(err, ingest.ErrEmptyPayload),
		errors.Is(err, ingest.ErrUnreadable),
		errors.Is(err, media.ErrUnsupportedMedia),
		errors.Is(err, voice.ErrMissingText),
		errors.Is(err, export.ErrInvalidOutputDir),
		errors.Is(err, export.ErrEmptyRecording):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")

	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, err.Error(), "TIMEOUT")

	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}
