package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelcut/reelcut-agent/internal/compositor"
	"github.com/reelcut/reelcut-agent/internal/export"
	"github.com/reelcut/reelcut-agent/internal/library"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

// Projects opens editor sessions.
type Projects interface {
	Create(ctx context.Context, id, name string) (*session.Session, error)
	Open(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context) ([]*store.ProjectSummary, error)
}

// ExportQueue accepts export requests.
type ExportQueue interface {
	Submit(ctx context.Context, projectID string) (*store.Job, error)
	IsPaused() bool
}

// Transcoder converts a browser recording and reports the export stage.
type Transcoder interface {
	Convert(ctx context.Context, recording []byte) ([]byte, error)
	Status() export.Status
}

type VoiceClient interface {
	Configured() bool
	ListVoices(ctx context.Context) ([]voice.Voice, error)
	ListHistory(ctx context.Context) ([]voice.HistoryItem, error)
	HistoryAudio(ctx context.Context, id string) (*voice.Audio, error)
}

type AudioLibrary interface {
	Synthesize(ctx context.Context, req voice.SynthesizeRequest, name string) (*store.SavedAudio, error)
	SaveHistory(ctx context.Context, req library.SaveRequest) (*store.SavedAudio, error)
	List(ctx context.Context) ([]*store.SavedAudio, error)
}

type FramePainter interface {
	Paint(scene compositor.Scene, sink compositor.FrameSink)
}

// BlobServer writes a stored blob with byte-range support.
type BlobServer interface {
	ServeBlob(w http.ResponseWriter, r *http.Request, contentType string, data []byte) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Projects       Projects
	Repository     store.Repository
	Exports        ExportQueue
	Transcoder     Transcoder
	Library        AudioLibrary
	Voice          VoiceClient
	PlaybackServer BlobServer
	Painter        FramePainter
	Doctor         *speech.CachedDoctor
	SpeechBackend  string
	FrameRate      float64
	AllowedOrigins []string
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Minute,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
