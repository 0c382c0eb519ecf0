package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/reelcut/reelcut-agent/internal/api"
	"github.com/reelcut/reelcut-agent/internal/compositor"
	"github.com/reelcut/reelcut-agent/internal/config"
	"github.com/reelcut/reelcut-agent/internal/db"
	"github.com/reelcut/reelcut-agent/internal/export"
	"github.com/reelcut/reelcut-agent/internal/ingest"
	"github.com/reelcut/reelcut-agent/internal/library"
	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/playback"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/ui"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

const (
	deviceIDKey  = "device_id"
	authTokenKey = "auth_token"

	shutdownTimeout = 10 * time.Second
)

func main() {
	cmd := &cli.Command{
		Name:    "reelcut",
		Usage:   "Local agent for the Reelcut portrait video editor",
		Version: config.Version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars(config.EnvConfigFile),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	startTime := time.Now()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	slog.SetDefault(logger)
	logger.Info("starting reelcut agent",
		"version", config.Version,
		"commit", config.GitCommit,
		"built", config.BuildTime,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	deviceID, err := ensureSecret(ctx, repo, deviceIDKey, 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureSecret(ctx, repo, authTokenKey, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(cfg.Port(), authToken, deviceID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mediaCfg := media.DefaultConfig(logger)
	mediaCfg.FFmpegPath = cfg.FFmpegPath()
	mediaCfg.FFprobePath = cfg.FFprobePath()
	ff, err := media.NewFFmpeg(mediaCfg)
	if err != nil {
		return fmt.Errorf("ffmpeg toolchain unavailable: %w", err)
	}

	cache, err := media.NewBlobCache(filepath.Join(cfg.CacheDir(), "media"), blobLoader(repo))
	if err != nil {
		return fmt.Errorf("failed to create media cache: %w", err)
	}

	frames := media.NewFrames(ctx, ff, cache, compositor.FrameWidth, compositor.FrameHeight, cfg.ExportFPS(), logger)
	defer frames.Close()

	recognizer, doctor, closeSpeech := setupSpeech(ctx, cfg, logger)
	defer closeSpeech()

	voiceClient := voice.NewClient(cfg.ElevenLabsBaseURL(), cfg.ElevenLabsAPIKey(), cfg.ElevenLabsVoiceID(), logger)
	if !voiceClient.Configured() {
		logger.Info("text-to-speech disabled, no ElevenLabs API key")
	}

	prober := media.NewBytesProber(ff, cache)
	manager := session.NewManager(ctx, session.Deps{
		Store:         repo,
		Importer:      ingest.NewImporter(repo, prober, logger),
		Prober:        prober,
		Sinks:         frames,
		Audio:         media.NewClipAudio(ff, cache),
		Recognizer:    recognizer,
		SpeechOptions: speech.DefaultOptions(),
		Logger:        logger,
		FrameInterval: time.Duration(float64(time.Second) / cfg.ExportFPS()),
	})

	painter := compositor.NewPainter(frames, logger)

	var converter export.Converter
	if cfg.ConverterURL() != "" {
		converter = export.NewHTTPConverter(cfg.ConverterURL(), cfg.ConverterToken(), logger)
		logger.Info("remote converter enabled", "url", cfg.ConverterURL())
	} else {
		converter = export.NewFFmpegConverter(ff, filepath.Join(cfg.CacheDir(), "convert"), logger)
	}

	pipeline := export.NewPipeline(export.Config{
		Width:          compositor.FrameWidth,
		Height:         compositor.FrameHeight,
		FPS:            cfg.ExportFPS(),
		ConvertTimeout: cfg.ConvertTimeout(),
	}, export.PipelineDeps{
		Painter:   painter,
		Recorder:  export.NewFFmpegRecorder(ff, logger),
		Converter: converter,
		Media:     media.NewResolver(ff, cache),
		Logger:    logger,
	})
	runner := export.NewRunner(pipeline, repo, manager, logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Projects:       manager,
		Repository:     repo,
		Exports:        runner,
		Transcoder:     pipeline,
		Library:        library.NewService(repo, voiceClient, logger),
		Voice:          voiceClient,
		PlaybackServer: playback.NewServer(logger),
		Painter:        painter,
		Doctor:         doctor,
		SpeechBackend:  cfg.SpeechBackend(),
		FrameRate:      cfg.ExportFPS(),
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runner.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case <-quitCh:
			logger.Info("quit requested")
		case <-gCtx.Done():
		}

		logger.Info("initiating graceful shutdown")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
		if err := manager.CloseAll(shutdownCtx); err != nil {
			logger.Error("failed to flush open projects", "error", err)
		}
		cancel()
		return nil
	})

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Exports:      runner,
			Status:       pipeline,
			OpenProjects: manager.OpenCount,
			APIURL:       fmt.Sprintf("http://%s", apiServer.Addr()),
			Logger:       logger,
			OnQuit:       quit,
		})
		go tray.Run()
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// setupSpeech builds the configured recognizer. Failures leave captions
// disabled rather than stopping the agent.
func setupSpeech(ctx context.Context, cfg config.Config, logger *slog.Logger) (speech.Recognizer, *speech.CachedDoctor, func()) {
	noop := func() {}

	switch cfg.SpeechBackend() {
	case config.SpeechSubprocess:
		speechCfg := speech.DefaultConfig(cfg.DataDir(), logger)
		if cfg.SpeechPython() != "" {
			speechCfg.PythonPath = cfg.SpeechPython()
		}
		if cfg.SpeechModule() != "" {
			speechCfg.ModuleName = cfg.SpeechModule()
		}
		if cfg.SpeechTimeout() > 0 {
			speechCfg.TranscribeTimeout = cfg.SpeechTimeout()
		}

		rec, err := speech.NewSubprocessRecognizer(speechCfg)
		if err != nil {
			logger.Warn("speech recognizer unavailable, captions disabled", "error", err)
			return nil, nil, noop
		}
		doctor := speech.NewCachedDoctor(rec, logger)

		initCtx, initCancel := context.WithTimeout(ctx, speechCfg.DoctorTimeout)
		defer initCancel()
		if caps, err := doctor.Refresh(initCtx); err != nil {
			logger.Warn("initial speech doctor probe failed", "error", err)
		} else {
			logger.Info("speech capabilities detected",
				"speech", caps.HasSpeech,
				"python", caps.Python.Version,
				"models", len(caps.Models),
			)
		}
		return rec, doctor, noop

	case config.SpeechGCP:
		rec, err := speech.NewGCPRecognizer(ctx, speech.GCPConfig{
			Credentials:  cfg.GCPCredentials(),
			LanguageCode: cfg.GCPLanguage(),
			Model:        cfg.GCPModel(),
		}, logger)
		if err != nil {
			logger.Warn("cloud speech unavailable, captions disabled", "error", err)
			return nil, nil, noop
		}
		logger.Info("cloud speech enabled", "language", cfg.GCPLanguage())
		return rec, nil, func() {
			if err := rec.Close(); err != nil {
				logger.Warn("failed to close cloud speech client", "error", err)
			}
		}
	}

	logger.Info("speech recognition disabled")
	return nil, nil, noop
}

func blobLoader(repo *store.SQLiteRepository) media.BlobLoader {
	return func(ctx context.Context, fileID string) ([]byte, error) {
		f, err := repo.GetFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("media file %s not found", fileID)
		}
		return f.Data, nil
	}
}

func ensureSecret(ctx context.Context, repo store.Repository, key string, size int) (string, error) {
	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}

func printBanner(port int, authToken, deviceID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  REELCUT AGENT v%-26s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", port)
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}
