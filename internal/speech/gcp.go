package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/reelcut/reelcut-agent/internal/captions"
)

const (
	gcpSampleRate = 16000
	gcpTimeout    = 10 * time.Minute
)

// GCPConfig selects the Cloud Speech model and credentials.
type GCPConfig struct {
	Credentials  string // file path or inline JSON; empty = application default
	LanguageCode string
	Model        string
	MaxRetries   int
}

// GCPRecognizer transcribes through Cloud Speech LongRunningRecognize with
// word time offsets. Every recognized word becomes one timed chunk.
type GCPRecognizer struct {
	client     *gspeech.Client
	cfg        GCPConfig
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewGCPRecognizer(ctx context.Context, cfg GCPConfig, logger *slog.Logger) (*GCPRecognizer, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	c, err := gspeech.NewClient(ctx, clientOptions(cfg.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GCPRecognizer{
		client:     c,
		cfg:        cfg,
		logger:     logger,
		backoff:    750 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}, nil
}

func (g *GCPRecognizer) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GCPRecognizer) Transcribe(ctx context.Context, audio []byte, opts Options, _ ProgressFunc) (*Result, error) {
	if len(audio) == 0 {
		return &Result{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, gcpTimeout)
	defer cancel()

	lang := g.cfg.LanguageCode
	if opts.Language != "" {
		lang = opts.Language
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            gcpSampleRate,
			AudioChannelCount:          1,
			LanguageCode:               lang,
			Model:                      g.cfg.Model,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := g.retry(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := g.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}

	res := parseResponse(resp)
	g.logger.Info("cloud transcription complete", "words", len(res.Chunks))
	return res, nil
}

func (g *GCPRecognizer) retry(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := g.backoff
	var last error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err
		if !retryable(err) || attempt == g.cfg.MaxRetries {
			break
		}
		g.logger.Warn("speech request throttled, retrying", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, g.maxBackoff)
	}
	return nil, last
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	}
	return false
}

func parseResponse(resp *speechpb.LongRunningRecognizeResponse) *Result {
	res := &Result{}
	if resp == nil {
		return res
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)

		for _, w := range alt.Words {
			if w == nil || strings.TrimSpace(w.Word) == "" {
				continue
			}
			res.Chunks = append(res.Chunks, captions.Chunk{
				Text:  w.Word,
				Start: captions.Float(durToSec(w.StartTime)),
				End:   captions.Float(durToSec(w.EndTime)),
			})
		}
	}
	res.Text = full.String()
	return res
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

// clientOptions accepts a credentials file path or inline JSON, falling back
// to GOOGLE_APPLICATION_CREDENTIALS_JSON.
func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
