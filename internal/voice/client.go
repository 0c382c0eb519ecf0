// Package voice proxies text-to-speech requests to ElevenLabs and reads back
// generated history so past takes can be saved into the audio library.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModelID = "eleven_multilingual_v2"

	// MaxHistoryPages bounds how far ListHistory follows pagination.
	MaxHistoryPages = 10
	historyPageSize = 100

	maxErrorBody = 4096
	maxAudioBody = 64 << 20
)

var ErrMissingText = errors.New("text is required")

// APIError is a non-2xx response. Message is the collaborator's own detail
// when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs: HTTP %d: %s", e.StatusCode, e.Message)
}

// Settings are the per-request voice parameters.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

func DefaultSettings() Settings {
	return Settings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0, Speed: 1, SpeakerBoost: true}
}

// Clamp bounds every field to the range the API accepts.
func (s Settings) Clamp() Settings {
	s.Stability = clamp(s.Stability, 0, 1)
	s.SimilarityBoost = clamp(s.SimilarityBoost, 0, 1)
	s.Style = clamp(s.Style, 0, 1)
	if s.Speed == 0 {
		s.Speed = 1
	}
	s.Speed = clamp(s.Speed, 0.7, 2)
	return s
}

type SynthesizeRequest struct {
	Text     string   `json:"text"`
	VoiceID  string   `json:"voice_id"`
	ModelID  string   `json:"model_id,omitempty"`
	Settings Settings `json:"settings"`
}

// Audio is synthesized speech plus the history entry it was recorded under.
type Audio struct {
	Data          []byte
	ContentType   string
	HistoryItemID string
}

type Voice struct {
	ID         string `json:"voice_id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

type HistoryItem struct {
	ID          string `json:"history_item_id"`
	VoiceID     string `json:"voice_id"`
	VoiceName   string `json:"voice_name"`
	Text        string `json:"text"`
	DateUnix    int64  `json:"date_unix"`
	ContentType string `json:"content_type,omitempty"`
}

type Client struct {
	baseURL    string
	apiKey     string
	voiceID    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client. voiceID is used when a request names none.
func NewClient(baseURL, apiKey, voiceID string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voiceID: voiceID,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (*Audio, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrMissingText
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.voiceID
	}
	if voiceID == "" {
		return nil, errors.New("voice_id is required")
	}
	model := req.ModelID
	if model == "" {
		model = DefaultModelID
	}

	body, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       model,
		"voice_settings": req.Settings.Clamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=mp3_44100_128"
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "audio/mpeg")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBody))
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	if len(data) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "empty audio response"}
	}

	audio := &Audio{
		Data:          data,
		ContentType:   contentTypeOr(resp.Header.Get("Content-Type"), "audio/mpeg"),
		HistoryItemID: resp.Header.Get("history-item-id"),
	}
	c.logger.Info("speech synthesized",
		"voice_id", voiceID,
		"chars", len(text),
		"bytes", len(data),
		"history_item_id", audio.HistoryItemID,
	)
	return audio, nil
}

func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.getJSON(ctx, "/v1/voices", &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// ListHistory drains history pages, newest first, stopping after
// MaxHistoryPages.
func (c *Client) ListHistory(ctx context.Context) ([]HistoryItem, error) {
	var items []HistoryItem
	after := ""
	for page := 0; page < MaxHistoryPages; page++ {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(historyPageSize))
		if after != "" {
			q.Set("start_after_history_item_id", after)
		}

		var out struct {
			History           []HistoryItem `json:"history"`
			LastHistoryItemID string        `json:"last_history_item_id"`
			HasMore           bool          `json:"has_more"`
		}
		if err := c.getJSON(ctx, "/v1/history?"+q.Encode(), &out); err != nil {
			return nil, err
		}
		items = append(items, out.History...)

		if !out.HasMore || out.LastHistoryItemID == "" {
			break
		}
		after = out.LastHistoryItemID
	}
	return items, nil
}

// HistoryAudio downloads the audio of one history entry.
func (c *Client) HistoryAudio(ctx context.Context, id string) (*Audio, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/history/"+url.PathEscape(id)+"/audio", nil, "audio/mpeg")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBody))
	if err != nil {
		return nil, fmt.Errorf("read history audio: %w", err)
	}
	return &Audio{
		Data:          data,
		ContentType:   contentTypeOr(resp.Header.Get("Content-Type"), "audio/mpeg"),
		HistoryItemID: id,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends the request and turns non-2xx responses into an APIError. The
// caller closes the body on success.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	c.logger.Warn("elevenlabs request failed",
		"method", method,
		"status", resp.StatusCode,
		"message", apiErr.Message,
	)
	return nil, apiErr
}

// errorMessage extracts detail.message, detail (string) or message from an
// error body, else returns the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var detail struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Detail, &detail) == nil && detail.Message != "" {
			return detail.Message
		}
		var s string
		if json.Unmarshal(body.Detail, &s) == nil && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "request failed"
}

func contentTypeOr(ct, fallback string) string {
	if ct == "" {
		return fallback
	}
	return ct
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
