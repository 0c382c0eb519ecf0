package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Converter turns a recorded WebM into an MP4 (H.264/AAC, moov atom first).
type Converter interface {
	Convert(ctx context.Context, webm []byte) ([]byte, error)
}

// HTTPConverter posts the recording to a remote transcoding service.
type HTTPConverter struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPConverter(url, token string, logger *slog.Logger) *HTTPConverter {
	return &HTTPConverter{
		url:    url,
		token:  token,
		client: &http.Client{},
		logger: logger,
	}
}

func (c *HTTPConverter) Convert(ctx context.Context, webm []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(webm))
	if err != nil {
		return nil, fmt.Errorf("failed to build convert request: %w", err)
	}
	req.Header.Set("Content-Type", "video/webm")
	req.Header.Set("Accept", "video/mp4")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("convert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ConvertError{StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted video: %w", err)
	}
	c.logger.Debug("remote conversion finished", "in_bytes", len(webm), "out_bytes", len(out))
	return out, nil
}

// errorMessage pulls a human-readable message out of an error body: a JSON
// "error" or "message" field, else the trimmed text, else fallback.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	if fallback != "" {
		return fallback
	}
	return "conversion failed"
}

// FFmpegConverter transcodes locally. The output goes through a temp file
// because +faststart needs a seekable destination.
type FFmpegConverter struct {
	ff     FFmpegRunner
	dir    string
	logger *slog.Logger
}

func NewFFmpegConverter(ff FFmpegRunner, workDir string, logger *slog.Logger) *FFmpegConverter {
	return &FFmpegConverter{ff: ff, dir: workDir, logger: logger}
}

func (c *FFmpegConverter) Convert(ctx context.Context, webm []byte) ([]byte, error) {
	if c.ff == nil {
		return nil, &ConvertError{Message: "ffmpeg not available"}
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create convert dir: %w", err)
	}
	base := filepath.Join(c.dir, "convert-"+uuid.NewString())
	in, out := base+".webm", base+".mp4"
	defer os.Remove(in)
	defer os.Remove(out)

	if err := os.WriteFile(in, webm, 0644); err != nil {
		return nil, fmt.Errorf("cannot stage recording: %w", err)
	}
	if _, err := c.ff.Run(ctx, nil, convertArgs(in, out)...); err != nil {
		return nil, &ConvertError{Message: err.Error()}
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("cannot read converted video: %w", err)
	}
	c.logger.Debug("local conversion finished", "in_bytes", len(webm), "out_bytes", len(data))
	return data, nil
}

func convertArgs(in, out string) []string {
	return []string{
		"-v", "error", "-y",
		"-i", in,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "160k",
		"-movflags", "+faststart",
		out,
	}
}
