package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/media"
)

const maxStderrBytes = 8 * 1024

// Config holds the subprocess recognizer's configuration.
type Config struct {
	PythonPath        string // empty = auto-detect
	ModuleName        string
	WorkDir           string
	DoctorTimeout     time.Duration
	TranscribeTimeout time.Duration
	Logger            *slog.Logger
}

func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		ModuleName:        "reelcut_asr",
		WorkDir:           filepath.Join(dataDir, "asr"),
		DoctorTimeout:     30 * time.Second,
		TranscribeTimeout: 20 * time.Minute,
		Logger:            logger,
	}
}

// SubprocessRecognizer runs a local python ASR module:
//
//	python -m <module> transcribe --audio in.wav --chunk-length 30 --stride 5 --out out.json
//
// While the model downloads the module prints "progress <file> <loaded> <total>"
// lines on stdout.
type SubprocessRecognizer struct {
	cfg    Config
	python string
}

func NewSubprocessRecognizer(cfg Config) (*SubprocessRecognizer, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create asr work dir: %w", err)
	}

	cfg.Logger.Info("speech recognizer initialised",
		"python", python,
		"module", cfg.ModuleName,
	)
	return &SubprocessRecognizer{cfg: cfg, python: python}, nil
}

func (r *SubprocessRecognizer) Transcribe(ctx context.Context, audio []byte, opts Options, progress ProgressFunc) (*Result, error) {
	if len(audio) == 0 {
		return &Result{}, nil
	}

	in, err := os.CreateTemp(r.cfg.WorkDir, "audio-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(audio); err != nil {
		in.Close()
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	outPath := strings.TrimSuffix(in.Name(), ".wav") + ".json"
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TranscribeTimeout)
	defer cancel()

	args := []string{
		"transcribe",
		"--audio", in.Name(),
		"--chunk-length", strconv.FormatFloat(opts.ChunkLength, 'f', -1, 64),
		"--stride", strconv.FormatFloat(opts.Stride, 'f', -1, 64),
		"--out", outPath,
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if err := r.exec(ctx, progress, args...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read transcript: %w", err)
	}
	return parseTranscript(data)
}

// RunDoctor probes the installed ASR environment.
func (r *SubprocessRecognizer) RunDoctor(ctx context.Context) (*Capabilities, error) {
	outPath := filepath.Join(r.cfg.WorkDir, ".doctor.json")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	if err := r.exec(ctx, nil, "doctor", "--json", "--out", outPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read doctor output: %w", err)
	}

	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}
	caps.HasSpeech = isAvailable(caps.Dependencies, "transformers") &&
		isAvailable(caps.Executables, "ffmpeg")
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("doctor probe complete",
		"speech", caps.HasSpeech,
		"version", caps.PackageVersion,
	)
	return &caps, nil
}

func (r *SubprocessRecognizer) exec(ctx context.Context, progress ProgressFunc, args ...string) error {
	start := time.Now()

	cmdArgs := append([]string{"-m", r.cfg.ModuleName}, args...)
	cmd := exec.CommandContext(ctx, r.python, cmdArgs...)

	stderr := media.NewTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	r.cfg.Logger.Info("executing asr command", "args", args[:1])
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.cfg.ModuleName, err)
	}

	scanProgress(stdout, progress)
	err = cmd.Wait()
	elapsed := time.Since(start)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.cfg.Logger.Warn("asr command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", stderr.String(),
		)
		if ctx.Err() != nil {
			return fmt.Errorf("asr %s: %w", args[0], ctx.Err())
		}
		return fmt.Errorf("asr %s exited %d: %s", args[0], exitCode, strings.TrimSpace(stderr.String()))
	}

	r.cfg.Logger.Info("asr command succeeded", "duration_ms", elapsed.Milliseconds())
	return nil
}

// scanProgress forwards progress lines and drains everything else.
func scanProgress(r io.Reader, progress ProgressFunc) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if p, ok := parseProgressLine(sc.Text()); ok && progress != nil {
			progress(p)
		}
	}
	io.Copy(io.Discard, r)
}

func parseProgressLine(line string) (Progress, bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != "progress" {
		return Progress{}, false
	}
	loaded, err1 := strconv.ParseInt(fields[2], 10, 64)
	total, err2 := strconv.ParseInt(fields[3], 10, 64)
	if err1 != nil || err2 != nil {
		return Progress{}, false
	}
	return Progress{File: fields[1], Loaded: loaded, Total: total}, true
}

// transcriptFile is the module's output. Timestamps are [start, end] pairs
// where either bound may be null.
type transcriptFile struct {
	Text   string `json:"text"`
	Chunks []struct {
		Text      string     `json:"text"`
		Timestamp []*float64 `json:"timestamp"`
	} `json:"chunks"`
}

func parseTranscript(data []byte) (*Result, error) {
	var tf transcriptFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("cannot parse transcript JSON: %w", err)
	}
	res := &Result{Text: strings.TrimSpace(tf.Text)}
	for _, c := range tf.Chunks {
		ch := captions.Chunk{Text: c.Text}
		if len(c.Timestamp) > 0 {
			ch.Start = c.Timestamp[0]
		}
		if len(c.Timestamp) > 1 {
			ch.End = c.Timestamp[1]
		}
		res.Chunks = append(res.Chunks, ch)
	}
	return res, nil
}

func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}
