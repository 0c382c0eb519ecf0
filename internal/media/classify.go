package media

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

// Classify maps a file to its clip kind. The declared type is trusted unless
// it is missing or generic, in which case the name's extension and then the
// content itself are consulted.
func Classify(name, declared string, data []byte) (timeline.Kind, string, error) {
	mt := normalizeMIME(declared)
	if mt == "" || mt == "application/octet-stream" {
		mt = normalizeMIME(mime.TypeByExtension(strings.ToLower(filepath.Ext(name))))
	}
	if mt == "" || mt == "application/octet-stream" {
		mt = normalizeMIME(mimetype.Detect(data).String())
	}

	switch {
	case strings.HasPrefix(mt, "video/"):
		return timeline.KindVideo, mt, nil
	case strings.HasPrefix(mt, "image/"):
		return timeline.KindImage, mt, nil
	case strings.HasPrefix(mt, "audio/"):
		return timeline.KindAudio, mt, nil
	}
	return "", mt, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mt)
}

func normalizeMIME(s string) string {
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}
