package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameLen   = 120
	fallbackName = "reelcut_export"
	nameSymbols  = " -_.,()"
)

var ErrInvalidOutputDir = errors.New("invalid output directory")

// SanitizeName drops control characters and maps anything outside a
// conservative filename alphabet to '_'. maxLen counts runes; 0 means no limit.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(nameSymbols, r):
			return r
		}
		return '_'
	}, s))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxLen]))
	}
	return cleaned
}

// OutputName is the file name an export of projectName is stored under.
func OutputName(projectName, ext string) string {
	name := SanitizeName(projectName, maxNameLen)
	if name == "" {
		name = fallbackName
	}
	return name + ext
}

// ValidateOutputDir accepts only a clean path to an existing directory.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return fmt.Errorf("%w: output_dir is required", ErrInvalidOutputDir)
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return fmt.Errorf("%w: path traversal", ErrInvalidOutputDir)
	case filepath.Clean(dir) != dir:
		return fmt.Errorf("%w: not a clean path", ErrInvalidOutputDir)
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: does not exist", ErrInvalidOutputDir)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: not a directory", ErrInvalidOutputDir)
	}
	return nil
}

// WriteEDL writes edl as <name>.edl into dir and returns the path.
func WriteEDL(dir, projectName, edl string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, OutputName(projectName, ".edl"))
	if err := os.WriteFile(path, []byte(edl), 0o644); err != nil {
		return "", fmt.Errorf("failed to write edl: %w", err)
	}
	return path, nil
}
