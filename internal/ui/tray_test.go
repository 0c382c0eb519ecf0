package ui

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/reelcut/reelcut-agent/internal/export"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		st     export.Status
		paused bool
		want   string
	}{
		{"idle", export.Status{Stage: export.StageIdle}, false, "Status: Idle"},
		{"zero value", export.Status{}, false, "Status: Idle"},
		{"paused", export.Status{Stage: export.StageIdle}, true, "Status: Paused"},
		{"rendering", export.Status{Stage: export.StageRendering, Progress: 42}, false, "Status: Rendering 42%"},
		{"converting", export.Status{Stage: export.StageConverting, Progress: 99}, false, "Status: Converting 99%"},
		{"running while paused", export.Status{Stage: export.StageRendering, Progress: 10}, true, "Status: Rendering 10%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLine(tt.st, tt.paused); got != tt.want {
				t.Errorf("statusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProjectsLine(t *testing.T) {
	if got := projectsLine(1); got != "1 project open" {
		t.Errorf("projectsLine(1) = %q", got)
	}
	if got := projectsLine(3); got != "3 projects open" {
		t.Errorf("projectsLine(3) = %q", got)
	}
}

func TestIconPNG(t *testing.T) {
	data, err := iconPNG(iconSize)
	if err != nil {
		t.Fatalf("iconPNG() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != iconSize || b.Dy() != iconSize {
		t.Fatalf("icon size = %dx%d, want %dx%d", b.Dx(), b.Dy(), iconSize, iconSize)
	}

	_, _, _, a := img.At(iconSize/2, iconSize/2).RGBA()
	if a == 0 {
		t.Error("icon centre is transparent")
	}
	_, _, _, a = img.At(0, 0).RGBA()
	if a != 0 {
		t.Error("icon corner is opaque")
	}
}
