package timeline

import (
	"errors"
	"math"
	"testing"
)

func videoClip(start, dur, offset, srcDur float64) Clip {
	c := NewClip("file-1", "clip.mp4", KindVideo, start, srcDur)
	c.Duration = dur
	c.SourceOffset = offset
	return c
}

func TestNewClip_ImportScenario(t *testing.T) {
	tl := New()

	first := NewClip("f1", "a.mp4", KindVideo, tl.TrackEnd(KindVideo), 10)
	tl.AddClip(first)

	if first.Start != 0 || first.Duration != 10 || first.SourceOffset != 0 || first.SourceDuration != 10 {
		t.Fatalf("first clip = %+v, want start 0 duration 10 offset 0 source 10", first)
	}
	if got := tl.TrackEnd(KindVideo); got != 10 {
		t.Fatalf("TrackEnd(video) = %v, want 10", got)
	}

	second := NewClip("f2", "b.mp4", KindVideo, tl.TrackEnd(KindVideo), 4)
	tl.AddClip(second)
	if second.Start != 10 {
		t.Fatalf("second clip start = %v, want 10", second.Start)
	}
}

func TestTrackEnd_VisualTrackShared(t *testing.T) {
	tl := New()
	tl.AddClip(NewClip("f1", "a.mp4", KindVideo, 0, 5))
	tl.AddClip(NewClip("f2", "b.png", KindImage, tl.TrackEnd(KindImage), 0))
	tl.AddClip(NewClip("f3", "c.mp3", KindAudio, tl.TrackEnd(KindAudio), 7))

	if got := tl.TrackEnd(KindVideo); got != 8 {
		t.Errorf("TrackEnd(video) = %v, want 8", got)
	}
	if got := tl.TrackEnd(KindAudio); got != 7 {
		t.Errorf("TrackEnd(audio) = %v, want 7", got)
	}
}

func TestActiveAt_HalfOpen(t *testing.T) {
	tl := New()
	a := NewClip("f1", "a.mp4", KindVideo, 0, 2)
	b := NewClip("f2", "b.png", KindImage, 2, 0)
	tl.AddClip(a)
	tl.AddClip(b)

	tests := []struct {
		at     float64
		wantID string
	}{
		{0, a.ID},
		{1.99, a.ID},
		{2, b.ID},
		{4.99, b.ID},
		{5, ""},
	}
	for _, tc := range tests {
		got, ok := tl.ActiveAt(tc.at, KindVideo)
		if tc.wantID == "" {
			if ok {
				t.Errorf("ActiveAt(%v) = %s, want none", tc.at, got.ID)
			}
			continue
		}
		if !ok || got.ID != tc.wantID {
			t.Errorf("ActiveAt(%v) = %q/%v, want %q", tc.at, got.ID, ok, tc.wantID)
		}
	}
}

func TestActiveOverlaysAt_SortedByStart(t *testing.T) {
	tl := New()
	late := NewOverlay(OverlayTitle, "late", 2)
	early := NewOverlay(OverlaySticker, "early", 1)
	tl.AddOverlay(late)
	tl.AddOverlay(early)

	got := tl.ActiveOverlaysAt(2.5)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != early.ID || got[1].ID != late.ID {
		t.Fatalf("order = %s,%s, want early then late", got[0].Text, got[1].Text)
	}
	if got := tl.ActiveOverlaysAt(0.5); len(got) != 0 {
		t.Fatalf("ActiveOverlaysAt(0.5) = %d overlays, want 0", len(got))
	}
}

func TestProjectDuration(t *testing.T) {
	tl := New()
	if got := tl.ProjectDuration(); got != 0 {
		t.Fatalf("empty ProjectDuration = %v, want 0", got)
	}

	tl.AddClip(NewClip("f1", "a.mp4", KindVideo, 0, 4))
	o := NewOverlay(OverlayTitle, "hi", 3)
	o.Duration = 5
	tl.AddOverlay(o)
	tl.AddClip(NewClip("f2", "b.mp3", KindAudio, 1, 6))

	if got := tl.ProjectDuration(); got != 8 {
		t.Fatalf("ProjectDuration = %v, want 8", got)
	}
}

func TestApplyDrag_Move(t *testing.T) {
	c := videoClip(2, 3, 1, 10)

	got, err := ApplyDrag(c, DragMove, 1.23)
	if err != nil {
		t.Fatalf("ApplyDrag() error = %v", err)
	}
	if math.Abs(got.Start-3.25) > 1e-9 {
		t.Errorf("Start = %v, want 3.25", got.Start)
	}
	if got.Duration != 3 || got.SourceOffset != 1 {
		t.Errorf("move changed duration/offset: %+v", got)
	}

	got, _ = ApplyDrag(c, DragMove, -10)
	if got.Start != 0 {
		t.Errorf("Start = %v, want clamped 0", got.Start)
	}
}

func TestApplyDrag_TrimRight(t *testing.T) {
	c := videoClip(0, 4, 2, 10)

	got, _ := ApplyDrag(c, DragTrimRight, 100)
	if got.Duration != 8 {
		t.Errorf("grow Duration = %v, want 8 (remaining source)", got.Duration)
	}

	got, _ = ApplyDrag(c, DragTrimRight, -100)
	if got.Duration != MinClipDuration {
		t.Errorf("shrink Duration = %v, want %v", got.Duration, MinClipDuration)
	}

	img := NewClip("f", "a.png", KindImage, 0, 0)
	got, _ = ApplyDrag(img, DragTrimRight, 10000)
	if got.Duration != ImageMaxDuration {
		t.Errorf("image Duration = %v, want %v", got.Duration, ImageMaxDuration)
	}
}

func TestApplyDrag_TrimLeftPreservesEnd(t *testing.T) {
	deltas := []float64{-5, -1.5, -0.37, 0, 0.04, 0.5, 1.1, 2.9, 3, 50}
	for _, kind := range []Kind{KindVideo, KindAudio, KindImage} {
		for _, d := range deltas {
			c := videoClip(3, 3, 2, 10)
			c.Kind = kind
			if kind == KindImage {
				c.SourceOffset = 0
			}
			end := c.End()

			got, err := ApplyDrag(c, DragTrimLeft, d)
			if err != nil {
				t.Fatalf("ApplyDrag() error = %v", err)
			}
			if math.Abs(got.End()-end) > 1e-9 {
				t.Errorf("%s delta %v: end = %v, want %v", kind, d, got.End(), end)
			}
			if got.Duration < MinClipDuration-1e-9 {
				t.Errorf("%s delta %v: duration %v below minimum", kind, d, got.Duration)
			}
			if got.Start < 0 {
				t.Errorf("%s delta %v: negative start %v", kind, d, got.Start)
			}
			if kind == KindImage {
				if got.SourceOffset != 0 {
					t.Errorf("image offset = %v, want 0", got.SourceOffset)
				}
				continue
			}
			if got.SourceOffset < 0 || got.SourceOffset > got.SourceDuration-MinClipDuration+1e-9 {
				t.Errorf("%s delta %v: offset %v out of range", kind, d, got.SourceOffset)
			}
			if math.Abs((got.SourceOffset-c.SourceOffset)-(got.Start-c.Start)) > 1e-9 {
				t.Errorf("%s delta %v: offset and start moved differently", kind, d)
			}
		}
	}
}

func TestApplyDrag_TrimLeftSnapsStartToGrid(t *testing.T) {
	c := videoClip(1.03, 3, 2, 10)
	end := c.End()

	got, err := ApplyDrag(c, DragTrimLeft, 0.5)
	if err != nil {
		t.Fatalf("ApplyDrag() error = %v", err)
	}
	if math.Abs(got.Start-1.55) > 1e-9 {
		t.Errorf("start = %v, want 1.55", got.Start)
	}
	if math.Abs(got.End()-end) > 1e-9 {
		t.Errorf("end = %v, want %v", got.End(), end)
	}
	if math.Abs(got.SourceOffset-2.52) > 1e-9 {
		t.Errorf("source offset = %v, want 2.52", got.SourceOffset)
	}
}

func TestApplyDrag_InvariantsHoldUnderSequences(t *testing.T) {
	c := videoClip(1, 5, 0, 6)
	steps := []struct {
		mode  DragMode
		delta float64
	}{
		{DragTrimLeft, 2.3}, {DragTrimRight, 9}, {DragMove, -0.4}, {DragTrimLeft, -7},
		{DragTrimRight, -3.33}, {DragTrimLeft, 4}, {DragMove, 12}, {DragTrimRight, 1},
	}
	for i, s := range steps {
		var err error
		c, err = ApplyDrag(c, s.mode, s.delta)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if c.Duration < MinClipDuration-1e-9 {
			t.Fatalf("step %d: duration %v", i, c.Duration)
		}
		if c.SourceOffset < 0 || c.SourceOffset > c.SourceDuration-MinClipDuration+1e-9 {
			t.Fatalf("step %d: offset %v", i, c.SourceOffset)
		}
		if c.SourceOffset+c.Duration > c.SourceDuration+1e-6 {
			t.Fatalf("step %d: window %v+%v exceeds source %v", i, c.SourceOffset, c.Duration, c.SourceDuration)
		}
	}
}

func TestApplyDrag_UnknownMode(t *testing.T) {
	if _, err := ApplyDrag(videoClip(0, 1, 0, 1), DragMode("spin"), 1); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestToggleMute_RestoresVolume(t *testing.T) {
	c := videoClip(0, 1, 0, 1)
	c.SetVolume(1.4)
	c.ToggleMute()
	if !c.Muted || c.OutputVolume() != 0 {
		t.Fatalf("muted clip output = %v", c.OutputVolume())
	}
	c.ToggleMute()
	if c.Muted || c.OutputVolume() != 1.4 {
		t.Fatalf("unmuted clip output = %v, want 1.4", c.OutputVolume())
	}

	a := NewClip("f", "a.mp3", KindAudio, 0, 2)
	a.ToggleMute()
	if a.Muted {
		t.Fatal("audio clips have no mute flag")
	}
}

func TestSetVolume_Clamped(t *testing.T) {
	c := videoClip(0, 1, 0, 1)
	c.SetVolume(5)
	if c.Volume != MaxVolume {
		t.Errorf("Volume = %v, want %v", c.Volume, MaxVolume)
	}
	c.SetVolume(-1)
	if c.Volume != 0 {
		t.Errorf("Volume = %v, want 0", c.Volume)
	}
}

func TestRemoveClip_NotFound(t *testing.T) {
	tl := New()
	if _, err := tl.RemoveClip("missing"); !errors.Is(err, ErrClipNotFound) {
		t.Fatalf("RemoveClip() error = %v, want ErrClipNotFound", err)
	}
}

func TestOverlayNormalize(t *testing.T) {
	o := Overlay{X: -4, Y: 140, Size: 1000, Duration: 0}
	o.Normalize()
	if o.X != 0 || o.Y != 100 || o.Size != MaxOverlaySize || o.Duration != MinClipDuration {
		t.Fatalf("Normalize() = %+v", o)
	}
	if o.BG != Transparent || o.Color == "" {
		t.Fatalf("defaults not applied: %+v", o)
	}
}

func TestFromDocument_EnforcesClipInvariants(t *testing.T) {
	shrunk := videoClip(-2, 0, 0, 10)
	overrun := videoClip(0, 8, 6, 10)
	unknown := videoClip(0, 1, 0, 1)
	unknown.Kind = "hologram"

	tl := FromDocument([]Clip{shrunk, overrun, unknown}, nil)
	clips := tl.Clips()
	if len(clips) != 2 {
		t.Fatalf("FromDocument() kept %d clips, want 2", len(clips))
	}
	if clips[0].Start != 0 || clips[0].Duration != MinClipDuration {
		t.Errorf("shrunk clip = start %v dur %v", clips[0].Start, clips[0].Duration)
	}
	if got := clips[1]; got.SourceOffset+got.Duration > got.SourceDuration+1e-9 {
		t.Errorf("overrun clip = offset %v dur %v over source %v", got.SourceOffset, got.Duration, got.SourceDuration)
	}
}
