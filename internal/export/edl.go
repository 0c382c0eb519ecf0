package export

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// EDLEvent is one visual clip placed on the record timeline. Times are in
// seconds.
type EDLEvent struct {
	Name      string
	Reel      string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
}

// TimelineEvents lists the visual-track clips of tl in record order. Audio
// clips are not part of a CMX3600 video list.
func TimelineEvents(tl *timeline.Timeline) []EDLEvent {
	var events []EDLEvent
	for _, c := range tl.Clips() {
		if timeline.TrackOf(c.Kind) != timeline.TrackVisual {
			continue
		}
		events = append(events, EDLEvent{
			Name:      c.Name,
			Reel:      reelName(c.FileID),
			SourceIn:  c.SourceOffset,
			SourceOut: c.SourceOffset + c.Duration,
			RecordIn:  c.Start,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordIn < events[j].RecordIn
	})
	return events
}

func GenerateEDL(events []EDLEvent, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		reel := ev.Reel
		if reel == "" {
			reel = "AX"
		}
		recOut := ev.RecordIn + (ev.SourceOut - ev.SourceIn)
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reel, "V",
				toTimecode(ev.SourceIn, fps), toTimecode(ev.SourceOut, fps),
				toTimecode(ev.RecordIn, fps), toTimecode(recOut, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.Name),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func toTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(math.Max(0, sec) * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

// reelName derives an 8-character reel id from a file id.
func reelName(fileID string) string {
	var b strings.Builder
	for _, r := range fileID {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
		if b.Len() == 8 {
			break
		}
	}
	return b.String()
}
