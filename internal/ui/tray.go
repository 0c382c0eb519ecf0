package ui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/reelcut/reelcut-agent/internal/export"
)

const refreshInterval = 2 * time.Second

// ExportControl pauses and resumes the export queue.
type ExportControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

// StatusSource reports the export pipeline stage.
type StatusSource interface {
	Status() export.Status
}

type Tray struct {
	exports      ExportControl
	status       StatusSource
	openProjects func() int
	apiURL       string
	logger       *slog.Logger

	statusItem   *systray.MenuItem
	projectsItem *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu   sync.Mutex
	done chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Exports      ExportControl
	Status       StatusSource
	OpenProjects func() int
	APIURL       string
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		exports:      cfg.Exports,
		status:       cfg.Status,
		openProjects: cfg.OpenProjects,
		apiURL:       cfg.APIURL,
		logger:       cfg.Logger,
		done:         make(chan struct{}),
		onQuit:       cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	icon, err := iconPNG(iconSize)
	if err != nil {
		t.logger.Warn("failed to render tray icon", "error", err)
	} else {
		systray.SetIcon(icon)
	}
	systray.SetTitle("Reelcut")
	systray.SetTooltip("Reelcut Agent " + t.apiURL)

	t.statusItem = systray.AddMenuItem(statusLine(export.Status{Stage: export.StageIdle}, false), "Current export status")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem(projectsLine(0), "Projects with a live editor session")
	t.projectsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Exports", "Stop picking up queued exports")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Reelcut Agent")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.done)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var st export.Status
	if t.status != nil {
		st = t.status.Status()
	}
	paused := t.exports != nil && t.exports.IsPaused()
	t.statusItem.SetTitle(statusLine(st, paused))

	if t.openProjects != nil {
		t.projectsItem.SetTitle(projectsLine(t.openProjects()))
	}
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.exports == nil {
		return
	}

	if t.exports.IsPaused() {
		t.exports.Resume()
		t.pauseItem.SetTitle("Pause Exports")
	} else {
		t.exports.Pause()
		t.pauseItem.SetTitle("Resume Exports")
	}
	var st export.Status
	if t.status != nil {
		st = t.status.Status()
	}
	t.statusItem.SetTitle(statusLine(st, t.exports.IsPaused()))
}

func (t *Tray) Quit() {
	systray.Quit()
}

// statusLine describes the pipeline. A running export is shown even while
// the queue is paused since pausing only stops new jobs.
func statusLine(st export.Status, paused bool) string {
	switch st.Stage {
	case export.StageRendering:
		return fmt.Sprintf("Status: Rendering %d%%", st.Progress)
	case export.StageConverting:
		return fmt.Sprintf("Status: Converting %d%%", st.Progress)
	}
	if paused {
		return "Status: Paused"
	}
	return "Status: Idle"
}

func projectsLine(n int) string {
	if n == 1 {
		return "1 project open"
	}
	return fmt.Sprintf("%d projects open", n)
}
