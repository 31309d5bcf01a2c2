package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"srcpkg/orchestrator"
)

// runTUI renders progress with tview/tcell, mirroring the teacher's
// header+progress+events three-pane layout. Returns false if the terminal
// cannot be initialized, so the caller can fall back to stdout.
func runTUI(events <-chan orchestrator.ProgressEvent) bool {
	app := tview.NewApplication()

	header := tview.NewTextView().SetDynamicColors(true)
	header.SetBorder(true).SetTitle(" srcpkg ")
	header.SetText("[yellow]Waiting for events...[white]")

	progress := tview.NewTextView().SetDynamicColors(true)
	progress.SetBorder(true).SetTitle(" Progress ")

	const maxEventLines = 200
	eventsView := tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	eventsView.SetBorder(true).SetTitle(" Events ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(progress, 6, 0, false).
		AddItem(eventsView, 0, 1, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q')) {
			app.Stop()
			return nil
		}
		return ev
	})

	var mu sync.Mutex
	var counts Counts
	var lines []string

	go func() {
		for ev := range events {
			mu.Lock()
			tally(&counts, ev)
			ts := time.Now().Format("15:04:05")
			line := fmt.Sprintf("[%s] %s -> %s", ts, ev.Name, ev.State)
			if ev.Err != nil {
				line = fmt.Sprintf("[%s] [red]%s: %v[white]", ts, ev.Name, ev.Err)
			}
			lines = append(lines, line)
			if len(lines) > maxEventLines {
				lines = lines[1:]
			}
			headerText := fmt.Sprintf("[yellow]Last:[white] %s -> %s", ev.Name, ev.State)
			progressText := fmt.Sprintf(
				"downloading: %3d\nbuilding:    %3d\ninstalling:  %3d\ninstalled:   %3d\nfailed:      %3d",
				counts.Downloading, counts.Building, counts.Installing, counts.Installed, counts.Failed)
			body := ""
			for _, l := range lines {
				body += l + "\n"
			}
			mu.Unlock()

			app.QueueUpdateDraw(func() {
				header.SetText(headerText)
				progress.SetText(progressText)
				eventsView.SetText(body)
				eventsView.ScrollToEnd()
			})
		}
		app.Stop()
	}()

	if err := app.SetRoot(layout, true).EnableMouse(true).Run(); err != nil {
		return false
	}
	return true
}
