package nanto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// showStageLog displays one stage's retained log from the latest run,
// paging it when it overflows the terminal.
func showStageLog(project, stage string) error {
	dir, err := latestRunDir(project)
	if err != nil {
		return err
	}
	content, err := stageLogContent(dir, stage)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s / %s / %s", project, filepath.Base(dir), stage)
	return runLogPager(title, strings.Split(strings.TrimRight(content, "\n"), "\n"))
}

// runLogPager shows lines in a scrollable view. Off-terminal output and
// content that fits the screen are printed plainly.
func runLogPager(title string, lines []string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	_, height, err := term.GetSize(fd)
	if err == nil && len(lines) <= height-2 {
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	app := tview.NewApplication()

	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	textView.SetBorder(true).SetTitle(" " + title + " ")

	ansiWriter := tview.ANSIWriter(textView)
	fmt.Fprint(ansiWriter, strings.Join(lines, "\n"))

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Use ↑/↓, PgUp/PgDn, Home/End to scroll. Press 'q' or 'Esc' to quit.[white]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(flex, true).SetFocus(textView).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}

// browseRunLogs opens a browser over every stage log of the latest run.
// Left/right switch stages; on a plain pipe the logs are dumped in order.
func browseRunLogs(project string) error {
	dir, err := latestRunDir(project)
	if err != nil {
		return err
	}
	stages, err := listStageLogs(dir)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		return fmt.Errorf("no stage logs recorded in %s", dir)
	}

	contents := make(map[string]string, len(stages))
	for _, stage := range stages {
		content, err := stageLogContent(dir, stage)
		if err != nil {
			content = fmt.Sprintf("error reading log: %v", err)
		}
		contents[stage] = content
	}

	if !stdoutIsTTY() {
		for _, stage := range stages {
			fmt.Printf("==> %s <==\n%s\n", stage, contents[stage])
		}
		return nil
	}

	app := tview.NewApplication()
	active := 0

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	header.SetBorder(true)
	header.SetTitle("nanto Stage Log Viewer")

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true)
	logView.SetBorder(true)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft).
		SetText("[gray]←/→ switch stage | ↑/↓ PgUp/PgDn Home/End scroll | 'q' or Esc quit[white]")
	footer.SetBorder(true)

	show := func() {
		stage := stages[active]
		var tabs []string
		for i, s := range stages {
			if i == active {
				tabs = append(tabs, fmt.Sprintf("[black:yellow] %s [-:-]", s))
			} else {
				tabs = append(tabs, " "+s+" ")
			}
		}
		header.SetText(fmt.Sprintf("%s / %s\n%s", project, filepath.Base(dir), strings.Join(tabs, "|")))

		logView.Clear()
		fmt.Fprint(tview.ANSIWriter(logView), contents[stage])
		logView.ScrollToEnd()
	}
	show()

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 4, 0, false).
		AddItem(logView, 0, 1, true).
		AddItem(footer, 3, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			app.Stop()
			return nil
		case tcell.KeyLeft:
			active--
			if active < 0 {
				active = len(stages) - 1
			}
			show()
			return nil
		case tcell.KeyRight:
			active++
			if active >= len(stages) {
				active = 0
			}
			show()
			return nil
		case tcell.KeyHome:
			logView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			logView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := logView.GetScrollOffset()
			if row > 0 {
				logView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := logView.GetScrollOffset()
			logView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := logView.GetScrollOffset()
			if row > 10 {
				logView.ScrollTo(row-10, 0)
			} else {
				logView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := logView.GetScrollOffset()
			logView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(flex, true).SetFocus(logView).Run(); err != nil {
		return fmt.Errorf("log viewer failed: %w", err)
	}
	return nil
}
