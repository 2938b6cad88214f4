package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var startTime = time.Now()

var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	laggingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}

// termMu synchronizes ALL terminal output so that the cursor
// save/restore in PrintLiveStatus can never be interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// termWriter is a mutex-guarded io.Writer for log output. It serialises
// writes with PrintLiveStatus via termMu.
type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
   ______                                          __
  / ____/___  ____ ___  ____ ___  ____ _____  ____/ /__  _____
 / /   / __ \/ __ '__ \/ __ '__ \/ __ '/ __ \/ __  / _ \/ ___/
/ /___/ /_/ / / / / / / / / / / / /_/ / / / / /_/ /  __/ /
\____/\____/_/ /_/ /_/_/ /_/ /_/\__,_/_/ /_/\__,_/\___/_/

            >> instruction-to-action pipeline <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		fmt.Println(lipgloss.PlaceHorizontal(width, lipgloss.Center, bannerStyle.Render(l)))
	}
}

func InitializeTerminal() {
	// Header/Logo area: 1-9
	// Dashboard/Status: 10
	// Scrolling Logs: 12+
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders the one-line dashboard for the board.
func StatusLine(b *StatusBoard, frame int) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	state, task, backendUp, lastHB := b.GetStatus()

	pulse := offlineStyle.Render("● OFFLINE")
	delta := time.Since(lastHB)
	if delta < 40*time.Second {
		pulse = healthyStyle.Render("● HEALTHY")
	} else if delta < 90*time.Second {
		pulse = laggingStyle.Render("● LAGGING")
	}

	backend := offlineStyle.Render("backend down")
	if backendUp {
		backend = healthyStyle.Render("backend up")
	}

	radar := " "
	if state != "IDLE" {
		radar = radarFrames[frame%len(radarFrames)]
	}

	if task == "" {
		task = "Waiting..."
	}
	if len(task) > 30 {
		task = task[:27] + "..."
	}

	return fmt.Sprintf("[%s] %s | %s %s | %s | %s %s",
		lastHB.Format("15:04:05"),
		pulse,
		stateStyle.Render(fmt.Sprintf("%-12s", state)),
		radar,
		task,
		backend,
		dimStyle.Render(fmt.Sprintf("[%v %.1fMB]", time.Since(startTime).Round(time.Second), float64(m.Alloc)/1024/1024)),
	)
}

// PrintLiveStatus redraws the status line in its reserved row.
func PrintLiveStatus(b *StatusBoard, frame int) {
	statusStr := "\033[s\033[10;1H\033[K" + StatusLine(b, frame) + "\033[u"

	termMu.Lock()
	fmt.Print(statusStr)
	termMu.Unlock()
}
