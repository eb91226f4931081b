package ui

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/crazy3lf/colorconv"

	"github.com/samsoedien/baila-beat/internal/utils"
)

// CounterFrame is one snapshot of the dance-count state for rendering.
type CounterFrame struct {
	Position   int // 1..8, the current count
	CycleIndex uint64
	Downbeat   bool
	DashBeat   bool
	BPM        int
	Energy     float64 // 0..1 normalized
	BeatPulse  float64 // 0..1, decays between beats
	Silence    bool
	Counting   bool // false until the first beat lands
}

// Counter renders the live 8-count display. Frames are throttled except when
// they carry a fresh beat, so count changes are never dropped.
type Counter struct {
	program   *tea.Program
	mu        sync.Mutex
	lastSend  time.Time
	throttle  time.Duration
	closeOnce sync.Once
}

type counterFrameMsg struct {
	frame      CounterFrame
	receivedAt time.Time
}

type counterModel struct {
	frame       CounterFrame
	lastUpdated time.Time
	ready       bool
	onExit      func()
	exitOnce    sync.Once
}

var (
	counterContainerStyle = lipgloss.NewStyle().Padding(0, 2)
	counterTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	countLabelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	countValueStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	countIdleStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countDashStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Italic(true)
	silenceStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	counterHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	counterBarEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

const (
	counterBarWidth = 32
	counterLatency  = 45 * time.Millisecond
)

// NewCounter starts the count display in an alternate screen.
func NewCounter(onExit func()) *Counter {
	model := &counterModel{onExit: onExit}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithoutSignalHandler())

	c := &Counter{
		program:  program,
		throttle: counterLatency,
	}

	go program.Run()

	return c
}

// Update pushes a frame to the display.
func (c *Counter) Update(frame CounterFrame) {
	fresh := frame.BeatPulse >= 1
	c.mu.Lock()
	if !fresh && time.Since(c.lastSend) < c.throttle {
		c.mu.Unlock()
		return
	}
	c.lastSend = time.Now()
	c.mu.Unlock()

	c.program.Send(counterFrameMsg{
		frame:      frame,
		receivedAt: time.Now(),
	})
}

// Close stops the display.
func (c *Counter) Close() {
	c.closeOnce.Do(func() {
		c.program.Quit()
	})
}

func (m *counterModel) Init() tea.Cmd {
	return nil
}

func (m *counterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case counterFrameMsg:
		m.frame = msg.frame
		m.lastUpdated = msg.receivedAt
		m.ready = true
	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC:
			m.invokeExit()
			return m, tea.Quit
		case msg.String() == "q", msg.String() == "esc":
			m.invokeExit()
			return m, tea.Quit
		}
	case tea.QuitMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *counterModel) invokeExit() {
	m.exitOnce.Do(func() {
		if m.onExit != nil {
			m.onExit()
		}
	})
}

func (m *counterModel) View() string {
	body := ""
	if !m.ready {
		header := titleStyle.Render("Baila Beat")
		waiting := silenceStyle.Render("Waiting for audio…")
		body = lipgloss.JoinVertical(lipgloss.Left, header, "", waiting)
	} else {
		body = renderCounterView(m.frame, m.lastUpdated)
	}
	return counterContainerStyle.Render(body)
}

func renderCounterView(frame CounterFrame, updatedAt time.Time) string {
	header := renderCounterHeader(frame, updatedAt)
	strip := renderCountStrip(frame)
	metrics := renderCounterMetrics(frame)
	bars := lipgloss.JoinVertical(lipgloss.Left,
		renderCounterBar("Energy", frame.Energy, 190),
		renderCounterBar("Beat Pulse", frame.BeatPulse, 330),
	)
	controls := counterHintStyle.Render("Press q / esc / ctrl+c to stop")

	lines := []string{header, ""}
	if frame.Silence {
		lines = append(lines, silenceStyle.Render("No music detected"), "")
	}
	lines = append(lines, strip, "", metrics, "", bars, "", controls)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderCounterHeader(frame CounterFrame, updatedAt time.Time) string {
	hue := positionHue(frame.Position)
	color := lipgloss.Color(hexColorFromHSV(hue, 0.8, 0.9))
	title := titleStyle.Foreground(color).Render("Baila Beat")
	timestamp := counterTimestampStyle.Render(updatedAt.Format("15:04:05.000"))
	return lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", timestamp)
}

// renderCountStrip draws the 8-count with the current position highlighted.
// The dash counts (4 and 8) are the held steps and render dimmed.
func renderCountStrip(frame CounterFrame) string {
	cells := make([]string, 8)
	for i := range 8 {
		pos := i + 1
		token := fmt.Sprintf(" %d ", pos)
		dash := pos == 4 || pos == 8

		style := countIdleStyle
		if dash {
			style = countDashStyle
		}
		if frame.Counting && pos == frame.Position {
			hue := positionHue(pos)
			sat := 0.85
			if dash {
				sat = 0.3
			}
			style = lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexColorFromHSV(hue, sat, 1.0))).
				Bold(true)
			if frame.Downbeat {
				style = style.Underline(true)
			}
		}
		cells[i] = style.Render(token)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		subtitleStyle.Render("Count"), "  ", strings.Join(cells, " "))
}

func renderCounterMetrics(frame CounterFrame) string {
	bpm := "--"
	if frame.BPM > 0 {
		bpm = fmt.Sprintf("%d", frame.BPM)
	}
	parts := []string{
		renderCounterMetric("Tempo", bpm+" bpm"),
		"   ",
		renderCounterMetric("Cycle", fmt.Sprintf("%d", frame.CycleIndex)),
		"   ",
		renderCounterMetric("Beat", beatMarker(frame)),
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func beatMarker(frame CounterFrame) string {
	switch {
	case frame.BeatPulse >= 1 && frame.Downbeat:
		return "◉ downbeat"
	case frame.BeatPulse >= 1 && frame.DashBeat:
		return "○ dash"
	case frame.BeatPulse >= 1:
		return "●"
	default:
		return "·"
	}
}

func renderCounterMetric(label, value string) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		countLabelStyle.Render(label+":"),
		" ",
		countValueStyle.Render(value),
	)
}

func renderCounterBar(label string, value float64, hue float64) string {
	clamped := utils.Clamp(value, 0.0, 1.0)
	filled := int(math.Round(clamped * counterBarWidth))
	if clamped > 0 && filled == 0 {
		filled = 1
	}
	if filled > counterBarWidth {
		filled = counterBarWidth
	}

	builder := strings.Builder{}
	builder.Grow(128)
	builder.WriteString(countLabelStyle.Render(fmt.Sprintf("%-12s", label)))
	builder.WriteString(" [")

	for i := 0; i < filled; i++ {
		progress := float64(i) / float64(max(filled-1, 1))
		value := utils.Clamp(0.35+0.55*progress, 0.0, 1.0)
		color := lipgloss.Color(hexColorFromHSV(hue, 0.85, value))
		builder.WriteString(lipgloss.NewStyle().Foreground(color).Render("█"))
	}
	for range counterBarWidth - filled {
		builder.WriteString(counterBarEmptyStyle.Render("░"))
	}

	builder.WriteString("] ")
	builder.WriteString(countValueStyle.Render(fmt.Sprintf("%3.0f%%", clamped*100)))

	return builder.String()
}

// positionHue spreads the 8 counts around the hue wheel so each count has a
// recognizable color.
func positionHue(position int) float64 {
	if position < 1 || position > 8 {
		return 0
	}
	return float64(position-1) * 45
}

func hexColorFromHSV(h, s, v float64) string {
	s = utils.Clamp(s, 0.0, 1.0)
	v = utils.Clamp(v, 0.0, 1.0)
	r, g, b, err := colorconv.HSVToRGB(h, s, v)
	if err != nil {
		return "#FFFFFF"
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
