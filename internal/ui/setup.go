package ui

import (
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"golang.org/x/term"

	"github.com/samsoedien/baila-beat/internal/utils"
)

var (
	ErrSelectionAborted = eris.New("selection aborted")
	ErrNoInteractiveTTY = eris.New("no interactive terminal available")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")).
			Bold(true)
	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))
	pointerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213"))
	inactivePointerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	selectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("219")).
				Bold(true)
	instructionKeyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("213")).
				Bold(true)
	instructionTextStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
	instructionDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
	emptyStateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// Option is one selectable entry in the device picker.
type Option struct {
	Label string
}

// SelectDevice runs an interactive picker over the available input devices
// and returns the chosen index. It fails with ErrNoInteractiveTTY when stdin
// or stdout is not a terminal so callers can fall back to a default.
func SelectDevice(devices []Option, initial int) (int, error) {
	if len(devices) == 0 {
		return 0, eris.New("no input devices available")
	}
	if !isInteractiveTerminal() {
		return 0, ErrNoInteractiveTTY
	}

	program := tea.NewProgram(newPickerModel(devices, initial))
	finalModel, err := program.Run()
	if err != nil {
		return 0, err
	}

	result := finalModel.(pickerModel)
	if result.err != nil {
		return 0, result.err
	}
	return utils.ClampIndex(result.cursor, len(devices)), nil
}

type pickerModel struct {
	devices []Option
	cursor  int
	err     error
}

func newPickerModel(devices []Option, initial int) pickerModel {
	return pickerModel{
		devices: devices,
		cursor:  utils.ClampIndex(initial, len(devices)),
	}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.err = ErrSelectionAborted
			return m, tea.Quit
		case "up", "k":
			m.cursor = utils.WrapIndex(m.cursor-1, len(m.devices))
		case "down", "j":
			m.cursor = utils.WrapIndex(m.cursor+1, len(m.devices))
		case "enter":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	lines := []string{
		"",
		titleStyle.Render("Select an audio input device"),
		"",
		renderOptionList(m.devices, m.cursor),
		"",
		renderInstructions([]string{"↑/k ↓/j move", "enter confirm", "esc cancel"}),
		"",
	}
	return strings.Join(lines, "\n")
}

func renderOptionList(items []Option, cursor int) string {
	if len(items) == 0 {
		return emptyStateStyle.Render("No options detected")
	}

	rows := make([]string, len(items))
	for i, item := range items {
		pointer := inactivePointerStyle.Render(" ")
		label := itemStyle.Render(item.Label)
		if cursor == i {
			pointer = pointerStyle.Render("›")
			label = selectedItemStyle.Render(item.Label)
		}
		rows[i] = lipgloss.JoinHorizontal(lipgloss.Left, pointer, " ", label)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderInstructions(parts []string) string {
	if len(parts) == 0 {
		return ""
	}

	var segments []string
	for i, part := range parts {
		if i > 0 {
			segments = append(segments, instructionDividerStyle.Render(" · "))
		}
		segments = append(segments, renderInstruction(part))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, segments...)
}

func renderInstruction(part string) string {
	tokens := strings.Fields(part)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) == 1 {
		return instructionTextStyle.Render(tokens[0])
	}

	var segments []string
	for i, token := range tokens[:len(tokens)-1] {
		if i > 0 {
			segments = append(segments, instructionTextStyle.Render(" "))
		}
		segments = append(segments, instructionKeyStyle.Render(token))
	}
	segments = append(segments, instructionTextStyle.Render(" "))
	segments = append(segments, instructionTextStyle.Render(tokens[len(tokens)-1]))
	return lipgloss.JoinHorizontal(lipgloss.Left, segments...)
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
