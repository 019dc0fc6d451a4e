package ui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

// PickerItem is one entry shown in the interactive picker.
type PickerItem struct {
	Label    string // primary text (e.g. connector name)
	SubLabel string // secondary text shown dimmed
	Value    string // value returned on selection
	Disabled bool   // shown dimmed and skipped by the cursor
}

type pickerModel struct {
	title    string
	items    []PickerItem
	cursor   int
	selected *PickerItem
	quitting bool
}

func newPicker(title string, items []PickerItem) pickerModel {
	m := pickerModel{title: title, items: items}
	m.cursor = m.step(-1, 1)
	return m
}

// step returns the next enabled index from i in direction dir, or i when
// there is none.
func (m pickerModel) step(i, dir int) int {
	for j := i + dir; j >= 0 && j < len(m.items); j += dir {
		if !m.items[j].Disabled {
			return j
		}
	}
	return i
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = m.step(m.cursor, -1)
	case "down", "j":
		m.cursor = m.step(m.cursor, 1)
	case "enter", " ":
		if m.cursor >= 0 {
			item := m.items[m.cursor]
			m.selected = &item
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.quitting || m.selected != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(StyleTitle.Render("  "+m.title) + "\n")

	for i, item := range m.items {
		prefix := "    "
		if i == m.cursor {
			prefix = "  ▸ "
		}
		line := prefix + item.Label
		if item.SubLabel != "" {
			line += "  " + StyleMeta.Render(item.SubLabel)
		}
		switch {
		case i == m.cursor:
			line = StyleSelected.Render(line)
		case item.Disabled:
			line = StyleMeta.Render(line)
		default:
			line = StyleValue.Render(line)
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(StyleMeta.Render("  [ ↑↓ / jk ] navigate   [ Enter ] select   [ q ] cancel") + "\n")
	return sb.String()
}

// Pick runs an interactive list picker and returns the chosen item's Value.
// It fails with ErrCancelled when the user quits.
func Pick(title string, items []PickerItem) (string, error) {
	m := newPicker(title, items)
	if m.cursor < 0 {
		return "", errors.New("nothing to pick from")
	}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return "", err
	}
	fm := final.(pickerModel)
	if fm.selected == nil {
		return "", ErrCancelled
	}
	return fm.selected.Value, nil
}
