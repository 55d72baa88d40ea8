package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"parking-finder-cli/model"
)

const (
	fieldName = iota
	fieldLatitude
	fieldLongitude
	fieldCapacity
	fieldAvailable
	fieldRate
	fieldCount
)

var formFields = [fieldCount]struct {
	key         string
	label       string
	placeholder string
}{
	{key: "name", label: "Name", placeholder: "Central Garage"},
	{key: "latitude", label: "Latitude", placeholder: "-23.5505"},
	{key: "longitude", label: "Longitude", placeholder: "-46.6333"},
	{key: "capacity", label: "Capacity", placeholder: "40"},
	{key: "available", label: "Available", placeholder: "40"},
	{key: "rate", label: "Rate per hour", placeholder: "4.50"},
}

type lotForm struct {
	inputs  [fieldCount]textinput.Model
	focus   int
	invalid *model.ValidationError
	err     string
}

func newLotForm() lotForm {
	var f lotForm
	for i, field := range formFields {
		in := textinput.New()
		in.Placeholder = field.placeholder
		in.Prompt = ""
		in.CharLimit = 64
		in.Width = 32
		f.inputs[i] = in
	}
	f.inputs[fieldName].Focus()
	return f
}

func (f *lotForm) value() model.LotForm {
	return model.LotForm{
		Name:      f.inputs[fieldName].Value(),
		Latitude:  f.inputs[fieldLatitude].Value(),
		Longitude: f.inputs[fieldLongitude].Value(),
		Capacity:  f.inputs[fieldCapacity].Value(),
		Available: f.inputs[fieldAvailable].Value(),
		Rate:      f.inputs[fieldRate].Value(),
	}
}

func (f *lotForm) setPosition(pos model.Coordinates) {
	f.inputs[fieldLatitude].SetValue(fmt.Sprintf("%.6f", pos.Latitude))
	f.inputs[fieldLongitude].SetValue(fmt.Sprintf("%.6f", pos.Longitude))
}

// position returns the coordinates typed in the form, if they parse.
func (f *lotForm) position() (model.Coordinates, bool) {
	draft, err := model.LotForm{
		Name:      "pin",
		Latitude:  f.inputs[fieldLatitude].Value(),
		Longitude: f.inputs[fieldLongitude].Value(),
		Capacity:  "0",
		Available: "0",
		Rate:      "0",
	}.Parse()
	if err != nil {
		return model.Coordinates{}, false
	}
	return model.Coordinates{Latitude: draft.Latitude, Longitude: draft.Longitude}, true
}

func (f *lotForm) focusField(i int) tea.Cmd {
	if i < 0 {
		i = fieldCount - 1
	}
	if i >= fieldCount {
		i = 0
	}
	f.inputs[f.focus].Blur()
	f.focus = i
	return f.inputs[i].Focus()
}

func (f *lotForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// validate parses the form and records inline errors. It never touches the network.
func (f *lotForm) validate() (model.LotDraft, bool) {
	f.err = ""
	draft, err := f.value().Parse()
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			f.invalid = verr
		} else {
			f.err = err.Error()
		}
		return model.LotDraft{}, false
	}
	f.invalid = nil
	return draft, true
}

func (f lotForm) view(width int) string {
	labelStyle := lipgloss.NewStyle().Width(16)
	focusedLabel := labelStyle.Bold(true).Foreground(lipgloss.Color("63"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	lines := []string{}
	for i, field := range formFields {
		label := labelStyle.Render(field.label)
		if i == f.focus {
			label = focusedLabel.Render("› " + field.label)
		}
		line := label + f.inputs[i].View()
		if msg := f.invalid.Field(field.key); msg != "" {
			line += "  " + errStyle.Render(msg)
		}
		lines = append(lines, line)
	}
	if f.err != "" {
		lines = append(lines, "", errStyle.Render(f.err))
	}

	panel := lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63"))
	if width > 60 {
		panel = panel.Width(min(width-4, 76))
	}
	return panel.Render(strings.Join(lines, "\n"))
}
