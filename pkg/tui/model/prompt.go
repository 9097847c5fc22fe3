package model

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/pricewatch/pkg/linkcheck"
)

// ImportPrompt asks for a product link and starts an import job for it.
type ImportPrompt struct {
	input textinput.Model
	err   string
}

// NewImportPrompt returns a focused, empty prompt.
func NewImportPrompt() *ImportPrompt {
	ti := textinput.New()
	ti.Placeholder = "https://shop.example.com/product/..."
	ti.CharLimit = linkcheck.MaxLength
	ti.Focus()
	return &ImportPrompt{input: ti}
}

// HandleKey processes key events in import mode. The link is validated
// locally so typos are reported before anything is sent.
func (p *ImportPrompt) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.prompt = nil
		return a, nil

	case "enter":
		link, err := linkcheck.Validate(p.input.Value())
		if err != nil {
			p.err = err.Error()
			return a, nil
		}
		a.mode = ModeNormal
		a.prompt = nil
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		a.statusMsg = "importing " + link
		return a, importCmd(a.client, link)

	default:
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		p.err = ""
		return a, cmd
	}
}

// View renders the prompt.
func (p *ImportPrompt) View(width int) string {
	p.input.Width = max(width-12, 10)
	s := titleStyle.Render(" Import product ") + "\n\n"
	s += "  " + dimStyle.Render("link: ") + p.input.View() + "\n"
	if p.err != "" {
		s += "\n  " + statusFailed.Render(p.err) + "\n"
	}
	s += "\n" + helpStyle.Render("  enter:import  esc:cancel")
	return s
}
