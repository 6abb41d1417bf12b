package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/naqsh/internal/delivery"
	"github.com/kingrea/naqsh/internal/models"
)

const (
	focusAnswer = iota
	focusIssue
)

// deliveryModal asks whether the order arrived and, if not, what went wrong.
type deliveryModal struct {
	env   *env
	order models.Order
	form  *delivery.Form
	issue textarea.Model
	focus int
}

func newDeliveryModal(e *env, order models.Order) *deliveryModal {
	ta := textarea.New()
	ta.Placeholder = "Describe what went wrong (missing items, damage, wrong product...)"
	ta.CharLimit = models.MaxIssueLength
	ta.ShowLineNumbers = false
	ta.SetWidth(56)
	ta.SetHeight(4)
	ta.Blur()
	return &deliveryModal{env: e, order: order, form: delivery.NewForm(order.ID), issue: ta}
}

func (m *deliveryModal) Title() string  { return "Confirm delivery" }
func (m *deliveryModal) OrderID() int64 { return m.order.ID }
func (m *deliveryModal) Busy() bool     { return m.form.Submitting() }

func (m *deliveryModal) Update(msg tea.KeyMsg) tea.Cmd {
	if m.form.Submitting() || m.form.Done() {
		return nil
	}
	key := msg.String()
	if key == "ctrl+s" {
		return m.submit()
	}
	if m.focus == focusIssue {
		switch key {
		case "tab", "shift+tab":
			m.focus = focusAnswer
			m.issue.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.issue, cmd = m.issue.Update(msg)
		m.form.SetIssue(m.issue.Value())
		return cmd
	}
	switch key {
	case "y", "Y", "left", "h":
		m.form.Choose(true)
	case "n", "N", "right", "l":
		m.form.Choose(false)
		m.focus = focusIssue
		return m.issue.Focus()
	case "tab":
		if m.form.Answer() == delivery.AnsweredNo {
			m.focus = focusIssue
			return m.issue.Focus()
		}
	case "enter":
		return m.submit()
	}
	return nil
}

func (m *deliveryModal) submit() tea.Cmd {
	conf, err := m.form.Begin()
	if err != nil {
		return nil
	}
	m.issue.Blur()
	return m.env.confirmDeliveryCmd(m.order.ID, conf)
}

func (m *deliveryModal) View(width int) string {
	yes, no := plainOpt, plainOpt
	switch m.form.Answer() {
	case delivery.AnsweredYes:
		yes = selectedOpt
	case delivery.AnsweredNo:
		no = selectedOpt
	}
	lines := []string{
		fmt.Sprintf("Have you received order #%d?", m.order.ID),
		"",
		yes.Render("Yes, I received it") + "  " + no.Render("No, there's a problem"),
	}
	if m.form.Answer() == delivery.AnsweredNo {
		m.issue.SetWidth(max(20, min(width-4, 72)))
		lines = append(lines, "", "What went wrong?", m.issue.View(),
			hintStyle.Render(fmt.Sprintf("%d/%d", m.form.IssueLength(), models.MaxIssueLength)))
	}
	lines = append(lines, "")
	switch {
	case m.form.Submitting():
		lines = append(lines, "Submitting...")
	case m.form.Error() != "":
		lines = append(lines, errorStyle.Render(m.form.Error()))
	}
	hints := "y/n: answer · enter: submit · esc: close"
	if m.focus == focusIssue {
		hints = "tab: back to answer · ctrl+s: submit · esc: close"
	}
	lines = append(lines, hintStyle.Render(hints))
	return strings.Join(lines, "\n")
}
