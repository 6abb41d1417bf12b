package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// loginView collects credentials for POST /api/auth/login.
type loginView struct {
	username textinput.Model
	password textinput.Model
	focus    int
	errMsg   string
	busy     bool
}

func newLoginView(username string) loginView {
	user := textinput.New()
	user.Placeholder = "username or email"
	user.CharLimit = 120
	user.Width = 32
	user.SetValue(username)

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 128
	pass.Width = 32

	v := loginView{username: user, password: pass}
	if strings.TrimSpace(username) != "" {
		v.focus = 1
		v.password.Focus()
	} else {
		v.username.Focus()
	}
	return v
}

func (v *loginView) setFocus(i int) tea.Cmd {
	v.focus = i
	if i == 0 {
		v.password.Blur()
		return v.username.Focus()
	}
	v.username.Blur()
	return v.password.Focus()
}

// credentials returns the trimmed username and raw password, and whether both are set.
func (v *loginView) credentials() (string, string, bool) {
	user := strings.TrimSpace(v.username.Value())
	pass := v.password.Value()
	return user, pass, user != "" && pass != ""
}

func (v *loginView) update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		return v.setFocus(1 - v.focus)
	}
	var cmd tea.Cmd
	if v.focus == 0 {
		v.username, cmd = v.username.Update(msg)
	} else {
		v.password, cmd = v.password.Update(msg)
	}
	return cmd
}

func (v loginView) view(spinner string) string {
	lines := []string{
		titleStyle.Render("Sign in"),
		"",
		"Username",
		v.username.View(),
		"",
		"Password",
		v.password.View(),
		"",
	}
	switch {
	case v.busy:
		lines = append(lines, spinner+" Signing in...")
	case v.errMsg != "":
		lines = append(lines, errorStyle.Render(v.errMsg))
	default:
		lines = append(lines, hintStyle.Render("enter: sign in · tab: switch field · ctrl+c: quit"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
