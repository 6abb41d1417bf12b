package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/review"
)

const (
	focusStars = iota
	focusComment
	focusImages
	reviewFocusCount
)

// pendingItem implements list.Item for the review picker.
type pendingItem struct {
	pending models.PendingReview
}

func (i pendingItem) Title() string { return i.pending.ProductName }
func (i pendingItem) Description() string {
	return fmt.Sprintf("Qty %d · %s", i.pending.Quantity, money(i.pending.Price))
}
func (i pendingItem) FilterValue() string { return i.pending.ProductName }

// reviewPicker lists the delivered items that still await a review.
type reviewPicker struct {
	order models.Order
	items list.Model
	open  func(models.Order, *models.OrderItem) tea.Cmd
}

func newReviewPicker(order models.Order, pending []models.PendingReview, open func(models.Order, *models.OrderItem) tea.Cmd) *reviewPicker {
	entries := make([]list.Item, len(pending))
	for i := range pending {
		entries[i] = pendingItem{pending: pending[i]}
	}
	l := list.New(entries, list.NewDefaultDelegate(), 60, 12)
	l.Title = "Items awaiting your review"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return &reviewPicker{order: order, items: l, open: open}
}

func (p *reviewPicker) Title() string  { return "Write a review" }
func (p *reviewPicker) OrderID() int64 { return p.order.ID }
func (p *reviewPicker) Busy() bool     { return false }

func (p *reviewPicker) Update(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "enter" {
		var item *models.OrderItem
		if selected, ok := p.items.SelectedItem().(pendingItem); ok {
			it := selected.pending.AsOrderItem()
			item = &it
		}
		return p.open(p.order, item)
	}
	var cmd tea.Cmd
	p.items, cmd = p.items.Update(msg)
	return cmd
}

func (p *reviewPicker) View(width int) string {
	p.items.SetWidth(max(20, width))
	return p.items.View() + "\n" + hintStyle.Render("enter: review item · esc: close")
}

// reviewModal edits and submits one review.
type reviewModal struct {
	env     *env
	form    *review.Form
	comment textarea.Model
	paths   textinput.Model
	focus   int
	note    string
}

func newReviewModal(e *env, order models.Order, item *models.OrderItem) *reviewModal {
	ta := textarea.New()
	ta.Placeholder = "Share your experience with this product"
	ta.CharLimit = models.MaxCommentLength
	ta.ShowLineNumbers = false
	ta.SetWidth(56)
	ta.SetHeight(5)
	ta.Blur()

	ti := textinput.New()
	ti.Placeholder = "path/to/photo.jpg (enter to attach, backspace on empty removes last)"
	ti.Width = 56

	return &reviewModal{env: e, form: review.NewForm(order, item), comment: ta, paths: ti}
}

func (m *reviewModal) Title() string  { return "Write a review" }
func (m *reviewModal) OrderID() int64 { return m.form.Order().ID }
func (m *reviewModal) Busy() bool     { return m.form.Submitting() }

// itemID is the order item under review, or 0.
func (m *reviewModal) itemID() int64 {
	if item := m.form.Item(); item != nil {
		return item.ID
	}
	return 0
}

func (m *reviewModal) Update(msg tea.KeyMsg) tea.Cmd {
	if !m.form.HasItem() || m.form.Submitting() || m.form.Done() {
		return nil
	}
	key := msg.String()
	switch key {
	case "ctrl+s":
		return m.submit()
	case "tab":
		return m.setFocus((m.focus + 1) % reviewFocusCount)
	case "shift+tab":
		return m.setFocus((m.focus + reviewFocusCount - 1) % reviewFocusCount)
	}
	switch m.focus {
	case focusStars:
		switch key {
		case "left", "h":
			m.form.Hover(max(models.MinRating, m.form.DisplayRating()-1))
		case "right", "l":
			m.form.Hover(min(models.MaxRating, m.form.DisplayRating()+1))
		case "enter", " ":
			m.form.Select(m.form.DisplayRating())
		case "1", "2", "3", "4", "5":
			m.form.Select(int(key[0] - '0'))
		}
		return nil
	case focusComment:
		var cmd tea.Cmd
		m.comment, cmd = m.comment.Update(msg)
		m.form.SetComment(m.comment.Value())
		return cmd
	default:
		switch key {
		case "enter":
			m.attach()
			return nil
		case "backspace":
			if m.paths.Value() == "" {
				if n := len(m.form.Images()); n > 0 {
					m.form.RemoveImage(n - 1)
				}
				return nil
			}
		}
		var cmd tea.Cmd
		m.paths, cmd = m.paths.Update(msg)
		return cmd
	}
}

func (m *reviewModal) setFocus(f int) tea.Cmd {
	m.form.ClearHover()
	m.focus = f
	m.comment.Blur()
	m.paths.Blur()
	switch f {
	case focusComment:
		return m.comment.Focus()
	case focusImages:
		return m.paths.Focus()
	}
	return nil
}

// attach loads the files named in the path input as one batch.
func (m *reviewModal) attach() {
	raw := strings.ReplaceAll(m.paths.Value(), ",", " ")
	paths := strings.Fields(raw)
	if len(paths) == 0 {
		return
	}
	files, err := review.LoadAttachments(paths)
	if err != nil {
		m.note = err.Error()
		return
	}
	if err := m.form.AddImages(files); err != nil {
		m.note = ""
		return
	}
	m.note = ""
	for _, f := range files {
		if f.Oversized() {
			m.note = fmt.Sprintf("%s is larger than 5MB and may be rejected", f.Name)
		}
	}
	m.paths.SetValue("")
}

func (m *reviewModal) submit() tea.Cmd {
	rv, err := m.form.Begin()
	if err != nil {
		return nil
	}
	m.comment.Blur()
	m.paths.Blur()
	return m.env.submitReviewCmd(rv)
}

func (m *reviewModal) View(width int) string {
	if !m.form.HasItem() {
		return errorStyle.Render(m.form.Error()) + "\n\n" + hintStyle.Render("esc: close")
	}
	inner := max(20, min(width-4, 72))
	item := m.form.Item()
	lines := []string{
		titleStyle.Render(item.DisplayName()),
		"",
		m.section(focusStars, "Rating") + "  " + starStyle.Render(m.form.Stars()) + "  " + m.form.Label(),
		"",
		m.section(focusComment, "Your review"),
	}
	m.comment.SetWidth(inner)
	lines = append(lines, m.comment.View(),
		hintStyle.Render(fmt.Sprintf("%d/%d", m.form.CommentLength(), models.MaxCommentLength)),
		"",
		m.section(focusImages, fmt.Sprintf("Photos (%d/%d)", len(m.form.Images()), models.MaxReviewImages)),
	)
	m.paths.Width = inner
	lines = append(lines, m.paths.View())
	if previews := m.renderPreviews(); previews != "" {
		lines = append(lines, previews)
	}
	if m.note != "" {
		lines = append(lines, starStyle.Render(m.note))
	}
	lines = append(lines, "")
	switch {
	case m.form.Submitting():
		lines = append(lines, "Submitting review...")
	case m.form.Error() != "":
		lines = append(lines, errorStyle.Render(m.form.Error()))
	}
	lines = append(lines, hintStyle.Render("tab: next field · ←/→ or 1-5: rating · ctrl+s: submit · esc: close"))
	return strings.Join(lines, "\n")
}

func (m *reviewModal) section(f int, label string) string {
	if m.focus == f {
		return accentStyle.Render("› " + label)
	}
	return "  " + label
}

func (m *reviewModal) renderPreviews() string {
	images := m.form.Images()
	if len(images) == 0 {
		return ""
	}
	tiles := make([]string, 0, len(images))
	for i, img := range images {
		body := img.Preview
		if body == "" {
			body = hintStyle.Render("(no preview)")
		}
		caption := hintStyle.Render(fmt.Sprintf("%d. %s", i+1, truncate(img.Name, review.PreviewWidth)))
		tiles = append(tiles, lipgloss.JoinVertical(lipgloss.Left, body, caption), "  ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tiles...)
}
