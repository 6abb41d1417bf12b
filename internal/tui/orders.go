package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/kingrea/naqsh/internal/models"
)

// orderItem implements list.Item for the order list.
type orderItem struct {
	order models.Order
}

func (i orderItem) Title() string {
	return fmt.Sprintf("Order #%d · %s", i.order.ID, i.order.Status.Label())
}

func (i orderItem) Description() string {
	parts := []string{
		fmt.Sprintf("%d item(s)", i.order.ItemCount()),
		money(i.order.TotalAmount),
	}
	if !i.order.CreatedAt.IsZero() {
		parts = append(parts, i.order.CreatedAt.Format("Jan 2, 2006"))
	}
	if i.order.CanConfirmDelivery() {
		parts = append(parts, "awaiting your confirmation")
	}
	return strings.Join(parts, " · ")
}

func (i orderItem) FilterValue() string {
	return fmt.Sprintf("%d %s", i.order.ID, i.order.Status)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// renderOrderDetail draws the order summary and the actions currently available.
func renderOrderDetail(order models.Order, reviewable bool, width int) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Order #%d", order.ID)) + "  " + statusBadge(order.Status),
	}
	if !order.CreatedAt.IsZero() {
		lines = append(lines, hintStyle.Render("Placed "+order.CreatedAt.Format("Jan 2, 2006 15:04")))
	}
	if addr := strings.TrimSpace(order.ShippingAddress); addr != "" {
		lines = append(lines, "Ship to: "+addr)
	}
	lines = append(lines, "")
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("  %-28s x%-3d %10s", truncate(item.DisplayName(), 28), item.Quantity, money(item.Subtotal())))
	}
	lines = append(lines, "", accentStyle.Render("Total: "+money(order.TotalAmount)))

	if order.Status == models.StatusDelivered {
		if order.DeliveryConfirmed {
			note := "Delivery confirmed"
			if order.DeliveryConfirmedAt != nil && !order.DeliveryConfirmedAt.IsZero() {
				note += " on " + order.DeliveryConfirmedAt.Format("Jan 2, 2006")
			}
			lines = append(lines, successStyle.Render(note))
		} else if order.IssueReported {
			lines = append(lines, errorStyle.Render("Issue reported: "+truncate(order.IssueDescription, max(20, width-16))))
		} else {
			lines = append(lines, starStyle.Render("Did you receive this order? Press d to confirm delivery."))
		}
	}

	var actions []string
	if order.CanCancel() {
		actions = append(actions, "c: cancel order")
	}
	if order.CanConfirmDelivery() {
		actions = append(actions, "d: confirm delivery")
	}
	if reviewable {
		actions = append(actions, "v: write a review")
	}
	actions = append(actions, "esc: back")
	lines = append(lines, "", hintStyle.Render(strings.Join(actions, " · ")))
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

// cancelModal asks for confirmation before cancelling an order.
type cancelModal struct {
	env   *env
	order models.Order
	busy  bool
	err   string
}

func newCancelModal(e *env, order models.Order) *cancelModal {
	return &cancelModal{env: e, order: order}
}

func (m *cancelModal) Title() string  { return "Cancel order" }
func (m *cancelModal) OrderID() int64 { return m.order.ID }
func (m *cancelModal) Busy() bool     { return m.busy }

func (m *cancelModal) Update(msg tea.KeyMsg) tea.Cmd {
	if m.busy {
		return nil
	}
	switch msg.String() {
	case "y", "Y", "enter":
		m.busy = true
		m.err = ""
		return m.env.cancelCmd(m.order.ID)
	}
	return nil
}

func (m *cancelModal) View(width int) string {
	lines := []string{
		fmt.Sprintf("Are you sure you want to cancel order #%d?", m.order.ID),
		"",
	}
	switch {
	case m.busy:
		lines = append(lines, "Cancelling...")
	case m.err != "":
		lines = append(lines, errorStyle.Render(m.err), "", hintStyle.Render("y: try again · esc: keep order"))
	default:
		lines = append(lines, hintStyle.Render("y: cancel order · esc: keep order"))
	}
	return strings.Join(lines, "\n")
}

func (m *cancelModal) fail(message string) {
	m.busy = false
	m.err = message
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
