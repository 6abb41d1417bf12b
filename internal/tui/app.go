// internal/tui/app.go
//
// This is the main TUI for naqsh. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the application state (App)
// 2. Update: turns messages (keys, API results) into new state
// 3. View: renders state to a string
//
// Every API call runs inside a tea.Cmd and comes back as a message, so the
// Update loop never blocks on the network.

package tui

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/naqsh/internal/logbook"
	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/shop"
)

// appState represents which screen we're on.
type appState int

const (
	stateLogin  appState = iota // Credentials form
	stateOrders                 // Order list
	stateDetail                 // One order plus its actions
)

const logPanelLines = 6

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook records every user-visible outcome in lb and shows its tail.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithRequestTimeout bounds each API call started from the UI.
func WithRequestTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.env.timeout = d
		}
	}
}

// App is the main application model.
type App struct {
	state   appState
	env     *env
	logbook *logbook.Logbook

	login     loginView
	orders    []models.Order
	orderList list.Model
	detailID  int64
	modal     modal
	loading   bool
	spinner   spinner.Model

	// Orders whose delivery the customer confirmed in this session.
	reviewUnlocked map[int64]bool

	user      string
	statusMsg string
	width     int
	height    int
}

// NewApp creates the TUI on top of svc. A held session skips the login screen.
func NewApp(svc *shop.Service, opts ...AppOption) *App {
	orderList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	orderList.Title = "Your orders"
	orderList.SetShowStatusBar(false)
	orderList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	creds := svc.Session().Snapshot()
	app := &App{
		env:            &env{svc: svc, timeout: 30 * time.Second},
		login:          newLoginView(creds.Username),
		orderList:      orderList,
		spinner:        sp,
		reviewUnlocked: map[int64]bool{},
		user:           creds.Username,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if creds.AccessToken != "" {
		app.state = stateOrders
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	if a.state == stateLogin {
		a.statusMsg = "Sign in to view your orders"
		return nil
	}
	a.logInfo("Session resumed for %s", a.displayUser())
	return a.reloadOrders()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.orderList.SetSize(max(0, msg.Width-6), max(0, msg.Height-logPanelLines-10))
		return a, nil

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case loginResultMsg:
		return a.handleLoginResult(msg)

	case ordersLoadedMsg:
		return a.handleOrdersLoaded(msg)

	case logoutMsg:
		if msg.err != nil {
			a.logWarn("Logout: %v", msg.err)
		}
		a.logInfo("Signed out")
		a.resetToLogin("Signed out")
		return a, nil

	case cancelResultMsg:
		return a.handleCancelResult(msg)

	case deliveryResultMsg:
		return a.handleDeliveryResult(msg)

	case pendingReviewsMsg:
		return a.handlePendingReviews(msg)

	case reviewResultMsg:
		return a.handleReviewResult(msg)

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}

	if a.modal != nil {
		if key == "esc" {
			a.closeModal()
			return a, nil
		}
		cmd := a.modal.Update(msg)
		return a, a.withSpinner(cmd)
	}

	switch a.state {
	case stateLogin:
		if a.login.busy {
			return a, nil
		}
		if key == "enter" {
			user, pass, ok := a.login.credentials()
			if !ok {
				a.login.errMsg = "Username and password are required"
				return a, nil
			}
			a.login.busy = true
			a.login.errMsg = ""
			return a, a.withSpinner(a.env.loginCmd(user, pass))
		}
		return a, a.login.update(msg)

	case stateOrders:
		switch key {
		case "q":
			return a, tea.Quit
		case "r":
			return a, a.reloadOrders()
		case "L":
			return a, a.env.logoutCmd()
		case "enter":
			if item, ok := a.orderList.SelectedItem().(orderItem); ok {
				a.detailID = item.order.ID
				a.state = stateDetail
				a.statusMsg = ""
			}
			return a, nil
		}
		var cmd tea.Cmd
		a.orderList, cmd = a.orderList.Update(msg)
		return a, cmd

	case stateDetail:
		order, ok := a.currentOrder()
		if !ok {
			a.state = stateOrders
			return a, nil
		}
		switch key {
		case "esc", "backspace", "q":
			a.state = stateOrders
			return a, nil
		case "c":
			if !order.CanCancel() {
				a.statusMsg = "Order cannot be cancelled at this stage"
				return a, nil
			}
			a.modal = newCancelModal(a.env, order)
		case "d":
			if !order.CanConfirmDelivery() {
				a.statusMsg = "Only delivered orders awaiting confirmation can be confirmed"
				if order.IssueReported {
					a.statusMsg = "An issue has already been reported for this order"
				}
				return a, nil
			}
			a.modal = newDeliveryModal(a.env, order)
		case "v":
			if !a.canReview(order) {
				a.statusMsg = "Confirm you received this order before writing a review"
				return a, nil
			}
			a.loading = true
			a.statusMsg = "Loading items to review..."
			return a, a.withSpinner(a.env.pendingReviewsCmd(order.ID))
		case "r":
			return a, a.reloadOrders()
		}
	}
	return a, nil
}

func (a *App) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	a.login.busy = false
	if msg.err != nil {
		a.login.errMsg = shop.UserMessage(msg.err, "Login failed")
		a.logError("Login failed: %s", a.login.errMsg)
		return a, nil
	}
	a.user = msg.user.Username
	if a.user == "" {
		a.user, _, _ = a.login.credentials()
	}
	a.login.password.SetValue("")
	a.state = stateOrders
	a.logSuccess("Signed in as %s", msg.user.DisplayName())
	return a, a.reloadOrders()
}

func (a *App) handleOrdersLoaded(msg ordersLoadedMsg) (tea.Model, tea.Cmd) {
	a.loading = false
	if msg.err != nil {
		if shop.IsStatus(msg.err, http.StatusUnauthorized) || shop.IsStatus(msg.err, http.StatusUnprocessableEntity) {
			a.logWarn("Session expired: %s", shop.UserMessage(msg.err, "unauthorized"))
			a.resetToLogin("Your session has expired. Please sign in again.")
			return a, nil
		}
		a.statusMsg = shop.UserMessage(msg.err, "Failed to load orders")
		a.logError("Loading orders: %v", msg.err)
		return a, nil
	}
	a.orders = msg.orders
	items := make([]list.Item, len(msg.orders))
	for i := range msg.orders {
		items[i] = orderItem{order: msg.orders[i]}
	}
	cmd := a.orderList.SetItems(items)
	a.statusMsg = fmt.Sprintf("%d order(s)", len(msg.orders))
	return a, cmd
}

func (a *App) handleCancelResult(msg cancelResultMsg) (tea.Model, tea.Cmd) {
	m, ok := a.modal.(*cancelModal)
	if !ok || m.OrderID() != msg.orderID {
		a.dropLate("cancel", msg.orderID, msg.err)
		return a, nil
	}
	if msg.err != nil {
		text := shop.UserMessage(msg.err, "Failed to cancel order")
		m.fail(text)
		a.logError("Order #%d: %s", msg.orderID, text)
		return a, nil
	}
	a.closeModal()
	a.statusMsg = nonEmpty(msg.message, "Order cancelled successfully")
	a.logSuccess("Order #%d: %s", msg.orderID, a.statusMsg)
	return a, a.reloadOrders()
}

func (a *App) handleDeliveryResult(msg deliveryResultMsg) (tea.Model, tea.Cmd) {
	m, ok := a.modal.(*deliveryModal)
	if !ok || m.OrderID() != msg.orderID {
		a.dropLate("delivery confirmation", msg.orderID, msg.err)
		return a, nil
	}
	if msg.err != nil {
		m.form.Fail(msg.err)
		a.logError("Order #%d: %s", msg.orderID, m.form.Error())
		return a, nil
	}
	m.form.Succeed(msg.message)
	if m.form.Received() {
		a.reviewUnlocked[msg.orderID] = true
		a.statusMsg = m.form.Acknowledgement() + " Press v to review your items."
	} else {
		a.statusMsg = m.form.Acknowledgement()
	}
	a.logSuccess("Order #%d: %s", msg.orderID, m.form.Acknowledgement())
	a.closeModal()
	return a, a.reloadOrders()
}

func (a *App) handlePendingReviews(msg pendingReviewsMsg) (tea.Model, tea.Cmd) {
	a.loading = false
	if a.state != stateDetail || a.detailID != msg.orderID || a.modal != nil {
		a.dropLate("pending reviews", msg.orderID, msg.err)
		return a, nil
	}
	if msg.err != nil {
		a.statusMsg = shop.UserMessage(msg.err, "Failed to load items to review")
		a.logError("Order #%d: %s", msg.orderID, a.statusMsg)
		return a, nil
	}
	if len(msg.items) == 0 {
		a.statusMsg = "You have reviewed every item in this order"
		return a, nil
	}
	order, ok := a.currentOrder()
	if !ok {
		return a, nil
	}
	a.statusMsg = ""
	a.modal = newReviewPicker(order, msg.items, a.openReview)
	return a, nil
}

func (a *App) openReview(order models.Order, item *models.OrderItem) tea.Cmd {
	m := newReviewModal(a.env, order, item)
	if !m.form.HasItem() {
		a.logWarn("Order #%d: %s", order.ID, m.form.Error())
	}
	a.modal = m
	return nil
}

func (a *App) handleReviewResult(msg reviewResultMsg) (tea.Model, tea.Cmd) {
	m, ok := a.modal.(*reviewModal)
	if !ok || m.OrderID() != msg.orderID || m.itemID() != msg.orderItemID {
		a.dropLate("review", msg.orderID, msg.err)
		return a, nil
	}
	if msg.err != nil {
		m.form.Fail(msg.err)
		a.logError("Order #%d review: %s", msg.orderID, m.form.Error())
		return a, nil
	}
	m.form.Succeed()
	a.statusMsg = m.form.Acknowledgement()
	a.logSuccess("Order #%d: %s", msg.orderID, m.form.Acknowledgement())
	a.closeModal()
	a.loading = true
	return a, a.withSpinner(a.env.pendingReviewsCmd(msg.orderID))
}

// dropLate logs a result whose dialog is no longer open.
func (a *App) dropLate(what string, orderID int64, err error) {
	if err != nil {
		a.logWarn("Ignored late %s result for order #%d: %v", what, orderID, err)
		return
	}
	a.logInfo("Ignored late %s result for order #%d", what, orderID)
}

func (a *App) closeModal() {
	a.modal = nil
}

func (a *App) reloadOrders() tea.Cmd {
	a.loading = true
	return a.withSpinner(a.env.loadOrdersCmd())
}

func (a *App) resetToLogin(status string) {
	a.state = stateLogin
	a.modal = nil
	a.orders = nil
	a.detailID = 0
	a.reviewUnlocked = map[int64]bool{}
	a.orderList.SetItems(nil)
	a.login = newLoginView(a.user)
	a.statusMsg = status
}

func (a *App) withSpinner(cmd tea.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	return tea.Batch(cmd, a.spinner.Tick)
}

func (a *App) busy() bool {
	return a.loading || a.login.busy || (a.modal != nil && a.modal.Busy())
}

func (a *App) currentOrder() (models.Order, bool) {
	for _, o := range a.orders {
		if o.ID == a.detailID {
			return o, true
		}
	}
	return models.Order{}, false
}

// canReview holds once delivery is confirmed, either earlier on the server or in this session.
func (a *App) canReview(order models.Order) bool {
	if order.Status != models.StatusDelivered {
		return false
	}
	return order.DeliveryConfirmed || a.reviewUnlocked[order.ID]
}

func (a *App) displayUser() string {
	if a.user == "" {
		return "customer"
	}
	return a.user
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logSuccess(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Success(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	inner := max(20, width-6)

	var content string
	switch a.state {
	case stateLogin:
		content = a.login.view(a.spinner.View())
	case stateOrders:
		content = a.orderList.View()
		if len(a.orders) == 0 && !a.loading {
			content = hintStyle.Render("No orders yet.")
		}
		content += "\n" + hintStyle.Render("enter: open · r: refresh · L: sign out · q: quit")
	case stateDetail:
		if order, ok := a.currentOrder(); ok {
			content = renderOrderDetail(order, a.canReview(order), inner)
		} else {
			content = "Order not found"
		}
	}
	if a.modal != nil {
		dialog := modalStyle.Width(min(inner, 80)).Render(
			accentStyle.Render(a.modal.Title()) + "\n\n" + a.modal.View(min(inner, 80)-4))
		content = lipgloss.JoinVertical(lipgloss.Left, content, "", dialog)
	}

	header := headerStyle.Render("◆ NAQSH · " + a.headerUser())
	body := panelStyle.Width(inner).Render(content)
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(inner); logPanel != "" {
		sections = append(sections, logPanel)
	}
	status := a.statusMsg
	if a.busy() {
		status = strings.TrimSpace(a.spinner.View() + " " + status)
	}
	sections = append(sections, statusStyle.Render(status))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) headerUser() string {
	if a.state == stateLogin {
		return "signed out"
	}
	return a.displayUser()
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	_, total := a.logbook.Tail(1)
	entries := a.logbook.Entries(logPanelLines)
	if len(entries) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, accentStyle.Render(fmt.Sprintf("ACTIVITY · %s (%d)", fileName, total)))
	for _, e := range entries {
		stamp := ""
		if !e.Time.IsZero() {
			stamp = e.Time.Local().Format("15:04:05") + " "
		}
		lines = append(lines, hintStyle.Render(stamp)+levelStyle(e.Level).Render(e.Message))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

var (
	_ modal = (*cancelModal)(nil)
	_ modal = (*deliveryModal)(nil)
	_ modal = (*reviewPicker)(nil)
	_ modal = (*reviewModal)(nil)
)
