package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/naqsh/internal/models"
)

type loginResultMsg struct {
	user models.User
	err  error
}

type ordersLoadedMsg struct {
	orders []models.Order
	err    error
}

type logoutMsg struct {
	err error
}

type cancelResultMsg struct {
	orderID int64
	message string
	err     error
}

type deliveryResultMsg struct {
	orderID int64
	message string
	err     error
}

type pendingReviewsMsg struct {
	orderID int64
	items   []models.PendingReview
	err     error
}

type reviewResultMsg struct {
	orderID     int64
	orderItemID int64
	err         error
}

func (e *env) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		user, err := e.svc.Login(ctx, username, password)
		return loginResultMsg{user: user, err: err}
	}
}

func (e *env) loadOrdersCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		orders, err := e.svc.ListOrders(ctx)
		return ordersLoadedMsg{orders: orders, err: err}
	}
}

func (e *env) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		return logoutMsg{err: e.svc.Logout(ctx)}
	}
}

func (e *env) cancelCmd(orderID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		msg, err := e.svc.CancelOrder(ctx, orderID)
		return cancelResultMsg{orderID: orderID, message: msg, err: err}
	}
}

func (e *env) confirmDeliveryCmd(orderID int64, conf models.DeliveryConfirmation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		msg, err := e.svc.ConfirmDelivery(ctx, orderID, conf)
		return deliveryResultMsg{orderID: orderID, message: msg, err: err}
	}
}

func (e *env) pendingReviewsCmd(orderID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		items, err := e.svc.PendingReviews(ctx, orderID)
		return pendingReviewsMsg{orderID: orderID, items: items, err: err}
	}
}

func (e *env) submitReviewCmd(rv models.Review) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := e.context()
		defer cancel()
		_, err := e.svc.SubmitReview(ctx, rv)
		return reviewResultMsg{orderID: rv.OrderID, orderItemID: rv.OrderItemID, err: err}
	}
}
