package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/naqsh/internal/apiclient"
	"github.com/kingrea/naqsh/internal/delivery"
	"github.com/kingrea/naqsh/internal/logbook"
	"github.com/kingrea/naqsh/internal/mockapi"
	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/session"
	"github.com/kingrea/naqsh/internal/shop"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	app   *App
	svc   *shop.Service
	clock *testClock
	lb    *logbook.Logbook
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	srv, err := mockapi.NewServer(mockapi.Settings{Host: "127.0.0.1", Port: 0, AccessTTL: time.Minute, RefreshTTL: time.Hour, Secret: "tui-test"}, mockapi.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new mock api: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start mock api: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	client, err := apiclient.New(srv.BaseURL(), session.NewMemoryStore(session.Credentials{}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	svc := shop.NewService(client)
	if signedIn {
		if _, err := svc.Login(context.Background(), mockapi.DemoUsername, mockapi.DemoPassword); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	lb, err := logbook.New(filepath.Join(t.TempDir(), "activity.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	app := NewApp(svc, WithLogbook(lb), WithRequestTimeout(5*time.Second))
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 60})
	h := &harness{app: app, svc: svc, clock: clock, lb: lb}
	h.drive(t, app.Init())
	return h
}

// drive runs cmd and every command its messages produce. Spinner ticks are
// not fed back so the loop ends once the API work is done.
func (h *harness) drive(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatalf("command loop did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg:
		default:
			_, follow := h.app.Update(msg)
			queue = append(queue, follow)
		}
	}
}

// press sends a key and returns the resulting command without running it.
func (h *harness) press(k string) tea.Cmd {
	_, cmd := h.app.Update(keyMsg(k))
	return cmd
}

func (h *harness) typeText(s string) {
	h.app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) openOrder(t *testing.T, id int64) {
	t.Helper()
	for i, o := range h.app.orders {
		if o.ID == id {
			h.app.orderList.Select(i)
			h.press("enter")
			if h.app.state != stateDetail || h.app.detailID != id {
				t.Fatalf("expected detail of order %d, state %d id %d", id, h.app.state, h.app.detailID)
			}
			return
		}
	}
	t.Fatalf("order %d not loaded", id)
}

func (h *harness) logContains(t *testing.T, needle string) bool {
	t.Helper()
	lines, _ := h.lb.Tail(200)
	for _, line := range lines {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

func TestLoginScreenSignsIn(t *testing.T) {
	h := newHarness(t, false)
	if h.app.state != stateLogin {
		t.Fatalf("expected login screen, got %d", h.app.state)
	}
	h.press("enter")
	if h.app.login.errMsg == "" {
		t.Fatalf("expected validation message for empty credentials")
	}
	h.typeText(mockapi.DemoUsername)
	h.press("tab")
	h.typeText(mockapi.DemoPassword)
	h.drive(t, h.press("enter"))
	if h.app.state != stateOrders {
		t.Fatalf("expected order list after login, got %d (%s)", h.app.state, h.app.login.errMsg)
	}
	if len(h.app.orders) != 6 {
		t.Fatalf("expected 6 orders, got %d", len(h.app.orders))
	}
	if !h.logContains(t, "Signed in as Amina Qureshi") {
		t.Fatalf("expected sign-in entry in activity log")
	}
	if view := h.app.View(); !strings.Contains(view, "Order #1001") {
		t.Fatalf("order list not rendered:\n%s", view)
	}
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t, false)
	h.typeText(mockapi.DemoUsername)
	h.press("tab")
	h.typeText("wrong-password")
	h.drive(t, h.press("enter"))
	if h.app.state != stateLogin {
		t.Fatalf("expected to stay on login")
	}
	if h.app.login.errMsg != "Invalid username/email or password" {
		t.Fatalf("unexpected login error %q", h.app.login.errMsg)
	}
}

func TestDeliveryConfirmationUnlocksReview(t *testing.T) {
	h := newHarness(t, true)
	h.openOrder(t, 1004)

	h.press("v")
	if h.app.modal != nil || !strings.Contains(h.app.statusMsg, "Confirm you received") {
		t.Fatalf("review should be gated until delivery is confirmed, status %q", h.app.statusMsg)
	}

	h.press("d")
	dm, ok := h.app.modal.(*deliveryModal)
	if !ok {
		t.Fatalf("expected delivery modal, got %T", h.app.modal)
	}
	if cmd := h.press("enter"); cmd != nil {
		t.Fatalf("unanswered form must not submit")
	}
	h.press("n")
	if cmd := h.press("ctrl+s"); cmd != nil {
		t.Fatalf("no without issue must not submit")
	}
	if dm.form.Error() != "Please describe the issue" {
		t.Fatalf("unexpected form error %q", dm.form.Error())
	}
	h.press("tab")
	h.press("y")
	if dm.form.Answer() != delivery.AnsweredYes {
		t.Fatalf("expected yes answer")
	}
	h.drive(t, h.press("enter"))
	if h.app.modal != nil {
		t.Fatalf("modal should close after success")
	}
	if !h.app.reviewUnlocked[1004] {
		t.Fatalf("review should be unlocked for order 1004")
	}
	order, _ := h.app.currentOrder()
	if !order.DeliveryConfirmed {
		t.Fatalf("reloaded order should be confirmed")
	}

	h.drive(t, h.press("v"))
	picker, ok := h.app.modal.(*reviewPicker)
	if !ok {
		t.Fatalf("expected review picker, got %T (status %q)", h.app.modal, h.app.statusMsg)
	}
	if n := len(picker.items.Items()); n != 2 {
		t.Fatalf("expected 2 pending items, got %d", n)
	}
	h.press("enter")
	rm, ok := h.app.modal.(*reviewModal)
	if !ok {
		t.Fatalf("expected review modal, got %T", h.app.modal)
	}
	h.press("4")
	if rm.form.Rating() != 4 {
		t.Fatalf("expected rating 4, got %d", rm.form.Rating())
	}
	if cmd := h.press("ctrl+s"); cmd != nil {
		t.Fatalf("blank comment must not submit")
	}
	h.press("tab")
	h.typeText("Beautiful stitching")
	h.drive(t, h.press("ctrl+s"))

	picker, ok = h.app.modal.(*reviewPicker)
	if !ok {
		t.Fatalf("expected picker with remaining items, got %T (status %q)", h.app.modal, h.app.statusMsg)
	}
	if n := len(picker.items.Items()); n != 1 {
		t.Fatalf("expected 1 pending item after review, got %d", n)
	}
	if !h.logContains(t, "Review submitted successfully!") {
		t.Fatalf("expected review success in activity log")
	}
}

func TestLateDeliveryResultIsDropped(t *testing.T) {
	h := newHarness(t, true)
	h.openOrder(t, 1004)
	h.press("d")
	h.press("y")
	cmd := h.press("enter")
	if cmd == nil {
		t.Fatalf("expected submit command")
	}
	h.press("esc")
	if h.app.modal != nil {
		t.Fatalf("esc should close the modal")
	}
	h.drive(t, cmd)
	if h.app.modal != nil {
		t.Fatalf("late result must not reopen anything")
	}
	if h.app.reviewUnlocked[1004] {
		t.Fatalf("late result must not unlock review")
	}
	if !h.logContains(t, "Ignored late delivery confirmation result for order #1004") {
		t.Fatalf("expected late result to be logged")
	}
}

func TestDeliveryFailureKeepsModalOpen(t *testing.T) {
	h := newHarness(t, true)
	h.openOrder(t, 1004)
	h.press("d")
	dm := h.app.modal.(*deliveryModal)

	// Confirm out of band so the server rejects the second attempt.
	if _, err := h.svc.ConfirmDelivery(context.Background(), 1004, models.NewDeliveryConfirmation(true, "")); err != nil {
		t.Fatalf("confirm out of band: %v", err)
	}
	h.press("y")
	h.drive(t, h.press("enter"))
	if h.app.modal != dm {
		t.Fatalf("modal should stay open after failure")
	}
	if dm.form.Error() != "Delivery has already been confirmed" {
		t.Fatalf("expected server message, got %q", dm.form.Error())
	}
	if dm.form.Submitting() || dm.form.Answer() != delivery.AnsweredYes {
		t.Fatalf("form should be editable with answer kept")
	}
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t, true)
	h.openOrder(t, 1003)
	h.press("c")
	if h.app.modal != nil || h.app.statusMsg != "Order cannot be cancelled at this stage" {
		t.Fatalf("shipped order should not offer cancel, status %q", h.app.statusMsg)
	}
	h.press("esc")
	h.openOrder(t, 1001)
	h.press("c")
	if _, ok := h.app.modal.(*cancelModal); !ok {
		t.Fatalf("expected cancel confirmation, got %T", h.app.modal)
	}
	h.drive(t, h.press("y"))
	if h.app.modal != nil {
		t.Fatalf("cancel modal should close on success")
	}
	order, _ := h.app.currentOrder()
	if order.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled order, got %s", order.Status)
	}
}

func TestExpiredSessionReturnsToLogin(t *testing.T) {
	h := newHarness(t, true)
	h.clock.Advance(2 * time.Hour)
	h.drive(t, h.press("r"))
	if h.app.state != stateLogin {
		t.Fatalf("expected login screen after refresh token expiry, got %d", h.app.state)
	}
	if !strings.Contains(h.app.statusMsg, "session has expired") {
		t.Fatalf("unexpected status %q", h.app.statusMsg)
	}
}

func TestAccessTokenRefreshIsInvisible(t *testing.T) {
	h := newHarness(t, true)
	before := h.svc.Session().AccessToken()
	h.clock.Advance(5 * time.Minute)
	h.drive(t, h.press("r"))
	if h.app.state != stateOrders {
		t.Fatalf("expected to stay on orders, got %d", h.app.state)
	}
	if h.svc.Session().AccessToken() == before {
		t.Fatalf("expected a refreshed access token")
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, true)
	h.drive(t, h.press("L"))
	if h.app.state != stateLogin {
		t.Fatalf("expected login screen after logout")
	}
	if h.svc.Session().AccessToken() != "" {
		t.Fatalf("session should be cleared")
	}
}

func TestDeliveryAnswerToggleStaysLocal(t *testing.T) {
	srv, err := mockapi.NewServer(mockapi.Settings{Host: "127.0.0.1", Secret: "tui-test"})
	if err != nil {
		t.Fatalf("new mock api: %v", err)
	}
	var hits atomic.Int64
	handler := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	client, err := apiclient.New(ts.URL, session.NewMemoryStore(session.Credentials{}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	svc := shop.NewService(client)
	if _, err := svc.Login(context.Background(), mockapi.DemoUsername, mockapi.DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	h := &harness{app: NewApp(svc), svc: svc}
	h.app.Update(tea.WindowSizeMsg{Width: 120, Height: 60})
	h.drive(t, h.app.Init())
	h.openOrder(t, 1004)
	h.press("d")

	before := hits.Load()
	for i := 0; i < 3; i++ {
		h.press("y")
		h.press("n")
		h.typeText("box was torn")
		h.press("tab")
	}
	if got := hits.Load(); got != before {
		t.Fatalf("toggling the answer sent %d request(s)", got-before)
	}
	dm := h.app.modal.(*deliveryModal)
	if dm.form.Answer() != delivery.AnsweredNo || dm.form.Submitting() {
		t.Fatalf("unexpected form state: %s submitting=%v", dm.form.Answer(), dm.form.Submitting())
	}
}

func TestReportedIssueClosesDeliveryQuestion(t *testing.T) {
	h := newHarness(t, true)
	h.openOrder(t, 1004)
	h.press("d")
	h.press("n")
	h.typeText("Box arrived empty")
	h.drive(t, h.press("ctrl+s"))
	if h.app.modal != nil {
		t.Fatalf("modal should close after the issue is recorded")
	}
	order, _ := h.app.currentOrder()
	if !order.IssueReported || order.DeliveryConfirmed {
		t.Fatalf("reloaded order should carry the issue only: %+v", order)
	}
	if h.app.reviewUnlocked[1004] {
		t.Fatalf("reporting an issue must not unlock review")
	}

	h.press("d")
	if h.app.modal != nil {
		t.Fatalf("delivery question must not reopen once answered")
	}
	if h.app.statusMsg != "An issue has already been reported for this order" {
		t.Fatalf("unexpected status %q", h.app.statusMsg)
	}
	if view := h.app.View(); !strings.Contains(view, "Issue reported: Box arrived empty") || strings.Contains(view, "d: confirm delivery") {
		t.Fatalf("detail should show the issue without the confirm action:\n%s", view)
	}
}
