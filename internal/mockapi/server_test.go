package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/naqsh/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startServer(t *testing.T, clock *fakeClock) *Server {
	t.Helper()
	settings := Settings{Host: "127.0.0.1", Port: 0, AccessTTL: time.Minute, RefreshTTL: time.Hour, Secret: "test-secret"}
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	srv, err := NewServer(settings, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv
}

func call(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func login(t *testing.T, base string) (string, string) {
	t.Helper()
	resp, body := call(t, http.MethodPost, base+"/api/auth/login", "", map[string]string{"username": DemoUsername, "password": DemoPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %v", resp.StatusCode, body)
	}
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login returned no tokens: %v", body)
	}
	return access, refresh
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{Project: config.ProjectConfig{MockAPI: config.MockAPIConfig{Host: "0.0.0.0", Port: 7000, AccessTTL: time.Minute}}}
	settings := SettingsFromConfig(cfg)
	if settings.Address() != "0.0.0.0:7000" {
		t.Fatalf("unexpected address %s", settings.Address())
	}
	if settings.AccessTTL != time.Minute || settings.RefreshTTL != config.DefaultMockRefreshTTL {
		t.Fatalf("unexpected ttls %s/%s", settings.AccessTTL, settings.RefreshTTL)
	}
	if settings.Secret == "" {
		t.Fatalf("expected generated secret")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	resp, body := call(t, http.MethodGet, srv.BaseURL()+"/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != string(StatusReady) {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	resp, body := call(t, http.MethodPost, srv.BaseURL()+"/api/auth/login", "", map[string]string{"username": DemoUsername, "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["error"] != "Invalid username/email or password" {
		t.Fatalf("unexpected body %v", body)
	}
	resp, _ = call(t, http.MethodPost, srv.BaseURL()+"/api/auth/login", "", map[string]string{"username": DemoUsername})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", resp.StatusCode)
	}
}

func TestLoginByEmail(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	resp, body := call(t, http.MethodPost, srv.BaseURL()+"/api/auth/login", "", map[string]string{"username": "amina@example.com", "password": DemoPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected login by email, got %d %v", resp.StatusCode, body)
	}
}

func TestAccessTokenExpiryAndRefresh(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	srv := startServer(t, clock)
	base := srv.BaseURL()
	access, refresh := login(t, base)

	resp, _ := call(t, http.MethodGet, base+"/api/auth/me", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with fresh token, got %d", resp.StatusCode)
	}

	clock.Advance(2 * time.Minute)
	resp, body := call(t, http.MethodGet, base+"/api/auth/me", access, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["msg"] != "Token has expired" {
		t.Fatalf("expected expired token 401, got %d %v", resp.StatusCode, body)
	}

	resp, _ = call(t, http.MethodPost, base+"/api/auth/refresh", access, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired access token must not refresh, got %d", resp.StatusCode)
	}
	resp, body = call(t, http.MethodPost, base+"/api/auth/refresh", refresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh failed: %d %v", resp.StatusCode, body)
	}
	fresh, _ := body["access_token"].(string)
	resp, _ = call(t, http.MethodGet, base+"/api/auth/me", fresh, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refreshed token rejected: %d", resp.StatusCode)
	}
}

func TestTokenTypeAndFormatErrors(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, refresh := login(t, base)

	resp, _ := call(t, http.MethodGet, base+"/api/orders", refresh, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("refresh token used as access should be 422, got %d", resp.StatusCode)
	}
	resp, _ = call(t, http.MethodPost, base+"/api/auth/refresh", access, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("access token used for refresh should be 422, got %d", resp.StatusCode)
	}
	resp, _ = call(t, http.MethodGet, base+"/api/orders", "garbage", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("malformed token should be 422, got %d", resp.StatusCode)
	}
	resp, _ = call(t, http.MethodGet, base+"/api/orders", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token should be 401, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)
	resp, _ := call(t, http.MethodPost, base+"/api/auth/logout", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed: %d", resp.StatusCode)
	}
	resp, body := call(t, http.MethodGet, base+"/api/auth/me", access, nil)
	if resp.StatusCode != http.StatusUnauthorized || body["msg"] != "Token has been revoked" {
		t.Fatalf("expected revoked token, got %d %v", resp.StatusCode, body)
	}
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)

	req, _ := http.NewRequest(http.MethodGet, base+"/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var orders []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	resp.Body.Close()
	if len(orders) != 6 {
		t.Fatalf("expected 6 seeded orders, got %d", len(orders))
	}
	if orders[0]["id"].(float64) != 1001 {
		t.Fatalf("expected newest order first, got %v", orders[0]["id"])
	}
	resp2, body := call(t, http.MethodGet, base+"/api/orders/2001", access, nil)
	if resp2.StatusCode != http.StatusNotFound || body["message"] != "Order not found" {
		t.Fatalf("foreign order should be hidden, got %d %v", resp2.StatusCode, body)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)
	resp, body := call(t, http.MethodPut, base+"/api/orders/1001/cancel", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel pending order: %d %v", resp.StatusCode, body)
	}
	resp, body = call(t, http.MethodPut, base+"/api/orders/1003/cancel", access, nil)
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Order cannot be cancelled at this stage" {
		t.Fatalf("shipped order cancel: %d %v", resp.StatusCode, body)
	}
}

func TestConfirmDelivery(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)

	resp, body := call(t, http.MethodPut, base+"/api/orders/1004/confirm-delivery", access, map[string]any{"received": false, "issue_description": " "})
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Issue description is required" {
		t.Fatalf("blank issue: %d %v", resp.StatusCode, body)
	}
	resp, body = call(t, http.MethodPut, base+"/api/orders/1004/confirm-delivery", access, map[string]any{"received": true, "issue_description": nil})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %v", resp.StatusCode, body)
	}
	order, _ := body["order"].(map[string]any)
	if order["delivery_confirmed_by_customer"] != true || order["delivery_issue_reported"] != false {
		t.Fatalf("order not marked confirmed: %v", order)
	}
	for _, again := range []map[string]any{{"received": true}, {"received": false, "issue_description": "Actually one item is missing"}} {
		resp, body = call(t, http.MethodPut, base+"/api/orders/1004/confirm-delivery", access, again)
		if resp.StatusCode != http.StatusBadRequest || body["message"] != "Delivery has already been confirmed" {
			t.Fatalf("second answer %v: %d %v", again, resp.StatusCode, body)
		}
	}
	if srv.ReportedIssues() != 0 {
		t.Fatalf("rejected answers must not record issues, got %d", srv.ReportedIssues())
	}
	resp, _ = call(t, http.MethodPut, base+"/api/orders/1003/confirm-delivery", access, map[string]any{"received": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("shipped order confirm should fail, got %d", resp.StatusCode)
	}
}

func TestReportedIssueIsTheOnlyDeliveryOutcome(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)
	url := base + "/api/orders/1004/confirm-delivery"

	resp, body := call(t, http.MethodPut, url, access, map[string]any{"received": false, "issue_description": "Box arrived empty"})
	if resp.StatusCode != http.StatusOK || body["message"] != "Issue reported. Our team will contact you shortly." {
		t.Fatalf("report issue: %d %v", resp.StatusCode, body)
	}
	order, _ := body["order"].(map[string]any)
	if order["delivery_issue_reported"] != true || order["delivery_confirmed_by_customer"] != false {
		t.Fatalf("order should carry the reported issue only: %v", order)
	}
	for _, again := range []map[string]any{{"received": true}, {"received": false, "issue_description": "Still empty"}} {
		resp, body = call(t, http.MethodPut, url, access, again)
		if resp.StatusCode != http.StatusBadRequest || body["message"] != "An issue has already been reported for this order" {
			t.Fatalf("second answer %v: %d %v", again, resp.StatusCode, body)
		}
	}
	if srv.ReportedIssues() != 1 {
		t.Fatalf("expected exactly one reported issue, got %d", srv.ReportedIssues())
	}
	resp, body = call(t, http.MethodGet, base+"/api/orders/1004", access, nil)
	if resp.StatusCode != http.StatusOK || body["delivery_issue"] != "Box arrived empty" {
		t.Fatalf("issue not persisted on the order: %d %v", resp.StatusCode, body)
	}
}

func postReview(t *testing.T, url, token string, fields map[string]string, images int) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for i := 0; i < images; i++ {
		part, _ := w.CreateFormFile("images", "photo"+strings.Repeat("x", i)+".png")
		_, _ = part.Write([]byte("png-bytes"))
	}
	_ = w.Close()
	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post review: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestReviewFlow(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	base := srv.BaseURL()
	access, _ := login(t, base)

	resp, _ := call(t, http.MethodGet, base+"/api/reviews/order/1003/pending", access, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("undelivered order pending reviews should be 400, got %d", resp.StatusCode)
	}

	fields := map[string]string{"product_id": "504", "order_item_id": "4", "order_id": "1004", "rating": "4", "comment": "Lovely fabric"}
	bad := map[string]string{"product_id": "504", "order_item_id": "4", "order_id": "1004", "rating": "4", "comment": "  "}
	if resp, body := postReview(t, base+"/api/reviews", access, bad, 0); resp.StatusCode != http.StatusBadRequest || body["message"] != "Comment is required" {
		t.Fatalf("blank comment: %d %v", resp.StatusCode, body)
	}
	if resp, body := postReview(t, base+"/api/reviews", access, fields, 4); resp.StatusCode != http.StatusBadRequest || body["message"] != "Maximum 3 images allowed" {
		t.Fatalf("four images: %d %v", resp.StatusCode, body)
	}
	resp, body := postReview(t, base+"/api/reviews", access, fields, 2)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create review: %d %v", resp.StatusCode, body)
	}
	if images, _ := body["images"].([]any); len(images) != 2 {
		t.Fatalf("expected 2 stored images, got %v", body["images"])
	}
	if resp, body := postReview(t, base+"/api/reviews", access, fields, 0); resp.StatusCode != http.StatusBadRequest || body["message"] != "You have already reviewed this product" {
		t.Fatalf("duplicate review: %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/reviews/order/1004/pending", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	pendingResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer pendingResp.Body.Close()
	var pending []map[string]any
	if err := json.NewDecoder(pendingResp.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending) != 1 || pending[0]["product_id"].(float64) != 505 {
		t.Fatalf("expected only the unreviewed item, got %v", pending)
	}
}

func TestIssueTokens(t *testing.T) {
	t.Parallel()
	srv := startServer(t, nil)
	access, refresh, err := srv.IssueTokens(DemoUsername)
	if err != nil || access == "" || refresh == "" {
		t.Fatalf("issue tokens: %v", err)
	}
	if _, _, err := srv.IssueTokens("nobody"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}
