// Package shop maps customer actions onto marketplace API calls made through
// the refreshing client.
package shop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kingrea/naqsh/internal/apiclient"
	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/session"
)

const maxResponseBody = 4 << 20

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Service performs customer operations against the API.
type Service struct {
	client *apiclient.Client
	logger Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wraps client.
func NewService(client *apiclient.Client, opts ...Option) *Service {
	s := &Service{client: client, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Session exposes the credential store behind the client.
func (s *Service) Session() session.Store {
	return s.client.Session()
}

// Login exchanges credentials for a token pair and stores it.
func (s *Service) Login(ctx context.Context, username, password string) (models.User, error) {
	var pair models.TokenPair
	body := map[string]string{"username": username, "password": password}
	if err := s.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &pair); err != nil {
		return models.User{}, err
	}
	if pair.AccessToken == "" {
		return models.User{}, errors.New("shop: login response carried no access_token")
	}
	creds := session.Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Username:     pair.User.Username,
	}
	if creds.Username == "" {
		creds.Username = username
	}
	if err := s.Session().Set(creds); err != nil {
		return pair.User, fmt.Errorf("shop: store session: %w", err)
	}
	s.logger.Printf("shop: logged in as %s", creds.Username)
	return pair.User, nil
}

// Logout tells the server and clears local credentials even if the call fails.
func (s *Service) Logout(ctx context.Context) error {
	var callErr error
	if s.Session().AccessToken() != "" {
		callErr = s.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	}
	if err := s.Session().Clear(); err != nil {
		return fmt.Errorf("shop: clear session: %w", err)
	}
	if callErr != nil {
		s.logger.Printf("shop: server logout failed: %v", callErr)
	}
	return nil
}

// Me returns the account behind the current session.
func (s *Service) Me(ctx context.Context) (models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// ListOrders returns the customer's orders, newest first as the API sends them.
func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := s.doJSON(ctx, http.MethodGet, "/api/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder fetches one order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (models.Order, error) {
	var order models.Order
	if err := s.doJSON(ctx, http.MethodGet, orderPath(orderID, ""), nil, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// CancelOrder cancels a pending or processing order.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := s.doJSON(ctx, http.MethodPut, orderPath(orderID, "/cancel"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ConfirmDelivery records whether the customer received orderID.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID int64, confirmation models.DeliveryConfirmation) (string, error) {
	if err := confirmation.Validate(); err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := s.doJSON(ctx, http.MethodPut, orderPath(orderID, "/confirm-delivery"), confirmation, &resp); err != nil {
		return "", err
	}
	s.logger.Printf("shop: order %d delivery confirmed (received=%t)", orderID, confirmation.Received)
	return resp.Message, nil
}

// PendingReviews lists the items of a delivered order still awaiting a review.
func (s *Service) PendingReviews(ctx context.Context, orderID int64) ([]models.PendingReview, error) {
	var pending []models.PendingReview
	path := "/api/reviews/order/" + strconv.FormatInt(orderID, 10) + "/pending"
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// SubmitReview uploads a review as multipart form data.
func (s *Service) SubmitReview(ctx context.Context, review models.Review) (string, error) {
	if err := review.Validate(); err != nil {
		return "", err
	}
	body, contentType, err := encodeReview(review)
	if err != nil {
		return "", err
	}
	req, err := s.client.NewRequest(ctx, http.MethodPost, "/api/reviews", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	var resp struct {
		Message string `json:"message"`
	}
	if err := s.do(req, &resp); err != nil {
		return "", err
	}
	s.logger.Printf("shop: review submitted for order item %d (%d images)", review.OrderItemID, len(review.Images))
	return resp.Message, nil
}

func encodeReview(review models.Review) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"product_id", strconv.FormatInt(review.ProductID, 10)},
		{"order_item_id", strconv.FormatInt(review.OrderItemID, 10)},
		{"order_id", strconv.FormatInt(review.OrderID, 10)},
		{"rating", strconv.Itoa(review.Rating)},
		{"comment", review.Comment},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("shop: encode review: %w", err)
		}
	}
	for _, img := range review.Images {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, filepath.Base(img.Name)))
		contentType := img.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("shop: encode review image: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("shop: encode review image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("shop: encode review: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("shop: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := s.client.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return s.do(req, out)
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp)
		s.logger.Printf("shop: %s %s failed: %v", req.Method, req.URL.Path, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("shop: decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func orderPath(orderID int64, suffix string) string {
	return "/api/orders/" + strconv.FormatInt(orderID, 10) + strings.TrimSpace(suffix)
}
