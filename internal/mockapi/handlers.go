package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/kingrea/naqsh/internal/models"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	claimsKey
)

var allowedImageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// requireToken admits requests bearing an unexpired, unrevoked token of kind.
func (s *Server) requireToken(kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.bearerClaims(r, kind)
			if err != nil {
				var te *tokenError
				if !errors.As(err, &te) {
					te = errTokenInvalid
				}
				writeJSON(w, te.status, map[string]string{"msg": te.message})
				return
			}
			userID, err := claims.userID()
			if err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"msg": "Invalid token subject"})
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) bearerClaims(r *http.Request, kind string) (*tokenClaims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, errTokenMissing
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errBadTokenFormat
	}
	claims, err := s.tokens.verify(strings.TrimSpace(raw), kind)
	if err != nil {
		return nil, err
	}
	if s.isRevoked(claims.ID) {
		return nil, errTokenRevoked
	}
	return claims, nil
}

func currentUser(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: string(s.Status()), UptimeSeconds: s.uptimeSeconds()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	if err := decodeJSON(w, r, s.settings.MaxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if body.Password == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing password"})
		return
	}
	login := ""
	if body.Username != nil {
		login = strings.TrimSpace(*body.Username)
	}
	if login == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing username or email"})
		return
	}
	user, ok := s.store.authenticate(login, *body.Password)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username/email or password"})
		return
	}
	if !user.IsActive {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "User account is inactive"})
		return
	}
	access, err := s.tokens.issue(user.ID, tokenTypeAccess)
	if err != nil {
		s.internalError(w, err)
		return
	}
	refresh, err := s.tokens.issue(user.ID, tokenTypeRefresh)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TokenPair{
		Message:      "Login successful",
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.user(currentUser(r))
	if !ok || !user.IsActive {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "User not found or inactive"})
		return
	}
	access, err := s.tokens.issue(user.ID, tokenTypeAccess)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": access, "user": user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.user(currentUser(r))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := r.Context().Value(claimsKey).(*tokenClaims); ok && claims.ExpiresAt != nil {
		s.revoke(claims.ID, claims.ExpiresAt.Time)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ordersFor(currentUser(r)))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.store.order(currentUser(r), orderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.store.cancel(currentUser(r), orderID, s.now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order cancelled successfully", "order": order})
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var conf models.DeliveryConfirmation
	if err := decodeJSON(w, r, s.settings.MaxBodyBytes, &conf); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if !conf.Received {
		if conf.IssueDescription == nil || strings.TrimSpace(*conf.IssueDescription) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Issue description is required"})
			return
		}
		if utf8.RuneCountInString(*conf.IssueDescription) > models.MaxIssueLength {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Issue description is too long"})
			return
		}
	}
	order, err := s.store.confirmDelivery(currentUser(r), orderID, conf, s.now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	message := "Delivery confirmed. Thank you for shopping with us!"
	if !conf.Received {
		message = "Issue reported. Our team will contact you shortly."
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "order": order})
}

func (s *Server) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	pending, err := s.store.pendingReviews(currentUser(r), orderID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.settings.MaxBodyBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Expected multipart form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	productID, _ := strconv.ParseInt(r.FormValue("product_id"), 10, 64)
	rating, _ := strconv.Atoi(r.FormValue("rating"))
	if productID == 0 || rating == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Product ID and rating are required"})
		return
	}
	if rating < models.MinRating || rating > models.MaxRating {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Rating must be between 1 and 5"})
		return
	}
	comment := r.FormValue("comment")
	if strings.TrimSpace(comment) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Comment is required"})
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) > models.MaxReviewImages {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Maximum 3 images allowed"})
		return
	}
	var images []string
	for _, fh := range files {
		if allowedImageExt[strings.ToLower(filepath.Ext(fh.Filename))] {
			images = append(images, "/uploads/reviews/"+filepath.Base(fh.Filename))
		}
	}
	orderID, _ := strconv.ParseInt(r.FormValue("order_id"), 10, 64)
	orderItemID, _ := strconv.ParseInt(r.FormValue("order_item_id"), 10, 64)
	review := models.Review{
		ProductID:   productID,
		OrderItemID: orderItemID,
		OrderID:     orderID,
		Rating:      rating,
		Comment:     comment,
	}
	id, err := s.store.addReview(currentUser(r), review, images, s.now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if images == nil {
		images = []string{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Review submitted successfully",
		"review_id": id,
		"rating":    rating,
		"images":    images,
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Printf("mockapi: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errOrderNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	reader := http.MaxBytesReader(w, r.Body, limit)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return errors.New("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
