package mockapi

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/kingrea/naqsh/internal/models"
)

// Seeded demo accounts.
const (
	DemoUsername  = "amina"
	DemoPassword  = "password123"
	OtherUsername = "bilal"
	OtherPassword = "password456"
)

var (
	errOrderNotFound    = errors.New("Order not found")
	errNotCancellable   = errors.New("Order cannot be cancelled at this stage")
	errNotDelivered     = errors.New("Only delivered orders can be confirmed")
	errAlreadyConfirmed = errors.New("Delivery has already been confirmed")
	errIssueReported    = errors.New("An issue has already been reported for this order")
	errReviewNotAllowed = errors.New("Order must be delivered to review")
	errAlreadyReviewed  = errors.New("You have already reviewed this product")
	errItemNotInOrder   = errors.New("Item does not belong to this order")
)

type account struct {
	user models.User
	hash []byte
}

type storedReview struct {
	ID      int64
	UserID  int64
	Review  models.Review
	Images  []string
	Created time.Time
}

type deliveryIssue struct {
	OrderID     int64
	Description string
	ReportedAt  time.Time
}

// store is the in-memory marketplace state behind the mock API.
type store struct {
	mu           sync.Mutex
	accounts     map[int64]*account
	orders       map[int64]*models.Order
	owners       map[int64]int64
	reviews      []storedReview
	issues       []deliveryIssue
	nextReviewID int64
}

func newStore() *store {
	return &store{
		accounts:     map[int64]*account{},
		orders:       map[int64]*models.Order{},
		owners:       map[int64]int64{},
		nextReviewID: 1,
	}
}

func (st *store) addAccount(user models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.accounts[user.ID] = &account{user: user, hash: hash}
	return nil
}

func (st *store) addOrder(userID int64, order models.Order) {
	st.mu.Lock()
	defer st.mu.Unlock()
	o := cloneOrder(order)
	st.orders[o.ID] = &o
	st.owners[o.ID] = userID
}

// authenticate matches login against username or email.
func (st *store) authenticate(login, password string) (models.User, bool) {
	st.mu.Lock()
	var found *account
	for _, acct := range st.accounts {
		if strings.EqualFold(acct.user.Username, login) || strings.EqualFold(acct.user.Email, login) {
			found = acct
			break
		}
	}
	st.mu.Unlock()
	if found == nil {
		return models.User{}, false
	}
	if bcrypt.CompareHashAndPassword(found.hash, []byte(password)) != nil {
		return models.User{}, false
	}
	return found.user, true
}

func (st *store) user(id int64) (models.User, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	acct, ok := st.accounts[id]
	if !ok {
		return models.User{}, false
	}
	return acct.user, true
}

func (st *store) ordersFor(userID int64) []models.Order {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]models.Order, 0)
	for id, order := range st.orders {
		if st.owners[id] == userID {
			out = append(out, cloneOrder(*order))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

// orderLocked returns the caller's order; other customers' orders are reported missing.
func (st *store) orderLocked(userID, orderID int64) (*models.Order, error) {
	order, ok := st.orders[orderID]
	if !ok || st.owners[orderID] != userID {
		return nil, errOrderNotFound
	}
	return order, nil
}

func (st *store) order(userID, orderID int64) (models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	order, err := st.orderLocked(userID, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return cloneOrder(*order), nil
}

func (st *store) cancel(userID, orderID int64, now time.Time) (models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	order, err := st.orderLocked(userID, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if !order.CanCancel() {
		return models.Order{}, errNotCancellable
	}
	order.Status = models.StatusCancelled
	order.UpdatedAt = models.Timestamp{Time: now}
	return cloneOrder(*order), nil
}

func (st *store) confirmDelivery(userID, orderID int64, conf models.DeliveryConfirmation, now time.Time) (models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	order, err := st.orderLocked(userID, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.StatusDelivered {
		return models.Order{}, errNotDelivered
	}
	if order.DeliveryConfirmed {
		return models.Order{}, errAlreadyConfirmed
	}
	if order.IssueReported {
		return models.Order{}, errIssueReported
	}
	if conf.Received {
		order.DeliveryConfirmed = true
		order.DeliveryConfirmedAt = &models.Timestamp{Time: now}
	} else {
		order.IssueReported = true
		order.IssueDescription = *conf.IssueDescription
		st.issues = append(st.issues, deliveryIssue{OrderID: orderID, Description: *conf.IssueDescription, ReportedAt: now})
	}
	order.UpdatedAt = models.Timestamp{Time: now}
	return cloneOrder(*order), nil
}

func (st *store) reviewedLocked(userID, productID int64) bool {
	for _, r := range st.reviews {
		if r.UserID == userID && r.Review.ProductID == productID {
			return true
		}
	}
	return false
}

func (st *store) pendingReviews(userID, orderID int64) ([]models.PendingReview, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	order, err := st.orderLocked(userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusDelivered {
		return nil, errReviewNotAllowed
	}
	pending := make([]models.PendingReview, 0, len(order.Items))
	for _, item := range order.Items {
		if st.reviewedLocked(userID, item.ProductID) {
			continue
		}
		pending = append(pending, models.PendingReview{
			OrderItemID: item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	return pending, nil
}

func (st *store) addReview(userID int64, review models.Review, images []string, now time.Time) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if review.OrderID != 0 {
		order, err := st.orderLocked(userID, review.OrderID)
		if err != nil {
			return 0, err
		}
		if order.Status != models.StatusDelivered {
			return 0, errReviewNotAllowed
		}
		if review.OrderItemID != 0 {
			if _, ok := order.FindItem(review.OrderItemID); !ok {
				return 0, errItemNotInOrder
			}
		}
	}
	if st.reviewedLocked(userID, review.ProductID) {
		return 0, errAlreadyReviewed
	}
	id := st.nextReviewID
	st.nextReviewID++
	review.Images = nil
	st.reviews = append(st.reviews, storedReview{ID: id, UserID: userID, Review: review, Images: images, Created: now})
	return id, nil
}

func (st *store) issueCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.issues)
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.DeliveryConfirmedAt != nil {
		at := *o.DeliveryConfirmedAt
		o.DeliveryConfirmedAt = &at
	}
	return o
}

// seed loads the demo customers and one order per lifecycle state.
func (st *store) seed(now time.Time) error {
	amina := models.User{ID: 1, Username: DemoUsername, Email: "amina@example.com", FirstName: "Amina", LastName: "Qureshi", Role: "customer", IsActive: true}
	bilal := models.User{ID: 2, Username: OtherUsername, Email: "bilal@example.com", FirstName: "Bilal", Role: "customer", IsActive: true}
	if err := st.addAccount(amina, DemoPassword); err != nil {
		return err
	}
	if err := st.addAccount(bilal, OtherPassword); err != nil {
		return err
	}
	price := decimal.RequireFromString
	day := 24 * time.Hour
	mk := func(id int64, status models.OrderStatus, age time.Duration, items ...models.OrderItem) models.Order {
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.Subtotal())
		}
		created := now.Add(-age)
		return models.Order{
			ID:              id,
			StoreID:         7,
			Items:           items,
			TotalAmount:     total,
			Status:          status,
			ShippingAddress: "House 12, Street 4, F-7/2, Islamabad",
			CreatedAt:       models.Timestamp{Time: created},
			UpdatedAt:       models.Timestamp{Time: created},
		}
	}
	st.addOrder(amina.ID, mk(1001, models.StatusPending, 1*day,
		models.OrderItem{ID: 1, ProductID: 501, ProductName: "Embroidered Lawn Kurta", Quantity: 1, Price: price("4500")}))
	st.addOrder(amina.ID, mk(1002, models.StatusProcessing, 3*day,
		models.OrderItem{ID: 2, ProductID: 502, ProductName: "Chikankari Dupatta", Quantity: 2, Price: price("1800")}))
	st.addOrder(amina.ID, mk(1003, models.StatusShipped, 5*day,
		models.OrderItem{ID: 3, ProductID: 503, ProductName: "Khussa Flats", Quantity: 1, Price: price("3200")}))
	st.addOrder(amina.ID, mk(1004, models.StatusDelivered, 9*day,
		models.OrderItem{ID: 4, ProductID: 504, ProductName: "Silk Shalwar", Quantity: 1, Price: price("2750.50")},
		models.OrderItem{ID: 5, ProductID: 505, ProductName: "Ajrak Shawl", Quantity: 1, Price: price("3900")}))
	confirmed := mk(1005, models.StatusDelivered, 20*day,
		models.OrderItem{ID: 6, ProductID: 506, ProductName: "Mirror-work Clutch", Quantity: 1, Price: price("2100")})
	confirmed.DeliveryConfirmed = true
	confirmed.DeliveryConfirmedAt = &models.Timestamp{Time: now.Add(-15 * day)}
	st.addOrder(amina.ID, confirmed)
	st.addOrder(amina.ID, mk(1006, models.StatusCancelled, 30*day,
		models.OrderItem{ID: 7, ProductID: 507, ProductName: "Phulkari Cushion Cover", Quantity: 3, Price: price("950")}))
	st.addOrder(bilal.ID, mk(2001, models.StatusDelivered, 4*day,
		models.OrderItem{ID: 8, ProductID: 501, ProductName: "Embroidered Lawn Kurta", Quantity: 1, Price: price("4500")}))
	return nil
}
