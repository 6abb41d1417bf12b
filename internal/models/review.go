package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 1000
	MaxReviewImages  = 3
	// MaxImageBytes is advisory; the client never rejects larger files.
	MaxImageBytes = 5 << 20
)

var (
	ErrCommentRequired = errors.New("please write a review")
	ErrCommentTooLong  = errors.New("review must be at most 1000 characters")
	ErrTooManyImages   = errors.New("maximum 3 images allowed")
)

// Attachment is an image selected for upload. The bytes are opaque to the client.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the attachment length in bytes.
func (a Attachment) Size() int {
	return len(a.Data)
}

// Oversized reports whether the file exceeds the advisory 5MB limit.
func (a Attachment) Oversized() bool {
	return len(a.Data) > MaxImageBytes
}

// Review is a rating and comment for one order line.
type Review struct {
	ProductID   int64
	OrderItemID int64
	OrderID     int64
	Rating      int
	Comment     string
	Images      []Attachment
}

// Validate enforces the rating, comment and image count rules.
func (r Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	}
	if strings.TrimSpace(r.Comment) == "" {
		return ErrCommentRequired
	}
	if utf8.RuneCountInString(r.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	if len(r.Images) > MaxReviewImages {
		return ErrTooManyImages
	}
	return nil
}

// RatingLabel describes a star rating the way the storefront does.
func RatingLabel(rating int) string {
	switch rating {
	case 5:
		return "Excellent!"
	case 4:
		return "Very Good!"
	case 3:
		return "Good"
	case 2:
		return "Okay"
	case 1:
		return "Poor"
	default:
		return ""
	}
}

// PendingReview is an item of a delivered order the customer has not reviewed.
type PendingReview struct {
	OrderItemID  int64           `json:"order_item_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

// AsOrderItem adapts a pending review entry to the order line it came from.
func (p PendingReview) AsOrderItem() OrderItem {
	return OrderItem{
		ID:          p.OrderItemID,
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		Quantity:    p.Quantity,
		Price:       p.Price,
	}
}
