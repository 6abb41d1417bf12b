// Package review holds the product review form: star rating, comment and up
// to three photos. The form is local state; Submit sends it through the shop
// service.
package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/shop"
)

const (
	msgNoItem          = "No item selected for review"
	msgCommentRequired = "Please write a review"
	msgTooManyImages   = "Maximum 3 images allowed"
	msgSubmitted       = "Review submitted successfully!"
	msgFailed          = "Failed to submit review"
	msgTransport       = "Error submitting review"
)

var (
	// ErrNoItem is returned by a form opened without an order item.
	ErrNoItem = errors.New("review: no item selected")
	// ErrCommentRequired is returned when the comment is blank.
	ErrCommentRequired = models.ErrCommentRequired
	// ErrTooManyImages rejects an AddImages batch that would exceed the cap.
	ErrTooManyImages = models.ErrTooManyImages
	// ErrBusy is returned while a submission is in flight or after success.
	ErrBusy = errors.New("review: form is not accepting input")
)

// Submitter sends a review. shop.Service satisfies it.
type Submitter interface {
	SubmitReview(ctx context.Context, review models.Review) (string, error)
}

// Image is an attachment plus its terminal preview. Preview is empty when
// the bytes could not be decoded; the file is still uploaded.
type Image struct {
	models.Attachment
	Preview string
}

// Form is the review dialog for one order item.
type Form struct {
	order      models.Order
	item       *models.OrderItem
	rating     int
	hover      int
	comment    string
	images     []Image
	submitting bool
	done       bool
	errMsg     string
	ack        string
}

// NewForm opens a review for item of order. A nil item yields a form that
// can only show its error and be closed.
func NewForm(order models.Order, item *models.OrderItem) *Form {
	f := &Form{order: order, rating: models.MaxRating}
	if item == nil {
		f.errMsg = msgNoItem
		return f
	}
	copied := *item
	f.item = &copied
	return f
}

// Order is the order the item belongs to.
func (f *Form) Order() models.Order { return f.order }

// Item is the order line under review, or nil.
func (f *Form) Item() *models.OrderItem { return f.item }

// HasItem reports whether the form can be used at all.
func (f *Form) HasItem() bool { return f.item != nil }

// Rating is the selected star count.
func (f *Form) Rating() int { return f.rating }

// Comment returns the current text.
func (f *Form) Comment() string { return f.comment }

// Images returns the selected attachments in order.
func (f *Form) Images() []Image { return append([]Image(nil), f.images...) }

// Submitting reports whether a request is in flight.
func (f *Form) Submitting() bool { return f.submitting }

// Done reports whether the server accepted the review.
func (f *Form) Done() bool { return f.done }

// Error is the message to show in the dialog, if any.
func (f *Form) Error() string { return f.errMsg }

// Acknowledgement is the message shown after a successful submission.
func (f *Form) Acknowledgement() string { return f.ack }

// Hover previews a rating without selecting it. Out-of-range values are ignored.
func (f *Form) Hover(n int) {
	if f.locked() || !validRating(n) {
		return
	}
	f.hover = n
}

// ClearHover ends the preview.
func (f *Form) ClearHover() {
	f.hover = 0
}

// Select sets the rating. Out-of-range values are ignored.
func (f *Form) Select(n int) {
	if f.locked() || !validRating(n) {
		return
	}
	f.rating = n
	f.hover = 0
}

// DisplayRating is the hovered rating if any, else the selected one.
func (f *Form) DisplayRating() int {
	if f.hover != 0 {
		return f.hover
	}
	return f.rating
}

// Label describes DisplayRating.
func (f *Form) Label() string {
	return models.RatingLabel(f.DisplayRating())
}

// Stars renders the five-star strip for DisplayRating.
func (f *Form) Stars() string {
	n := f.DisplayRating()
	return strings.Repeat("★", n) + strings.Repeat("☆", models.MaxRating-n)
}

// SetComment replaces the comment, keeping at most models.MaxCommentLength characters.
func (f *Form) SetComment(text string) {
	if f.locked() {
		return
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLength {
		text = string([]rune(text)[:models.MaxCommentLength])
	}
	f.comment = text
	if f.errMsg == msgCommentRequired && strings.TrimSpace(text) != "" {
		f.errMsg = ""
	}
}

// CommentLength is the character count shown under the editor.
func (f *Form) CommentLength() int {
	return utf8.RuneCountInString(f.comment)
}

// AddImages appends a batch of attachments. A batch that would take the
// total over models.MaxReviewImages is rejected whole.
func (f *Form) AddImages(files []models.Attachment) error {
	if f.locked() {
		return ErrBusy
	}
	if len(f.images)+len(files) > models.MaxReviewImages {
		f.errMsg = msgTooManyImages
		return ErrTooManyImages
	}
	for _, file := range files {
		preview, err := RenderPreview(file.Data, PreviewWidth)
		if err != nil {
			preview = ""
		}
		f.images = append(f.images, Image{Attachment: file, Preview: preview})
	}
	if f.errMsg == msgTooManyImages {
		f.errMsg = ""
	}
	return nil
}

// RemoveImage drops the attachment at index i.
func (f *Form) RemoveImage(i int) {
	if f.locked() || i < 0 || i >= len(f.images) {
		return
	}
	f.images = append(f.images[:i], f.images[i+1:]...)
	if f.errMsg == msgTooManyImages {
		f.errMsg = ""
	}
}

// CanSubmit mirrors the submit button's enabled state.
func (f *Form) CanSubmit() bool {
	return !f.locked() && f.item != nil && strings.TrimSpace(f.comment) != ""
}

// Begin validates the form and, on success, locks it and returns the review.
func (f *Form) Begin() (models.Review, error) {
	if f.item == nil {
		f.errMsg = msgNoItem
		return models.Review{}, ErrNoItem
	}
	if f.locked() {
		return models.Review{}, ErrBusy
	}
	if strings.TrimSpace(f.comment) == "" {
		f.errMsg = msgCommentRequired
		return models.Review{}, ErrCommentRequired
	}
	attachments := make([]models.Attachment, 0, len(f.images))
	for _, img := range f.images {
		attachments = append(attachments, img.Attachment)
	}
	f.errMsg = ""
	f.submitting = true
	return models.Review{
		ProductID:   f.item.ProductID,
		OrderItemID: f.item.ID,
		OrderID:     f.order.ID,
		Rating:      f.rating,
		Comment:     f.comment,
		Images:      attachments,
	}, nil
}

// Succeed closes the form.
func (f *Form) Succeed() {
	f.submitting = false
	f.done = true
	f.errMsg = ""
	f.ack = msgSubmitted
}

// Fail unlocks the form and keeps everything entered.
func (f *Form) Fail(err error) {
	f.submitting = false
	f.errMsg = FailureMessage(err)
}

// Submit runs Begin, the API call and Succeed or Fail in sequence.
func (f *Form) Submit(ctx context.Context, s Submitter) error {
	rv, err := f.Begin()
	if err != nil {
		return err
	}
	if _, err := s.SubmitReview(ctx, rv); err != nil {
		f.Fail(err)
		return err
	}
	f.Succeed()
	return nil
}

// FailureMessage maps a submission error to the text shown to the customer.
func FailureMessage(err error) string {
	var apiErr *shop.APIError
	if errors.As(err, &apiErr) {
		return shop.UserMessage(err, msgFailed)
	}
	return msgTransport
}

// LoadAttachment reads an image file from disk for upload.
func LoadAttachment(path string) (models.Attachment, error) {
	path = strings.TrimSpace(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("review: read %s: %w", path, err)
	}
	return models.Attachment{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// LoadAttachments reads every path, stopping at the first unreadable file.
func LoadAttachments(paths []string) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		a, err := LoadAttachment(p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *Form) locked() bool {
	return f.item == nil || f.submitting || f.done
}

func validRating(n int) bool {
	return n >= models.MinRating && n <= models.MaxRating
}
