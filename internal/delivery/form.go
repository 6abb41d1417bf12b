// Package delivery holds the "did you receive this order?" form. Answering
// and editing are purely local; only Submit talks to the API.
package delivery

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/naqsh/internal/models"
	"github.com/kingrea/naqsh/internal/shop"
)

// Answer is the customer's reply to the receipt question.
type Answer int

const (
	Unanswered Answer = iota
	AnsweredYes
	AnsweredNo
)

func (a Answer) String() string {
	switch a {
	case AnsweredYes:
		return "yes"
	case AnsweredNo:
		return "no"
	default:
		return "unanswered"
	}
}

const (
	msgIssueRequired = "Please describe the issue"
	msgUnanswered    = "Please tell us whether you received the order"
	msgFailed        = "Failed to confirm delivery"
	msgTransport     = "Error confirming delivery"
	msgConfirmed     = "Delivery confirmed"
)

var (
	// ErrIssueRequired is returned when "No" is chosen without a description.
	ErrIssueRequired = models.ErrIssueRequired
	// ErrUnanswered is returned when nothing has been chosen yet.
	ErrUnanswered = errors.New("delivery: no answer selected")
	// ErrBusy is returned while a submission is in flight or after success.
	ErrBusy = errors.New("delivery: form is not accepting input")
)

// Confirmer sends the confirmation. shop.Service satisfies it.
type Confirmer interface {
	ConfirmDelivery(ctx context.Context, orderID int64, confirmation models.DeliveryConfirmation) (string, error)
}

// Form tracks one order's confirmation dialog.
type Form struct {
	orderID    int64
	answer     Answer
	issue      string
	submitting bool
	done       bool
	errMsg     string
	ack        string
}

// NewForm opens an unanswered form for orderID.
func NewForm(orderID int64) *Form {
	return &Form{orderID: orderID}
}

// OrderID identifies the order being confirmed.
func (f *Form) OrderID() int64 { return f.orderID }

// Answer returns the latest choice.
func (f *Form) Answer() Answer { return f.answer }

// Issue returns the current description text.
func (f *Form) Issue() string { return f.issue }

// Submitting reports whether a request is in flight.
func (f *Form) Submitting() bool { return f.submitting }

// Done reports whether the server accepted the confirmation.
func (f *Form) Done() bool { return f.done }

// Error is the message to show under the form, if any.
func (f *Form) Error() string { return f.errMsg }

// Acknowledgement is the server's success message.
func (f *Form) Acknowledgement() string { return f.ack }

// Received reports whether the accepted answer was "yes".
func (f *Form) Received() bool { return f.done && f.answer == AnsweredYes }

// Choose records an answer. Switching answers keeps the issue text.
func (f *Form) Choose(received bool) {
	if f.locked() {
		return
	}
	if received {
		f.answer = AnsweredYes
	} else {
		f.answer = AnsweredNo
	}
	f.errMsg = ""
}

// SetIssue replaces the description, keeping at most models.MaxIssueLength characters.
func (f *Form) SetIssue(text string) {
	if f.locked() {
		return
	}
	f.issue = truncateRunes(text, models.MaxIssueLength)
	if f.errMsg == msgIssueRequired && strings.TrimSpace(f.issue) != "" {
		f.errMsg = ""
	}
}

// IssueLength is the character count shown next to the editor.
func (f *Form) IssueLength() int {
	return utf8.RuneCountInString(f.issue)
}

// CanSubmit mirrors the submit button's enabled state.
func (f *Form) CanSubmit() bool {
	if f.locked() {
		return false
	}
	switch f.answer {
	case AnsweredYes:
		return true
	case AnsweredNo:
		return strings.TrimSpace(f.issue) != ""
	default:
		return false
	}
}

// Begin validates the form and, on success, locks it and returns the payload.
// A validation failure leaves the form editable and sets Error.
func (f *Form) Begin() (models.DeliveryConfirmation, error) {
	if f.locked() {
		return models.DeliveryConfirmation{}, ErrBusy
	}
	switch f.answer {
	case Unanswered:
		f.errMsg = msgUnanswered
		return models.DeliveryConfirmation{}, ErrUnanswered
	case AnsweredNo:
		if strings.TrimSpace(f.issue) == "" {
			f.errMsg = msgIssueRequired
			return models.DeliveryConfirmation{}, ErrIssueRequired
		}
	}
	f.errMsg = ""
	f.submitting = true
	return models.NewDeliveryConfirmation(f.answer == AnsweredYes, f.issue), nil
}

// Succeed closes the form with the server's acknowledgement.
func (f *Form) Succeed(message string) {
	f.submitting = false
	f.done = true
	f.errMsg = ""
	f.ack = strings.TrimSpace(message)
	if f.ack == "" {
		f.ack = msgConfirmed
	}
}

// Fail unlocks the form, keeping the answer and text for another attempt.
func (f *Form) Fail(err error) {
	f.submitting = false
	f.errMsg = FailureMessage(err)
}

// Submit runs Begin, the API call and Succeed or Fail in sequence.
func (f *Form) Submit(ctx context.Context, c Confirmer) error {
	conf, err := f.Begin()
	if err != nil {
		return err
	}
	msg, err := c.ConfirmDelivery(ctx, f.orderID, conf)
	if err != nil {
		f.Fail(err)
		return err
	}
	f.Succeed(msg)
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

func (f *Form) locked() bool {
	return f.submitting || f.done
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
